// Package embeddings implements the embedding pipeline: a long-lived
// subprocess as the primary mode, an HTTP endpoint as fallback, and a
// content-addressed in-memory cache in front of both.
package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
)

// Pipeline implements interfaces.EmbeddingPipeline. Subprocess calls are
// serialized through queueMu to honor the single-outstanding-request FIFO
// discipline the helper binary expects; HTTP fallback calls are not
// serialized since the remote endpoint manages its own concurrency.
type Pipeline struct {
	dimension int
	cache     *cache
	logger    arbor.ILogger

	subprocess *subprocessClient
	queueMu    sync.Mutex

	fallback *httpFallbackClient
}

var _ interfaces.EmbeddingPipeline = (*Pipeline)(nil)

// New constructs the embedding pipeline. When config.SubprocessPath is set,
// the subprocess is started immediately and used as the primary mode;
// otherwise the pipeline falls back to config.FallbackURL from the start.
func New(config *common.EmbeddingConfig, logger arbor.ILogger) (*Pipeline, error) {
	p := &Pipeline{
		dimension: config.Dimension,
		cache:     newCache(config.ModelName),
		logger:    logger,
		fallback:  newHTTPFallbackClient(config.FallbackURL, config.ModelName, time.Duration(config.CallTimeoutSeconds)*time.Second, logger),
	}

	if config.SubprocessPath != "" {
		sub := newSubprocessClient(
			config.SubprocessPath,
			time.Duration(config.SubprocessInitTimeoutSeconds)*time.Second,
			time.Duration(config.CallTimeoutSeconds)*time.Second,
			logger,
		)
		if err := sub.Start(); err != nil {
			logger.Warn().Err(err).Msg("embedding subprocess failed to start, falling back to HTTP endpoint")
		} else {
			p.subprocess = sub
		}
	}

	return p, nil
}

func (p *Pipeline) Dimension() int { return p.dimension }

func (p *Pipeline) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if v, ok := p.cache.Get(text); ok {
		return v, nil
	}

	v, err := p.embedUncached(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Put(text, v)
	return v, nil
}

func (p *Pipeline) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.EmbedOne(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *Pipeline) embedUncached(ctx context.Context, text string) ([]float32, error) {
	if p.subprocess != nil && p.subprocess.Ready() {
		p.queueMu.Lock()
		v, err := p.subprocess.Embed(ctx, text)
		p.queueMu.Unlock()
		if err == nil {
			return v, nil
		}
		p.logger.Warn().Err(err).Msg("embedding subprocess call failed, falling back to HTTP endpoint")
	}

	return p.fallback.Embed(ctx, text)
}

func (p *Pipeline) Close() error {
	if p.subprocess != nil {
		return p.subprocess.Stop()
	}
	return nil
}
