// -----------------------------------------------------------------------
// Last Modified: Wednesday, 5th November 2025 8:17:54 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

// Package app wires the knowledge consolidation service's components
// together in dependency order and owns their shutdown.
package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/veritas/internal/claims"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/conflict"
	"github.com/ternarybob/veritas/internal/entity"
	"github.com/ternarybob/veritas/internal/ingest"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/merge"
	"github.com/ternarybob/veritas/internal/overlap"
	"github.com/ternarybob/veritas/internal/query"
	"github.com/ternarybob/veritas/internal/services/embeddings"
	"github.com/ternarybob/veritas/internal/services/llm"
	"github.com/ternarybob/veritas/internal/storage/sqlite"
)

// App holds every long-lived component of the tool server, wired in the
// order its components depend on one another: persistence, then
// embedding, then the LLM pipeline, then the packages layered on top of
// those three (claim extraction, entity resolution, conflict detection,
// merging, querying).
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB          *sqlite.DB
	Storage     interfaces.DocumentStorage
	AuditLogger llm.AuditLogger

	Embedder interfaces.EmbeddingPipeline
	LLM      interfaces.LLMPipeline

	Extractor *claims.Extractor
	Entities  *entity.Resolver
	Detector  *conflict.Detector
	Overlap   *overlap.Detector
	Merger    *merge.Engine
	Query     *query.Engine
	Ingest    *ingest.Service
}

// New constructs every component and returns an App ready to serve tool
// calls. Construction failures in optional components (entity resolver)
// are not fatal; construction failures in required components are.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := sqlite.New(logger, &cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.Storage = sqlite.NewStorage(db, logger)

	if cfg.Audit.Enabled {
		a.AuditLogger = llm.NewSQLiteAuditLogger(db.DB(), cfg.Audit.LogQueries, logger)
	} else {
		a.AuditLogger = llm.NewNullAuditLogger()
	}

	embedder, err := embeddings.New(&cfg.Embedding, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize embedding pipeline: %w", err)
	}
	a.Embedder = embedder

	a.LLM = llm.New(&cfg.LLM, a.AuditLogger, logger)

	a.Extractor = claims.New(a.LLM, &cfg.Claims, logger)

	graphPassword, err := common.ResolveGraphPassword(cfg)
	if err != nil && cfg.Graph.Enabled {
		logger.Warn().Err(err).Msg("graph store enabled but password not resolved, entity resolver disabled")
	}
	a.Entities = entity.New(&cfg.Graph, graphPassword, logger)

	a.Detector = conflict.New(a.Storage, a.LLM, &cfg.Conflict, logger)
	a.Overlap = overlap.New(a.Storage, a.Detector, logger)
	a.Merger = merge.New(a.Storage, a.Detector, &cfg.Merge, logger)
	a.Query = query.New(a.Storage, a.Embedder, a.LLM, a.Detector, &cfg.Query, logger)
	a.Ingest = ingest.New(a.Storage, a.Embedder, a.Extractor, a.Entities, logger)

	logger.Info().
		Str("llm_base_url", cfg.LLM.BaseURL).
		Bool("graph_enabled", a.Entities.Enabled()).
		Msg("application initialized")

	return a, nil
}

// Close tears down components in the reverse order New built them. Every
// step runs even if an earlier one fails; the first error is returned.
func (a *App) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.Entities != nil {
		record(a.Entities.Close())
	}
	if a.LLM != nil {
		record(a.LLM.Close())
	}
	if a.Embedder != nil {
		record(a.Embedder.Close())
	}
	if a.AuditLogger != nil {
		record(a.AuditLogger.Close())
	}
	if a.DB != nil {
		record(a.DB.Close())
	}
	return firstErr
}
