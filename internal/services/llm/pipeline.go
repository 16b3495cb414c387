// Package llm implements a native-HTTP LLM pipeline. No vendor SDK is
// used: every call is a plain JSON request/response over net/http.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/apperrors"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
)

// Pipeline is the native-HTTP implementation of interfaces.LLMPipeline.
type Pipeline struct {
	client  *http.Client
	baseURL string
	model   string
	config  *common.LLMConfig
	retry   *RetryConfig
	audit   AuditLogger
	logger  arbor.ILogger
}

var _ interfaces.LLMPipeline = (*Pipeline)(nil)

// New constructs a Pipeline talking to config.BaseURL.
func New(config *common.LLMConfig, audit AuditLogger, logger arbor.ILogger) *Pipeline {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	retry := &RetryConfig{
		MaxRetries:        config.MaxRetries,
		InitialBackoff:    time.Duration(config.InitialBackoffSeconds * float64(time.Second)),
		MaxBackoff:        time.Duration(config.MaxBackoffSeconds * float64(time.Second)),
		BackoffMultiplier: config.BackoffMultiplier,
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = DefaultMaxRetries
	}
	if retry.InitialBackoff == 0 {
		retry.InitialBackoff = DefaultInitialBackoff
	}
	if retry.MaxBackoff == 0 {
		retry.MaxBackoff = DefaultMaxBackoff
	}
	if retry.BackoffMultiplier == 0 {
		retry.BackoffMultiplier = DefaultBackoffMultiplier
	}

	return &Pipeline{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		config:  config,
		retry:   retry,
		audit:   audit,
		logger:  logger,
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt,omitempty"`
	Messages    []chatMsg `json:"messages,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateResponse struct {
	Response string `json:"response"`
	Message  chatMsg `json:"message"`
	Error    string `json:"error"`
}

func (p *Pipeline) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	start := time.Now()
	text, err := p.call(ctx, generateRequest{
		Model:       p.model,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, opts)
	p.logAudit("generate", err == nil, time.Since(start), err, prompt)
	return text, err
}

func (p *Pipeline) Chat(ctx context.Context, messages []interfaces.ChatMessage, opts interfaces.GenerateOptions) (string, error) {
	start := time.Now()
	msgs := make([]chatMsg, len(messages))
	for i, m := range messages {
		msgs[i] = chatMsg{Role: m.Role, Content: m.Content}
	}
	text, err := p.call(ctx, generateRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, opts)
	var queryText string
	if len(messages) > 0 {
		queryText = messages[len(messages)-1].Content
	}
	p.logAudit("chat", err == nil, time.Since(start), err, queryText)
	return text, err
}

func (p *Pipeline) call(ctx context.Context, req generateRequest, opts interfaces.GenerateOptions) (string, error) {
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	var result string
	err := p.retry.Do(callCtx, func() error {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		endpoint := p.baseURL + "/api/generate"
		if len(req.Messages) > 0 {
			endpoint = p.baseURL + "/api/chat"
		}

		httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			if callCtx.Err() != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrLLMTimeout, err)
			}
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: llm endpoint returned status %d: %s", apperrors.ErrLLMError, resp.StatusCode, string(respBody))
		}

		var gr generateResponse
		if err := json.Unmarshal(respBody, &gr); err != nil {
			return fmt.Errorf("failed to decode llm response: %w", err)
		}
		if gr.Error != "" {
			return fmt.Errorf("%w: %s", apperrors.ErrLLMError, gr.Error)
		}

		if gr.Message.Content != "" {
			result = gr.Message.Content
		} else {
			result = gr.Response
		}
		return nil
	})

	return result, err
}

// SelfConsistency samples the prompt n times and reports the majority
// answer with an agreement rate, used by the query engine to verify claims
// before citing them.
func (p *Pipeline) SelfConsistency(ctx context.Context, prompt string, n int, opts interfaces.GenerateOptions) (*interfaces.SelfConsistencyResult, error) {
	if n <= 0 {
		n = p.config.SelfConsistencySamples
	}
	if n <= 0 {
		n = 3
	}

	samples := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := p.Generate(ctx, prompt, opts)
		if err != nil {
			return nil, err
		}
		samples = append(samples, strings.TrimSpace(text))
	}

	counts := make(map[string]int)
	for _, s := range samples {
		counts[normalizeSample(s)]++
	}

	var best string
	var bestCount int
	for s, c := range samples2counts(samples, counts) {
		if c > bestCount {
			best, bestCount = s, c
		}
	}

	agreement := float64(bestCount) / float64(len(samples))

	return &interfaces.SelfConsistencyResult{
		Answer:        best,
		AgreementRate: agreement,
		Confidence:    agreement,
		Samples:       samples,
	}, nil
}

func normalizeSample(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// samples2counts maps each normalized answer back to one representative
// original-cased sample, so the reported Answer preserves casing.
func samples2counts(samples []string, counts map[string]int) map[string]int {
	rep := make(map[string]string)
	out := make(map[string]int)
	for _, s := range samples {
		key := normalizeSample(s)
		if _, ok := rep[key]; !ok {
			rep[key] = s
		}
	}
	for key, c := range counts {
		out[rep[key]] = c
	}
	return out
}

// ExtractStructured prompts for JSON conforming to schemaDescription and
// retries up to config.StructuredExtractRetries times on parse failure,
// feeding the parse error back into the prompt each attempt.
func (p *Pipeline) ExtractStructured(ctx context.Context, prompt string, schemaDescription string, out interface{}) error {
	retries := p.config.StructuredExtractRetries
	if retries <= 0 {
		retries = 3
	}

	fullPrompt := fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s\n\nRespond with JSON only, no surrounding text.", prompt, schemaDescription)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		start := time.Now()
		text, err := p.call(ctx, generateRequest{Model: p.model, Prompt: fullPrompt}, interfaces.GenerateOptions{})
		if err != nil {
			p.logAudit("extract_structured", false, time.Since(start), err, prompt)
			return err
		}

		jsonText := extractJSON(text)
		if err := json.Unmarshal([]byte(jsonText), out); err != nil {
			lastErr = err
			p.logAudit("extract_structured", false, time.Since(start), err, prompt)
			fullPrompt = fmt.Sprintf("%s\n\nThe previous response failed to parse as JSON: %v\nPrevious response:\n%s\n\nRespond with valid JSON only.", prompt, err, text)
			continue
		}

		p.logAudit("extract_structured", true, time.Since(start), nil, prompt)
		return nil
	}

	return fmt.Errorf("%w: %v", apperrors.ErrStructuredExtractionFail, lastErr)
}

// extractJSON trims any leading/trailing prose or code fences around a
// JSON object or array, since models often wrap output in ```json blocks.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	end := strings.LastIndexAny(text, "}]")
	if end < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func (p *Pipeline) logAudit(operation string, success bool, duration time.Duration, err error, queryText string) {
	if p.audit == nil {
		return
	}
	if logErr := p.audit.LogOperation(operation, ModeHTTP, success, duration, err, queryText); logErr != nil {
		p.logger.Warn().Err(logErr).Msg("failed to write llm audit log entry")
	}
}

func (p *Pipeline) Close() error { return nil }
