// Package claims extracts atomic subject-predicate-object claims from
// document sections via the LLM pipeline's structured-extraction operation,
// bounding concurrency with a worker pool.
package claims

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
	"github.com/ternarybob/veritas/internal/services/workers"
)

const claimSchemaDescription = `{
  "claims": [
    {
      "subject": "string, the entity or topic the claim is about",
      "predicate": "string, the relationship or assertion verb",
      "object": "string, the value or target of the assertion",
      "qualifier": "string, optional condition/scope/time qualifier, empty if none",
      "confidence": "number between 0 and 1"
    }
  ]
}`

type claimSet struct {
	Claims []struct {
		Subject    string  `json:"subject"`
		Predicate  string  `json:"predicate"`
		Object     string  `json:"object"`
		Qualifier  string  `json:"qualifier"`
		Confidence float64 `json:"confidence"`
	} `json:"claims"`
}

// Extractor turns section content into a set of atomic claims.
type Extractor struct {
	llm    interfaces.LLMPipeline
	config *common.ClaimsConfig
	logger arbor.ILogger
}

// New constructs a claim Extractor.
func New(llm interfaces.LLMPipeline, config *common.ClaimsConfig, logger arbor.ILogger) *Extractor {
	return &Extractor{llm: llm, config: config, logger: logger}
}

// ExtractSection extracts claims from a single section, discarding any
// below the configured confidence threshold.
func (e *Extractor) ExtractSection(ctx context.Context, section *models.Section) ([]*models.Claim, error) {
	prompt := fmt.Sprintf(
		"Extract every atomic factual claim from the following document section as subject-predicate-object triples. "+
			"A claim should be a single, independently verifiable assertion. Split compound statements into separate claims.\n\n"+
			"Section heading: %s\n\nContent:\n%s", section.Header, section.Content)

	var result claimSet
	if err := e.llm.ExtractStructured(ctx, prompt, claimSchemaDescription, &result); err != nil {
		return nil, fmt.Errorf("failed to extract claims for section %s: %w", section.ID, err)
	}

	threshold := e.config.ConfidenceThreshold
	claims := make([]*models.Claim, 0, len(result.Claims))
	for _, c := range result.Claims {
		if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Predicate) == "" {
			continue
		}
		if c.Confidence < threshold {
			continue
		}
		start, end := sourceSpan(section.Content, c.Object, c.Subject)
		claims = append(claims, &models.Claim{
			ID:              common.NewID(),
			DocumentID:      section.DocumentID,
			SectionID:       section.ID,
			Subject:         c.Subject,
			Predicate:       c.Predicate,
			Object:          c.Object,
			Qualifier:       c.Qualifier,
			Confidence:      c.Confidence,
			SourceSpanStart: start,
			SourceSpanEnd:   end,
		})
	}

	return dedupe(claims, e.config.DedupDistance), nil
}

// ExtractDocument extracts claims for every section of a document, bounding
// concurrency to config.Concurrency LLM calls in flight at once.
func (e *Extractor) ExtractDocument(ctx context.Context, sections []*models.Section) (map[string][]*models.Claim, error) {
	pool := workers.NewPool(e.config.Concurrency, e.logger)
	pool.Start()

	var mu sync.Mutex
	out := make(map[string][]*models.Claim, len(sections))

	for _, sec := range sections {
		sec := sec
		if err := pool.Submit(func(ctx context.Context) error {
			claims, err := e.ExtractSection(ctx, sec)
			if err != nil {
				return err
			}
			mu.Lock()
			out[sec.ID] = claims
			mu.Unlock()
			return nil
		}); err != nil {
			pool.Shutdown()
			return nil, err
		}
	}

	pool.Wait()
	if errs := pool.Errors(); len(errs) > 0 {
		return out, fmt.Errorf("claim extraction failed for %d section(s): %w", len(errs), errs[0])
	}
	return out, nil
}

// dedupe removes near-duplicate claims within a single section using
// Levenshtein distance over the "subject|predicate|object" key (compared
// as-is, without case or whitespace normalization), keeping the highest-confidence claim of each near-duplicate
// cluster.
func dedupe(claims []*models.Claim, maxDistance int) []*models.Claim {
	var out []*models.Claim
	for _, c := range claims {
		dup := false
		for _, kept := range out {
			if levenshtein(claimKey(c), claimKey(kept)) <= maxDistance {
				dup = true
				if c.Confidence > kept.Confidence {
					*kept = *c
				}
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// sourceSpan best-effort locates a claim within its section by substring
// search, trying each candidate in order and returning the first match as a
// section-relative [start, end) byte range. Falls back to the whole section
// when none of the candidates appear verbatim.
func sourceSpan(content string, candidates ...string) (int, int) {
	lower := strings.ToLower(content)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(c)); idx >= 0 {
			return idx, idx + len(c)
		}
	}
	return 0, len(content)
}

func claimKey(c *models.Claim) string {
	return c.Subject + "|" + c.Predicate + "|" + c.Object
}

// levenshtein computes edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
