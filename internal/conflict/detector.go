// Package conflict implements the multi-signal contradiction detector.
package conflict

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// Detector finds conflicts between pairs of claims.
type Detector struct {
	storage interfaces.DocumentStorage
	llm     interfaces.LLMPipeline
	config  *common.ConflictConfig
	logger  arbor.ILogger
}

// New constructs a Detector.
func New(storage interfaces.DocumentStorage, llm interfaces.LLMPipeline, config *common.ConflictConfig, logger arbor.ILogger) *Detector {
	return &Detector{storage: storage, llm: llm, config: config, logger: logger}
}

// DetectPair evaluates every signal for one pair of claims and reports the
// highest-strength classification, or nil if no signal clears τ.
func (d *Detector) DetectPair(ctx context.Context, a, b *models.Claim) (*Conflict, error) {
	var best *Conflict

	consider := func(c *Conflict) {
		if c == nil {
			return
		}
		if best == nil || c.Strength > best.Strength ||
			(c.Strength == best.Strength && tieBreakOrder[c.Type] < tieBreakOrder[best.Type]) {
			best = c
		}
	}

	semantic, err := d.semanticOpposition(ctx, a, b)
	if err != nil {
		d.logger.Debug().Err(err).Msg("semantic opposition signal unavailable")
	}
	consider(semantic)
	consider(valueDivergence(a, b))
	consider(temporalDivergence(a, b))
	consider(scopeDivergence(a, b))

	if best == nil || best.Strength < d.config.MinStrength {
		adjudicated, err := d.llmAdjudicate(ctx, a, b)
		if err != nil {
			d.logger.Debug().Err(err).Msg("llm adjudication unavailable")
		} else {
			consider(adjudicated)
		}
	}

	if best == nil {
		return nil, nil
	}
	if best.Strength > 1.0 {
		best.Strength = 1.0
	}
	if best.Strength < d.config.MinStrength {
		return nil, nil
	}
	return best, nil
}

// DetectAll evaluates every pair within claims and returns surviving
// conflicts, used by the merge engine's per-cluster conflict pass.
func (d *Detector) DetectAll(ctx context.Context, claims []*models.Claim) ([]*Conflict, error) {
	var out []*Conflict
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			c, err := d.DetectPair(ctx, claims[i], claims[j])
			if err != nil {
				return nil, err
			}
			if c != nil {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

var negationWords = []string{"not", "no", "never", "cannot", "can't", "isn't", "doesn't", "won't", "shouldn't"}

func isNegated(predicate string) bool {
	lower := strings.ToLower(predicate)
	for _, w := range negationWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// semanticOpposition combines claim-vector cosine similarity with a
// predicate negation heuristic.
func (d *Detector) semanticOpposition(ctx context.Context, a, b *models.Claim) (*Conflict, error) {
	va, err := d.storage.GetVector(ctx, models.VectorOwnerClaim, a.ID)
	if err != nil {
		return nil, nil
	}
	vb, err := d.storage.GetVector(ctx, models.VectorOwnerClaim, b.ID)
	if err != nil {
		return nil, nil
	}

	sim := cosineSimilarity(va.Values, vb.Values)
	if sim < d.config.SemanticOppositionThreshold {
		return nil, nil
	}
	if isNegated(a.Predicate) == isNegated(b.Predicate) && a.Object == b.Object {
		return nil, nil
	}
	if isNegated(a.Predicate) == isNegated(b.Predicate) {
		return nil, nil
	}

	return &Conflict{
		Type:     TypeDirectNegation,
		Strength: sim,
		ClaimA:   a.ID,
		ClaimB:   b.ID,
		Evidence: []string{fmt.Sprintf("semantic similarity %.2f with opposing negation on predicates %q / %q", sim, a.Predicate, b.Predicate)},
	}, nil
}

var numberRegex = regexp.MustCompile(`-?\d+(\.\d+)?`)
var quotedRegex = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

// valueDivergence extracts numeric and quoted-literal values from each
// claim's object and reports disagreement.
func valueDivergence(a, b *models.Claim) *Conflict {
	if a.Subject != b.Subject || a.Predicate != b.Predicate {
		return nil
	}

	numA := numberRegex.FindString(a.Object)
	numB := numberRegex.FindString(b.Object)
	if numA != "" && numB != "" {
		fa, errA := strconv.ParseFloat(numA, 64)
		fb, errB := strconv.ParseFloat(numB, 64)
		if errA == nil && errB == nil && fa != fb {
			denom := math.Max(math.Abs(fa), math.Abs(fb))
			var strength float64
			if denom == 0 {
				strength = 1.0
			} else {
				strength = math.Min(1.0, math.Abs(fa-fb)/denom)
			}
			return &Conflict{
				Type:     TypeValueConflict,
				Strength: strength,
				ClaimA:   a.ID,
				ClaimB:   b.ID,
				Evidence: []string{fmt.Sprintf("numeric values disagree: %v vs %v", fa, fb)},
			}
		}
	}

	quotedA := quotedRegex.FindString(a.Object)
	quotedB := quotedRegex.FindString(b.Object)
	if quotedA != "" && quotedB != "" && quotedA != quotedB {
		return &Conflict{
			Type:     TypeValueConflict,
			Strength: 1.0,
			ClaimA:   a.ID,
			ClaimB:   b.ID,
			Evidence: []string{fmt.Sprintf("quoted values disagree: %s vs %s", quotedA, quotedB)},
		}
	}

	return nil
}

var dateRegex = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

// temporalDivergence flags differing dates on the same subject/predicate pair.
func temporalDivergence(a, b *models.Claim) *Conflict {
	if a.Subject != b.Subject || a.Predicate != b.Predicate {
		return nil
	}
	dateA := dateRegex.FindString(a.Object)
	dateB := dateRegex.FindString(b.Object)
	if dateA == "" || dateB == "" || dateA == dateB {
		return nil
	}
	return &Conflict{
		Type:     TypeTemporalConflict,
		Strength: 0.6,
		ClaimA:   a.ID,
		ClaimB:   b.ID,
		Evidence: []string{fmt.Sprintf("dates disagree: %s vs %s", dateA, dateB)},
	}
}

// knownScopeEnums lists closed enumerations worth flagging as incompatible
// when one claim's qualifier names one value and the other's names a
// different value from the same set.
var knownScopeEnums = [][]string{
	{"linux", "macos", "windows", "darwin"},
	{"production", "staging", "development"},
}

// scopeDivergence flags qualifiers naming different values from the same
// closed enumeration.
func scopeDivergence(a, b *models.Claim) *Conflict {
	if a.Subject != b.Subject || a.Predicate != b.Predicate {
		return nil
	}
	if a.Qualifier == "" || b.Qualifier == "" || a.Qualifier == b.Qualifier {
		return nil
	}
	qa, qb := strings.ToLower(a.Qualifier), strings.ToLower(b.Qualifier)
	for _, enum := range knownScopeEnums {
		var foundA, foundB bool
		for _, v := range enum {
			if strings.Contains(qa, v) {
				foundA = true
			}
			if strings.Contains(qb, v) {
				foundB = true
			}
		}
		if foundA && foundB && qa != qb {
			return &Conflict{
				Type:     TypeScopeConflict,
				Strength: 0.5,
				ClaimA:   a.ID,
				ClaimB:   b.ID,
				Evidence: []string{fmt.Sprintf("incompatible scope qualifiers: %q vs %q", a.Qualifier, b.Qualifier)},
			}
		}
	}
	return nil
}

type adjudication struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

const adjudicationSchema = `{"verdict": "contradicts | agrees | unrelated", "confidence": "number between 0 and 1"}`

// llmAdjudicate asks the LLM to rule on a pair of claims when the
// regex/vector signals above are inconclusive.
func (d *Detector) llmAdjudicate(ctx context.Context, a, b *models.Claim) (*Conflict, error) {
	if d.llm == nil {
		return nil, nil
	}
	prompt := fmt.Sprintf(
		"Claim A: %s %s %s (%s)\nClaim B: %s %s %s (%s)\n\n"+
			"Do these two claims contradict each other, agree with each other, or are they unrelated?",
		a.Subject, a.Predicate, a.Object, a.Qualifier,
		b.Subject, b.Predicate, b.Object, b.Qualifier)

	var result adjudication
	if err := d.llm.ExtractStructured(ctx, prompt, adjudicationSchema, &result); err != nil {
		return nil, err
	}
	if result.Verdict != "contradicts" {
		return nil, nil
	}
	return &Conflict{
		Type:     TypeImplicationConflict,
		Strength: result.Confidence,
		ClaimA:   a.ID,
		ClaimB:   b.ID,
		Evidence: []string{"llm adjudication: contradicts"},
	}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
