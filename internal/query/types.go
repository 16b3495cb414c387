package query

import "github.com/ternarybob/veritas/internal/conflict"

// Options configures one get_source_of_truth call.
type Options struct {
	Query             string `validate:"required"`
	ScopeDocumentIDs  []string
	ScopeTags         []string
	ScopeTitleGlob    string
	MaxSources        int `validate:"gte=0"`
	VerifyClaims      bool
	IncludeDeprecated bool
}

// Source is one document that contributed to the answer.
type Source struct {
	DocumentID string
	Title      string
	Relevance  float64
}

// SupportingClaim is a claim from one of the answer's source sections,
// optionally self-consistency-verified. Claims are not tied to individual
// sentences of the answer.
type SupportingClaim struct {
	ClaimID            string
	Text               string
	DocumentID         string
	VerificationScore  float64 // 0 when VerifyClaims was not requested
	Verified           bool
}

// Answer is the full response of get_source_of_truth.
type Answer struct {
	Text              string
	Confidence        float64
	Sources           []Source
	SupportingClaims  []SupportingClaim
	ConflictingClaims []*conflict.Conflict
	KnowledgeGaps     []string
}
