package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/conflict"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

func TestRelevanceScore_SingleHit(t *testing.T) {
	assert.Equal(t, 0.8, relevanceScore([]float64{0.8}))
}

func TestRelevanceScore_MultipleHitsGetCorroborationBonus(t *testing.T) {
	got := relevanceScore([]float64{0.8, 0.6})
	assert.InDelta(t, 0.82, got, 1e-9)
}

func TestRelevanceScore_BonusCapsAtPointOne(t *testing.T) {
	got := relevanceScore([]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	assert.InDelta(t, 0.6, got, 1e-9)
}

func TestRelevanceScore_Empty(t *testing.T) {
	assert.Equal(t, 0.0, relevanceScore(nil))
}

func TestClaimText_WithQualifier(t *testing.T) {
	c := &models.Claim{Subject: "service", Predicate: "runs_on", Object: "linux", Qualifier: "production only"}
	assert.Equal(t, "service runs_on linux (production only)", claimText(c))
}

func TestClaimText_WithoutQualifier(t *testing.T) {
	c := &models.Claim{Subject: "service", Predicate: "runs_on", Object: "linux"}
	assert.Equal(t, "service runs_on linux", claimText(c))
}

func TestComputeConfidence_EmptyScored(t *testing.T) {
	assert.Equal(t, 0.0, computeConfidence(nil, false, 0))
}

func TestComputeConfidence_UnverifiedUsesTopTwice(t *testing.T) {
	scored := []*scoredDocument{{relevance: 0.5}}
	got := computeConfidence(scored, false, 0)
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestComputeConfidence_VerifiedUsesMeanVerification(t *testing.T) {
	scored := []*scoredDocument{{relevance: 0.5}}
	got := computeConfidence(scored, true, 1.0)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestComputeConfidence_CapsAtOne(t *testing.T) {
	scored := []*scoredDocument{{relevance: 1.0}, {relevance: 0.9}, {relevance: 0.8}, {relevance: 0.7}, {relevance: 0.6}}
	got := computeConfidence(scored, true, 1.0)
	assert.Equal(t, 1.0, got)
}

// --- full-pipeline Answer() test with fakes ---

type fakeQueryStorage struct {
	interfaces.DocumentStorage
	sections map[string]*models.Section
	docs     map[string]*models.Document
	claims   map[string][]*models.Claim
	hits     []interfaces.VectorSearchResult
}

func (f *fakeQueryStorage) SearchSimilar(ctx context.Context, kind models.VectorOwnerKind, query []float32, topK int, candidateOwnerIDs []string) ([]interfaces.VectorSearchResult, error) {
	return f.hits, nil
}

func (f *fakeQueryStorage) GetSection(ctx context.Context, id string) (*models.Section, error) {
	return f.sections[id], nil
}

func (f *fakeQueryStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return f.docs[id], nil
}

func (f *fakeQueryStorage) GetClaimsBySection(ctx context.Context, sectionID string) ([]*models.Claim, error) {
	return f.claims[sectionID], nil
}

func (f *fakeQueryStorage) GetVector(ctx context.Context, kind models.VectorOwnerKind, ownerID string) (*models.Vector, error) {
	return nil, assert.AnError
}

type fakeEmbed struct{}

func (fakeEmbed) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }
func (fakeEmbed) EmbedOne(ctx context.Context, text string) ([]float32, error)   { return []float32{1, 0}, nil }
func (fakeEmbed) Dimension() int                                                 { return 2 }
func (fakeEmbed) Close() error                                                   { return nil }

type fakeLLM struct{ answer string }

func (f fakeLLM) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	return f.answer, nil
}
func (fakeLLM) Chat(ctx context.Context, messages []interfaces.ChatMessage, opts interfaces.GenerateOptions) (string, error) {
	return "", nil
}
func (fakeLLM) SelfConsistency(ctx context.Context, prompt string, n int, opts interfaces.GenerateOptions) (*interfaces.SelfConsistencyResult, error) {
	return &interfaces.SelfConsistencyResult{AgreementRate: 0.9}, nil
}
func (fakeLLM) ExtractStructured(ctx context.Context, prompt string, schemaDescription string, out interface{}) error {
	return nil
}
func (fakeLLM) Close() error { return nil }

func newTestEngine(storage *fakeQueryStorage, llm *fakeLLM) *Engine {
	cfg := &common.QueryConfig{DefaultMaxSources: 5}
	conflictCfg := &common.ConflictConfig{SemanticOppositionThreshold: 0.75, MinStrength: 0.3}
	detector := conflict.New(storage, nil, conflictCfg, arbor.NewLogger())
	return New(storage, fakeEmbed{}, llm, detector, cfg, arbor.NewLogger())
}

func TestAnswer_NoHitsReturnsKnowledgeGap(t *testing.T) {
	storage := &fakeQueryStorage{}
	engine := newTestEngine(storage, &fakeLLM{})

	answer, err := engine.Answer(context.Background(), Options{Query: "what is the timeout?"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Contains(t, answer.KnowledgeGaps, "what is the timeout?")
}

func TestAnswer_SingleHitSynthesizesFromLLM(t *testing.T) {
	storage := &fakeQueryStorage{
		hits: []interfaces.VectorSearchResult{{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Similarity: 0.9}},
		sections: map[string]*models.Section{
			"s1": {ID: "s1", DocumentID: "d1", Content: "the timeout is 30 seconds"},
		},
		docs: map[string]*models.Document{
			"d1": {ID: "d1", Title: "Config Guide", Status: models.DocumentStatusActive},
		},
		claims: map[string][]*models.Claim{
			"s1": {{ID: "c1", DocumentID: "d1", Subject: "service", Predicate: "has_timeout_of", Object: "30 seconds"}},
		},
	}
	engine := newTestEngine(storage, &fakeLLM{answer: "The timeout is 30 seconds [source:d1]."})

	answer, err := engine.Answer(context.Background(), Options{Query: "what is the timeout?"})
	require.NoError(t, err)
	assert.Equal(t, "The timeout is 30 seconds [source:d1].", answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "Config Guide", answer.Sources[0].Title)
	require.Len(t, answer.SupportingClaims, 1)
	assert.Equal(t, 0.0, answer.SupportingClaims[0].VerificationScore)
}

func TestAnswer_VerifyClaimsPopulatesVerificationScore(t *testing.T) {
	storage := &fakeQueryStorage{
		hits: []interfaces.VectorSearchResult{{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Similarity: 0.9}},
		sections: map[string]*models.Section{
			"s1": {ID: "s1", DocumentID: "d1", Content: "the timeout is 30 seconds"},
		},
		docs: map[string]*models.Document{
			"d1": {ID: "d1", Title: "Config Guide", Status: models.DocumentStatusActive},
		},
		claims: map[string][]*models.Claim{
			"s1": {{ID: "c1", DocumentID: "d1", Subject: "service", Predicate: "has_timeout_of", Object: "30 seconds"}},
		},
	}
	engine := newTestEngine(storage, &fakeLLM{answer: "answer"})

	answer, err := engine.Answer(context.Background(), Options{Query: "what is the timeout?", VerifyClaims: true})
	require.NoError(t, err)
	require.Len(t, answer.SupportingClaims, 1)
	assert.Equal(t, 0.9, answer.SupportingClaims[0].VerificationScore)
	assert.True(t, answer.SupportingClaims[0].Verified)
}

func TestSynthesize_LabelsEachSectionWithItsOwnDocumentID(t *testing.T) {
	storage := &fakeQueryStorage{}
	var capturedPrompt string
	llm := capturingLLM{capture: &capturedPrompt}
	cfg := &common.QueryConfig{DefaultMaxSources: 5}
	conflictCfg := &common.ConflictConfig{SemanticOppositionThreshold: 0.75, MinStrength: 0.3}
	detector := conflict.New(storage, nil, conflictCfg, arbor.NewLogger())
	engine := New(storage, fakeEmbed{}, llm, detector, cfg, arbor.NewLogger())

	// Two sections from the same document followed by one from another: the
	// old index-modulo-source-count scheme would mislabel the second section.
	sections := []*models.Section{
		{ID: "s1", DocumentID: "d1", Content: "first fact"},
		{ID: "s2", DocumentID: "d1", Content: "second fact"},
		{ID: "s3", DocumentID: "d2", Content: "third fact"},
	}

	_, err := engine.synthesize(context.Background(), "q", sections)
	require.NoError(t, err)
	assert.Contains(t, capturedPrompt, "[source:d1]\nfirst fact")
	assert.Contains(t, capturedPrompt, "[source:d1]\nsecond fact")
	assert.Contains(t, capturedPrompt, "[source:d2]\nthird fact")
}

type capturingLLM struct {
	capture *string
}

func (c capturingLLM) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	*c.capture = prompt
	return "answer", nil
}
func (capturingLLM) Chat(ctx context.Context, messages []interfaces.ChatMessage, opts interfaces.GenerateOptions) (string, error) {
	return "", nil
}
func (capturingLLM) SelfConsistency(ctx context.Context, prompt string, n int, opts interfaces.GenerateOptions) (*interfaces.SelfConsistencyResult, error) {
	return nil, nil
}
func (capturingLLM) ExtractStructured(ctx context.Context, prompt string, schemaDescription string, out interface{}) error {
	return nil
}
func (capturingLLM) Close() error { return nil }

func TestAnswer_ExcludesDeprecatedDocumentsByDefault(t *testing.T) {
	storage := &fakeQueryStorage{
		hits: []interfaces.VectorSearchResult{{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Similarity: 0.9}},
		sections: map[string]*models.Section{
			"s1": {ID: "s1", DocumentID: "d1", Content: "old info"},
		},
		docs: map[string]*models.Document{
			"d1": {ID: "d1", Title: "Old Doc", Status: models.DocumentStatusDeprecated},
		},
		claims: map[string][]*models.Claim{},
	}
	engine := newTestEngine(storage, &fakeLLM{})

	answer, err := engine.Answer(context.Background(), Options{Query: "anything?"})
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 0.0, answer.Confidence)
}
