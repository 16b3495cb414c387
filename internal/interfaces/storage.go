package interfaces

import (
	"context"

	"github.com/ternarybob/veritas/internal/models"
)

// ListOptions page and order a document listing.
type ListOptions struct {
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
	Tags     []string
	Status   models.DocumentStatus
}

// VectorSearchResult is one hit from a cosine-similarity scan, carrying the
// owner id and the score so callers can re-group by document without a
// second round trip.
type VectorSearchResult struct {
	OwnerKind  models.VectorOwnerKind
	OwnerID    string
	Similarity float64
}

// DocumentStorage persists documents, sections, claims, vectors and
// supersessions, and answers vector-similarity queries over them.
//
// Write invariants: a document with its sections commits
// atomically — a partial failure leaves no document row visible. Vectors
// and claims are written after that commit and are idempotent by owner id;
// their failure does not roll back the document.
type DocumentStorage interface {
	// IngestDocument writes a document and its sections transactionally.
	// If a document with the same content hash already exists and is
	// active, it is treated as a duplicate: metadata (tags, authority
	// level, document type, title) is updated in place and the existing id is
	// returned with created=false.
	IngestDocument(ctx context.Context, doc *models.Document, sections []*models.Section) (id string, created bool, err error)

	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByContentHash(ctx context.Context, hash string) (*models.Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) ([]*models.Document, error)
	CountActiveDocuments(ctx context.Context) (int, error)

	SetDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, supersededBy string) error

	GetSections(ctx context.Context, documentID string) ([]*models.Section, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	// GetSectionsByDocumentIDs returns sections for a set of documents, used
	// by overlap detection and consolidation to build clustering input.
	GetSectionsByDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Section, error)

	// ReplaceClaims atomically swaps out a section's claims (used when a
	// document is re-ingested and re-extracted).
	ReplaceClaims(ctx context.Context, sectionID string, claims []*models.Claim) error
	GetClaimsBySection(ctx context.Context, sectionID string) ([]*models.Claim, error)
	GetClaimsByDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Claim, error)

	UpsertVector(ctx context.Context, v *models.Vector) error
	GetVector(ctx context.Context, kind models.VectorOwnerKind, ownerID string) (*models.Vector, error)
	GetVectorsByOwnerIDs(ctx context.Context, kind models.VectorOwnerKind, ownerIDs []string) (map[string]*models.Vector, error)

	// SearchSimilar returns the top-K owners of the given kind by cosine
	// similarity to query, optionally restricted to candidateOwnerIDs (used
	// to scope a search to a set of documents/sections).
	SearchSimilar(ctx context.Context, kind models.VectorOwnerKind, query []float32, topK int, candidateOwnerIDs []string) ([]VectorSearchResult, error)

	AddSupersession(ctx context.Context, s *models.Supersession) error
	// GetSupersessionsByOldDocumentIDs looks up every supersession recorded
	// against any of documentIDs, used to recognize conflicts a prior
	// consolidation has already resolved.
	GetSupersessionsByOldDocumentIDs(ctx context.Context, documentIDs []string) ([]*models.Supersession, error)

	Close() error
}

// EmbeddingPipeline encodes text into fixed-dimension vectors.
type EmbeddingPipeline interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// ChatMessage is one turn in an LLM chat call.
type ChatMessage struct {
	Role    string
	Content string
}

// GenerateOptions controls a single LLM call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds; 0 means use the pipeline default
}

// SelfConsistencyResult is the outcome of sampling a prompt N times.
type SelfConsistencyResult struct {
	Answer        string
	AgreementRate float64
	Confidence    float64
	Samples       []string
}

// LLMPipeline speaks a native HTTP wire protocol (no vendor SDK) and
// implements generation, chat, self-consistency sampling, and structured
// extraction.
type LLMPipeline interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Chat(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error)
	SelfConsistency(ctx context.Context, prompt string, n int, opts GenerateOptions) (*SelfConsistencyResult, error)
	// ExtractStructured retries up to the configured limit on JSON parse
	// failure, augmenting the prompt with the failure reason each retry,
	// and unmarshals the final JSON text into out.
	ExtractStructured(ctx context.Context, prompt string, schemaDescription string, out interface{}) error
	Close() error
}

// EntityResolver links entity mentions across claims into an optional
// external graph store. A no-op implementation is used when the
// graph store is disabled or unreachable; no ingest operation may fail
// solely because of it.
type EntityResolver interface {
	LinkClaim(ctx context.Context, claim *models.Claim) error
	Enabled() bool
	Close() error
}
