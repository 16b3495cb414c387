// Package ingest orchestrates the ingest_document pipeline: split into
// sections, persist, embed, extract claims, and link entities.
// Embedding/extraction/graph failures are recoverable — ingestion
// still succeeds and the failure surfaces as a warning.
package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/claims"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/entity"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
	"github.com/ternarybob/veritas/internal/parser"
)

// Options configures one ingest_document call.
type Options struct {
	Title              string
	Content            string              `validate:"required"`
	DocumentType       models.DocumentType `validate:"required"`
	AuthorityLevel     int                 `validate:"gte=0,lte=10"`
	Tags               []string
	ExtractClaims      bool
	GenerateEmbeddings bool
	BuildEntityGraph   bool
}

// Result is the output of one ingest_document call.
type Result struct {
	DocumentID      string
	SectionsCreated int
	ClaimsExtracted int
	EntitiesLinked  int
	Warnings        []string
	Created         bool
}

// Service wires the persistence, embedding, claim-extraction and
// entity-resolution layers into the single ingest_document operation.
type Service struct {
	storage   interfaces.DocumentStorage
	embedder  interfaces.EmbeddingPipeline
	extractor *claims.Extractor
	entities  *entity.Resolver
	logger    arbor.ILogger
}

// New constructs a Service.
func New(storage interfaces.DocumentStorage, embedder interfaces.EmbeddingPipeline, extractor *claims.Extractor, entities *entity.Resolver, logger arbor.ILogger) *Service {
	return &Service{storage: storage, embedder: embedder, extractor: extractor, entities: entities, logger: logger}
}

// Ingest runs the full pipeline described above.
func (s *Service) Ingest(ctx context.Context, opts Options) (*Result, error) {
	authorityLevel := opts.AuthorityLevel
	if authorityLevel == 0 {
		authorityLevel = models.DefaultAuthorityLevel
	}

	sections := parser.Split(opts.Content)
	doc := &models.Document{
		ID:             common.NewID(),
		ContentHash:    parser.ContentHash(opts.Content),
		Title:          opts.Title,
		RawContent:     opts.Content,
		DocumentType:   opts.DocumentType,
		AuthorityLevel: authorityLevel,
		Tags:           opts.Tags,
		Status:         models.DocumentStatusActive,
	}
	for _, sec := range sections {
		sec.DocumentID = doc.ID
	}

	id, created, err := s.storage.IngestDocument(ctx, doc, sections)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest document: %w", err)
	}

	if !created {
		// Duplicate content: no new sections were persisted, so re-extraction
		// and re-embedding must target the sections that already exist for id,
		// not the freshly parsed (and never-inserted) ones.
		sections, err = s.storage.GetSections(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing sections for duplicate document: %w", err)
		}
	}

	result := &Result{DocumentID: id, SectionsCreated: len(sections), Created: created}

	if opts.GenerateEmbeddings {
		for _, sec := range sections {
			vec, err := s.embedder.EmbedOne(ctx, sec.Content)
			if err != nil {
				s.logger.Warn().Err(err).Str("section_id", sec.ID).Msg("failed to embed section")
				result.Warnings = append(result.Warnings, fmt.Sprintf("embedding unavailable for section %q: %v", sec.Header, err))
				continue
			}
			if err := s.storage.UpsertVector(ctx, &models.Vector{
				OwnerKind: models.VectorOwnerSection,
				OwnerID:   sec.ID,
				Dim:       len(vec),
				Values:    vec,
			}); err != nil {
				s.logger.Warn().Err(err).Str("section_id", sec.ID).Msg("failed to persist section vector")
			}
		}
	}

	if opts.ExtractClaims {
		bySection, err := s.extractor.ExtractDocument(ctx, sections)
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", id).Msg("claim extraction unavailable")
			result.Warnings = append(result.Warnings, fmt.Sprintf("claim extraction unavailable: %v", err))
		} else {
			for _, sec := range sections {
				sectionClaims := bySection[sec.ID]
				if err := s.storage.ReplaceClaims(ctx, sec.ID, sectionClaims); err != nil {
					s.logger.Warn().Err(err).Str("section_id", sec.ID).Msg("failed to persist claims")
					continue
				}
				result.ClaimsExtracted += len(sectionClaims)

				if opts.GenerateEmbeddings {
					for _, c := range sectionClaims {
						vec, err := s.embedder.EmbedOne(ctx, claimText(c))
						if err != nil {
							continue
						}
						_ = s.storage.UpsertVector(ctx, &models.Vector{
							OwnerKind: models.VectorOwnerClaim,
							OwnerID:   c.ID,
							Dim:       len(vec),
							Values:    vec,
						})
					}
				}

				if opts.BuildEntityGraph && s.entities.Enabled() {
					for _, c := range sectionClaims {
						if err := s.entities.LinkClaim(ctx, c); err == nil {
							result.EntitiesLinked++
						}
					}
				}
			}
		}
	}

	return result, nil
}

func claimText(c *models.Claim) string {
	if c.Qualifier != "" {
		return fmt.Sprintf("%s %s %s (%s)", c.Subject, c.Predicate, c.Object, c.Qualifier)
	}
	return fmt.Sprintf("%s %s %s", c.Subject, c.Predicate, c.Object)
}
