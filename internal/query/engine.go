// Package query implements the get_source_of_truth pipeline: embed the
// query, retrieve and score candidate sections, optionally verify claims
// by self-consistency sampling, and synthesize a cited answer.
package query

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/conflict"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// Engine answers natural-language queries against the consolidated store.
type Engine struct {
	storage  interfaces.DocumentStorage
	embed    interfaces.EmbeddingPipeline
	llm      interfaces.LLMPipeline
	detector *conflict.Detector
	config   *common.QueryConfig
	logger   arbor.ILogger
}

// New constructs a query Engine.
func New(storage interfaces.DocumentStorage, embed interfaces.EmbeddingPipeline, llm interfaces.LLMPipeline, detector *conflict.Detector, config *common.QueryConfig, logger arbor.ILogger) *Engine {
	return &Engine{storage: storage, embed: embed, llm: llm, detector: detector, config: config, logger: logger}
}

type scoredDocument struct {
	doc        *models.Document
	sections   []*models.Section
	similarity []float64
	relevance  float64
}

// Answer runs the full retrieval-and-synthesis pipeline.
func (e *Engine) Answer(ctx context.Context, opts Options) (*Answer, error) {
	maxSources := opts.MaxSources
	if maxSources <= 0 {
		maxSources = e.config.DefaultMaxSources
	}

	queryVec, err := e.embed.EmbedOne(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidateSectionIDs, err := e.candidateSectionIDs(ctx, opts)
	if err != nil {
		return nil, err
	}

	hits, err := e.storage.SearchSimilar(ctx, models.VectorOwnerSection, queryVec, maxSources*4, candidateSectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to search sections: %w", err)
	}
	if len(hits) == 0 {
		return &Answer{
			Text:          "No relevant documents were found for this query.",
			Confidence:    0,
			KnowledgeGaps: []string{opts.Query},
		}, nil
	}

	byDoc := make(map[string]*scoredDocument)
	var order []string
	for _, hit := range hits {
		sec, err := e.storage.GetSection(ctx, hit.OwnerID)
		if err != nil {
			continue
		}
		doc, ok := byDoc[sec.DocumentID]
		if !ok {
			d, err := e.storage.GetDocument(ctx, sec.DocumentID)
			if err != nil {
				continue
			}
			if !opts.IncludeDeprecated && (d.Status == models.DocumentStatusDeprecated || d.Status == models.DocumentStatusArchived) {
				continue
			}
			doc = &scoredDocument{doc: d}
			byDoc[sec.DocumentID] = doc
			order = append(order, sec.DocumentID)
		}
		doc.sections = append(doc.sections, sec)
		doc.similarity = append(doc.similarity, hit.Similarity)
	}

	var scored []*scoredDocument
	for _, id := range order {
		d := byDoc[id]
		d.relevance = relevanceScore(d.similarity)
		scored = append(scored, d)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].relevance > scored[j].relevance })
	if len(scored) > maxSources {
		scored = scored[:maxSources]
	}

	var sources []Source
	var chosenSections []*models.Section
	for _, d := range scored {
		sources = append(sources, Source{DocumentID: d.doc.ID, Title: d.doc.Title, Relevance: d.relevance})
		chosenSections = append(chosenSections, d.sections...)
	}

	var allClaims []*models.Claim
	claimsBySection := make(map[string][]*models.Claim)
	for _, sec := range chosenSections {
		claims, err := e.storage.GetClaimsBySection(ctx, sec.ID)
		if err != nil {
			continue
		}
		claimsBySection[sec.ID] = claims
		allClaims = append(allClaims, claims...)
	}

	var supporting []SupportingClaim
	var meanVerification float64
	if opts.VerifyClaims && len(allClaims) > 0 {
		var total float64
		for _, c := range allClaims {
			result, err := e.llm.SelfConsistency(ctx, verificationPrompt(c), 3, interfaces.GenerateOptions{})
			score := 0.0
			if err == nil {
				score = result.AgreementRate
			}
			total += score
			supporting = append(supporting, SupportingClaim{
				ClaimID:           c.ID,
				Text:              claimText(c),
				DocumentID:        c.DocumentID,
				VerificationScore: score,
				Verified:          score >= 0.5,
			})
		}
		meanVerification = total / float64(len(allClaims))
	} else {
		for _, c := range allClaims {
			supporting = append(supporting, SupportingClaim{ClaimID: c.ID, Text: claimText(c), DocumentID: c.DocumentID})
		}
	}

	answerText, err := e.synthesize(ctx, opts.Query, chosenSections)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize answer: %w", err)
	}

	conflicts, err := e.detector.DetectAll(ctx, allClaims)
	if err != nil {
		e.logger.Warn().Err(err).Msg("conflict detection failed during query, continuing without conflicts")
		conflicts = nil
	}

	confidence := computeConfidence(scored, opts.VerifyClaims, meanVerification)

	var gaps []string
	if len(scored) == 0 {
		gaps = append(gaps, opts.Query)
	}

	return &Answer{
		Text:              answerText,
		Confidence:        confidence,
		Sources:           sources,
		SupportingClaims:  supporting,
		ConflictingClaims: conflicts,
		KnowledgeGaps:     gaps,
	}, nil
}

// candidateSectionIDs resolves the optional scope filters (document ids,
// tags, glob-matched titles) into a concrete set of section ids to search
// within. A nil/empty result means "search everything".
func (e *Engine) candidateSectionIDs(ctx context.Context, opts Options) ([]string, error) {
	if len(opts.ScopeDocumentIDs) == 0 && len(opts.ScopeTags) == 0 && opts.ScopeTitleGlob == "" {
		return nil, nil
	}

	docIDs := opts.ScopeDocumentIDs
	if len(opts.ScopeTags) > 0 || opts.ScopeTitleGlob != "" {
		docs, err := e.storage.ListDocuments(ctx, interfaces.ListOptions{Tags: opts.ScopeTags, Status: models.DocumentStatusActive, Limit: 10000})
		if err != nil {
			return nil, fmt.Errorf("failed to list documents for scope filter: %w", err)
		}
		for _, d := range docs {
			if opts.ScopeTitleGlob != "" {
				ok, err := filepath.Match(opts.ScopeTitleGlob, d.Title)
				if err != nil || !ok {
					continue
				}
			}
			docIDs = append(docIDs, d.ID)
		}
	}

	if len(docIDs) == 0 {
		return nil, nil
	}

	sections, err := e.storage.GetSectionsByDocumentIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scoped sections: %w", err)
	}
	ids := make([]string, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	return ids, nil
}

// relevanceScore is max similarity plus a small bonus for multiple
// contributing sections.
func relevanceScore(similarities []float64) float64 {
	if len(similarities) == 0 {
		return 0
	}
	max := similarities[0]
	for _, s := range similarities[1:] {
		if s > max {
			max = s
		}
	}
	bonus := 0.02 * float64(len(similarities)-1)
	if bonus > 0.1 {
		bonus = 0.1
	}
	return max + bonus
}

func claimText(c *models.Claim) string {
	if c.Qualifier != "" {
		return fmt.Sprintf("%s %s %s (%s)", c.Subject, c.Predicate, c.Object, c.Qualifier)
	}
	return fmt.Sprintf("%s %s %s", c.Subject, c.Predicate, c.Object)
}

func verificationPrompt(c *models.Claim) string {
	return fmt.Sprintf("Is the following claim accurate: %s?", claimText(c))
}

func (e *Engine) synthesize(ctx context.Context, query string, sections []*models.Section) (string, error) {
	var sb strings.Builder
	for _, sec := range sections {
		sb.WriteString(fmt.Sprintf("[source:%s]\n%s\n\n", sec.DocumentID, sec.Content))
	}

	prompt := fmt.Sprintf(
		"Using only the sources below, answer the question. Cite the source id for every sentence using the form [source:ID].\n\n"+
			"Question: %s\n\nSources:\n%s", query, sb.String())

	return e.llm.Generate(ctx, prompt, interfaces.GenerateOptions{})
}

// computeConfidence weights top similarity, corroborating-source count and
// (when requested) mean verification score.
func computeConfidence(scored []*scoredDocument, verified bool, meanVerification float64) float64 {
	if len(scored) == 0 {
		return 0
	}
	top := scored[0].relevance
	corroboration := float64(len(scored)-1) * 0.05
	if corroboration > 0.2 {
		corroboration = 0.2
	}

	confidence := 0.6*top + corroboration
	if verified {
		confidence += 0.2 * meanVerification
	} else {
		confidence += 0.2 * top
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
