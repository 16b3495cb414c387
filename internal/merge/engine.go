package merge

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/conflict"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
	"github.com/ternarybob/veritas/internal/parser"
)

// ResolvedConflict is a conflict the engine resolved automatically or with
// an annotation, as opposed to one deferred to a human.
type ResolvedConflict struct {
	Conflict    *conflict.Conflict
	ChosenClaim string
	Annotated   bool
}

// Result is the output of one consolidation run.
type Result struct {
	Status            string // "committed" or "preview"
	DocumentID        string
	Title             string
	Sections          []*models.Section
	Provenance        map[string][]string // section header -> source document ids
	ConflictsResolved []ResolvedConflict
	ConflictsPending  []*conflict.Conflict
	Rendered          string
	OutputFormat      string
}

// Engine implements the consolidation pipeline.
type Engine struct {
	storage  interfaces.DocumentStorage
	detector *conflict.Detector
	config   *common.MergeConfig
	logger   arbor.ILogger
}

// New constructs a merge Engine.
func New(storage interfaces.DocumentStorage, detector *conflict.Detector, config *common.MergeConfig, logger arbor.ILogger) *Engine {
	return &Engine{storage: storage, detector: detector, config: config, logger: logger}
}

// Options configures one consolidation call.
type Options struct {
	Title             string
	Strategy          Strategy `validate:"omitempty,oneof=smart newest_wins authority_wins merge_all"`
	OutputFormat      string   `validate:"omitempty,oneof=markdown json yaml"` // "markdown" (default), "json", "yaml"
	DryRun            bool
	IncludeProvenance bool
}

// Consolidate clusters the sections of documentIDs, resolves conflicts, and
// assembles (and, unless DryRun, persists) one consolidated document.
func (e *Engine) Consolidate(ctx context.Context, documentIDs []string, opts Options) (*Result, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = Strategy(e.config.DefaultStrategy)
	}
	format := opts.OutputFormat
	if format == "" {
		format = e.config.DefaultOutputFormat
	}

	documents := make(map[string]*models.Document, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := e.storage.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load document %s: %w", id, err)
		}
		documents[id] = doc
	}

	sections, err := e.storage.GetSectionsByDocumentIDs(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}

	clusters, err := ClusterSections(ctx, e.storage, sections, e.config.ClusterCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster sections: %w", err)
	}

	var outSections []*models.Section
	provenance := make(map[string][]string)
	var resolved []ResolvedConflict
	var pending []*conflict.Conflict

	for _, cl := range clusters {
		claimsBySection := make(map[string][]*models.Claim)
		var allClaims []*models.Claim
		for _, sec := range cl.Sections {
			claims, err := e.storage.GetClaimsBySection(ctx, sec.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load claims for section %s: %w", sec.ID, err)
			}
			claimsBySection[sec.ID] = claims
			allClaims = append(allClaims, claims...)
		}

		conflicts, err := e.detector.DetectAll(ctx, allClaims)
		if err != nil {
			return nil, fmt.Errorf("failed to detect conflicts: %w", err)
		}

		chosen, err := chooseSection(strategy, sectionChoiceInput{cluster: cl, claims: claimsBySection, documents: documents})
		if err != nil {
			return nil, err
		}

		for _, c := range conflicts {
			switch {
			case c.Strength > e.config.RequireHumanAbove:
				pending = append(pending, c)
			case c.Strength < e.config.AutoResolveBelow:
				resolved = append(resolved, ResolvedConflict{Conflict: c, ChosenClaim: chosen.ID, Annotated: false})
			default:
				resolved = append(resolved, ResolvedConflict{Conflict: c, ChosenClaim: chosen.ID, Annotated: true})
			}
		}

		outSections = append(outSections, chosen)

		var sourceDocs []string
		seen := make(map[string]bool)
		for _, sec := range cl.Sections {
			if !seen[sec.DocumentID] {
				seen[sec.DocumentID] = true
				sourceDocs = append(sourceDocs, sec.DocumentID)
			}
		}
		provenance[chosen.Header] = sourceDocs
	}

	sort.Slice(outSections, func(i, j int) bool { return outSections[i].Ordinal < outSections[j].Ordinal })

	title := opts.Title
	if title == "" {
		title = "Consolidated Document"
	}

	rendered, err := render(format, title, outSections, provenance, opts.IncludeProvenance)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:            "preview",
		Title:             title,
		Sections:          outSections,
		Provenance:        provenance,
		ConflictsResolved: resolved,
		ConflictsPending:  pending,
		Rendered:          rendered,
		OutputFormat:      format,
	}

	if opts.DryRun {
		return result, nil
	}

	rawContent := renderMarkdownBody(title, outSections, provenance, opts.IncludeProvenance)
	doc := &models.Document{
		ID:             common.NewID(),
		ContentHash:    parser.ContentHash(rawContent),
		Title:          title,
		RawContent:     rawContent,
		DocumentType:   models.DocumentTypeReference,
		AuthorityLevel: models.DefaultAuthorityLevel,
		Status:         models.DocumentStatusActive,
	}

	newSections := make([]*models.Section, len(outSections))
	for i, sec := range outSections {
		s := *sec
		s.ID = common.NewID()
		s.DocumentID = doc.ID
		s.Ordinal = i
		newSections[i] = &s
	}

	id, _, err := e.storage.IngestDocument(ctx, doc, newSections)
	if err != nil {
		return nil, fmt.Errorf("failed to persist consolidated document: %w", err)
	}

	for _, srcID := range documentIDs {
		if srcID == id {
			continue
		}
		if err := e.storage.AddSupersession(ctx, &models.Supersession{
			OldDocumentID: srcID,
			NewDocumentID: id,
			Reason:        "consolidated",
		}); err != nil {
			e.logger.Warn().Err(err).Str("document_id", srcID).Msg("failed to record supersession")
		}
	}

	result.Status = "committed"
	result.DocumentID = id
	return result, nil
}
