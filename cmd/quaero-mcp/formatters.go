package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/veritas/internal/ingest"
	"github.com/ternarybob/veritas/internal/merge"
	"github.com/ternarybob/veritas/internal/overlap"
	"github.com/ternarybob/veritas/internal/query"
)

// formatIngestResult formats the result of ingest_document as markdown.
func formatIngestResult(r *ingest.Result) string {
	var sb strings.Builder
	sb.WriteString("# Document Ingested\n\n")
	sb.WriteString(fmt.Sprintf("**Document ID:** %s\n", r.DocumentID))
	sb.WriteString(fmt.Sprintf("**Created:** %v\n", r.Created))
	sb.WriteString(fmt.Sprintf("**Sections created:** %d\n", r.SectionsCreated))
	sb.WriteString(fmt.Sprintf("**Claims extracted:** %d\n", r.ClaimsExtracted))
	sb.WriteString(fmt.Sprintf("**Entities linked:** %d\n", r.EntitiesLinked))

	if len(r.Warnings) > 0 {
		sb.WriteString("\n**Warnings:**\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
	}
	return sb.String()
}

// formatOverlapResult formats the result of find_overlaps as markdown.
func formatOverlapResult(r *overlap.Result) string {
	var sb strings.Builder
	sb.WriteString("# Overlap Analysis\n\n")
	sb.WriteString(fmt.Sprintf("**Redundancy score:** %.1f / 100\n", r.RedundancyScore))
	sb.WriteString(fmt.Sprintf("**Overlapping section groups:** %d\n", len(r.Clusters)))
	sb.WriteString(fmt.Sprintf("**Conflict pairs:** %d\n\n", len(r.ConflictPairs)))

	if len(r.Clusters) > 0 {
		sb.WriteString("## Overlap Clusters\n\n")
		for i, c := range r.Clusters {
			header := c.Header
			if header == "" {
				header = "(untitled section)"
			}
			sb.WriteString(fmt.Sprintf("%d. **%s** — %d sections across documents: %s\n",
				i+1, header, len(c.SectionIDs), strings.Join(c.DocumentIDs, ", ")))
		}
		sb.WriteString("\n")
	}

	if len(r.ConflictPairs) > 0 {
		sb.WriteString("## Conflict Pairs\n\n")
		sb.WriteString("| Type | Strength | Claim A | Claim B |\n")
		sb.WriteString("|------|----------|---------|--------|\n")
		for _, c := range r.ConflictPairs {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %s | %s |\n", c.Type, c.Strength, c.ClaimA, c.ClaimB))
		}
		sb.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			sb.WriteString(fmt.Sprintf("- %s\n", rec))
		}
	}
	return sb.String()
}

// formatConsolidateResult formats the result of consolidate_documents as markdown.
func formatConsolidateResult(r *merge.Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Consolidation: %s\n\n", strings.Title(r.Status)))
	if r.DocumentID != "" {
		sb.WriteString(fmt.Sprintf("**Consolidated document ID:** %s\n", r.DocumentID))
	}
	sb.WriteString(fmt.Sprintf("**Output format:** %s\n", r.OutputFormat))
	sb.WriteString(fmt.Sprintf("**Sections:** %d\n", len(r.Sections)))
	sb.WriteString(fmt.Sprintf("**Conflicts resolved:** %d\n", len(r.ConflictsResolved)))
	sb.WriteString(fmt.Sprintf("**Conflicts pending human review:** %d\n\n", len(r.ConflictsPending)))

	if len(r.ConflictsPending) > 0 {
		sb.WriteString("## Pending Conflicts\n\n")
		for _, c := range r.ConflictsPending {
			sb.WriteString(fmt.Sprintf("- [%s] strength %.2f: %s vs %s\n", c.Type, c.Strength, c.ClaimA, c.ClaimB))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Rendered Document\n\n")
	sb.WriteString(r.Rendered)
	sb.WriteString("\n")
	return sb.String()
}

// formatAnswer formats the result of get_source_of_truth as markdown.
func formatAnswer(a *query.Answer) string {
	var sb strings.Builder
	sb.WriteString("# Answer\n\n")
	sb.WriteString(a.Text)
	sb.WriteString(fmt.Sprintf("\n\n**Confidence:** %.2f\n", a.Confidence))

	if len(a.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, s := range a.Sources {
			sb.WriteString(fmt.Sprintf("- %s (%s) — relevance %.2f\n", s.Title, s.DocumentID, s.Relevance))
		}
	}

	if len(a.SupportingClaims) > 0 {
		sb.WriteString("\n## Supporting Claims\n\n")
		for _, c := range a.SupportingClaims {
			sb.WriteString(fmt.Sprintf("- %s (doc: %s)", c.Text, c.DocumentID))
			if c.VerificationScore > 0 {
				sb.WriteString(fmt.Sprintf(" — verification %.2f", c.VerificationScore))
			}
			sb.WriteString("\n")
		}
	}

	if len(a.ConflictingClaims) > 0 {
		sb.WriteString("\n## Conflicting Claims\n\n")
		for _, c := range a.ConflictingClaims {
			sb.WriteString(fmt.Sprintf("- [%s] strength %.2f: %s vs %s\n", c.Type, c.Strength, c.ClaimA, c.ClaimB))
		}
	}

	if len(a.KnowledgeGaps) > 0 {
		sb.WriteString("\n## Knowledge Gaps\n\n")
		for _, g := range a.KnowledgeGaps {
			sb.WriteString(fmt.Sprintf("- %s\n", g))
		}
	}
	return sb.String()
}

// formatDeprecateResult formats the result of deprecate_document as markdown.
func formatDeprecateResult(status string, referencesMigrated int) string {
	return fmt.Sprintf("# Document %s\n\n**References migrated:** %d\n", strings.Title(status), referencesMigrated)
}
