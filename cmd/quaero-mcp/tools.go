package main

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ternarybob/veritas/internal/models"
)

func documentTypeValues() []string {
	out := make([]string, len(models.ValidDocumentTypes))
	for i, t := range models.ValidDocumentTypes {
		out[i] = string(t)
	}
	return out
}

// createIngestDocumentTool returns the ingest_document tool definition.
func createIngestDocumentTool() mcp.Tool {
	return mcp.NewTool("ingest_document",
		mcp.WithDescription("Ingest a document's content into the knowledge store: split into sections, embed, extract claims, and link entities"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Raw markdown content to ingest"),
		),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Enum(documentTypeValues()...),
			mcp.Description("Kind of source material"),
		),
		mcp.WithString("title",
			mcp.Description("Document title (default: derived from content)"),
		),
		mcp.WithNumber("authority_level",
			mcp.Description("Authority level; the authority_wins merge strategy prefers sections from higher-authority documents (default: 5)"),
		),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Free-form tags for scope filtering"),
		),
		mcp.WithBoolean("extract_claims",
			mcp.Description("Extract atomic claims via the LLM pipeline (default: true)"),
		),
		mcp.WithBoolean("generate_embeddings",
			mcp.Description("Generate section/claim embeddings (default: true)"),
		),
		mcp.WithBoolean("build_entity_graph",
			mcp.Description("Link claim entities into the graph store, if enabled (default: true)"),
		),
	)
}

// createFindOverlapsTool returns the find_overlaps tool definition.
func createFindOverlapsTool() mcp.Tool {
	return mcp.NewTool("find_overlaps",
		mcp.WithDescription("Find overlapping and conflicting sections across a set of documents, without merging them"),
		mcp.WithArray("document_ids",
			mcp.WithStringItems(),
			mcp.Description("Explicit document ids to scope the search to"),
		),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Scope the search to documents carrying any of these tags"),
		),
		mcp.WithNumber("similarity_threshold",
			mcp.Description("Clustering cutoff, 0-1 (default: 0.8)"),
		),
		mcp.WithArray("conflict_types",
			mcp.WithStringItems(),
			mcp.Description("Restrict conflict_pairs to these types: direct_negation, value_conflict, temporal_conflict, scope_conflict, implication_conflict"),
		),
		mcp.WithBoolean("include_resolved",
			mcp.Description("Include conflicts that a prior consolidation already resolved (default: false)"),
		),
	)
}

// createConsolidateDocumentsTool returns the consolidate_documents tool definition.
func createConsolidateDocumentsTool() mcp.Tool {
	return mcp.NewTool("consolidate_documents",
		mcp.WithDescription("Cluster overlapping sections across a set of documents, resolve conflicts, and produce one consolidated document"),
		mcp.WithArray("document_ids",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Document ids to consolidate"),
		),
		mcp.WithString("title",
			mcp.Description("Title for the consolidated document"),
		),
		mcp.WithString("strategy",
			mcp.Enum("smart", "newest_wins", "authority_wins", "merge_all"),
			mcp.Description("Section-choice strategy (default: smart)"),
		),
		mcp.WithString("output_format",
			mcp.Enum("markdown", "json", "yaml"),
			mcp.Description("Rendering of the consolidated document (default: markdown)"),
		),
		mcp.WithBoolean("include_provenance",
			mcp.Description("Annotate each section with its source document ids (default: true)"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Preview the consolidation without persisting it (default: false)"),
		),
	)
}

// createGetSourceOfTruthTool returns the get_source_of_truth tool definition.
func createGetSourceOfTruthTool() mcp.Tool {
	return mcp.NewTool("get_source_of_truth",
		mcp.WithDescription("Answer a natural-language question against the knowledge store, with citations and surfaced conflicts"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language question"),
		),
		mcp.WithArray("scope",
			mcp.WithStringItems(),
			mcp.Description("Document ids, or a title glob (an entry containing * or ?), to restrict the search to; only the last glob entry is used, and entries are not matched against tags"),
		),
		mcp.WithNumber("max_sources",
			mcp.Description("Maximum number of source documents to cite (default: 5)"),
		),
		mcp.WithBoolean("verify_claims",
			mcp.Description("Self-consistency-verify each supporting claim before answering (default: false)"),
		),
		mcp.WithBoolean("include_deprecated",
			mcp.Description("Include deprecated/archived documents in the search (default: false)"),
		),
	)
}

// createDeprecateDocumentTool returns the deprecate_document tool definition.
func createDeprecateDocumentTool() mcp.Tool {
	return mcp.NewTool("deprecate_document",
		mcp.WithDescription("Mark a document deprecated or archived, optionally recording what superseded it"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document to deprecate"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why this document is being deprecated"),
		),
		mcp.WithString("superseded_by",
			mcp.Description("Document id that replaces this one, if any"),
		),
		mcp.WithBoolean("migrate_references",
			mcp.Description("Count the deprecated document's sections as migrated to superseded_by (default: false)"),
		),
		mcp.WithBoolean("archive",
			mcp.Description("Archive instead of merely deprecating (default: false)"),
		),
	)
}
