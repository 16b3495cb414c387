package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/veritas/internal/models"
	"gopkg.in/yaml.v3"
)

// render produces the requested output representation of a consolidated
// document.
func render(format, title string, sections []*models.Section, provenance map[string][]string, includeProvenance bool) (string, error) {
	switch format {
	case "", "markdown":
		return renderMarkdownBody(title, sections, provenance, includeProvenance), nil
	case "json":
		return renderJSON(title, sections, provenance, includeProvenance)
	case "yaml":
		return renderYAML(title, sections, provenance, includeProvenance)
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}

// renderMarkdownBody is also used to build the raw_content stored for a
// committed consolidation, so markdown rendering and persistence always
// agree.
func renderMarkdownBody(title string, sections []*models.Section, provenance map[string][]string, includeProvenance bool) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(title)
	sb.WriteString("\n\n")

	for _, sec := range sections {
		if sec.Header != "" {
			sb.WriteString(strings.Repeat("#", max(sec.Level, 2)))
			sb.WriteString(" ")
			sb.WriteString(sec.Header)
			sb.WriteString("\n\n")
		}
		sb.WriteString(sec.Content)
		sb.WriteString("\n\n")

		if includeProvenance {
			if sources, ok := provenance[sec.Header]; ok && len(sources) > 0 {
				sb.WriteString("#### Provenance\n\n")
				for _, s := range sources {
					sb.WriteString(fmt.Sprintf("- %s\n", s))
				}
				sb.WriteString("\n")
			}
		}
	}

	return strings.TrimSpace(sb.String()) + "\n"
}

type renderedSection struct {
	Header     string   `json:"header" yaml:"header"`
	Level      int      `json:"level" yaml:"level"`
	Content    string   `json:"content" yaml:"content"`
	Provenance []string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

type renderedDocument struct {
	Title    string            `json:"title" yaml:"title"`
	Sections []renderedSection `json:"sections" yaml:"sections"`
}

func buildRenderedDocument(title string, sections []*models.Section, provenance map[string][]string, includeProvenance bool) renderedDocument {
	doc := renderedDocument{Title: title}
	for _, sec := range sections {
		rs := renderedSection{Header: sec.Header, Level: sec.Level, Content: sec.Content}
		if includeProvenance {
			rs.Provenance = provenance[sec.Header]
		}
		doc.Sections = append(doc.Sections, rs)
	}
	return doc
}

func renderJSON(title string, sections []*models.Section, provenance map[string][]string, includeProvenance bool) (string, error) {
	doc := buildRenderedDocument(title, sections, provenance, includeProvenance)
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal consolidated document to json: %w", err)
	}
	return string(b), nil
}

func renderYAML(title string, sections []*models.Section, provenance map[string][]string, includeProvenance bool) (string, error) {
	doc := buildRenderedDocument(title, sections, provenance, includeProvenance)
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal consolidated document to yaml: %w", err)
	}
	return string(b), nil
}
