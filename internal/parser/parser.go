// Package parser splits a markdown document into sections at heading
// boundaries using a goldmark AST walk.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// headingSpan is an intermediate record of one heading's position before
// content boundaries (which depend on the *next* heading) are known.
type headingSpan struct {
	header string
	level  int
	start  int
}

// Split walks raw's markdown AST and returns one Section per heading (plus
// a level-0 preamble section if content precedes the first heading).
// Sections are ordered and byte ranges are disjoint and contiguous; they
// cover the whole document except a whitespace-only preamble, which yields
// no section.
func Split(raw string) []*models.Section {
	source := []byte(raw)
	doc := md.Parser().Parse(text.NewReader(source))

	var spans []headingSpan
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		start := nodeStart(n, source)
		spans = append(spans, headingSpan{
			header: headingText(heading, source),
			level:  heading.Level,
			start:  start,
		})
		return ast.WalkSkipChildren, nil
	})

	if len(spans) == 0 {
		content := strings.TrimSpace(raw)
		if content == "" {
			return nil
		}
		return []*models.Section{{
			ID:        common.NewID(),
			Header:    "",
			Level:     0,
			Content:   content,
			ByteStart: 0,
			ByteEnd:   len(source),
			Ordinal:   0,
		}}
	}

	var sections []*models.Section
	ordinal := 0

	if spans[0].start > 0 {
		preamble := strings.TrimSpace(string(source[0:spans[0].start]))
		if preamble != "" {
			sections = append(sections, &models.Section{
				ID:        common.NewID(),
				Header:    "",
				Level:     0,
				Content:   preamble,
				ByteStart: 0,
				ByteEnd:   spans[0].start,
				Ordinal:   ordinal,
			})
			ordinal++
		}
	}

	for i, sp := range spans {
		end := len(source)
		if i+1 < len(spans) {
			end = spans[i+1].start
		}
		sections = append(sections, &models.Section{
			ID:        common.NewID(),
			Header:    sp.header,
			Level:     sp.level,
			Content:   strings.TrimSpace(string(source[sp.start:end])),
			ByteStart: sp.start,
			ByteEnd:   end,
			Ordinal:   ordinal,
		})
		ordinal++
	}

	return sections
}

func nodeStart(n ast.Node, source []byte) int {
	lines := n.Lines()
	if lines.Len() > 0 {
		// The first line segment starts at the heading text, after any "#"
		// marker; step back to the start of that line.
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		return start
	}
	// Headings with no text (e.g. "# ") still carry no line segments in
	// some goldmark versions; fall back to scanning forward from the
	// parent's last known offset is not available here, so default to 0.
	return 0
}

func headingText(h *ast.Heading, source []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

// ContentHash returns the canonical content-hash used for document
// deduplication: sha256 of the raw content, hex-encoded.
func ContentHash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
