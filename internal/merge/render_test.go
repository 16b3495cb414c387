package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/veritas/internal/models"
)

func renderSec(header string, level int, content string) *models.Section {
	return &models.Section{Header: header, Level: level, Content: content}
}

func TestRender_MarkdownDefault(t *testing.T) {
	secs := []*models.Section{renderSec("Intro", 1, "hello")}
	out, err := render("", "My Doc", secs, nil, false)
	require.NoError(t, err)
	assert.Contains(t, out, "# My Doc")
	assert.Contains(t, out, "## Intro")
	assert.Contains(t, out, "hello")
}

func TestRender_MarkdownWithProvenance(t *testing.T) {
	secs := []*models.Section{renderSec("Intro", 1, "hello")}
	prov := map[string][]string{"Intro": {"doc-a", "doc-b"}}
	out, err := render("markdown", "My Doc", secs, prov, true)
	require.NoError(t, err)
	assert.Contains(t, out, "#### Provenance")
	assert.Contains(t, out, "doc-a")
	assert.Contains(t, out, "doc-b")
}

func TestRender_MarkdownWithoutProvenanceOmitsSection(t *testing.T) {
	secs := []*models.Section{renderSec("Intro", 1, "hello")}
	prov := map[string][]string{"Intro": {"doc-a"}}
	out, err := render("markdown", "My Doc", secs, prov, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "Provenance")
}

func TestRender_JSON(t *testing.T) {
	secs := []*models.Section{renderSec("Intro", 1, "hello")}
	out, err := render("json", "My Doc", secs, nil, false)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "My Doc"`)
	assert.Contains(t, out, `"header": "Intro"`)
}

func TestRender_YAML(t *testing.T) {
	secs := []*models.Section{renderSec("Intro", 1, "hello")}
	out, err := render("yaml", "My Doc", secs, nil, false)
	require.NoError(t, err)
	assert.Contains(t, out, "title: My Doc")
	assert.Contains(t, out, "header: Intro")
}

func TestRender_UnknownFormatErrors(t *testing.T) {
	_, err := render("xml", "My Doc", nil, nil, false)
	assert.Error(t, err)
}

func TestRenderMarkdownBody_HeadinglessSectionHasNoHeader(t *testing.T) {
	secs := []*models.Section{renderSec("", 0, "preamble text")}
	out := renderMarkdownBody("Doc", secs, nil, false)
	assert.Contains(t, out, "preamble text")
	assert.NotContains(t, out, "## ")
}
