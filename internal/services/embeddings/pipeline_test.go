package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
)

func newFallbackOnlyPipeline(t *testing.T, fallbackURL string) *Pipeline {
	t.Helper()
	cfg := &common.EmbeddingConfig{
		Dimension:          3,
		ModelName:          "test-model",
		CallTimeoutSeconds: 5,
		FallbackURL:        fallbackURL,
	}
	p, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPipeline_EmbedOneUsesFallbackWhenNoSubprocessConfigured(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{1, 2, 3}})
	}))
	defer srv.Close()

	p := newFallbackOnlyPipeline(t, srv.URL)
	v, err := p.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, 1, calls)
}

func TestPipeline_EmbedOneCachesRepeatedText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{1, 2, 3}})
	}))
	defer srv.Close()

	p := newFallbackOnlyPipeline(t, srv.URL)
	_, err := p.EmbedOne(context.Background(), "repeat me")
	require.NoError(t, err)
	_, err = p.EmbedOne(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestPipeline_EmbedBatchReturnsVectorPerInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{9, 9}})
	}))
	defer srv.Close()

	p := newFallbackOnlyPipeline(t, srv.URL)
	out, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	for _, v := range out {
		assert.Equal(t, []float32{9, 9}, v)
	}
}

func TestPipeline_EmbedPropagatesFallbackErrorWithIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newFallbackOnlyPipeline(t, srv.URL)
	_, err := p.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestPipeline_DimensionReturnsConfiguredValue(t *testing.T) {
	p := newFallbackOnlyPipeline(t, "http://unused")
	assert.Equal(t, 3, p.Dimension())
}

func TestPipeline_CloseWithoutSubprocessIsNoOp(t *testing.T) {
	cfg := &common.EmbeddingConfig{Dimension: 3, ModelName: "m", FallbackURL: "http://unused", CallTimeoutSeconds: 1}
	p, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
