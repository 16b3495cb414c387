package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
)

func TestHTTPFallbackClient_EmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "some text", req["prompt"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := newHTTPFallbackClient(srv.URL, "model", 5*time.Second, arbor.NewLogger())
	v, err := c.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestHTTPFallbackClient_EmbedEmptyTextErrors(t *testing.T) {
	c := newHTTPFallbackClient("http://unused", "model", time.Second, arbor.NewLogger())
	_, err := c.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestHTTPFallbackClient_EmbedNonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newHTTPFallbackClient(srv.URL, "model", 5*time.Second, arbor.NewLogger())
	_, err := c.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestHTTPFallbackClient_EmbedEmptyVectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{}})
	}))
	defer srv.Close()

	c := newHTTPFallbackClient(srv.URL, "model", 5*time.Second, arbor.NewLogger())
	_, err := c.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestHTTPFallbackClient_AvailableTrueOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newHTTPFallbackClient(srv.URL, "model", 5*time.Second, arbor.NewLogger())
	assert.True(t, c.Available(context.Background()))
}

func TestHTTPFallbackClient_AvailableFalseOnUnreachable(t *testing.T) {
	c := newHTTPFallbackClient("http://127.0.0.1:1", "model", 200*time.Millisecond, arbor.NewLogger())
	assert.False(t, c.Available(context.Background()))
}
