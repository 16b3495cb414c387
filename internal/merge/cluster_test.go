package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// fakeVectorStorage answers only GetVectorsByOwnerIDs; any other method
// panics via the nil embedded interface, which is fine since ClusterSections
// never calls them.
type fakeVectorStorage struct {
	interfaces.DocumentStorage
	vectors map[string]*models.Vector
}

func (f *fakeVectorStorage) GetVectorsByOwnerIDs(ctx context.Context, kind models.VectorOwnerKind, ownerIDs []string) (map[string]*models.Vector, error) {
	out := make(map[string]*models.Vector)
	for _, id := range ownerIDs {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func section(id string) *models.Section {
	return &models.Section{ID: id}
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestAverageLinkSimilarity_SingleMembers(t *testing.T) {
	sim := [][]float64{
		{0, 0.9},
		{0.9, 0},
	}
	assert.Equal(t, 0.9, averageLinkSimilarity([]int{0}, []int{1}, sim))
}

func TestAverageLinkSimilarity_MultiMemberAverages(t *testing.T) {
	sim := [][]float64{
		{0, 0.8, 0.4},
		{0.8, 0, 0.6},
		{0.4, 0.6, 0},
	}
	// cluster {0,1} vs {2}: average of sim[0][2], sim[1][2]
	got := averageLinkSimilarity([]int{0, 1}, []int{2}, sim)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestClusterSections_EmptyInput(t *testing.T) {
	clusters, err := ClusterSections(context.Background(), &fakeVectorStorage{}, nil, 0.8)
	require.NoError(t, err)
	assert.Nil(t, clusters)
}

func TestClusterSections_MergesAboveCutoff(t *testing.T) {
	secs := []*models.Section{section("a"), section("b"), section("c")}
	storage := &fakeVectorStorage{
		vectors: map[string]*models.Vector{
			"a": {Values: []float32{1, 0, 0}},
			"b": {Values: []float32{1, 0, 0.01}},
			"c": {Values: []float32{0, 1, 0}},
		},
	}

	clusters, err := ClusterSections(context.Background(), storage, secs, 0.9)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	var sizes []int
	for _, c := range clusters {
		sizes = append(sizes, len(c.Sections))
	}
	assert.Contains(t, sizes, 2)
	assert.Contains(t, sizes, 1)
}

func TestClusterSections_NoMergeBelowCutoff(t *testing.T) {
	secs := []*models.Section{section("a"), section("b")}
	storage := &fakeVectorStorage{
		vectors: map[string]*models.Vector{
			"a": {Values: []float32{1, 0}},
			"b": {Values: []float32{0, 1}},
		},
	}

	clusters, err := ClusterSections(context.Background(), storage, secs, 0.5)
	require.NoError(t, err)
	assert.Len(t, clusters, 2)
}
