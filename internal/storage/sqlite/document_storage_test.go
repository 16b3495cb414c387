package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/apperrors"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	cfg := &common.SQLiteConfig{Path: ":memory:", CacheSizeMB: 8, BusyTimeoutMS: 1000}
	db, err := New(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStorage(db, arbor.NewLogger())
}

func testDoc(id string) *models.Document {
	return &models.Document{
		ID:             id,
		ContentHash:    "hash-" + id,
		Title:          "Doc " + id,
		RawContent:     "content of " + id,
		DocumentType:   models.DocumentTypeReference,
		AuthorityLevel: 5,
		Tags:           []string{"a", "b"},
	}
}

func TestIngestDocument_CreatesNewDocument(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	id, created, err := storage.IngestDocument(ctx, testDoc("d1"), nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "d1", id)

	got, err := storage.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Doc d1", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func TestIngestDocument_DuplicateContentHashUpdatesMetadataInPlace(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	doc1 := testDoc("d1")
	_, _, err := storage.IngestDocument(ctx, doc1, nil)
	require.NoError(t, err)

	doc2 := testDoc("d2")
	doc2.ContentHash = doc1.ContentHash
	doc2.Title = "Renamed"
	doc2.AuthorityLevel = 9

	id, created, err := storage.IngestDocument(ctx, doc2, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "d1", id)

	got, err := storage.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 9, got.AuthorityLevel)

	_, err = storage.GetDocument(ctx, "d2")
	assert.Error(t, err)
}

func TestGetDocument_NotFoundWrapsErrNotFound(t *testing.T) {
	storage := newTestStorage(t)
	_, err := storage.GetDocument(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSetDocumentStatus_UnknownIDReturnsNotFound(t *testing.T) {
	storage := newTestStorage(t)
	err := storage.SetDocumentStatus(context.Background(), "missing", models.DocumentStatusDeprecated, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSetDocumentStatus_UpdatesStatusAndSupersededBy(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	_, _, err := storage.IngestDocument(ctx, testDoc("d1"), nil)
	require.NoError(t, err)

	err = storage.SetDocumentStatus(ctx, "d1", models.DocumentStatusDeprecated, "d2")
	require.NoError(t, err)

	got, err := storage.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusDeprecated, got.Status)
	assert.Equal(t, "d2", got.SupersededBy)
}

func TestIngestDocument_PersistsSections(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	secs := []*models.Section{
		{ID: "s1", DocumentID: "d1", Header: "Intro", Content: "hello", Ordinal: 0},
		{ID: "s2", DocumentID: "d1", Header: "Body", Content: "world", Ordinal: 1},
	}
	_, _, err := storage.IngestDocument(ctx, testDoc("d1"), secs)
	require.NoError(t, err)

	got, err := storage.GetSections(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Intro", got[0].Header)
	assert.Equal(t, "Body", got[1].Header)
}

func TestReplaceClaims_OverwritesExistingSet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	secs := []*models.Section{{ID: "s1", DocumentID: "d1", Ordinal: 0}}
	_, _, err := storage.IngestDocument(ctx, testDoc("d1"), secs)
	require.NoError(t, err)

	err = storage.ReplaceClaims(ctx, "s1", []*models.Claim{
		{ID: "c1", DocumentID: "d1", SectionID: "s1", Subject: "a", Predicate: "is", Object: "b"},
	})
	require.NoError(t, err)

	claims, err := storage.GetClaimsBySection(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, claims, 1)

	err = storage.ReplaceClaims(ctx, "s1", []*models.Claim{
		{ID: "c2", DocumentID: "d1", SectionID: "s1", Subject: "x", Predicate: "is", Object: "y"},
	})
	require.NoError(t, err)

	claims, err = storage.GetClaimsBySection(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "c2", claims[0].ID)
}

func TestUpsertVectorAndGetVector_RoundTrips(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	v := &models.Vector{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Dim: 3, Values: []float32{0.1, 0.2, 0.3}}
	require.NoError(t, storage.UpsertVector(ctx, v))

	got, err := storage.GetVector(ctx, models.VectorOwnerSection, "s1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, toFloat64Slice(got.Values), 1e-6)
}

func TestUpsertVector_OnConflictUpdatesValues(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, storage.UpsertVector(ctx, &models.Vector{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Dim: 1, Values: []float32{1}}))
	require.NoError(t, storage.UpsertVector(ctx, &models.Vector{OwnerKind: models.VectorOwnerSection, OwnerID: "s1", Dim: 1, Values: []float32{2}}))

	got, err := storage.GetVector(ctx, models.VectorOwnerSection, "s1")
	require.NoError(t, err)
	assert.Equal(t, float32(2), got.Values[0])
}

func TestSearchSimilar_RanksByCosineSimilarity(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, storage.UpsertVector(ctx, &models.Vector{OwnerKind: models.VectorOwnerSection, OwnerID: "close", Dim: 2, Values: []float32{1, 0.01}}))
	require.NoError(t, storage.UpsertVector(ctx, &models.Vector{OwnerKind: models.VectorOwnerSection, OwnerID: "far", Dim: 2, Values: []float32{0, 1}}))

	results, err := storage.SearchSimilar(ctx, models.VectorOwnerSection, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].OwnerID)
}

func TestAddSupersession_GeneratesIDWhenMissing(t *testing.T) {
	storage := newTestStorage(t)
	sup := &models.Supersession{OldDocumentID: "d1", NewDocumentID: "d2", Reason: "merged"}
	require.NoError(t, storage.AddSupersession(context.Background(), sup))
	assert.NotEmpty(t, sup.ID)
}

func TestListDocuments_FiltersByTags(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	d1 := testDoc("d1")
	d1.Tags = []string{"infra"}
	d2 := testDoc("d2")
	d2.ContentHash = "different-hash"
	d2.Tags = []string{"product"}
	_, _, err := storage.IngestDocument(ctx, d1, nil)
	require.NoError(t, err)
	_, _, err = storage.IngestDocument(ctx, d2, nil)
	require.NoError(t, err)

	docs, err := storage.ListDocuments(ctx, interfaces.ListOptions{Tags: []string{"infra"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
}

func toFloat64Slice(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
