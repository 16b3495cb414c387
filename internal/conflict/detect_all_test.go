package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// noVectorStorage answers GetVector with an error so semanticOpposition
// degrades to the regex/enum signals, matching how the detector behaves
// when embeddings haven't been generated for a claim yet.
type noVectorStorage struct {
	interfaces.DocumentStorage
}

func (noVectorStorage) GetVector(ctx context.Context, kind models.VectorOwnerKind, ownerID string) (*models.Vector, error) {
	return nil, assert.AnError
}

func newTestDetector() *Detector {
	cfg := &common.ConflictConfig{SemanticOppositionThreshold: 0.75, MinStrength: 0.3}
	return New(noVectorStorage{}, nil, cfg, arbor.NewLogger())
}

func TestDetectPair_NumericValueConflictSurvivesThreshold(t *testing.T) {
	d := newTestDetector()
	a := claim("a", "service", "has_timeout_of", "30 seconds", "")
	b := claim("b", "service", "has_timeout_of", "60 seconds", "")

	c, err := d.DetectPair(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, TypeValueConflict, c.Type)
}

func TestDetectPair_NoSignalReturnsNil(t *testing.T) {
	d := newTestDetector()
	a := claim("a", "service", "supports", "TLS", "")
	b := claim("b", "other", "supports", "HTTP", "")

	c, err := d.DetectPair(context.Background(), a, b)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDetectPair_WeakSignalBelowMinStrengthIsDropped(t *testing.T) {
	d := newTestDetector()
	d.config.MinStrength = 0.99 // nothing short of certainty survives

	a := claim("a", "service", "has_timeout_of", "30 seconds", "")
	b := claim("b", "service", "has_timeout_of", "31 seconds", "")

	c, err := d.DetectPair(context.Background(), a, b)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDetectAll_ReportsAllConflictingPairs(t *testing.T) {
	d := newTestDetector()
	claims := []*models.Claim{
		claim("a", "service", "has_timeout_of", "30 seconds", ""),
		claim("b", "service", "has_timeout_of", "60 seconds", ""),
		claim("c", "unrelated", "runs_on", "x", ""),
	}

	conflicts, err := d.DetectAll(context.Background(), claims)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a", conflicts[0].ClaimA)
	assert.Equal(t, "b", conflicts[0].ClaimB)
}

func TestDetectAll_EmptyInput(t *testing.T) {
	d := newTestDetector()
	conflicts, err := d.DetectAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
