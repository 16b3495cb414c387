package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/veritas/internal/models"
)

func docWith(id string, authority int, modified time.Time) *models.Document {
	return &models.Document{ID: id, Title: "doc-" + id, AuthorityLevel: authority, ModifiedAt: modified}
}

func secIn(id, docID string) *models.Section {
	return &models.Section{ID: id, DocumentID: docID, Content: "content of " + id}
}

func TestChooseSection_SingleSectionShortCircuits(t *testing.T) {
	in := sectionChoiceInput{cluster: Cluster{Sections: []*models.Section{secIn("s1", "d1")}}}
	got, err := chooseSection(StrategySmart, in)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestChooseSection_EmptyClusterErrors(t *testing.T) {
	_, err := chooseSection(StrategySmart, sectionChoiceInput{})
	assert.Error(t, err)
}

func TestChooseSection_UnknownStrategyErrors(t *testing.T) {
	in := sectionChoiceInput{cluster: Cluster{Sections: []*models.Section{secIn("s1", "d1"), secIn("s2", "d1")}}}
	_, err := chooseSection(Strategy("bogus"), in)
	assert.Error(t, err)
}

func TestChooseSmart_PicksHighestMeanConfidence(t *testing.T) {
	s1, s2 := secIn("s1", "d1"), secIn("s2", "d2")
	in := sectionChoiceInput{
		cluster: Cluster{Sections: []*models.Section{s1, s2}},
		claims: map[string][]*models.Claim{
			"s1": {{Confidence: 0.4}, {Confidence: 0.6}},
			"s2": {{Confidence: 0.9}},
		},
	}
	got, err := chooseSection(StrategySmart, in)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
}

func TestChooseNewest_PicksMostRecentlyModified(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s1, s2 := secIn("s1", "d1"), secIn("s2", "d2")
	in := sectionChoiceInput{
		cluster: Cluster{Sections: []*models.Section{s1, s2}},
		documents: map[string]*models.Document{
			"d1": docWith("d1", 5, now),
			"d2": docWith("d2", 5, now.Add(time.Hour)),
		},
	}
	got, err := chooseSection(StrategyNewestWins, in)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
}

func TestChooseAuthority_PrefersHigherAuthorityOverRecency(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s1, s2 := secIn("s1", "d1"), secIn("s2", "d2")
	in := sectionChoiceInput{
		cluster: Cluster{Sections: []*models.Section{s1, s2}},
		documents: map[string]*models.Document{
			"d1": docWith("d1", 9, now),
			"d2": docWith("d2", 2, now.Add(time.Hour)),
		},
	}
	got, err := chooseSection(StrategyAuthorityWins, in)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestChooseAuthority_TiesBreakOnRecency(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s1, s2 := secIn("s1", "d1"), secIn("s2", "d2")
	in := sectionChoiceInput{
		cluster: Cluster{Sections: []*models.Section{s1, s2}},
		documents: map[string]*models.Document{
			"d1": docWith("d1", 5, now),
			"d2": docWith("d2", 5, now.Add(time.Hour)),
		},
	}
	got, err := chooseSection(StrategyAuthorityWins, in)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
}

func TestSynthesizeMergedSection_ConcatenatesAllSources(t *testing.T) {
	s1, s2 := secIn("s1", "d1"), secIn("s2", "d2")
	in := sectionChoiceInput{
		cluster: Cluster{Sections: []*models.Section{s1, s2}},
		documents: map[string]*models.Document{
			"d1": docWith("d1", 5, time.Unix(0, 0)),
			"d2": docWith("d2", 5, time.Unix(0, 0)),
		},
	}
	got, err := chooseSection(StrategyMergeAll, in)
	require.NoError(t, err)
	assert.Contains(t, got.Content, "content of s1")
	assert.Contains(t, got.Content, "content of s2")
	assert.Contains(t, got.Content, "doc-d1")
	assert.Contains(t, got.Content, "doc-d2")
}

func TestMeanConfidence_EmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, meanConfidence(nil))
}
