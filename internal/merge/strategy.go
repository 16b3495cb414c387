package merge

import (
	"fmt"
	"sort"

	"github.com/ternarybob/veritas/internal/models"
)

// Strategy picks which section within a cluster represents the cluster in
// the output document.
type Strategy string

const (
	StrategySmart         Strategy = "smart"
	StrategyNewestWins    Strategy = "newest_wins"
	StrategyAuthorityWins Strategy = "authority_wins"
	StrategyMergeAll      Strategy = "merge_all"
)

// sectionChoiceInput carries a cluster plus the claims/documents context that
// chooseSection's strategies need to pick its representative section.
type sectionChoiceInput struct {
	cluster   Cluster
	claims    map[string][]*models.Claim // sectionID -> claims
	documents map[string]*models.Document // documentID -> document
}

func chooseSection(strategy Strategy, in sectionChoiceInput) (*models.Section, error) {
	if len(in.cluster.Sections) == 0 {
		return nil, fmt.Errorf("empty cluster")
	}
	if len(in.cluster.Sections) == 1 {
		return in.cluster.Sections[0], nil
	}

	switch strategy {
	case StrategyNewestWins:
		return chooseNewest(in), nil
	case StrategyAuthorityWins:
		return chooseAuthority(in), nil
	case StrategyMergeAll:
		return synthesizeMergedSection(in), nil
	case StrategySmart, "":
		return chooseSmart(in), nil
	default:
		return nil, fmt.Errorf("unknown merge strategy: %s", strategy)
	}
}

// chooseSmart picks the section whose claims have the highest mean
// confidence.
func chooseSmart(in sectionChoiceInput) *models.Section {
	var best *models.Section
	var bestScore = -1.0
	for _, sec := range in.cluster.Sections {
		score := meanConfidence(in.claims[sec.ID])
		if score > bestScore {
			best, bestScore = sec, score
		}
	}
	return best
}

func meanConfidence(claims []*models.Claim) float64 {
	if len(claims) == 0 {
		return 0
	}
	var total float64
	for _, c := range claims {
		total += c.Confidence
	}
	return total / float64(len(claims))
}

func chooseNewest(in sectionChoiceInput) *models.Section {
	sorted := append([]*models.Section(nil), in.cluster.Sections...)
	sort.Slice(sorted, func(i, j int) bool {
		di := in.documents[sorted[i].DocumentID]
		dj := in.documents[sorted[j].DocumentID]
		if di == nil || dj == nil {
			return false
		}
		return di.ModifiedAt.After(dj.ModifiedAt)
	})
	return sorted[0]
}

func chooseAuthority(in sectionChoiceInput) *models.Section {
	sorted := append([]*models.Section(nil), in.cluster.Sections...)
	sort.Slice(sorted, func(i, j int) bool {
		di := in.documents[sorted[i].DocumentID]
		dj := in.documents[sorted[j].DocumentID]
		if di == nil || dj == nil {
			return false
		}
		if di.AuthorityLevel != dj.AuthorityLevel {
			return di.AuthorityLevel > dj.AuthorityLevel
		}
		return di.ModifiedAt.After(dj.ModifiedAt)
	})
	return sorted[0]
}

// synthesizeMergedSection builds a synthetic section listing every
// contributing source's content with an origin annotation.
func synthesizeMergedSection(in sectionChoiceInput) *models.Section {
	first := in.cluster.Sections[0]
	content := ""
	for _, sec := range in.cluster.Sections {
		doc := in.documents[sec.DocumentID]
		title := sec.DocumentID
		if doc != nil {
			title = doc.Title
		}
		content += fmt.Sprintf("**From %s:**\n\n%s\n\n", title, sec.Content)
	}
	merged := *first
	merged.Content = content
	return &merged
}
