// Package merge implements the consolidation engine: overlap clustering,
// section-choice strategies, conflict partitioning, and markdown/JSON/YAML
// rendering.
package merge

import (
	"context"
	"math"

	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
)

// Cluster is one group of near-duplicate sections, all mapped to a single
// output section.
type Cluster struct {
	Sections []*models.Section
}

// ClusterSections runs average-link agglomerative clustering over
// candidate sections, cutting at cutoff.
// Exported so the find_overlaps tool can reuse the same clustering the
// merge engine uses, without duplicating it.
func ClusterSections(ctx context.Context, storage interfaces.DocumentStorage, sections []*models.Section, cutoff float64) ([]Cluster, error) {
	n := len(sections)
	if n == 0 {
		return nil, nil
	}

	ids := make([]string, n)
	for i, s := range sections {
		ids[i] = s.ID
	}
	vectors, err := storage.GetVectorsByOwnerIDs(ctx, models.VectorOwnerSection, ids)
	if err != nil {
		return nil, err
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, oki := vectors[ids[i]]
			vj, okj := vectors[ids[j]]
			var s float64
			if oki && okj {
				s = cosineSimilarity(vi.Values, vj.Values)
			}
			sim[i][j] = s
			sim[j][i] = s
		}
	}

	// members[i] holds the indices belonging to cluster i; alive tracks
	// which cluster slots are still active as clusters merge.
	members := make([][]int, n)
	alive := make([]bool, n)
	for i := range members {
		members[i] = []int{i}
		alive[i] = true
	}

	for {
		bestI, bestJ, bestSim := -1, -1, -1.0
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] {
					continue
				}
				avg := averageLinkSimilarity(members[i], members[j], sim)
				if avg > bestSim {
					bestI, bestJ, bestSim = i, j, avg
				}
			}
		}

		if bestI == -1 || bestSim < cutoff {
			break
		}

		members[bestI] = append(members[bestI], members[bestJ]...)
		alive[bestJ] = false
	}

	var clusters []Cluster
	for i := 0; i < n; i++ {
		if !alive[i] {
			continue
		}
		secs := make([]*models.Section, len(members[i]))
		for k, idx := range members[i] {
			secs[k] = sections[idx]
		}
		clusters = append(clusters, Cluster{Sections: secs})
	}
	return clusters, nil
}

func averageLinkSimilarity(a, b []int, sim [][]float64) float64 {
	var total float64
	for _, i := range a {
		for _, j := range b {
			total += sim[i][j]
		}
	}
	return total / float64(len(a)*len(b))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
