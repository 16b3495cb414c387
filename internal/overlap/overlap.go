// Package overlap implements the find_overlaps operation:
// clustering near-duplicate sections across a document scope and surfacing
// the conflicts within each cluster, without merging anything (that is
// the merge engine's job).
package overlap

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/conflict"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/merge"
	"github.com/ternarybob/veritas/internal/models"
)

// Cluster is one group of sections detected as overlapping.
type Cluster struct {
	SectionIDs  []string
	DocumentIDs []string
	Header      string
}

// ConflictPair is one detected conflict surfaced by find_overlaps.
type ConflictPair struct {
	Type     conflict.Type
	Strength float64
	ClaimA   string
	ClaimB   string
}

// Result is the output of one find_overlaps call.
type Result struct {
	Clusters        []Cluster
	ConflictPairs   []ConflictPair
	RedundancyScore float64 // 0-100
	Recommendations []string
}

// Detector finds overlap clusters and conflicts across a document scope.
type Detector struct {
	storage  interfaces.DocumentStorage
	detector *conflict.Detector
	logger   arbor.ILogger
}

// New constructs an overlap Detector.
func New(storage interfaces.DocumentStorage, detector *conflict.Detector, logger arbor.ILogger) *Detector {
	return &Detector{storage: storage, detector: detector, logger: logger}
}

// Options configures one find_overlaps call.
type Options struct {
	SimilarityThreshold float64 `validate:"gte=0,lte=1"` // cluster cutoff, default 0.8
	ConflictTypes       []conflict.Type
	IncludeResolved     bool
}

// Find clusters the sections of documentIDs and reports overlaps and
// conflicts (spec: find_overlaps result shape).
func (d *Detector) Find(ctx context.Context, documentIDs []string, opts Options) (*Result, error) {
	cutoff := opts.SimilarityThreshold
	if cutoff <= 0 {
		cutoff = 0.8
	}

	sections, err := d.storage.GetSectionsByDocumentIDs(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}

	clusters, err := merge.ClusterSections(ctx, d.storage, sections, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster sections: %w", err)
	}

	var supersededBy map[string]string
	if !opts.IncludeResolved {
		sups, err := d.storage.GetSupersessionsByOldDocumentIDs(ctx, documentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load supersessions: %w", err)
		}
		supersededBy = make(map[string]string, len(sups))
		for _, s := range sups {
			supersededBy[s.OldDocumentID] = s.NewDocumentID
		}
	}

	var outClusters []Cluster
	var overlapping int
	var conflictPairs []ConflictPair

	for _, cl := range clusters {
		if len(cl.Sections) < 2 {
			continue
		}
		overlapping += len(cl.Sections)

		c := Cluster{Header: cl.Sections[0].Header}
		seenDoc := make(map[string]bool)
		var allClaims []*models.Claim
		claimDoc := make(map[string]string)
		for _, sec := range cl.Sections {
			c.SectionIDs = append(c.SectionIDs, sec.ID)
			if !seenDoc[sec.DocumentID] {
				seenDoc[sec.DocumentID] = true
				c.DocumentIDs = append(c.DocumentIDs, sec.DocumentID)
			}
			claims, err := d.storage.GetClaimsBySection(ctx, sec.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load claims for section %s: %w", sec.ID, err)
			}
			allClaims = append(allClaims, claims...)
			for _, claim := range claims {
				claimDoc[claim.ID] = claim.DocumentID
			}
		}
		outClusters = append(outClusters, c)

		conflicts, err := d.detector.DetectAll(ctx, allClaims)
		if err != nil {
			d.logger.Warn().Err(err).Msg("conflict detection failed during find_overlaps, continuing")
			continue
		}
		for _, cf := range conflicts {
			if len(opts.ConflictTypes) > 0 && !containsType(opts.ConflictTypes, cf.Type) {
				continue
			}
			if !opts.IncludeResolved && alreadyResolved(supersededBy, claimDoc[cf.ClaimA], claimDoc[cf.ClaimB]) {
				continue
			}
			conflictPairs = append(conflictPairs, ConflictPair{
				Type:     cf.Type,
				Strength: cf.Strength,
				ClaimA:   cf.ClaimA,
				ClaimB:   cf.ClaimB,
			})
		}
	}

	sort.Slice(conflictPairs, func(i, j int) bool { return conflictPairs[i].Strength > conflictPairs[j].Strength })

	var redundancy float64
	if len(sections) > 0 {
		redundancy = 100 * float64(overlapping) / float64(len(sections))
	}

	return &Result{
		Clusters:        outClusters,
		ConflictPairs:   conflictPairs,
		RedundancyScore: redundancy,
		Recommendations: recommendations(outClusters, conflictPairs, redundancy),
	}, nil
}

// alreadyResolved reports whether docA and docB have both been folded, via
// zero or more supersessions, into the same surviving document — i.e. a
// prior consolidation already resolved whatever conflict existed between
// them.
func alreadyResolved(supersededBy map[string]string, docA, docB string) bool {
	if docA == "" || docB == "" || docA == docB {
		return false
	}
	return resolveChain(supersededBy, docA) == resolveChain(supersededBy, docB)
}

func resolveChain(supersededBy map[string]string, docID string) string {
	seen := make(map[string]bool)
	cur := docID
	for !seen[cur] {
		seen[cur] = true
		next, ok := supersededBy[cur]
		if !ok {
			return cur
		}
		cur = next
	}
	return cur
}

func containsType(types []conflict.Type, t conflict.Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func recommendations(clusters []Cluster, pairs []ConflictPair, redundancy float64) []string {
	var recs []string
	if len(clusters) > 0 {
		recs = append(recs, fmt.Sprintf("%d overlapping section group(s) found; consider consolidate_documents to merge them", len(clusters)))
	}
	if len(pairs) > 0 {
		recs = append(recs, fmt.Sprintf("%d conflicting claim pair(s) found; review before consolidating", len(pairs)))
	}
	if redundancy > 50 {
		recs = append(recs, "over half of the scoped sections overlap; this document set is a strong consolidation candidate")
	}
	return recs
}
