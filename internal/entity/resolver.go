// Package entity implements the optional entity resolver: canonicalizing
// entity mentions across claims and recording them in an
// external Neo4j graph store, grounded on the graph-repository pattern of
// the WessleyAI-wessley-mvp engine/graph package.
package entity

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/veritas/internal/common"
	"github.com/ternarybob/veritas/internal/interfaces"
	"github.com/ternarybob/veritas/internal/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Resolver links claim subjects/objects to canonical entities in a graph
// store. When the store is disabled or unreachable, every operation is a
// silent no-op: ingestion must never fail solely because of this.
type Resolver struct {
	driver  neo4j.DriverWithContext
	enabled bool
	logger  arbor.ILogger
}

var _ interfaces.EntityResolver = (*Resolver)(nil)

// New connects to the graph store described by config. If config.Enabled
// is false, or the connection/verification fails, it returns a disabled
// Resolver rather than an error.
func New(config *common.GraphConfig, password string, logger arbor.ILogger) *Resolver {
	if !config.Enabled {
		logger.Debug().Msg("entity resolver disabled by configuration")
		return &Resolver{enabled: false, logger: logger}
	}

	driver, err := neo4j.NewDriverWithContext(config.BoltURL, neo4j.BasicAuth(config.Username, password, ""))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create graph driver, entity resolver disabled")
		return &Resolver{enabled: false, logger: logger}
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		logger.Warn().Err(err).Msg("graph store unreachable, entity resolver disabled")
		return &Resolver{enabled: false, logger: logger}
	}

	logger.Info().Str("bolt_url", config.BoltURL).Msg("entity resolver connected to graph store")
	return &Resolver{driver: driver, enabled: true, logger: logger}
}

func (r *Resolver) Enabled() bool { return r.enabled }

// LinkClaim canonicalizes the entities named in claim.Subject and
// claim.Object and records (entity)-[:HAS_CLAIM]->(claim) and
// (entity)-[:RELATES_TO]->(entity) relationships. Any failure is logged and
// swallowed: no ingest operation may fail solely because the graph store
// is unavailable.
func (r *Resolver) LinkClaim(ctx context.Context, claim *models.Claim) error {
	if !r.enabled {
		return nil
	}

	subject := canonicalize(claim.Subject)
	object := canonicalize(claim.Object)
	if subject == "" {
		return nil
	}

	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (c:Claim {id: $claimID})`, map[string]any{"claimID": claim.ID}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
			MERGE (e:Entity {name: $name})
			MERGE (e)-[:HAS_CLAIM]->(c:Claim {id: $claimID})`,
			map[string]any{"name": subject, "claimID": claim.ID}); err != nil {
			return nil, err
		}

		if object != "" && object != subject {
			if _, err := tx.Run(ctx, `
				MERGE (a:Entity {name: $subject})
				MERGE (b:Entity {name: $object})
				MERGE (a)-[:RELATES_TO]->(b)`,
				map[string]any{"subject": subject, "object": object}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		r.logger.Warn().Err(err).Str("claim_id", claim.ID).Msg("failed to link claim in graph store, continuing")
		return nil
	}
	return nil
}

func (r *Resolver) Close() error {
	if !r.enabled || r.driver == nil {
		return nil
	}
	return r.driver.Close(context.Background())
}

// canonicalize normalizes an entity mention to a stable alias key: trimmed,
// lowercased, and collapsed of internal whitespace. This is a deliberately
// simple alias table; a
// future revision could use embedding similarity to merge near-duplicate
// mentions instead of exact string matching.
func canonicalize(mention string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(mention)))
	return strings.Join(fields, " ")
}
