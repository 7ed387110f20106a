package retrieval

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
)

// PrerequisiteGraph traverses the chunk prerequisite graph transitively in
// neo4j, adding to the single-hop ids stored on each chunk's enrichment
// when a tenant's prerequisite edges form chains deeper than one hop (e.g. a
// troubleshooting runbook whose steps each prerequire the previous one).
// Grounded on the teacher's go.mod inclusion of neo4j-go-driver for the
// retrieval-expansion step named in §4.5 step 6.
type PrerequisiteGraph struct {
	driver neo4j.DriverWithContext
}

func NewPrerequisiteGraph(driver neo4j.DriverWithContext) *PrerequisiteGraph {
	return &PrerequisiteGraph{driver: driver}
}

// TransitiveIDs returns every chunk id reachable by following PREREQUISITE
// edges outward from seedIDs, up to maxHops deep.
func (g *PrerequisiteGraph) TransitiveIDs(ctx context.Context, seedIDs []string, maxHops int) ([]string, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (seed:Chunk) WHERE seed.id IN $seedIDs
		 MATCH (seed)-[:PREREQUISITE*1..`+hopLiteral(maxHops)+`]->(prereq:Chunk)
		 RETURN DISTINCT prereq.id AS id`,
		map[string]interface{}{"seedIDs": seedIDs},
	)
	if err != nil {
		return nil, err
	}

	var ids []string
	for result.Next(ctx) {
		rec := result.Record()
		v, _ := rec.Get("id")
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, result.Err()
}

// hopLiteral renders maxHops as a small positive integer literal for the
// variable-length path pattern; neo4j does not support parameterizing hop
// counts in Cypher, so this is bounds-checked rather than interpolated from
// caller input.
func hopLiteral(maxHops int) string {
	if maxHops <= 0 {
		maxHops = 1
	}
	if maxHops > 5 {
		maxHops = 5
	}
	digits := "12345"
	return string(digits[maxHops-1])
}
