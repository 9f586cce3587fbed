package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LoadSnapshot copies the graph (optionally restricted to one entity type)
// into memory for analytics. Centrality runs over the snapshot so long
// computations never hold a session open.
func (r *Repository) LoadSnapshot(ctx context.Context, entityType string) (*Snapshot, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	snapshot := &Snapshot{}

	nodeQuery := `
		MATCH (e:Entity)
		WHERE $type = '' OR e.type = $type
		RETURN e.id as id, e.name as name, e.type as type
	`

	result, err := session.Run(ctx, nodeQuery, map[string]interface{}{"type": entityType})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot nodes: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		snapshot.AddNode(
			getString(record, "id", ""),
			getString(record, "name", ""),
			getString(record, "type", ""),
		)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot nodes: %w", err)
	}

	edgeQuery := `
		MATCH (a:Entity)-[rel:RELATES]->(b:Entity)
		WHERE $type = '' OR (a.type = $type AND b.type = $type)
		RETURN a.id as source_id, b.id as target_id, rel.type as type
	`

	result, err = session.Run(ctx, edgeQuery, map[string]interface{}{"type": entityType})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot edges: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		snapshot.AddEdge(
			getString(record, "source_id", ""),
			getString(record, "target_id", ""),
			getString(record, "type", ""),
		)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot edges: %w", err)
	}

	r.logger.Debug("Graph snapshot loaded",
		zap.Int("nodes", snapshot.NodeCount()),
		zap.Int("edges", snapshot.EdgeCount()),
		zap.String("entity_type", entityType),
	)
	return snapshot, nil
}
