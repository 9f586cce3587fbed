package graph

import (
	"context"
	"fmt"
)

// EnsureSchema creates the constraints and indexes KGAS relies on. Safe to
// run repeatedly (IF NOT EXISTS everywhere).
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_canonical_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.canonical_name IS UNIQUE`,
		`CREATE INDEX entity_type_idx IF NOT EXISTS FOR (e:Entity) ON (e.type)`,
		`CREATE INDEX entity_name_idx IF NOT EXISTS FOR (e:Entity) ON (e.name)`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
		}
	}

	r.logger.Info("Graph schema ensured")
	return nil
}
