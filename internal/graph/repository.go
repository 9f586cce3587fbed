package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	kgaserrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// VerifyConnectivity checks the Neo4j connection is usable
func (r *Repository) VerifyConnectivity(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) readSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
}

func (r *Repository) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
}

// UpsertEntity creates or updates an entity node keyed by canonical name.
// Re-extracting the same entity refreshes name/type and keeps the highest
// confidence seen so far.
func (r *Repository) UpsertEntity(ctx context.Context, e Entity) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query, params := UpsertEntityStatement(e)
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}

	if _, err = result.Single(ctx); err != nil {
		return fmt.Errorf("failed to verify entity upsert: %w", err)
	}

	r.logger.Debug("Entity upserted",
		zap.String("entity_id", e.ID),
		zap.String("canonical_name", e.CanonicalName),
		zap.String("type", e.Type),
	)
	return nil
}

// GetEntity fetches an entity by id
func (r *Repository) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $id})
		RETURN e.id as id, e.name as name, e.canonical_name as canonical_name,
		       e.type as type, e.confidence as confidence,
		       e.created_at as created_at, e.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, kgaserrors.NewEntityNotFound(entityID)
	}

	return entityFromRecord(result.Record()), nil
}

// FindEntityByName fetches an entity by its canonical name
func (r *Repository) FindEntityByName(ctx context.Context, canonicalName string) (*Entity, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {canonical_name: $canonical})
		RETURN e.id as id, e.name as name, e.canonical_name as canonical_name,
		       e.type as type, e.confidence as confidence,
		       e.created_at as created_at, e.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"canonical": canonicalName})
	if err != nil {
		return nil, fmt.Errorf("failed to find entity: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, kgaserrors.NewEntityNotFound(canonicalName)
	}

	return entityFromRecord(result.Record()), nil
}

// DeleteEntity removes an entity and all of its relationships
func (r *Repository) DeleteEntity(ctx context.Context, entityID string) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $id})
		DETACH DELETE e
		RETURN count(e) as deleted
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": entityID})
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify entity deletion: %w", err)
	}
	if getInt64(record, "deleted", 0) == 0 {
		return kgaserrors.NewEntityNotFound(entityID)
	}

	r.logger.Info("Entity deleted", zap.String("entity_id", entityID))
	return nil
}

// CreateRelationship links two existing entities. Both endpoints must already
// exist; a relationship is never allowed to materialize stub entities.
func (r *Repository) CreateRelationship(ctx context.Context, rel Relationship) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query, params := CreateRelationshipStatement(rel)
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return fmt.Errorf("failed to verify relationship: %w", err)
		}
		// MATCH found nothing: one or both endpoints are missing
		return kgaserrors.NewEntityNotFound(rel.SourceID + " or " + rel.TargetID)
	}

	r.logger.Debug("Relationship created",
		zap.String("source_id", rel.SourceID),
		zap.String("target_id", rel.TargetID),
		zap.String("type", rel.Type),
	)
	return nil
}

// GetNeighbors returns entities reachable from entityID within depth hops.
// Depth is clamped to [1,3]; variable-length bounds cannot be parameterized
// in Cypher, so the clamped value is interpolated.
func (r *Repository) GetNeighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (e:Entity {id: $id})
		MATCH path = (e)-[:RELATES*1..%d]-(n:Entity)
		WHERE n.id <> $id
		WITH n, min(length(path)) as distance
		RETURN n.id as id, n.name as name, n.canonical_name as canonical_name,
		       n.type as type, n.confidence as confidence,
		       n.created_at as created_at, n.updated_at as updated_at,
		       distance
		ORDER BY distance, n.canonical_name
	`, depth)

	result, err := session.Run(ctx, query, map[string]interface{}{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch neighbors: %w", err)
	}

	var neighbors []Neighbor
	for result.Next(ctx) {
		record := result.Record()
		neighbors = append(neighbors, Neighbor{
			Entity:   *entityFromRecord(record),
			Distance: int(getInt64(record, "distance", 0)),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate neighbors: %w", err)
	}

	return neighbors, nil
}

// CountEntities returns the number of Entity nodes
func (r *Repository) CountEntities(ctx context.Context) (int64, error) {
	return r.count(ctx, `MATCH (e:Entity) RETURN count(e) as n`)
}

// CountRelationships returns the number of RELATES edges
func (r *Repository) CountRelationships(ctx context.Context) (int64, error) {
	return r.count(ctx, `MATCH (:Entity)-[rel:RELATES]->(:Entity) RETURN count(rel) as n`)
}

func (r *Repository) count(ctx context.Context, query string) (int64, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read count: %w", err)
	}
	return getInt64(record, "n", 0), nil
}

func propsToMap(props map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func entityFromRecord(record *neo4j.Record) *Entity {
	return &Entity{
		ID:            getString(record, "id", ""),
		Name:          getString(record, "name", ""),
		CanonicalName: getString(record, "canonical_name", ""),
		Type:          getString(record, "type", ""),
		Confidence:    getFloat64(record, "confidence", 0),
		CreatedAt:     getTime(record, "created_at", time.Time{}),
		UpdatedAt:     getTime(record, "updated_at", time.Time{}),
	}
}
