package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	kgaserrors "kgas/pkg/errors"
)

// SchemaRow is a registered schema version. The payload is the raw YAML
// document; parsing and compatibility checks live in internal/schema.
type SchemaRow struct {
	Name         string    `json:"name"`
	Version      int       `json:"version"`
	Payload      string    `json:"payload"`
	RegisteredAt time.Time `json:"registered_at"`
}

// InsertSchema registers a schema version. The (name, version) pair is the
// primary key, so re-registering an existing version fails.
func (s *Store) InsertSchema(ctx context.Context, name string, version int, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_registry (name, version, payload) VALUES (?, ?, ?)`,
		name, version, payload)
	if err != nil {
		return fmt.Errorf("failed to insert schema %s v%d: %w", name, version, err)
	}
	return nil
}

// GetSchema fetches one registered schema version
func (s *Store) GetSchema(ctx context.Context, name string, version int) (*SchemaRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, version, payload, registered_at
		FROM schema_registry WHERE name = ? AND version = ?`, name, version)

	var sr SchemaRow
	err := row.Scan(&sr.Name, &sr.Version, &sr.Payload, &sr.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, kgaserrors.NewSchemaNotFound(name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return &sr, nil
}

// LatestSchema fetches the highest registered version of a schema
func (s *Store) LatestSchema(ctx context.Context, name string) (*SchemaRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, version, payload, registered_at
		FROM schema_registry WHERE name = ?
		ORDER BY version DESC LIMIT 1`, name)

	var sr SchemaRow
	err := row.Scan(&sr.Name, &sr.Version, &sr.Payload, &sr.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, kgaserrors.NewSchemaNotFound(name, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest schema: %w", err)
	}
	return &sr, nil
}

// ListSchemas returns every registered schema version, grouped by name
func (s *Store) ListSchemas(ctx context.Context) ([]SchemaRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, payload, registered_at
		FROM schema_registry ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []SchemaRow
	for rows.Next() {
		var sr SchemaRow
		if err := rows.Scan(&sr.Name, &sr.Version, &sr.Payload, &sr.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		schemas = append(schemas, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schema rows: %w", err)
	}
	return schemas, nil
}
