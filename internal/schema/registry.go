package schema

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"kgas/internal/store"
	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// Rows is the slice of the metadata store the registry persists through.
// *store.Store satisfies it.
type Rows interface {
	InsertSchema(ctx context.Context, name string, version int, payload string) error
	GetSchema(ctx context.Context, name string, version int) (*store.SchemaRow, error)
	LatestSchema(ctx context.Context, name string) (*store.SchemaRow, error)
	ListSchemas(ctx context.Context) ([]store.SchemaRow, error)
}

// Registry persists versioned schemas and enforces monotonic versioning
type Registry struct {
	rows   Rows
	logger *zap.Logger
}

// NewRegistry creates a schema registry over the metadata store
func NewRegistry(rows Rows) *Registry {
	return &Registry{rows: rows, logger: logger.Get()}
}

// Register stores a new schema version. The version must be strictly
// greater than the latest registered version of the same name; the first
// registration accepts any version >= 1.
func (r *Registry) Register(ctx context.Context, s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	latest, err := r.rows.LatestSchema(ctx, s.Name)
	var notFound *apperrors.ErrSchemaNotFound
	switch {
	case err == nil:
		if s.Version <= latest.Version {
			return apperrors.NewSchemaVersionConflict(s.Name, s.Version, latest.Version)
		}
	case errors.As(err, &notFound):
		// first version of this schema
	default:
		return err
	}

	payload, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := r.rows.InsertSchema(ctx, s.Name, s.Version, string(payload)); err != nil {
		return err
	}

	r.logger.Info("Schema registered",
		zap.String("name", s.Name),
		zap.Int("version", s.Version),
	)
	return nil
}

// Get fetches and parses one registered schema version
func (r *Registry) Get(ctx context.Context, name string, version int) (*Schema, error) {
	row, err := r.rows.GetSchema(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(row.Payload))
}

// Latest fetches and parses the highest version of a schema
func (r *Registry) Latest(ctx context.Context, name string) (*Schema, error) {
	row, err := r.rows.LatestSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(row.Payload))
}

// List returns every registered schema version, payload included
func (r *Registry) List(ctx context.Context) ([]store.SchemaRow, error) {
	return r.rows.ListSchemas(ctx)
}

// CheckAgainstLatest compares a proposed schema with the latest registered
// version of the same name. With no registered version everything is
// compatible.
func (r *Registry) CheckAgainstLatest(ctx context.Context, proposed *Schema) (CompatibilityResult, error) {
	latest, err := r.Latest(ctx, proposed.Name)
	if err != nil {
		var notFound *apperrors.ErrSchemaNotFound
		if errors.As(err, &notFound) {
			return CompatibilityResult{Compatible: true}, nil
		}
		return CompatibilityResult{}, err
	}
	return Check(latest, proposed), nil
}
