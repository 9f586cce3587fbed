package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"kgas/internal/graph"
	"kgas/internal/schema"
	"kgas/internal/store"
	"kgas/pkg/config"
	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

func main() {
	schemaDir := flag.String("schemas", "", "Schema directory (overrides SCHEMA_DIR)")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting migration...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Opening the store applies any pending SQLite migrations
	metadata, err := store.Open(store.DefaultConfig(cfg.SQLitePath))
	if err != nil {
		log.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer metadata.Close()
	log.Info("SQLite migrations applied", zap.String("path", metadata.Path()))

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure graph constraints", zap.Error(err))
	}
	log.Info("Graph constraints ensured")

	dir := cfg.SchemaDir
	if *schemaDir != "" {
		dir = *schemaDir
	}
	registerSchemas(ctx, log, metadata, dir)

	log.Info("Migration complete")
}

// registerSchemas loads every YAML schema in dir into the registry. A
// missing directory is fine; a schema version that is already registered
// is skipped.
func registerSchemas(ctx context.Context, log *zap.Logger, metadata *store.Store, dir string) {
	schemas, err := schema.LoadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("No schema directory, skipping registration", zap.String("dir", dir))
			return
		}
		log.Fatal("Failed to load schemas", zap.String("dir", dir), zap.Error(err))
	}

	registry := schema.NewRegistry(metadata)
	registered, skipped := 0, 0
	for _, s := range schemas {
		err := registry.Register(ctx, s)
		var conflict *apperrors.ErrSchemaVersionConflict
		switch {
		case err == nil:
			registered++
			log.Info("Schema registered", zap.String("name", s.Name), zap.Int("version", s.Version))
		case errors.As(err, &conflict):
			skipped++
			log.Info("Schema already registered", zap.String("name", s.Name), zap.Int("version", s.Version))
		default:
			log.Fatal("Failed to register schema", zap.String("name", s.Name), zap.Error(err))
		}
	}

	log.Info("Schema registration finished",
		zap.Int("registered", registered),
		zap.Int("skipped", skipped),
	)
}
