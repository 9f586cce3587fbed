package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kgas/internal/deps"
	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/pipeline"
	"kgas/internal/store"
	"kgas/internal/txn"
	"kgas/pkg/config"
	"kgas/pkg/logger"
)

func main() {
	dir := flag.String("dir", "", "Directory of .txt, .md or .html documents to ingest")
	workers := flag.Int("workers", 4, "Concurrent ingestion workers")
	timeout := flag.Duration("timeout", 2*time.Minute, "Per-document timeout")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	if *dir == "" {
		flag.Usage()
		log.Fatal("-dir is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	storeCfg := store.DefaultConfig(cfg.SQLitePath)
	storeCfg.MaxOpenConns = cfg.StoreMaxOpenConns
	storeCfg.MaxIdleConns = cfg.StoreMaxIdleConns
	storeCfg.BusyTimeout = cfg.StoreBusyTimeout()
	metadata, err := store.Open(storeCfg)
	if err != nil {
		log.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer metadata.Close()

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Bulk ingestion extracts on every document, so the LLM endpoint is a
	// required dependency here, unlike in the API server.
	validator := deps.NewValidator(
		deps.Neo4jCheck(driver),
		deps.StoreCheck(metadata),
		deps.LLMCheck(cfg.LiteLLMURL, true),
	)
	if _, err := validator.Validate(context.Background()); err != nil {
		log.Fatal("Dependency validation failed", zap.Error(err))
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to ensure graph constraints", zap.Error(err))
	}

	extractor := extraction.NewAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID, cfg.ExtractionConfidenceMin)
	manager := txn.NewManager(
		txn.NewGraphBranch(repo),
		txn.NewStoreBranch(metadata),
		metadata,
		txn.Config{
			MaxConcurrent: cfg.TxnMaxConcurrent,
			Timeout:       cfg.TxnTimeout(),
		},
	)
	pipe := pipeline.New(extractor, repo, metadata, manager)

	files, err := collectDocuments(*dir)
	if err != nil {
		log.Fatal("Failed to scan directory", zap.String("dir", *dir), zap.Error(err))
	}
	if len(files) == 0 {
		log.Warn("No ingestible documents found", zap.String("dir", *dir))
		return
	}

	log.Info("Starting bulk ingestion",
		zap.Int("documents", len(files)),
		zap.Int("workers", *workers),
	)

	// One failed document must not stop the rest of the batch, so workers
	// tally outcomes instead of returning errors.
	var ingested, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(*workers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			defer cancel()

			doc, err := extraction.LoadDocument(path)
			if err != nil {
				failed.Add(1)
				log.Error("Failed to load document", zap.String("path", path), zap.Error(err))
				return nil
			}

			result, err := pipe.Ingest(ctx, pipeline.Input{
				Source:  path,
				Title:   doc.Title,
				Content: doc.Text,
			})
			if err != nil {
				failed.Add(1)
				log.Error("Failed to ingest document", zap.String("path", path), zap.Error(err))
				return nil
			}

			if result.Skipped {
				skipped.Add(1)
				log.Info("Document already ingested",
					zap.String("path", path),
					zap.String("document_id", result.DocumentID),
				)
				return nil
			}

			ingested.Add(1)
			log.Info("Document ingested",
				zap.String("path", path),
				zap.String("document_id", result.DocumentID),
				zap.String("txn_id", result.TxnID),
				zap.Int("entities", result.Entities),
				zap.Int("relationships", result.Relationships),
				zap.Int("mentions", result.Mentions),
			)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Bulk ingestion finished",
		zap.Int64("ingested", ingested.Load()),
		zap.Int64("skipped", skipped.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if failed.Load() > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

// collectDocuments walks dir and returns every file the loader understands,
// in lexical order. Hidden directories are skipped.
func collectDocuments(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md", ".html", ".htm":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}
