package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/pipeline"
	"kgas/internal/store"
	"kgas/internal/txn"
	"kgas/pkg/config"
	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// seedDocument is a demo document with its extraction result written by
// hand, so seeding exercises the full distributed write path without an
// LLM endpoint.
type seedDocument struct {
	input     pipeline.Input
	extracted extraction.Result
}

func main() {
	force := flag.Bool("force", false, "Delete demo data and recreate it")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting demo graph seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	metadata, err := store.Open(store.DefaultConfig(cfg.SQLitePath))
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

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure graph constraints", zap.Error(err))
	}

	corpus := demoCorpus()

	// Same early-exit the ingest path uses: if the first demo document is
	// already stored, the corpus has been seeded before.
	if existing, err := metadata.DocumentByHash(ctx, store.HashContent(corpus[0].input.Content)); err == nil && !*force {
		log.Info("Demo data already seeded, skipping (use -force to recreate)",
			zap.String("document_id", existing.ID),
		)
		os.Exit(0)
	}

	if *force {
		wipeDemoData(ctx, log, repo, metadata, corpus)
	}

	manager := txn.NewManager(
		txn.NewGraphBranch(repo),
		txn.NewStoreBranch(metadata),
		metadata,
		txn.Config{
			MaxConcurrent: cfg.TxnMaxConcurrent,
			Timeout:       cfg.TxnTimeout(),
		},
	)
	// Apply never extracts, so no LLM adapter is wired in
	pipe := pipeline.New(nil, repo, metadata, manager)

	seeded, skipped := 0, 0
	for _, doc := range corpus {
		result, err := pipe.Apply(ctx, doc.input, &doc.extracted)
		if err != nil {
			log.Fatal("Failed to seed document",
				zap.String("source", doc.input.Source),
				zap.Error(err),
			)
		}
		if result.Skipped {
			skipped++
			continue
		}
		seeded++
		log.Info("Demo document seeded",
			zap.String("source", doc.input.Source),
			zap.String("txn_id", result.TxnID),
			zap.Int("entities", result.Entities),
			zap.Int("relationships", result.Relationships),
		)
	}

	entities, err := repo.CountEntities(ctx)
	if err != nil {
		log.Fatal("Failed to count entities", zap.Error(err))
	}
	relationships, err := repo.CountRelationships(ctx)
	if err != nil {
		log.Fatal("Failed to count relationships", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.Int("documents_seeded", seeded),
		zap.Int("documents_skipped", skipped),
		zap.Int64("graph_entities", entities),
		zap.Int64("graph_relationships", relationships),
	)
}

// wipeDemoData removes the corpus documents and every entity the corpus
// names. Entities merged from other ingests survive untouched.
func wipeDemoData(ctx context.Context, log *zap.Logger, repo *graph.Repository, metadata *store.Store, corpus []seedDocument) {
	log.Info("Removing existing demo data...")

	removedDocs, removedEntities := 0, 0
	for _, doc := range corpus {
		existing, err := metadata.DocumentByHash(ctx, store.HashContent(doc.input.Content))
		if err != nil {
			continue
		}
		if err := metadata.DeleteDocument(ctx, existing.ID); err != nil {
			log.Warn("Failed to delete demo document", zap.String("id", existing.ID), zap.Error(err))
			continue
		}
		removedDocs++
	}

	seen := map[string]bool{}
	for _, doc := range corpus {
		for _, e := range doc.extracted.Entities {
			canonical := extraction.CanonicalName(e.Name)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true

			existing, err := repo.FindEntityByName(ctx, canonical)
			var notFound *apperrors.ErrEntityNotFound
			if errors.As(err, &notFound) {
				continue
			}
			if err != nil {
				log.Warn("Failed to look up demo entity", zap.String("name", e.Name), zap.Error(err))
				continue
			}
			if err := repo.DeleteEntity(ctx, existing.ID); err != nil {
				log.Warn("Failed to delete demo entity", zap.String("name", e.Name), zap.Error(err))
				continue
			}
			removedEntities++
		}
	}

	log.Info("Demo data removed",
		zap.Int("documents", removedDocs),
		zap.Int("entities", removedEntities),
	)
}

// demoCorpus is a small connected corporate network: four documents, seven
// entities, enough structure for centrality and personality demos.
func demoCorpus() []seedDocument {
	return []seedDocument{
		{
			input: pipeline.Input{
				Source:  "seed/acquisition.txt",
				Title:   "Acme Robotics acquires Initech Systems",
				Content: "Acme Robotics acquired Initech Systems for $2.1 billion. Miriam Chen, chief executive of Acme Robotics, announced the deal at a press conference in Berlin.",
			},
			extracted: extraction.Result{
				Entities: []extraction.Entity{
					{Name: "Acme Robotics", Type: "ORG", Confidence: 0.98},
					{Name: "Initech Systems", Type: "ORG", Confidence: 0.97},
					{Name: "Miriam Chen", Type: "PERSON", Confidence: 0.96},
					{Name: "Berlin", Type: "LOCATION", Confidence: 0.92},
				},
				Relationships: []extraction.Relationship{
					{Source: "Acme Robotics", Target: "Initech Systems", Type: "ACQUIRED", Confidence: 0.95},
					{Source: "Miriam Chen", Target: "Acme Robotics", Type: "WORKS_FOR", Confidence: 0.94},
				},
			},
		},
		{
			input: pipeline.Input{
				Source:  "seed/supply.txt",
				Title:   "Initech Systems supplies Vantage Air",
				Content: "Initech Systems supplies navigation software to Vantage Air, the regional carrier that operates from Oslo.",
			},
			extracted: extraction.Result{
				Entities: []extraction.Entity{
					{Name: "Initech Systems", Type: "ORG", Confidence: 0.97},
					{Name: "Vantage Air", Type: "ORG", Confidence: 0.95},
					{Name: "Oslo", Type: "LOCATION", Confidence: 0.91},
				},
				Relationships: []extraction.Relationship{
					{Source: "Initech Systems", Target: "Vantage Air", Type: "SUPPLIES", Confidence: 0.93},
					{Source: "Vantage Air", Target: "Oslo", Type: "LOCATED_IN", Confidence: 0.9},
				},
			},
		},
		{
			input: pipeline.Input{
				Source:  "seed/board.txt",
				Title:   "Miriam Chen joins Meridian Institute board",
				Content: "Miriam Chen sits on the board of the Meridian Institute, a research group based in Berlin that studies autonomous systems.",
			},
			extracted: extraction.Result{
				Entities: []extraction.Entity{
					{Name: "Miriam Chen", Type: "PERSON", Confidence: 0.96},
					{Name: "Meridian Institute", Type: "ORG", Confidence: 0.94},
					{Name: "Berlin", Type: "LOCATION", Confidence: 0.92},
				},
				Relationships: []extraction.Relationship{
					{Source: "Miriam Chen", Target: "Meridian Institute", Type: "MEMBER_OF", Confidence: 0.92},
					{Source: "Meridian Institute", Target: "Berlin", Type: "LOCATED_IN", Confidence: 0.9},
				},
			},
		},
		{
			input: pipeline.Input{
				Source:  "seed/partnership.txt",
				Title:   "Vantage Air and Meridian Institute partner on research",
				Content: "Vantage Air partnered with the Meridian Institute on a three-year autonomous flight research program.",
			},
			extracted: extraction.Result{
				Entities: []extraction.Entity{
					{Name: "Vantage Air", Type: "ORG", Confidence: 0.95},
					{Name: "Meridian Institute", Type: "ORG", Confidence: 0.94},
				},
				Relationships: []extraction.Relationship{
					{Source: "Vantage Air", Target: "Meridian Institute", Type: "PARTNERED_WITH", Confidence: 0.91},
				},
			},
		},
	}
}
