package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"kgas/internal/analytics"
	"kgas/internal/deps"
	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/pipeline"
	"kgas/internal/schema"
	"kgas/internal/store"
	"kgas/internal/txn"
	"kgas/pkg/config"
	"kgas/pkg/logger"
)

// shutdownGrace is how long in-flight requests get to finish. Transactions
// hold both branches open, so this must cover the transaction timeout.
const shutdownGrace = 10 * time.Second

func main() {
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Re-initialize with the configured environment (JSON logs in production)
	if !cfg.IsDevelopment() {
		if err := logger.Init(cfg.Env); err != nil {
			log.Fatal("Failed to initialize logger", zap.Error(err))
		}
		log = logger.Get()
	}

	log.Info("Starting KGAS server",
		zap.String("env", cfg.Env),
		zap.String("neo4j_uri", cfg.Neo4jURI),
		zap.String("sqlite_path", cfg.SQLitePath),
	)

	// The metadata store lives on local disk: a failure here is a deployment
	// problem, not a dependency outage, so it is fatal on its own.
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

	// Probe every external dependency up front and refuse to boot if a
	// required one is missing. The LLM endpoint is optional at startup;
	// ingestion requests will fail individually if it stays down.
	validator := deps.NewValidator(
		deps.Neo4jCheck(driver),
		deps.StoreCheck(metadata),
		deps.LLMCheck(cfg.LiteLLMURL, false),
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
	engine := analytics.NewEngine(cfg.AnalyticsMaxIterations, cfg.AnalyticsDamping)
	registry := schema.NewRegistry(metadata)

	srv := &server{
		repo:      repo,
		documents: metadata,
		ingester:  pipe,
		txns:      manager,
		engine:    engine,
		schemas:   registry,
		validator: validator,
		logger:    log,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	srv.registerRoutes(router)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
