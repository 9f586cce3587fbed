package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kgas/internal/analytics"
	"kgas/internal/deps"
	"kgas/internal/evidence"
	"kgas/internal/graph"
	"kgas/internal/pipeline"
	"kgas/internal/schema"
	"kgas/internal/store"
	apperrors "kgas/pkg/errors"
)

// graphReader is the slice of the graph repository the handlers need
type graphReader interface {
	GetEntity(ctx context.Context, entityID string) (*graph.Entity, error)
	GetNeighbors(ctx context.Context, entityID string, depth int) ([]graph.Neighbor, error)
	LoadSnapshot(ctx context.Context, entityType string) (*graph.Snapshot, error)
}

// documentReader serves document and mention lookups from the metadata store
type documentReader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	MentionsForDocument(ctx context.Context, documentID string) ([]store.Mention, error)
	DocumentsMentioning(ctx context.Context, entityID string) ([]store.Document, error)
}

// ingester runs a document through extraction and the two-branch commit
type ingester interface {
	Ingest(ctx context.Context, input pipeline.Input) (*pipeline.Result, error)
}

// txnAdmin exposes the manual recovery surface of the transaction manager
type txnAdmin interface {
	PartialCommits(ctx context.Context) ([]store.JournalEntry, error)
	Resolve(ctx context.Context, txnID, note string) error
}

type server struct {
	repo      graphReader
	documents documentReader
	ingester  ingester
	txns      txnAdmin
	engine    *analytics.Engine
	schemas   *schema.Registry
	validator *deps.Validator
	logger    *zap.Logger
}

func (s *server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/system/dependencies", s.dependencyReport)

		api.POST("/documents", s.ingestDocument)
		api.GET("/documents/:id", s.getDocument)

		api.GET("/entities/:id", s.getEntity)
		api.GET("/entities/:id/neighbors", s.getNeighbors)

		api.POST("/analytics/centrality", s.centrality)
		api.POST("/analytics/personality", s.personality)

		api.POST("/evidence/score", s.scoreEvidence)

		api.POST("/schemas", s.registerSchema)
		api.GET("/schemas", s.listSchemas)
		api.GET("/schemas/:name/:version", s.getSchema)
		api.POST("/schemas/:name/check", s.checkSchema)

		api.GET("/transactions/partial", s.partialCommits)
		api.POST("/transactions/:id/resolve", s.resolveTransaction)
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dependencyReport probes every registered dependency and reports 503 when a
// required one is down, so load balancers can pull the instance.
func (s *server) dependencyReport(c *gin.Context) {
	results := s.validator.Report(c.Request.Context())

	healthy := true
	for _, r := range results {
		if r.Required && !r.Available {
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "dependencies": results})
}

type ingestRequest struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// ingestDocument returns 201 for a fresh document and 200 when the content
// hash matched an earlier ingest and the pipeline skipped it.
func (s *server) ingestDocument(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.ingester.Ingest(c.Request.Context(), pipeline.Input{
		Source:  req.Source,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *server) getDocument(c *gin.Context) {
	ctx := c.Request.Context()

	doc, err := s.documents.GetDocument(ctx, c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	mentions, err := s.documents.MentionsForDocument(ctx, doc.ID)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": doc, "mentions": mentions})
}

func (s *server) getEntity(c *gin.Context) {
	entity, err := s.repo.GetEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// getNeighbors checks the entity exists before traversing: an unknown id
// would otherwise come back as an empty neighborhood instead of a 404.
func (s *server) getNeighbors(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	depth := 1
	if raw := c.Query("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be an integer"})
			return
		}
		depth = parsed
	}

	if _, err := s.repo.GetEntity(ctx, id); err != nil {
		s.renderError(c, err)
		return
	}
	neighbors, err := s.repo.GetNeighbors(ctx, id, depth)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity_id": id,
		"depth":     depth,
		"neighbors": neighbors,
	})
}

type centralityRequest struct {
	EntityType string `json:"entity_type"`
	TopN       int    `json:"top_n"`
}

func (s *server) centrality(c *gin.Context) {
	var req centralityRequest
	// An empty body means the whole graph with no ranking cut
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.TopN < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_n must not be negative"})
		return
	}

	ctx := c.Request.Context()
	snapshot, err := s.repo.LoadSnapshot(ctx, req.EntityType)
	if err != nil {
		s.renderError(c, err)
		return
	}
	result, err := s.engine.Suite(ctx, snapshot)
	if err != nil {
		s.renderError(c, err)
		return
	}

	response := gin.H{
		"nodes":   result.Nodes,
		"edges":   result.Edges,
		"scores":  result.Scores,
		"stats":   result.Stats,
		"elapsed": result.Elapsed.String(),
	}
	if req.TopN > 0 {
		top := make(map[analytics.Measure][]analytics.Ranked, len(analytics.AllMeasures()))
		for _, m := range analytics.AllMeasures() {
			top[m] = result.TopN(m, req.TopN)
		}
		response["top"] = top
	}
	c.JSON(http.StatusOK, response)
}

type personalityRequest struct {
	EntityID string `json:"entity_id" binding:"required"`
}

// personality profiles an entity from the text of every document that
// mentions it. An entity nobody has written about still gets a profile;
// it just sits at the neutral midpoint with zero confidence.
func (s *server) personality(c *gin.Context) {
	var req personalityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.GetEntity(ctx, req.EntityID); err != nil {
		s.renderError(c, err)
		return
	}

	docs, err := s.documents.DocumentsMentioning(ctx, req.EntityID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
	}

	c.JSON(http.StatusOK, analytics.ProfilePersonality(req.EntityID, texts))
}

func (s *server) scoreEvidence(c *gin.Context) {
	var matrix evidence.Matrix
	if err := c.ShouldBindJSON(&matrix); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := matrix.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matrix.Evaluate())
}

// registerSchema takes the schema as raw YAML, the format analysts author
// them in, rather than wrapping it in a JSON envelope.
func (s *server) registerSchema(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a YAML schema"})
		return
	}

	parsed, err := schema.Parse(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.schemas.Register(c.Request.Context(), parsed); err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"name": parsed.Name, "version": parsed.Version})
}

func (s *server) listSchemas(c *gin.Context) {
	rows, err := s.schemas.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schemas": rows, "count": len(rows)})
}

func (s *server) getSchema(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
		return
	}

	parsed, err := s.schemas.Get(c.Request.Context(), c.Param("name"), version)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, parsed)
}

// checkSchema dry-runs compatibility against the latest registered version
// without registering anything.
func (s *server) checkSchema(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a YAML schema"})
		return
	}

	parsed, err := schema.Parse(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if name := c.Param("name"); parsed.Name != name {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "schema name " + strconv.Quote(parsed.Name) + " does not match route " + strconv.Quote(name),
		})
		return
	}

	result, err := s.schemas.CheckAgainstLatest(c.Request.Context(), parsed)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *server) partialCommits(c *gin.Context) {
	entries, err := s.txns.PartialCommits(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partial_commits": entries, "count": len(entries)})
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (s *server) resolveTransaction(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Note == "" {
		req.Note = "resolved via API"
	}

	txnID := c.Param("id")
	if err := s.txns.Resolve(c.Request.Context(), txnID, req.Note); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txn_id": txnID, "status": "resolved"})
}

// renderError maps domain errors onto HTTP statuses: unknown ids are 404,
// a schema version racing an equal or newer one is 409, an exhausted
// transaction pool is 429, and a partial commit is a 500 that names the
// transaction so an operator can resolve it.
func (s *server) renderError(c *gin.Context, err error) {
	var (
		entityNotFound   *apperrors.ErrEntityNotFound
		documentNotFound *apperrors.ErrDocumentNotFound
		schemaNotFound   *apperrors.ErrSchemaNotFound
		txnNotFound      *apperrors.ErrTxnNotFound
		versionConflict  *apperrors.ErrSchemaVersionConflict
		poolExhausted    *apperrors.ErrTxnPoolExhausted
		partialCommit    *apperrors.ErrTxnPartialCommit
	)

	switch {
	case errors.As(err, &entityNotFound),
		errors.As(err, &documentNotFound),
		errors.As(err, &schemaNotFound),
		errors.As(err, &txnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &versionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &poolExhausted):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &partialCommit):
		s.logger.Error("Request ended in a partial commit",
			zap.String("txn_id", partialCommit.TxnID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "transaction partially committed; manual recovery required",
			"txn_id": partialCommit.TxnID,
		})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
