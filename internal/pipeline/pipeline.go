package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/store"
	"kgas/internal/txn"
	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// Extractor produces entities and relationships from document text
type Extractor interface {
	Extract(ctx context.Context, document string) (*extraction.Result, error)
}

// EntityResolver looks up existing graph entities by canonical name so
// mentions reference the id the graph will keep after its MERGE.
type EntityResolver interface {
	FindEntityByName(ctx context.Context, canonicalName string) (*graph.Entity, error)
}

// DocumentLookup answers content-hash dedup queries against the store
type DocumentLookup interface {
	DocumentByHash(ctx context.Context, hash string) (*store.Document, error)
}

// Input is one document submitted for ingestion
type Input struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Result summarizes one ingestion
type Result struct {
	DocumentID    string `json:"document_id"`
	TxnID         string `json:"txn_id,omitempty"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Mentions      int    `json:"mentions"`
	Skipped       bool   `json:"skipped"`
}

// Pipeline turns documents into graph entities, relationships and mention
// provenance, written atomically across both stores by one distributed
// transaction.
type Pipeline struct {
	extractor Extractor
	resolver  EntityResolver
	documents DocumentLookup
	manager   *txn.Manager
	logger    *zap.Logger
}

// New creates an ingestion pipeline
func New(extractor Extractor, resolver EntityResolver, documents DocumentLookup, manager *txn.Manager) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		resolver:  resolver,
		documents: documents,
		manager:   manager,
		logger:    logger.Get(),
	}
}

// Ingest runs one document through dedup, extraction and the distributed
// write. Either the graph upserts, the document row and the mention rows
// all commit, or none of them do.
func (p *Pipeline) Ingest(ctx context.Context, input Input) (*Result, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("document content is empty")
	}

	existing, err := p.existingDocument(ctx, store.HashContent(input.Content))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.skip(existing, input), nil
	}

	extracted, err := p.extractor.Extract(ctx, input.Content)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, input, extracted)
}

// Apply persists an already-extracted result through the distributed
// transaction path. Ingest delegates here after extraction; tool chains
// that run extraction as their own step call it directly.
func (p *Pipeline) Apply(ctx context.Context, input Input, extracted *extraction.Result) (*Result, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("document content is empty")
	}

	hash := store.HashContent(input.Content)
	existing, err := p.existingDocument(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.skip(existing, input), nil
	}

	entityIDs, err := p.resolveEntityIDs(ctx, extracted.Entities)
	if err != nil {
		return nil, err
	}

	documentID := uuid.New().String()
	doc := store.Document{
		ID:          documentID,
		Source:      input.Source,
		Title:       input.Title,
		Content:     input.Content,
		ContentHash: hash,
		IngestedAt:  time.Now().UTC(),
	}

	t, err := p.manager.Begin(ctx)
	if err != nil {
		return nil, err
	}

	mentions := 0
	if err := p.enqueueOps(t, doc, extracted, entityIDs, &mentions); err != nil {
		if rbErr := t.Rollback(ctx); rbErr != nil {
			p.logger.Warn("Rollback after enqueue failure also failed", zap.Error(rbErr))
		}
		return nil, err
	}

	if err := t.Execute(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		DocumentID:    documentID,
		TxnID:         t.ID(),
		Entities:      len(extracted.Entities),
		Relationships: len(extracted.Relationships),
		Mentions:      mentions,
	}
	p.logger.Info("Document ingested",
		zap.String("document_id", documentID),
		zap.String("txn_id", t.ID()),
		zap.Int("entities", result.Entities),
		zap.Int("relationships", result.Relationships),
		zap.Int("mentions", result.Mentions),
	)
	return result, nil
}

// existingDocument resolves a content hash to the stored document, nil
// when nothing matches
func (p *Pipeline) existingDocument(ctx context.Context, hash string) (*store.Document, error) {
	existing, err := p.documents.DocumentByHash(ctx, hash)
	if err == nil {
		return existing, nil
	}
	var notFound *apperrors.ErrDocumentNotFound
	if errors.As(err, &notFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("failed to check for existing document: %w", err)
}

func (p *Pipeline) skip(existing *store.Document, input Input) *Result {
	p.logger.Info("Document already ingested, skipping",
		zap.String("document_id", existing.ID),
		zap.String("source", input.Source),
	)
	return &Result{DocumentID: existing.ID, Skipped: true}
}

// resolveEntityIDs maps each extracted entity name to the graph id it will
// have after the transaction commits. The graph MERGEs on canonical name
// and keeps the original id, so an entity that already exists must be
// referenced by that id, not a fresh one.
func (p *Pipeline) resolveEntityIDs(ctx context.Context, entities []extraction.Entity) (map[string]string, error) {
	ids := make(map[string]string, len(entities))
	for _, e := range entities {
		canonical := extraction.CanonicalName(e.Name)
		existing, err := p.resolver.FindEntityByName(ctx, canonical)
		if err == nil {
			ids[e.Name] = existing.ID
			continue
		}
		var notFound *apperrors.ErrEntityNotFound
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to resolve entity %q: %w", e.Name, err)
		}
		ids[e.Name] = uuid.New().String()
	}
	return ids, nil
}

func (p *Pipeline) enqueueOps(t *txn.Transaction, doc store.Document, extracted *extraction.Result, entityIDs map[string]string, mentions *int) error {
	for _, e := range extracted.Entities {
		stmt, params := graph.UpsertEntityStatement(graph.Entity{
			ID:            entityIDs[e.Name],
			Name:          e.Name,
			CanonicalName: extraction.CanonicalName(e.Name),
			Type:          e.Type,
			Confidence:    e.Confidence,
		})
		if err := t.Enqueue(txn.GraphOp(stmt, params)); err != nil {
			return err
		}
	}

	for _, r := range extracted.Relationships {
		sourceID, ok := entityIDs[r.Source]
		if !ok {
			return fmt.Errorf("relationship references unknown entity %q", r.Source)
		}
		targetID, ok := entityIDs[r.Target]
		if !ok {
			return fmt.Errorf("relationship references unknown entity %q", r.Target)
		}
		stmt, params := graph.CreateRelationshipStatement(graph.Relationship{
			ID:         uuid.New().String(),
			SourceID:   sourceID,
			TargetID:   targetID,
			Type:       r.Type,
			Confidence: r.Confidence,
		})
		if err := t.Enqueue(txn.GraphOp(stmt, params)); err != nil {
			return err
		}
	}

	stmt, args := store.InsertDocumentStatement(doc)
	if err := t.Enqueue(txn.StoreOp(stmt, args...)); err != nil {
		return err
	}

	for _, e := range extracted.Entities {
		stmt, args := store.InsertMentionStatement(store.Mention{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			EntityID:   entityIDs[e.Name],
			Surface:    e.Name,
			Offset:     locateSurface(doc.Content, e.Name),
			Confidence: e.Confidence,
		})
		if err := t.Enqueue(txn.StoreOp(stmt, args...)); err != nil {
			return err
		}
		*mentions++
	}
	return nil
}

// locateSurface finds the first case-insensitive occurrence of an entity
// name in the document. -1 means the model normalized the name into
// something that never literally appears.
func locateSurface(content, name string) int {
	return strings.Index(strings.ToLower(content), strings.ToLower(name))
}
