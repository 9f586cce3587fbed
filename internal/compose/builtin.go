package compose

import (
	"context"
	"fmt"

	"kgas/internal/analytics"
	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/pipeline"
)

// Document is the payload produced by load_document and consumed by
// extract_graph
type Document struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// ExtractedDocument pairs a document with what the model pulled out of
// it, so the apply step can write provenance alongside the graph
type ExtractedDocument struct {
	Document Document
	Result   *extraction.Result
}

// Applier persists an extracted document atomically across both stores
type Applier interface {
	Apply(ctx context.Context, input pipeline.Input, extracted *extraction.Result) (*pipeline.Result, error)
}

// SnapshotSource reads the graph back out for analysis
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, entityType string) (*graph.Snapshot, error)
}

// LoadDocumentTool reads a file from disk into a document payload.
// HTML is stripped to text; anything else is read verbatim.
type LoadDocumentTool struct{}

func (LoadDocumentTool) Name() string     { return "load_document" }
func (LoadDocumentTool) Input() DataKind  { return KindPath }
func (LoadDocumentTool) Output() DataKind { return KindDocument }

func (LoadDocumentTool) Run(ctx context.Context, payload Payload) (Payload, error) {
	path, ok := payload.Value.(string)
	if !ok {
		return Payload{}, fmt.Errorf("path payload must be a string, got %T", payload.Value)
	}
	doc, err := extraction.LoadDocument(path)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Kind:  KindDocument,
		Value: Document{Source: path, Title: doc.Title, Text: doc.Text},
	}, nil
}

// ExtractGraphTool runs entity and relationship extraction over a document
type ExtractGraphTool struct {
	extractor pipeline.Extractor
}

// NewExtractGraphTool wraps an extractor as a chain step
func NewExtractGraphTool(extractor pipeline.Extractor) *ExtractGraphTool {
	return &ExtractGraphTool{extractor: extractor}
}

func (t *ExtractGraphTool) Name() string     { return "extract_graph" }
func (t *ExtractGraphTool) Input() DataKind  { return KindDocument }
func (t *ExtractGraphTool) Output() DataKind { return KindExtraction }

func (t *ExtractGraphTool) Run(ctx context.Context, payload Payload) (Payload, error) {
	doc, ok := payload.Value.(Document)
	if !ok {
		return Payload{}, fmt.Errorf("document payload must be a compose.Document, got %T", payload.Value)
	}
	result, err := t.extractor.Extract(ctx, doc.Text)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Kind:  KindExtraction,
		Value: ExtractedDocument{Document: doc, Result: result},
	}, nil
}

// ApplyGraphTool writes an extraction to both stores through one
// distributed transaction
type ApplyGraphTool struct {
	applier Applier
}

// NewApplyGraphTool wraps the ingestion pipeline's apply path as a
// chain step
func NewApplyGraphTool(applier Applier) *ApplyGraphTool {
	return &ApplyGraphTool{applier: applier}
}

func (t *ApplyGraphTool) Name() string     { return "apply_graph" }
func (t *ApplyGraphTool) Input() DataKind  { return KindExtraction }
func (t *ApplyGraphTool) Output() DataKind { return KindGraphOps }

func (t *ApplyGraphTool) Run(ctx context.Context, payload Payload) (Payload, error) {
	extracted, ok := payload.Value.(ExtractedDocument)
	if !ok {
		return Payload{}, fmt.Errorf("extraction payload must be a compose.ExtractedDocument, got %T", payload.Value)
	}
	input := pipeline.Input{
		Source:  extracted.Document.Source,
		Title:   extracted.Document.Title,
		Content: extracted.Document.Text,
	}
	result, err := t.applier.Apply(ctx, input, extracted.Result)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindGraphOps, Value: result}, nil
}

// SnapshotGraphTool reads the graph back out after a write so analysis
// steps see the applied state. EntityType restricts the snapshot; empty
// means everything.
type SnapshotGraphTool struct {
	source     SnapshotSource
	EntityType string
}

// NewSnapshotGraphTool wraps a snapshot source as a chain step
func NewSnapshotGraphTool(source SnapshotSource) *SnapshotGraphTool {
	return &SnapshotGraphTool{source: source}
}

func (t *SnapshotGraphTool) Name() string     { return "snapshot_graph" }
func (t *SnapshotGraphTool) Input() DataKind  { return KindGraphOps }
func (t *SnapshotGraphTool) Output() DataKind { return KindSnapshot }

func (t *SnapshotGraphTool) Run(ctx context.Context, payload Payload) (Payload, error) {
	snapshot, err := t.source.LoadSnapshot(ctx, t.EntityType)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindSnapshot, Value: snapshot}, nil
}

// CentralityTool scores a snapshot with the full centrality suite
type CentralityTool struct {
	engine *analytics.Engine
}

// NewCentralityTool wraps an analytics engine as a chain step
func NewCentralityTool(engine *analytics.Engine) *CentralityTool {
	return &CentralityTool{engine: engine}
}

func (t *CentralityTool) Name() string     { return "centrality" }
func (t *CentralityTool) Input() DataKind  { return KindSnapshot }
func (t *CentralityTool) Output() DataKind { return KindScores }

func (t *CentralityTool) Run(ctx context.Context, payload Payload) (Payload, error) {
	snapshot, ok := payload.Value.(*graph.Snapshot)
	if !ok {
		return Payload{}, fmt.Errorf("snapshot payload must be a *graph.Snapshot, got %T", payload.Value)
	}
	result, err := t.engine.Suite(ctx, snapshot)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindScores, Value: result}, nil
}

// BuiltinRegistry registers the standard document-to-scores tools
func BuiltinRegistry(extractor pipeline.Extractor, applier Applier, source SnapshotSource, engine *analytics.Engine) (*Registry, error) {
	registry := NewRegistry()
	tools := []Tool{
		LoadDocumentTool{},
		NewExtractGraphTool(extractor),
		NewApplyGraphTool(applier),
		NewSnapshotGraphTool(source),
		NewCentralityTool(engine),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// IngestChain is the standard end-to-end composition: a file path in,
// centrality scores over the updated graph out
func IngestChain(registry *Registry) (*Chain, error) {
	return registry.Chain("load_document", "extract_graph", "apply_graph", "snapshot_graph", "centrality")
}
