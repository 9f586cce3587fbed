package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgas/internal/extraction"
	"kgas/internal/graph"
	"kgas/internal/store"
	"kgas/internal/txn"
	apperrors "kgas/pkg/errors"
)

type fakeExtractor struct {
	result *extraction.Result
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, document string) (*extraction.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeResolver struct {
	known map[string]*graph.Entity // keyed by canonical name
}

func (f *fakeResolver) FindEntityByName(ctx context.Context, canonicalName string) (*graph.Entity, error) {
	if e, ok := f.known[canonicalName]; ok {
		return e, nil
	}
	return nil, apperrors.NewEntityNotFound(canonicalName)
}

type fakeDocs struct {
	byHash map[string]*store.Document
}

func (f *fakeDocs) DocumentByHash(ctx context.Context, hash string) (*store.Document, error) {
	if d, ok := f.byHash[hash]; ok {
		return d, nil
	}
	return nil, apperrors.NewDocumentNotFound(hash)
}

// captureBranch records operations, publishing them only on commit so
// tests observe transactional visibility.
type captureBranch struct {
	name      string
	beginErr  error
	commitErr error
	committed []txn.Operation
}

func (b *captureBranch) Name() string { return b.name }

func (b *captureBranch) Begin(ctx context.Context) (txn.BranchTx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &captureTx{branch: b}, nil
}

type captureTx struct {
	branch *captureBranch
	staged []txn.Operation
}

func (tx *captureTx) Apply(ctx context.Context, op txn.Operation) error {
	tx.staged = append(tx.staged, op)
	return nil
}

func (tx *captureTx) Commit(ctx context.Context) error {
	if tx.branch.commitErr != nil {
		return tx.branch.commitErr
	}
	tx.branch.committed = append(tx.branch.committed, tx.staged...)
	return nil
}

func (tx *captureTx) Rollback(ctx context.Context) error {
	tx.staged = nil
	return nil
}

type fixture struct {
	pipeline  *Pipeline
	extractor *fakeExtractor
	resolver  *fakeResolver
	docs      *fakeDocs
	graphOps  *captureBranch
	storeOps  *captureBranch
}

func newFixture(t *testing.T, extracted *extraction.Result) *fixture {
	t.Helper()
	f := &fixture{
		extractor: &fakeExtractor{result: extracted},
		resolver:  &fakeResolver{known: map[string]*graph.Entity{}},
		docs:      &fakeDocs{byHash: map[string]*store.Document{}},
		graphOps:  &captureBranch{name: "graph"},
		storeOps:  &captureBranch{name: "store"},
	}
	manager := txn.NewManager(f.graphOps, f.storeOps, nil, txn.Config{
		MaxConcurrent: 2,
		Timeout:       2 * time.Second,
	})
	f.pipeline = New(f.extractor, f.resolver, f.docs, manager)
	return f
}

func twoEntityResult() *extraction.Result {
	return &extraction.Result{
		Entities: []extraction.Entity{
			{Name: "Jane Smith", Type: "PERSON", Confidence: 0.95},
			{Name: "Acme Corp", Type: "ORGANIZATION", Confidence: 0.9},
		},
		Relationships: []extraction.Relationship{
			{Source: "Jane Smith", Target: "Acme Corp", Type: "WORKS_FOR", Confidence: 0.85},
		},
	}
}

func TestIngest_WritesBothBranchesAtomically(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	content := "Jane Smith runs Acme Corp."

	result, err := f.pipeline.Ingest(context.Background(), Input{
		Source:  "test.txt",
		Title:   "test",
		Content: content,
	})
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.NotEmpty(t, result.DocumentID)
	assert.NotEmpty(t, result.TxnID)
	assert.Equal(t, 2, result.Entities)
	assert.Equal(t, 1, result.Relationships)
	assert.Equal(t, 2, result.Mentions)

	// 2 upserts + 1 relationship on the graph branch
	require.Len(t, f.graphOps.committed, 3)
	// 1 document + 2 mentions on the store branch
	require.Len(t, f.storeOps.committed, 3)

	upsert := f.graphOps.committed[0]
	assert.Equal(t, txn.TargetGraph, upsert.Target)
	assert.Equal(t, "jane smith", upsert.Params["canonical"])

	rel := f.graphOps.committed[2]
	assert.Equal(t, f.graphOps.committed[0].Params["id"], rel.Params["source_id"])
	assert.Equal(t, f.graphOps.committed[1].Params["id"], rel.Params["target_id"])

	docRow := f.storeOps.committed[0]
	assert.Equal(t, txn.TargetStore, docRow.Target)
	require.Len(t, docRow.Args, 6)
	assert.Equal(t, result.DocumentID, docRow.Args[0])
	assert.Equal(t, store.HashContent(content), docRow.Args[4])

	mention := f.storeOps.committed[1]
	require.Len(t, mention.Args, 6)
	assert.Equal(t, result.DocumentID, mention.Args[1])
	assert.Equal(t, upsert.Params["id"], mention.Args[2])
	assert.Equal(t, "Jane Smith", mention.Args[3])
	assert.Equal(t, 0, mention.Args[4])
}

func TestIngest_SkipsAlreadyIngestedContent(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	content := "already seen"
	f.docs.byHash[store.HashContent(content)] = &store.Document{ID: "doc-1", ContentHash: store.HashContent(content)}

	result, err := f.pipeline.Ingest(context.Background(), Input{Source: "again.txt", Content: content})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Zero(t, f.extractor.calls, "extraction must not run for duplicates")
	assert.Empty(t, f.graphOps.committed)
	assert.Empty(t, f.storeOps.committed)
}

func TestIngest_ReusesExistingEntityIDs(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	f.resolver.known["acme corp"] = &graph.Entity{
		ID:            "existing-acme",
		Name:          "Acme Corp",
		CanonicalName: "acme corp",
	}

	result, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "Jane Smith joined Acme Corp."})
	require.NoError(t, err)
	require.Len(t, f.graphOps.committed, 3)

	acmeUpsert := f.graphOps.committed[1]
	assert.Equal(t, "existing-acme", acmeUpsert.Params["id"])

	rel := f.graphOps.committed[2]
	assert.Equal(t, "existing-acme", rel.Params["target_id"])

	acmeMention := f.storeOps.committed[2]
	assert.Equal(t, "existing-acme", acmeMention.Args[2])
	assert.Equal(t, result.DocumentID, acmeMention.Args[1])
}

func TestIngest_EmptyContentRejected(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	_, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "  \n "})
	require.Error(t, err)
	assert.Zero(t, f.extractor.calls)
}

func TestIngest_ExtractionFailurePropagates(t *testing.T) {
	f := newFixture(t, nil)
	f.extractor.err = apperrors.NewExtractionFailed("test-model", 3, true, errors.New("boom"))

	_, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "some text"})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeExtraction))
	assert.Empty(t, f.graphOps.committed)
	assert.Empty(t, f.storeOps.committed)
}

func TestIngest_GraphFailureLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	f.graphOps.beginErr = errors.New("neo4j down")

	_, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "some text"})
	require.Error(t, err)
	assert.Empty(t, f.storeOps.committed, "store branch must not commit when the graph branch fails")

	// The slot must be back: the next ingest succeeds once the graph recovers
	f.graphOps.beginErr = nil
	_, err = f.pipeline.Ingest(context.Background(), Input{Source: "t2.txt", Content: "other text"})
	require.NoError(t, err)
}

func TestIngest_StoreCommitFailureReportsPartialCommit(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	f.storeOps.commitErr = errors.New("disk full")

	_, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "some text"})
	require.Error(t, err)

	var partial *apperrors.ErrTxnPartialCommit
	require.True(t, errors.As(err, &partial))
	assert.Len(t, f.graphOps.committed, 3, "graph branch committed before the store failed")
}

func TestIngest_RelationshipWithUnknownEndpointRejected(t *testing.T) {
	f := newFixture(t, &extraction.Result{
		Entities: []extraction.Entity{
			{Name: "Jane Smith", Type: "PERSON", Confidence: 0.9},
		},
		Relationships: []extraction.Relationship{
			{Source: "Jane Smith", Target: "Ghost Corp", Type: "WORKS_FOR", Confidence: 0.9},
		},
	})

	_, err := f.pipeline.Ingest(context.Background(), Input{Source: "t.txt", Content: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost Corp")
	assert.Empty(t, f.graphOps.committed)

	// Enqueue failure released the slot; the pipeline still works
	f.extractor.result = twoEntityResult()
	_, err = f.pipeline.Ingest(context.Background(), Input{Source: "t2.txt", Content: "fresh text"})
	require.NoError(t, err)
}

func TestLocateSurface(t *testing.T) {
	assert.Equal(t, 0, locateSurface("Jane Smith works here", "jane smith"))
	assert.Equal(t, 5, locateSurface("meet JANE at noon", "Jane"))
	assert.Equal(t, -1, locateSurface("no such name", "Jane Smith"))
}

func TestIngest_ManyDocumentsSequentially(t *testing.T) {
	f := newFixture(t, twoEntityResult())
	for i := 0; i < 5; i++ {
		_, err := f.pipeline.Ingest(context.Background(), Input{
			Source:  "batch.txt",
			Content: fmt.Sprintf("document body %d", i),
		})
		require.NoError(t, err)
	}
	assert.Len(t, f.storeOps.committed, 15)
}
