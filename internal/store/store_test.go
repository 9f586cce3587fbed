package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kgaserrors "kgas/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgas_test.db")
	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgas_test.db")

	s1, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening must re-run migrate without reapplying anything
	s2, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s2.Close()

	assert.NoError(t, s2.Ping(context.Background()))
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := Document{
		ID:          uuid.New().String(),
		Source:      "reports/q3.txt",
		Title:       "Q3 Report",
		Content:     "Acme Corp expanded operations in Berlin.",
		ContentHash: "hash-q3",
	}
	require.NoError(t, s.InsertDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Source, got.Source)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Content, got.Content)
	assert.False(t, got.IngestedAt.IsZero())

	byHash, err := s.DocumentByHash(ctx, "hash-q3")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byHash.ID)

	_, err = s.GetDocument(ctx, "no-such-doc")
	assert.True(t, kgaserrors.IsErrorType(err, kgaserrors.ErrorTypeStore))

	_, err = s.DocumentByHash(ctx, "no-such-hash")
	require.Error(t, err)

	n, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMentions_ForeignKeyEnforced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Mention without a document must be rejected
	err := s.InsertMention(ctx, Mention{
		ID:         uuid.New().String(),
		DocumentID: "missing-document",
		EntityID:   "entity-1",
		Surface:    "Acme",
	})
	require.Error(t, err)

	doc := Document{ID: uuid.New().String(), Source: "s", ContentHash: "h1"}
	require.NoError(t, s.InsertDocument(ctx, doc))

	for i, surface := range []string{"Acme Corp", "Berlin"} {
		require.NoError(t, s.InsertMention(ctx, Mention{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			EntityID:   "entity-" + surface,
			Surface:    surface,
			Offset:     i * 10,
			Confidence: 0.8,
		}))
	}

	mentions, err := s.MentionsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, mentions, 2)
	assert.Equal(t, "Acme Corp", mentions[0].Surface)
	assert.Equal(t, 10, mentions[1].Offset)
}

func TestDeleteDocument_CascadesMentions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := Document{ID: uuid.New().String(), Source: "s", ContentHash: "h-del"}
	require.NoError(t, s.InsertDocument(ctx, doc))
	require.NoError(t, s.InsertMention(ctx, Mention{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		EntityID:   "entity-1",
		Surface:    "Acme",
	}))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err := s.GetDocument(ctx, doc.ID)
	require.Error(t, err)

	mentions, err := s.MentionsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, mentions)

	err = s.DeleteDocument(ctx, doc.ID)
	assert.True(t, kgaserrors.IsErrorType(err, kgaserrors.ErrorTypeStore))
}

func TestDocumentsMentioning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entityID := "entity-acme"
	for i, hash := range []string{"h1", "h2"} {
		doc := Document{
			ID:          uuid.New().String(),
			Source:      "doc",
			Content:     "text " + hash,
			ContentHash: hash,
		}
		require.NoError(t, s.InsertDocument(ctx, doc))
		require.NoError(t, s.InsertMention(ctx, Mention{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			EntityID:   entityID,
			Surface:    "Acme",
			Offset:     i,
		}))
	}

	docs, err := s.DocumentsMentioning(ctx, entityID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.DocumentsMentioning(ctx, "entity-unknown")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestJournal_PartialCommitRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	committed := uuid.New().String()
	partial := uuid.New().String()

	require.NoError(t, s.JournalAppend(ctx, committed, JournalStateCommitted, "2 graph ops, 1 store op"))
	require.NoError(t, s.JournalAppend(ctx, partial, JournalStatePartiallyCommitted, "graph committed, store failed"))

	entries, err := s.JournalPartialCommits(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, partial, entries[0].TxnID)
	assert.Contains(t, entries[0].Detail, "store failed")

	// Resolving removes it from the pending list
	require.NoError(t, s.JournalResolve(ctx, partial, "store rows replayed by hand"))

	entries, err = s.JournalPartialCommits(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	history, err := s.JournalEntries(ctx, partial)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, JournalStatePartiallyCommitted, history[0].State)
	assert.Equal(t, JournalStateResolved, history[1].State)
}

func TestJournalResolve_UnknownTxn(t *testing.T) {
	s := openTestStore(t)

	err := s.JournalResolve(context.Background(), "no-such-txn", "note")
	require.Error(t, err)
	var notFound *kgaserrors.ErrTxnNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSchemaRegistryRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSchema(ctx, "intel", 1, "name: intel\nversion: 1"))
	require.NoError(t, s.InsertSchema(ctx, "intel", 2, "name: intel\nversion: 2"))

	// Duplicate (name, version) violates the primary key
	require.Error(t, s.InsertSchema(ctx, "intel", 2, "name: intel\nversion: 2"))

	latest, err := s.LatestSchema(ctx, "intel")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	v1, err := s.GetSchema(ctx, "intel", 1)
	require.NoError(t, err)
	assert.Contains(t, v1.Payload, "version: 1")

	_, err = s.GetSchema(ctx, "intel", 9)
	var notFound *kgaserrors.ErrSchemaNotFound
	assert.ErrorAs(t, err, &notFound)

	_, err = s.LatestSchema(ctx, "unknown")
	require.Error(t, err)

	all, err := s.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBeginTx_CommitAndRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Committed work is visible
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	stmt, args := InsertDocumentStatement(Document{ID: "tx-doc-1", Source: "s", ContentHash: "tx-h1"})
	_, err = tx.ExecContext(ctx, stmt, args...)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = s.GetDocument(ctx, "tx-doc-1")
	assert.NoError(t, err)

	// Rolled-back work is not
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	stmt, args = InsertDocumentStatement(Document{ID: "tx-doc-2", Source: "s", ContentHash: "tx-h2"})
	_, err = tx.ExecContext(ctx, stmt, args...)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.GetDocument(ctx, "tx-doc-2")
	assert.Error(t, err)
}
