package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	kgaserrors "kgas/pkg/errors"
)

// Document is a row in the documents table. Content is kept alongside the
// hash so analytics can read an entity's attributed texts back out.
type Document struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Mention links an entity in the graph to the document it was extracted from
type Mention struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	EntityID   string  `json:"entity_id"`
	Surface    string  `json:"surface"`
	Offset     int     `json:"offset"`
	Confidence float64 `json:"confidence"`
}

const (
	insertDocumentSQL = `INSERT INTO documents (id, source, title, content, content_hash, ingested_at) VALUES (?, ?, ?, ?, ?, ?)`
	insertMentionSQL  = `INSERT INTO mentions (id, document_id, entity_id, surface, "offset", confidence) VALUES (?, ?, ?, ?, ?, ?)`
)

// HashContent returns the hex SHA-256 of document content, the value kept
// in documents.content_hash for ingestion dedup.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// InsertDocumentStatement returns the insert statement and its arguments for
// use inside a distributed transaction's store branch. The direct
// InsertDocument method runs the same statement.
func InsertDocumentStatement(d Document) (string, []interface{}) {
	ingested := d.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}
	return insertDocumentSQL, []interface{}{d.ID, d.Source, d.Title, d.Content, d.ContentHash, ingested}
}

// InsertMentionStatement returns the insert statement and its arguments for
// use inside a distributed transaction's store branch.
func InsertMentionStatement(m Mention) (string, []interface{}) {
	return insertMentionSQL, []interface{}{m.ID, m.DocumentID, m.EntityID, m.Surface, m.Offset, m.Confidence}
}

// InsertDocument writes a document row
func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	stmt, args := InsertDocumentStatement(d)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// InsertMention writes a mention row. The referenced document must exist.
func (s *Store) InsertMention(ctx context.Context, m Mention) error {
	stmt, args := InsertMentionStatement(m)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to insert mention: %w", err)
	}
	return nil
}

// GetDocument fetches a document by id
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, content, content_hash, ingested_at
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kgaserrors.NewDocumentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// DocumentByHash fetches a document by content hash. Ingestion uses this to
// skip documents it has already seen.
func (s *Store) DocumentByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, content, content_hash, ingested_at
		FROM documents WHERE content_hash = ?`, hash)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, kgaserrors.NewDocumentNotFound(hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document row; its mentions cascade with it
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to verify document deletion: %w", err)
	}
	if affected == 0 {
		return kgaserrors.NewDocumentNotFound(id)
	}
	return nil
}

// MentionsForDocument returns all mentions extracted from one document
func (s *Store) MentionsForDocument(ctx context.Context, documentID string) ([]Mention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, entity_id, surface, "offset", confidence
		FROM mentions WHERE document_id = ? ORDER BY "offset"`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mentions: %w", err)
	}
	defer rows.Close()

	var mentions []Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.EntityID, &m.Surface, &m.Offset, &m.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		mentions = append(mentions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mentions: %w", err)
	}
	return mentions, nil
}

// DocumentsMentioning returns the documents an entity appears in, newest
// first. Personality profiling reads its input texts from here.
func (s *Store) DocumentsMentioning(ctx context.Context, entityID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT d.id, d.source, d.title, d.content, d.content_hash, d.ingested_at
		FROM documents d
		JOIN mentions m ON m.document_id = d.id
		WHERE m.entity_id = ?
		ORDER BY d.ingested_at DESC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents mentioning entity: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Source, &d.Title, &d.Content, &d.ContentHash, &d.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// CountDocuments returns the number of ingested documents
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.Source, &d.Title, &d.Content, &d.ContentHash, &d.IngestedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
