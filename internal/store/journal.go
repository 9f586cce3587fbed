package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	kgaserrors "kgas/pkg/errors"
)

// Journal states recorded by the distributed transaction manager. The store
// only persists them; the state machine lives in internal/txn.
const (
	JournalStateCommitted          = "committed"
	JournalStateRolledBack         = "rolled_back"
	JournalStatePartiallyCommitted = "partially_committed"
	JournalStateFailed             = "failed"
	JournalStateResolved           = "resolved"
)

// JournalEntry is one row of the transaction journal
type JournalEntry struct {
	ID        int64     `json:"id"`
	TxnID     string    `json:"txn_id"`
	State     string    `json:"state"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// JournalAppend records a transaction outcome. Partial commits MUST be
// journaled before the manager reports them, so this is the one store write
// that happens outside the distributed transaction itself.
func (s *Store) JournalAppend(ctx context.Context, txnID, state, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO txn_journal (txn_id, state, detail) VALUES (?, ?, ?)`,
		txnID, state, detail)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	if state == JournalStatePartiallyCommitted {
		s.logger.Warn("Partial commit journaled",
			zap.String("txn_id", txnID),
			zap.String("detail", detail),
		)
	}
	return nil
}

// JournalPartialCommits returns partial commits that have not been resolved
// yet, oldest first. These require manual recovery.
func (s *Store) JournalPartialCommits(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.txn_id, j.state, j.detail, j.created_at
		FROM txn_journal j
		WHERE j.state = ?
		  AND NOT EXISTS (
		    SELECT 1 FROM txn_journal r
		    WHERE r.txn_id = j.txn_id AND r.state = ?
		  )
		ORDER BY j.id`,
		JournalStatePartiallyCommitted, JournalStateResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to query partial commits: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.TxnID, &e.State, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return entries, nil
}

// JournalResolve marks a journaled partial commit as manually recovered.
// Resolving a transaction that was never journaled as partial is an error.
func (s *Store) JournalResolve(ctx context.Context, txnID, note string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM txn_journal WHERE txn_id = ? AND state = ?)`,
		txnID, JournalStatePartiallyCommitted).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}
	if !exists {
		return kgaserrors.NewTxnNotFound(txnID)
	}

	if err := s.JournalAppend(ctx, txnID, JournalStateResolved, note); err != nil {
		return err
	}

	s.logger.Info("Partial commit resolved",
		zap.String("txn_id", txnID),
		zap.String("note", note),
	)
	return nil
}

// JournalEntries returns every journal row for one transaction, oldest first
func (s *Store) JournalEntries(ctx context.Context, txnID string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, txn_id, state, detail, created_at
		FROM txn_journal WHERE txn_id = ? ORDER BY id`, txnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.TxnID, &e.State, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return entries, nil
}
