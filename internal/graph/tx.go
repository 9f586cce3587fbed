package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Tx wraps an explicit Neo4j transaction plus the session that owns it.
// The distributed transaction manager drives these directly: work is applied
// with Run and stays invisible to other sessions until Commit.
type Tx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

// BeginTx opens a write session and starts an explicit transaction on it
func (r *Repository) BeginTx(ctx context.Context) (*Tx, error) {
	session := r.writeSession(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("failed to begin graph transaction: %w", err)
	}

	return &Tx{session: session, tx: tx}, nil
}

// Run executes a Cypher statement inside the transaction
func (t *Tx) Run(ctx context.Context, cypher string, params map[string]interface{}) error {
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("failed to run statement in transaction: %w", err)
	}
	// Drain so any deferred server-side error surfaces here, not at commit
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("failed to consume statement result: %w", err)
	}
	return nil
}

// Commit commits the transaction and closes its session
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit graph transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction and closes its session
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)

	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back graph transaction: %w", err)
	}
	return nil
}
