package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kgas/internal/graph"
	"kgas/internal/store"
)

// Branch is one participant in a distributed transaction
type Branch interface {
	// Name identifies the branch in journals and errors ("graph", "store")
	Name() string
	// Begin opens a branch transaction
	Begin(ctx context.Context) (BranchTx, error)
}

// BranchTx is an open branch transaction. Applied work stays invisible to
// other sessions until Commit.
type BranchTx interface {
	Apply(ctx context.Context, op Operation) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GraphBranch adapts the Neo4j repository to the Branch interface
type GraphBranch struct {
	repo *graph.Repository
}

// NewGraphBranch wraps a graph repository as a transaction branch
func NewGraphBranch(repo *graph.Repository) *GraphBranch {
	return &GraphBranch{repo: repo}
}

// Name implements Branch
func (b *GraphBranch) Name() string { return string(TargetGraph) }

// Begin implements Branch
func (b *GraphBranch) Begin(ctx context.Context) (BranchTx, error) {
	tx, err := b.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &graphBranchTx{tx: tx}, nil
}

type graphBranchTx struct {
	tx *graph.Tx
}

func (t *graphBranchTx) Apply(ctx context.Context, op Operation) error {
	if err := t.tx.Run(ctx, op.Statement, op.Params); err != nil {
		return fmt.Errorf("graph op %s: %w", op.ID, err)
	}
	return nil
}

func (t *graphBranchTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *graphBranchTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// StoreBranch adapts the SQLite metadata store to the Branch interface
type StoreBranch struct {
	store *store.Store
}

// NewStoreBranch wraps the metadata store as a transaction branch
func NewStoreBranch(s *store.Store) *StoreBranch {
	return &StoreBranch{store: s}
}

// Name implements Branch
func (b *StoreBranch) Name() string { return string(TargetStore) }

// Begin implements Branch
func (b *StoreBranch) Begin(ctx context.Context) (BranchTx, error) {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &storeBranchTx{tx: tx}, nil
}

type storeBranchTx struct {
	tx *sql.Tx
}

func (t *storeBranchTx) Apply(ctx context.Context, op Operation) error {
	if _, err := t.tx.ExecContext(ctx, op.Statement, op.Args...); err != nil {
		return fmt.Errorf("store op %s: %w", op.ID, err)
	}
	return nil
}

func (t *storeBranchTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store transaction: %w", err)
	}
	return nil
}

func (t *storeBranchTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back store transaction: %w", err)
	}
	return nil
}
