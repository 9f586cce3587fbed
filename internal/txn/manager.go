package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"kgas/internal/store"
	kgaserrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// Journal records transaction outcomes for recovery. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Journal interface {
	JournalAppend(ctx context.Context, txnID, state, detail string) error
	JournalPartialCommits(ctx context.Context) ([]store.JournalEntry, error)
	JournalResolve(ctx context.Context, txnID, note string) error
}

// Hooks are fault-injection points for chaos testing. A nil hook is a no-op.
// Errors returned from BeforePrepare and BeforeCommit surface as ordinary
// branch failures at that point. An AfterCommit error on the graph branch
// simulates a crash in the window between the two commits; an AfterCommit
// error on the store branch fires after the final commit, when the
// transaction is already durable, and is logged only.
type Hooks struct {
	BeforePrepare func(target string) error
	BeforeCommit  func(target string) error
	AfterCommit   func(target string) error
}

func runHook(hook func(string) error, target Target) error {
	if hook == nil {
		return nil
	}
	return hook(string(target))
}

// Config holds transaction manager settings
type Config struct {
	// MaxConcurrent bounds the number of transactions in flight
	MaxConcurrent int
	// Timeout bounds slot acquisition and, when the caller's context has no
	// deadline, the whole Execute
	Timeout time.Duration
	// Hooks inject faults for chaos tests; zero value means none
	Hooks Hooks
}

// Manager coordinates two-phase commits across the graph and store branches.
// Commit order is fixed graph-first, so the partial-commit window is
// one-sided: the only unrecoverable outcome is "graph committed, store did
// not", and every such outcome is journaled before Execute returns.
type Manager struct {
	graph   Branch
	store   Branch
	journal Journal
	slots   *semaphore.Weighted
	timeout time.Duration
	hooks   Hooks
	logger  *zap.Logger
}

// NewManager creates a distributed transaction manager over two branches
func NewManager(graphBranch, storeBranch Branch, journal Journal, cfg Config) *Manager {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Manager{
		graph:   graphBranch,
		store:   storeBranch,
		journal: journal,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout: cfg.Timeout,
		hooks:   cfg.Hooks,
		logger:  logger.Get(),
	}
}

// Begin acquires a transaction slot and returns a pending transaction.
// When all slots are held, Begin waits up to the configured timeout and then
// returns ErrTxnPoolExhausted; the manager stays usable.
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.slots.Acquire(acquireCtx, 1); err != nil {
		return nil, kgaserrors.NewTxnPoolExhausted("transaction slots", m.timeout, err)
	}

	t := &Transaction{
		id:    uuid.New().String(),
		mgr:   m,
		state: StatePending,
	}
	m.logger.Debug("Transaction begun", zap.String("txn_id", t.id))
	return t, nil
}

// PartialCommits returns journaled partial commits awaiting manual recovery
func (m *Manager) PartialCommits(ctx context.Context) ([]store.JournalEntry, error) {
	return m.journal.JournalPartialCommits(ctx)
}

// Resolve marks a journaled partial commit as manually recovered
func (m *Manager) Resolve(ctx context.Context, txnID, note string) error {
	return m.journal.JournalResolve(ctx, txnID, note)
}

// Transaction is a unit of work applied atomically across both branches
type Transaction struct {
	id  string
	mgr *Manager

	mu       sync.Mutex
	state    State
	ops      []Operation
	released bool
}

// ID returns the transaction id
func (t *Transaction) ID() string { return t.id }

// State returns the current lifecycle state
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Enqueue adds an operation. Only pending transactions accept operations.
func (t *Transaction) Enqueue(op Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return fmt.Errorf("cannot enqueue operation: transaction %s is %s", t.id, t.state)
	}
	t.ops = append(t.ops, op)
	return nil
}

// Rollback aborts a transaction that has not started executing. Rolling back
// a terminal transaction is a no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return nil
	}
	if t.state != StatePending && t.state != StatePrepared {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cannot roll back transaction %s in state %s", t.id, state)
	}
	t.state = StateRolledBack
	t.mu.Unlock()

	t.release()
	t.journal(ctx, store.JournalStateRolledBack, "explicit rollback")
	t.mgr.logger.Info("Transaction rolled back", zap.String("txn_id", t.id))
	return nil
}

// Execute runs the full two-phase commit: apply every operation to its
// branch, then commit graph first and store second. Whatever happens, the
// transaction lands in exactly one terminal state and its slot is released.
func (t *Transaction) Execute(ctx context.Context) error {
	defer t.release()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.mgr.timeout)
		defer cancel()
	}

	if err := t.transition(StatePreparing); err != nil {
		return err
	}

	graphOps, storeOps := splitOps(t.opsSnapshot())

	graphTx, storeTx, err := t.prepare(ctx, graphOps, storeOps)
	if err != nil {
		return t.abort(ctx, graphTx, storeTx, "prepare", err)
	}

	if err := t.transition(StatePrepared); err != nil {
		return t.abort(ctx, graphTx, storeTx, "prepare", err)
	}
	if err := t.transition(StateCommitting); err != nil {
		return t.abort(ctx, graphTx, storeTx, "commit", err)
	}

	return t.commit(ctx, graphTx, storeTx, len(graphOps), len(storeOps))
}

// prepare opens both branch transactions and applies each operation to its
// branch. Either returned BranchTx may be non-nil on error and must be
// rolled back by the caller.
func (t *Transaction) prepare(ctx context.Context, graphOps, storeOps []Operation) (BranchTx, BranchTx, error) {
	var graphTx, storeTx BranchTx

	if err := runHook(t.mgr.hooks.BeforePrepare, TargetGraph); err != nil {
		return nil, nil, fmt.Errorf("graph prepare: %w", err)
	}
	graphTx, err := t.mgr.graph.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("graph begin: %w", err)
	}
	for _, op := range graphOps {
		if err := graphTx.Apply(ctx, op); err != nil {
			return graphTx, nil, fmt.Errorf("graph apply: %w", err)
		}
	}

	if err := runHook(t.mgr.hooks.BeforePrepare, TargetStore); err != nil {
		return graphTx, nil, fmt.Errorf("store prepare: %w", err)
	}
	storeTx, err = t.mgr.store.Begin(ctx)
	if err != nil {
		return graphTx, nil, fmt.Errorf("store begin: %w", err)
	}
	for _, op := range storeOps {
		if err := storeTx.Apply(ctx, op); err != nil {
			return graphTx, storeTx, fmt.Errorf("store apply: %w", err)
		}
	}

	return graphTx, storeTx, nil
}

// commit drives the commit phase, graph first and store second. A graph
// commit failure still leaves nothing durable, so the store branch is rolled
// back and the transaction aborts. Once the graph branch has committed, any
// store-side failure is a partial commit: journaled, terminal, manual
// recovery only.
func (t *Transaction) commit(ctx context.Context, graphTx, storeTx BranchTx, graphOps, storeOps int) error {
	err := runHook(t.mgr.hooks.BeforeCommit, TargetGraph)
	if err == nil {
		err = graphTx.Commit(ctx)
	}
	if err != nil {
		return t.abort(ctx, nil, storeTx, "commit", fmt.Errorf("graph commit: %w", err))
	}

	// Crash window between the two commits: the graph branch is already
	// durable, so this is a partial commit, not an abort.
	if err := runHook(t.mgr.hooks.AfterCommit, TargetGraph); err != nil {
		return t.partialCommit(ctx, storeTx, fmt.Errorf("after graph commit: %w", err))
	}

	if err := runHook(t.mgr.hooks.BeforeCommit, TargetStore); err != nil {
		// The store tx never attempted commit and is still open
		return t.partialCommit(ctx, storeTx, fmt.Errorf("store commit: %w", err))
	}
	if err := storeTx.Commit(ctx); err != nil {
		return t.partialCommit(ctx, nil, fmt.Errorf("store commit: %w", err))
	}

	if err := runHook(t.mgr.hooks.AfterCommit, TargetStore); err != nil {
		// Both branches are durable; a fault after the final commit changes
		// nothing about the outcome.
		t.mgr.logger.Warn("Fault injected after final commit",
			zap.String("txn_id", t.id),
			zap.Error(err),
		)
	}

	if err := t.transition(StateCommitted); err != nil {
		return err
	}
	t.journal(ctx, store.JournalStateCommitted,
		fmt.Sprintf("%d graph ops, %d store ops", graphOps, storeOps))

	t.mgr.logger.Info("Transaction committed",
		zap.String("txn_id", t.id),
		zap.Int("graph_ops", graphOps),
		zap.Int("store_ops", storeOps),
	)
	return nil
}

// abort rolls back whichever branch transactions exist and lands in
// RolledBack, or Failed when a rollback itself fails. Rollbacks run on a
// detached context so an already-expired deadline cannot strand a branch.
func (t *Transaction) abort(ctx context.Context, graphTx, storeTx BranchTx, phase string, cause error) error {
	rbCtx, cancel := detachedContext()
	defer cancel()

	rollbackFailed := false
	for _, btx := range []BranchTx{graphTx, storeTx} {
		if btx == nil {
			continue
		}
		if err := btx.Rollback(rbCtx); err != nil {
			rollbackFailed = true
			t.mgr.logger.Error("Branch rollback failed",
				zap.String("txn_id", t.id),
				zap.Error(err),
			)
		}
	}

	if rollbackFailed {
		_ = t.transition(StateFailed)
		t.journal(rbCtx, store.JournalStateFailed, fmt.Sprintf("%s failed and rollback failed: %v", phase, cause))
		return kgaserrors.NewTxnAborted(t.id, string(StateFailed), cause)
	}

	_ = t.transition(StateRolledBack)
	t.journal(rbCtx, store.JournalStateRolledBack, fmt.Sprintf("%s failed: %v", phase, cause))

	t.mgr.logger.Warn("Transaction aborted",
		zap.String("txn_id", t.id),
		zap.String("phase", phase),
		zap.Error(cause),
	)

	if isContextExpiry(ctx, cause) {
		return kgaserrors.NewTxnTimeout(t.id, phase, t.mgr.timeout)
	}
	return kgaserrors.NewTxnAborted(t.id, string(StateRolledBack), cause)
}

// partialCommit handles the one-sided failure: graph committed, store did
// not. The outcome is journaled before Execute returns. When the store
// branch transaction is still open it is rolled back to free its connection.
func (t *Transaction) partialCommit(ctx context.Context, openStoreTx BranchTx, cause error) error {
	rbCtx, cancel := detachedContext()
	defer cancel()

	if openStoreTx != nil {
		if err := openStoreTx.Rollback(rbCtx); err != nil {
			t.mgr.logger.Error("Store branch rollback failed after partial commit",
				zap.String("txn_id", t.id),
				zap.Error(err),
			)
		}
	}

	_ = t.transition(StatePartiallyCommitted)
	t.journal(rbCtx, store.JournalStatePartiallyCommitted,
		fmt.Sprintf("graph committed, store failed: %v", cause))

	t.mgr.logger.Error("Partial commit detected",
		zap.String("txn_id", t.id),
		zap.Error(cause),
	)
	return kgaserrors.NewTxnPartialCommit(t.id, []string{string(TargetGraph)}, []string{string(TargetStore)}, cause)
}

func (t *Transaction) transition(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.CanTransition(next) {
		return fmt.Errorf("illegal transaction state transition: %s -> %s", t.state, next)
	}
	t.state = next
	return nil
}

func (t *Transaction) opsSnapshot() []Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]Operation, len(t.ops))
	copy(ops, t.ops)
	return ops
}

// release returns the transaction's slot exactly once
func (t *Transaction) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.mgr.slots.Release(1)
}

// journal records the outcome. Journal failures are logged, never returned:
// the transaction outcome already happened and must be reported as-is.
func (t *Transaction) journal(ctx context.Context, state, detail string) {
	if t.mgr.journal == nil {
		return
	}
	if err := t.mgr.journal.JournalAppend(ctx, t.id, state, detail); err != nil {
		t.mgr.logger.Error("Failed to journal transaction outcome",
			zap.String("txn_id", t.id),
			zap.String("state", state),
			zap.Error(err),
		)
	}
}

func detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func isContextExpiry(ctx context.Context, cause error) bool {
	return ctx.Err() != nil ||
		errors.Is(cause, context.DeadlineExceeded) ||
		errors.Is(cause, context.Canceled)
}
