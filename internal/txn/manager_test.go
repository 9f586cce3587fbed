package txn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgas/internal/store"
	kgaserrors "kgas/pkg/errors"
)

// recorder collects branch events so tests can assert ordering
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) indexOf(event string) int {
	for i, e := range r.list() {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeBranch struct {
	name        string
	rec         *recorder
	beginErr    error
	applyErr    error
	commitErr   error
	rollbackErr error
}

func (b *fakeBranch) Name() string { return b.name }

func (b *fakeBranch) Begin(ctx context.Context) (BranchTx, error) {
	b.rec.add(b.name + ":begin")
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &fakeBranchTx{branch: b}, nil
}

type fakeBranchTx struct {
	branch *fakeBranch
}

func (t *fakeBranchTx) Apply(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.branch.rec.add(t.branch.name + ":apply")
	return t.branch.applyErr
}

func (t *fakeBranchTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.branch.commitErr != nil {
		return t.branch.commitErr
	}
	t.branch.rec.add(t.branch.name + ":commit")
	return nil
}

func (t *fakeBranchTx) Rollback(ctx context.Context) error {
	t.branch.rec.add(t.branch.name + ":rollback")
	return t.branch.rollbackErr
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []store.JournalEntry
}

func (j *fakeJournal) JournalAppend(ctx context.Context, txnID, state, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, store.JournalEntry{
		ID:        int64(len(j.entries) + 1),
		TxnID:     txnID,
		State:     state,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (j *fakeJournal) JournalPartialCommits(ctx context.Context) ([]store.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	resolved := make(map[string]bool)
	for _, e := range j.entries {
		if e.State == store.JournalStateResolved {
			resolved[e.TxnID] = true
		}
	}
	var out []store.JournalEntry
	for _, e := range j.entries {
		if e.State == store.JournalStatePartiallyCommitted && !resolved[e.TxnID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *fakeJournal) JournalResolve(ctx context.Context, txnID, note string) error {
	pending, _ := j.JournalPartialCommits(context.Background())
	for _, e := range pending {
		if e.TxnID == txnID {
			return j.JournalAppend(ctx, txnID, store.JournalStateResolved, note)
		}
	}
	return kgaserrors.NewTxnNotFound(txnID)
}

func (j *fakeJournal) states(txnID string) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.entries {
		if e.TxnID == txnID {
			out = append(out, e.State)
		}
	}
	return out
}

type fixture struct {
	rec     *recorder
	graph   *fakeBranch
	store   *fakeBranch
	journal *fakeJournal
	mgr     *Manager
}

func newFixture(cfg Config) *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:     rec,
		graph:   &fakeBranch{name: "graph", rec: rec},
		store:   &fakeBranch{name: "store", rec: rec},
		journal: &fakeJournal{},
	}
	f.mgr = NewManager(f.graph, f.store, f.journal, cfg)
	return f
}

func enqueueWork(t *testing.T, txn *Transaction) {
	t.Helper()
	require.NoError(t, txn.Enqueue(GraphOp("MERGE (e:Entity {id: $id})", map[string]interface{}{"id": "e1"})))
	require.NoError(t, txn.Enqueue(GraphOp("MERGE (e:Entity {id: $id})", map[string]interface{}{"id": "e2"})))
	require.NoError(t, txn.Enqueue(StoreOp("INSERT INTO documents (id) VALUES (?)", "d1")))
}

func TestExecute_CommitsGraphBeforeStore(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 4, Timeout: time.Second})
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)

	require.NoError(t, txn.Execute(ctx))
	assert.Equal(t, StateCommitted, txn.State())

	graphCommit := f.rec.indexOf("graph:commit")
	storeCommit := f.rec.indexOf("store:commit")
	require.GreaterOrEqual(t, graphCommit, 0)
	require.GreaterOrEqual(t, storeCommit, 0)
	assert.Less(t, graphCommit, storeCommit, "graph must commit before store")

	assert.Equal(t, []string{store.JournalStateCommitted}, f.journal.states(txn.ID()))
}

func TestExecute_PrepareFailureRollsBackBoth(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 4, Timeout: time.Second})
	f.store.applyErr = errors.New("constraint violated")
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)

	err = txn.Execute(ctx)
	require.Error(t, err)
	var aborted *kgaserrors.ErrTxnAborted
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, StateRolledBack, txn.State())

	events := f.rec.list()
	assert.Contains(t, events, "graph:rollback")
	assert.Contains(t, events, "store:rollback")
	assert.NotContains(t, events, "graph:commit")
	assert.NotContains(t, events, "store:commit")

	assert.Equal(t, []string{store.JournalStateRolledBack}, f.journal.states(txn.ID()))
	assert.True(t, kgaserrors.IsRetryable(err), "clean rollback left nothing behind")
}

func TestExecute_GraphCommitFailureRollsBackStore(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 4, Timeout: time.Second})
	f.graph.commitErr = errors.New("leader switch")
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)

	err = txn.Execute(ctx)
	var aborted *kgaserrors.ErrTxnAborted
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, StateRolledBack, txn.State())

	events := f.rec.list()
	assert.Contains(t, events, "store:rollback")
	assert.NotContains(t, events, "store:commit")
	// Failed graph commit finishes the graph tx; it is not rolled back again
	assert.NotContains(t, events, "graph:rollback")
}

func TestExecute_StoreCommitFailureIsPartialCommit(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 4, Timeout: time.Second})
	f.store.commitErr = errors.New("disk I/O error")
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)

	err = txn.Execute(ctx)
	require.Error(t, err)
	var partial *kgaserrors.ErrTxnPartialCommit
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"graph"}, partial.Committed)
	assert.Equal(t, []string{"store"}, partial.Failed)
	assert.Equal(t, StatePartiallyCommitted, txn.State())

	// The partial commit must be journaled before Execute returns
	pending, jErr := f.journal.JournalPartialCommits(ctx)
	require.NoError(t, jErr)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID(), pending[0].TxnID)

	// Partial commits are never blindly retryable
	assert.False(t, kgaserrors.IsRetryable(err))
}

func TestBegin_PoolExhaustionAndRecovery(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 1, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	held, err := f.mgr.Begin(ctx)
	require.NoError(t, err)

	// Saturated: the second Begin times out with a typed error
	_, err = f.mgr.Begin(ctx)
	require.Error(t, err)
	var exhausted *kgaserrors.ErrTxnPoolExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, kgaserrors.IsRetryable(err))

	// Releasing the held slot makes the manager usable again
	require.NoError(t, held.Rollback(ctx))

	next, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Rollback(ctx))
}

func TestExecute_ReleasesSlot(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 1, Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		txn, err := f.mgr.Begin(ctx)
		require.NoError(t, err, "slot must be free on iteration %d", i)
		enqueueWork(t, txn)
		require.NoError(t, txn.Execute(ctx))
	}
}

func TestEnqueue_RejectedOutsidePending(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 2, Timeout: time.Second})
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)
	require.NoError(t, txn.Execute(ctx))

	err = txn.Enqueue(StoreOp("INSERT INTO documents (id) VALUES (?)", "late"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committed")

	// Re-executing a finished transaction is an illegal transition
	assert.Error(t, txn.Execute(ctx))
}

func TestRollback_ExplicitAndIdempotent(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 2, Timeout: time.Second})
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Enqueue(GraphOp("MERGE (e:Entity {id: $id})", map[string]interface{}{"id": "e1"})))

	require.NoError(t, txn.Rollback(ctx))
	assert.Equal(t, StateRolledBack, txn.State())
	assert.Equal(t, []string{store.JournalStateRolledBack}, f.journal.states(txn.ID()))

	// Terminal: second rollback is a no-op
	require.NoError(t, txn.Rollback(ctx))
	assert.Len(t, f.journal.states(txn.ID()), 1)
}

func TestExecute_ContextExpiry(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 2, Timeout: time.Second})

	txn, err := f.mgr.Begin(context.Background())
	require.NoError(t, err)
	enqueueWork(t, txn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = txn.Execute(ctx)
	require.Error(t, err)
	var timeout *kgaserrors.ErrTxnTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, txn.ID(), timeout.TxnID)
	assert.True(t, txn.State().Terminal())
	assert.False(t, kgaserrors.IsRetryable(err))
}

func TestHooks_FaultMatrix(t *testing.T) {
	faultErr := errors.New("injected fault")

	tests := []struct {
		name        string
		hooks       func() Hooks
		wantState   State
		wantPartial bool
	}{
		{
			name: "fault before graph prepare",
			hooks: func() Hooks {
				return Hooks{BeforePrepare: func(target string) error {
					if target == "graph" {
						return faultErr
					}
					return nil
				}}
			},
			wantState: StateRolledBack,
		},
		{
			name: "fault before store prepare",
			hooks: func() Hooks {
				return Hooks{BeforePrepare: func(target string) error {
					if target == "store" {
						return faultErr
					}
					return nil
				}}
			},
			wantState: StateRolledBack,
		},
		{
			name: "fault before graph commit",
			hooks: func() Hooks {
				return Hooks{BeforeCommit: func(target string) error {
					if target == "graph" {
						return faultErr
					}
					return nil
				}}
			},
			wantState: StateRolledBack,
		},
		{
			name: "fault before store commit",
			hooks: func() Hooks {
				return Hooks{BeforeCommit: func(target string) error {
					if target == "store" {
						return faultErr
					}
					return nil
				}}
			},
			wantState:   StatePartiallyCommitted,
			wantPartial: true,
		},
		{
			name: "crash window between commits",
			hooks: func() Hooks {
				return Hooks{AfterCommit: func(target string) error {
					if target == "graph" {
						return faultErr
					}
					return nil
				}}
			},
			wantState:   StatePartiallyCommitted,
			wantPartial: true,
		},
		{
			name: "fault after final commit is observational",
			hooks: func() Hooks {
				return Hooks{AfterCommit: func(target string) error {
					if target == "store" {
						return faultErr
					}
					return nil
				}}
			},
			wantState: StateCommitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{MaxConcurrent: 2, Timeout: time.Second, Hooks: tt.hooks()})
			ctx := context.Background()

			txn, err := f.mgr.Begin(ctx)
			require.NoError(t, err)
			enqueueWork(t, txn)

			err = txn.Execute(ctx)
			assert.Equal(t, tt.wantState, txn.State())

			if tt.wantState == StateCommitted {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
			}

			if tt.wantPartial {
				var partial *kgaserrors.ErrTxnPartialCommit
				require.ErrorAs(t, err, &partial)
				pending, _ := f.journal.JournalPartialCommits(ctx)
				require.Len(t, pending, 1, "partial commit must be journaled")
			}
		})
	}
}

// TestChaos_RandomFaultMix drives the manager through a randomized fault
// schedule and asserts the reliability invariants hold on every run: exactly
// one terminal state, partial commits always journaled, slots always
// returned.
func TestChaos_RandomFaultMix(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	faultErr := errors.New("chaos")

	const runs = 200
	for i := 0; i < runs; i++ {
		mode := rng.Intn(8)

		f := newFixture(Config{MaxConcurrent: 1, Timeout: 250 * time.Millisecond})
		switch mode {
		case 1:
			f.graph.beginErr = faultErr
		case 2:
			f.store.beginErr = faultErr
		case 3:
			f.graph.applyErr = faultErr
		case 4:
			f.store.applyErr = faultErr
		case 5:
			f.graph.commitErr = faultErr
		case 6:
			f.store.commitErr = faultErr
		case 7:
			f.mgr.hooks = Hooks{AfterCommit: func(target string) error {
				if target == "graph" {
					return faultErr
				}
				return nil
			}}
		}

		ctx := context.Background()
		txn, err := f.mgr.Begin(ctx)
		require.NoError(t, err, "run %d: slot must be available", i)
		enqueueWork(t, txn)

		execErr := txn.Execute(ctx)
		state := txn.State()

		require.True(t, state.Terminal(), "run %d (mode %d): state %s not terminal", i, mode, state)
		if execErr == nil {
			require.Equal(t, StateCommitted, state, "run %d", i)
		} else {
			require.NotEqual(t, StateCommitted, state, "run %d", i)
		}

		if state == StatePartiallyCommitted {
			pending, jErr := f.journal.JournalPartialCommits(ctx)
			require.NoError(t, jErr)
			require.Len(t, pending, 1, "run %d: partial commit not journaled", i)
		}

		// Slot accounting: with MaxConcurrent=1, a leaked slot deadlocks here
		next, err := f.mgr.Begin(ctx)
		require.NoError(t, err, "run %d: slot leaked", i)
		require.NoError(t, next.Rollback(ctx))
	}
}

func TestManager_PartialCommitsAndResolve(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 2, Timeout: time.Second})
	f.store.commitErr = errors.New("disk full")
	ctx := context.Background()

	txn, err := f.mgr.Begin(ctx)
	require.NoError(t, err)
	enqueueWork(t, txn)
	require.Error(t, txn.Execute(ctx))

	pending, err := f.mgr.PartialCommits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.mgr.Resolve(ctx, txn.ID(), "store side replayed"))

	pending, err = f.mgr.PartialCommits(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = f.mgr.Resolve(ctx, "unknown-txn", "note")
	var notFound *kgaserrors.ErrTxnNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StatePreparing))
	assert.True(t, StatePreparing.CanTransition(StateRolledBack))
	assert.True(t, StateCommitting.CanTransition(StatePartiallyCommitted))
	assert.False(t, StateCommitted.CanTransition(StateRolledBack))
	assert.False(t, StatePending.CanTransition(StateCommitted))
	assert.False(t, StatePartiallyCommitted.CanTransition(StateCommitted))

	for _, s := range []State{StateCommitted, StateRolledBack, StatePartiallyCommitted, StateFailed} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []State{StatePending, StatePreparing, StatePrepared, StateCommitting} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestOpConstructors(t *testing.T) {
	g := GraphOp("MERGE (e:Entity {id: $id})", map[string]interface{}{"id": "x"})
	assert.Equal(t, TargetGraph, g.Target)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "x", g.Params["id"])

	s := StoreOp("INSERT INTO documents (id) VALUES (?)", "doc-1")
	assert.Equal(t, TargetStore, s.Target)
	assert.Equal(t, []interface{}{"doc-1"}, s.Args)

	graphOps, storeOps := splitOps([]Operation{g, s, g})
	assert.Len(t, graphOps, 2)
	assert.Len(t, storeOps, 1)
}

func TestConcurrentTransactions(t *testing.T) {
	f := newFixture(Config{MaxConcurrent: 4, Timeout: time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			txn, err := f.mgr.Begin(ctx)
			if err != nil {
				errs[n] = err
				return
			}
			if err := txn.Enqueue(StoreOp(fmt.Sprintf("INSERT -- %d", n))); err != nil {
				errs[n] = err
				return
			}
			errs[n] = txn.Execute(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "transaction %d", i)
	}
}
