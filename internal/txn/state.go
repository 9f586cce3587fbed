package txn

// State is the lifecycle state of a distributed transaction.
//
//	Pending -> Preparing -> Prepared -> Committing -> Committed
//	                                               -> PartiallyCommitted
//	any pre-commit state                           -> RolledBack | Failed
type State string

const (
	// StatePending accepts operations; nothing has touched a branch yet
	StatePending State = "pending"
	// StatePreparing means branch transactions are open and operations are
	// being applied
	StatePreparing State = "preparing"
	// StatePrepared means every operation applied cleanly on both branches
	StatePrepared State = "prepared"
	// StateCommitting means branch commits are in flight, graph first
	StateCommitting State = "committing"
	// StateCommitted means both branches committed
	StateCommitted State = "committed"
	// StateRolledBack means no branch committed; nothing durable remains
	StateRolledBack State = "rolled_back"
	// StatePartiallyCommitted means the graph branch committed and the store
	// branch did not. This cannot be rolled back automatically and is
	// journaled for manual recovery.
	StatePartiallyCommitted State = "partially_committed"
	// StateFailed means a rollback itself failed; branch state is unknown
	StateFailed State = "failed"
)

var validTransitions = map[State][]State{
	StatePending:    {StatePreparing, StateRolledBack},
	StatePreparing:  {StatePrepared, StateRolledBack, StateFailed},
	StatePrepared:   {StateCommitting, StateRolledBack, StateFailed},
	StateCommitting: {StateCommitted, StatePartiallyCommitted, StateRolledBack, StateFailed},
}

// CanTransition reports whether moving from s to next is legal
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateRolledBack, StatePartiallyCommitted, StateFailed:
		return true
	}
	return false
}
