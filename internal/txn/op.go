package txn

import "github.com/google/uuid"

// Target names the branch an operation is applied to
type Target string

const (
	// TargetGraph routes an operation to the Neo4j branch
	TargetGraph Target = "graph"
	// TargetStore routes an operation to the SQLite branch
	TargetStore Target = "store"
)

// Operation is a single statement applied to one branch of a distributed
// transaction. Graph operations carry named Cypher parameters; store
// operations carry positional SQL arguments.
type Operation struct {
	ID        string                 `json:"id"`
	Target    Target                 `json:"target"`
	Statement string                 `json:"statement"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Args      []interface{}          `json:"args,omitempty"`
}

// GraphOp builds a Cypher operation for the graph branch
func GraphOp(statement string, params map[string]interface{}) Operation {
	return Operation{
		ID:        uuid.New().String(),
		Target:    TargetGraph,
		Statement: statement,
		Params:    params,
	}
}

// StoreOp builds a SQL operation for the store branch
func StoreOp(statement string, args ...interface{}) Operation {
	return Operation{
		ID:        uuid.New().String(),
		Target:    TargetStore,
		Statement: statement,
		Args:      args,
	}
}

func splitOps(ops []Operation) (graphOps, storeOps []Operation) {
	for _, op := range ops {
		switch op.Target {
		case TargetGraph:
			graphOps = append(graphOps, op)
		case TargetStore:
			storeOps = append(storeOps, op)
		}
	}
	return graphOps, storeOps
}
