package graph

import "time"

// Entity represents a node in the knowledge graph
type Entity struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CanonicalName string            `json:"canonical_name"`
	Type          string            `json:"type"` // PERSON, ORG, LOCATION, CONCEPT, EVENT, ...
	Confidence    float64           `json:"confidence"`
	Properties    map[string]string `json:"properties,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Relationship represents a typed edge between two entities.
// The relationship type is stored as a property on a fixed RELATES edge so
// queries stay fully parameterized.
type Relationship struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"` // WORKS_FOR, LOCATED_IN, PART_OF, ...
	Confidence float64           `json:"confidence"`
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Neighbor is an entity reachable from a starting entity, with hop distance
type Neighbor struct {
	Entity   Entity `json:"entity"`
	Distance int    `json:"distance"`
}

// SnapshotNode is the minimal node view used by in-process analytics
type SnapshotNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SnapshotEdge is the minimal edge view used by in-process analytics
type SnapshotEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

// Snapshot is an in-memory copy of the graph (or a typed slice of it) taken
// for analytics. Centrality runs over this, never over live sessions.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes"`
	Edges []SnapshotEdge `json:"edges"`
}

// AddNode appends a node to the snapshot
func (s *Snapshot) AddNode(id, name, entityType string) {
	s.Nodes = append(s.Nodes, SnapshotNode{ID: id, Name: name, Type: entityType})
}

// AddEdge appends an edge to the snapshot
func (s *Snapshot) AddEdge(sourceID, targetID, relType string) {
	s.Edges = append(s.Edges, SnapshotEdge{SourceID: sourceID, TargetID: targetID, Type: relType})
}

// NodeCount returns the number of nodes in the snapshot
func (s *Snapshot) NodeCount() int {
	return len(s.Nodes)
}

// EdgeCount returns the number of edges in the snapshot
func (s *Snapshot) EdgeCount() int {
	return len(s.Edges)
}
