package hypergraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kgas/internal/graph"
	kgaserrors "kgas/pkg/errors"
)

// HyperedgeArg is one typed endpoint of a hyperedge
type HyperedgeArg struct {
	EntityID string `json:"entity_id"`
	Role     string `json:"role"`
}

// Hyperedge joins two or more entities under a connector predicate.
// "acquired(buyer: acme, target: initech, year: 2003)" is one hyperedge,
// not three binary relationships.
type Hyperedge struct {
	ID         string         `json:"id"`
	Connector  string         `json:"connector"`
	Args       []HyperedgeArg `json:"args"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store is an in-memory hypergraph, safe for concurrent use
type Store struct {
	mu    sync.RWMutex
	edges map[string]*Hyperedge
	order []string
}

// NewStore creates an empty hypergraph store
func NewStore() *Store {
	return &Store{edges: make(map[string]*Hyperedge)}
}

// Add validates and stores a hyperedge, returning it with its assigned id
func (s *Store) Add(connector string, confidence float64, args ...HyperedgeArg) (*Hyperedge, error) {
	edge := &Hyperedge{
		ID:         uuid.New().String(),
		Connector:  connector,
		Args:       args,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if err := validate(edge); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.ID] = edge
	s.order = append(s.order, edge.ID)
	return edge, nil
}

func validate(edge *Hyperedge) error {
	if edge.Connector == "" {
		return fmt.Errorf("hyperedge connector is required")
	}
	if len(edge.Args) < 2 {
		return fmt.Errorf("hyperedge needs at least 2 args, got %d", len(edge.Args))
	}
	for i, arg := range edge.Args {
		if arg.EntityID == "" {
			return fmt.Errorf("hyperedge arg %d has no entity id", i)
		}
	}
	return nil
}

// Get returns a hyperedge by id
func (s *Store) Get(id string) (*Hyperedge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edge, ok := s.edges[id]
	if !ok {
		return nil, kgaserrors.NewHyperedgeNotFound(id)
	}
	copied := *edge
	return &copied, nil
}

// Count returns the number of stored hyperedges
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// EdgesWith returns every hyperedge that includes the entity, in
// insertion order
func (s *Store) EdgesWith(entityID string) []Hyperedge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Hyperedge
	for _, id := range s.order {
		edge := s.edges[id]
		for _, arg := range edge.Args {
			if arg.EntityID == entityID {
				out = append(out, *edge)
				break
			}
		}
	}
	return out
}

// Neighbors returns the entities that share at least one hyperedge with
// the given entity, sorted for stable output
func (s *Store) Neighbors(entityID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, edge := range s.edges {
		member := false
		for _, arg := range edge.Args {
			if arg.EntityID == entityID {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		for _, arg := range edge.Args {
			if arg.EntityID != entityID {
				seen[arg.EntityID] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToSnapshot projects the hypergraph onto a pairwise graph: every
// hyperedge becomes a clique over its args, typed by the connector. The
// centrality suite runs over the projection unchanged.
func (s *Store) ToSnapshot() *graph.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &graph.Snapshot{}
	seenNode := make(map[string]bool)
	for _, id := range s.order {
		edge := s.edges[id]
		for _, arg := range edge.Args {
			if !seenNode[arg.EntityID] {
				seenNode[arg.EntityID] = true
				snapshot.AddNode(arg.EntityID, arg.EntityID, "")
			}
		}
		for i := 0; i < len(edge.Args); i++ {
			for j := i + 1; j < len(edge.Args); j++ {
				snapshot.AddEdge(edge.Args[i].EntityID, edge.Args[j].EntityID, edge.Connector)
			}
		}
	}
	return snapshot
}

type exportDocument struct {
	Hyperedges []Hyperedge `json:"hyperedges"`
}

// ExportJSON serializes every hyperedge in insertion order
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := exportDocument{Hyperedges: make([]Hyperedge, 0, len(s.order))}
	for _, id := range s.order {
		doc.Hyperedges = append(doc.Hyperedges, *s.edges[id])
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ImportJSON replaces the store contents with a previous export. Every
// edge is validated before anything is replaced; a bad document leaves
// the store unchanged.
func (s *Store) ImportJSON(data []byte) error {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse hypergraph export: %w", err)
	}

	edges := make(map[string]*Hyperedge, len(doc.Hyperedges))
	order := make([]string, 0, len(doc.Hyperedges))
	for i := range doc.Hyperedges {
		edge := doc.Hyperedges[i]
		if edge.ID == "" {
			edge.ID = uuid.New().String()
		}
		if err := validate(&edge); err != nil {
			return fmt.Errorf("hyperedge %s invalid: %w", edge.ID, err)
		}
		if _, dup := edges[edge.ID]; dup {
			return fmt.Errorf("duplicate hyperedge id in export: %s", edge.ID)
		}
		edges[edge.ID] = &edge
		order = append(order, edge.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = edges
	s.order = order
	return nil
}
