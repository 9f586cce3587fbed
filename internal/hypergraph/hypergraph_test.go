package hypergraph

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgas/internal/analytics"
	apperrors "kgas/pkg/errors"
)

func acquisitionEdge(t *testing.T, s *Store) *Hyperedge {
	t.Helper()
	edge, err := s.Add("acquired", 0.9,
		HyperedgeArg{EntityID: "acme", Role: "buyer"},
		HyperedgeArg{EntityID: "initech", Role: "target"},
		HyperedgeArg{EntityID: "2003", Role: "year"},
	)
	require.NoError(t, err)
	return edge
}

func TestAddAndGet(t *testing.T) {
	s := NewStore()
	edge := acquisitionEdge(t, s)

	got, err := s.Get(edge.ID)
	require.NoError(t, err)
	assert.Equal(t, "acquired", got.Connector)
	assert.Len(t, got.Args, 3)
	assert.Equal(t, 1, s.Count())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestAddValidation(t *testing.T) {
	s := NewStore()

	t.Run("needs two args", func(t *testing.T) {
		_, err := s.Add("solo", 0.9, HyperedgeArg{EntityID: "a", Role: "only"})
		require.Error(t, err)
	})

	t.Run("needs connector", func(t *testing.T) {
		_, err := s.Add("", 0.9,
			HyperedgeArg{EntityID: "a", Role: "x"},
			HyperedgeArg{EntityID: "b", Role: "y"},
		)
		require.Error(t, err)
	})

	t.Run("args need entity ids", func(t *testing.T) {
		_, err := s.Add("rel", 0.9,
			HyperedgeArg{EntityID: "a", Role: "x"},
			HyperedgeArg{Role: "y"},
		)
		require.Error(t, err)
	})

	assert.Equal(t, 0, s.Count())
}

func TestGetUnknown(t *testing.T) {
	s := NewStore()
	_, err := s.Get("missing")
	require.Error(t, err)

	var notFound *apperrors.ErrHyperedgeNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestEdgesWithAndNeighbors(t *testing.T) {
	s := NewStore()
	acquisitionEdge(t, s)
	_, err := s.Add("advised", 0.8,
		HyperedgeArg{EntityID: "smith", Role: "advisor"},
		HyperedgeArg{EntityID: "acme", Role: "client"},
	)
	require.NoError(t, err)

	assert.Len(t, s.EdgesWith("acme"), 2)
	assert.Len(t, s.EdgesWith("initech"), 1)
	assert.Empty(t, s.EdgesWith("unknown"))

	assert.Equal(t, []string{"2003", "initech", "smith"}, s.Neighbors("acme"))
	assert.Equal(t, []string{"2003", "acme"}, s.Neighbors("initech"))
	assert.Empty(t, s.Neighbors("unknown"))
}

func TestToSnapshotProjectsCliques(t *testing.T) {
	s := NewStore()
	acquisitionEdge(t, s)

	snapshot := s.ToSnapshot()
	assert.Equal(t, 3, snapshot.NodeCount())
	// A 3-arg hyperedge projects to a triangle
	assert.Equal(t, 3, snapshot.EdgeCount())
	for _, e := range snapshot.Edges {
		assert.Equal(t, "acquired", e.Type)
	}
}

func TestSnapshotFeedsCentrality(t *testing.T) {
	s := NewStore()
	_, err := s.Add("met", 0.9,
		HyperedgeArg{EntityID: "hub", Role: "host"},
		HyperedgeArg{EntityID: "a", Role: "guest"},
	)
	require.NoError(t, err)
	_, err = s.Add("met", 0.9,
		HyperedgeArg{EntityID: "hub", Role: "host"},
		HyperedgeArg{EntityID: "b", Role: "guest"},
	)
	require.NoError(t, err)

	scores := analytics.NewEngine(0, 0).Degree(s.ToSnapshot())
	assert.InDelta(t, 1.0, scores["hub"], 1e-9)
	assert.InDelta(t, 0.5, scores["a"], 1e-9)
	assert.InDelta(t, 0.5, scores["b"], 1e-9)
}

func TestJSONRoundTrip(t *testing.T) {
	s := NewStore()
	acquisitionEdge(t, s)
	_, err := s.Add("advised", 0.8,
		HyperedgeArg{EntityID: "smith", Role: "advisor"},
		HyperedgeArg{EntityID: "acme", Role: "client"},
	)
	require.NoError(t, err)

	data, err := s.ExportJSON()
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.ImportJSON(data))
	assert.Equal(t, 2, restored.Count())
	assert.Equal(t, s.Neighbors("acme"), restored.Neighbors("acme"))

	// Export order survives the round trip
	again, err := restored.ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestImportValidatesBeforeReplacing(t *testing.T) {
	s := NewStore()
	acquisitionEdge(t, s)

	err := s.ImportJSON([]byte(`{"hyperedges":[{"id":"x","connector":"broken","args":[{"entity_id":"only","role":"r"}]}]}`))
	require.Error(t, err)
	assert.Equal(t, 1, s.Count(), "failed import must leave the store unchanged")

	require.Error(t, s.ImportJSON([]byte("not json")))
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := s.Add("links", 0.5,
					HyperedgeArg{EntityID: "hub", Role: "a"},
					HyperedgeArg{EntityID: "spoke", Role: "b"},
				)
				assert.NoError(t, err)
				s.Neighbors("hub")
				s.EdgesWith("spoke")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 160, s.Count())
}
