package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func record(keys []string, values []interface{}) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestRecordCoercion(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rec := record(
		[]string{"name", "count", "score", "int_score", "when", "when_str"},
		[]interface{}{"alice", int64(3), 0.75, int64(1), now, now.Format(time.RFC3339)},
	)

	assert.Equal(t, "alice", getString(rec, "name", ""))
	assert.Equal(t, "dflt", getString(rec, "missing", "dflt"))
	assert.Equal(t, int64(3), getInt64(rec, "count", 0))
	assert.Equal(t, 0.75, getFloat64(rec, "score", 0))
	assert.Equal(t, float64(1), getFloat64(rec, "int_score", 0))
	assert.Equal(t, now, getTime(rec, "when", time.Time{}))
	assert.Equal(t, now, getTime(rec, "when_str", time.Time{}))
	assert.True(t, getTime(rec, "missing", time.Time{}).IsZero())
}

func TestSnapshotCounts(t *testing.T) {
	s := &Snapshot{}
	assert.Equal(t, 0, s.NodeCount())

	s.AddNode("a", "Alice", "PERSON")
	s.AddNode("b", "Bob", "PERSON")
	s.AddEdge("a", "b", "KNOWS")

	assert.Equal(t, 2, s.NodeCount())
	assert.Equal(t, 1, s.EdgeCount())
	assert.Equal(t, "KNOWS", s.Edges[0].Type)
}
