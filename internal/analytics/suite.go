package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"kgas/internal/graph"
	"kgas/pkg/logger"
)

const (
	defaultMaxIterations = 100
	defaultDamping       = 0.85
)

// Engine computes centrality measures over graph snapshots
type Engine struct {
	maxIterations int
	damping       float64
}

// NewEngine creates an engine. Zero values fall back to defaults
// (100 iterations, damping 0.85).
func NewEngine(maxIterations int, damping float64) *Engine {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if damping <= 0 || damping >= 1 {
		damping = defaultDamping
	}
	return &Engine{maxIterations: maxIterations, damping: damping}
}

// Result holds the scores and distribution summaries of a suite run
type Result struct {
	Nodes   int                            `json:"nodes"`
	Edges   int                            `json:"edges"`
	Scores  map[Measure]map[string]float64 `json:"scores"`
	Stats   map[Measure]Stats              `json:"stats"`
	Elapsed time.Duration                  `json:"elapsed"`

	names map[string]string
}

// Ranked is one node in a TopN ranking
type Ranked struct {
	NodeID string  `json:"node_id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
}

// Degree returns normalized degree centrality for every node
func (e *Engine) Degree(snapshot *graph.Snapshot) map[string]float64 {
	g := buildNetwork(snapshot)
	return g.toMap(g.degree())
}

// Betweenness returns normalized shortest-path betweenness for every node
func (e *Engine) Betweenness(snapshot *graph.Snapshot) map[string]float64 {
	g := buildNetwork(snapshot)
	return g.toMap(g.betweenness())
}

// Closeness returns component-corrected closeness for every node
func (e *Engine) Closeness(snapshot *graph.Snapshot) map[string]float64 {
	g := buildNetwork(snapshot)
	return g.toMap(g.closeness())
}

// Eigenvector returns power-iteration eigenvector centrality for every node
func (e *Engine) Eigenvector(snapshot *graph.Snapshot) map[string]float64 {
	g := buildNetwork(snapshot)
	return g.toMap(g.eigenvector(e.maxIterations))
}

// PageRank returns damped PageRank over the directed edges
func (e *Engine) PageRank(snapshot *graph.Snapshot) map[string]float64 {
	g := buildNetwork(snapshot)
	return g.toMap(g.pagerank(e.damping, e.maxIterations))
}

// Compute runs a single measure by name
func (e *Engine) Compute(snapshot *graph.Snapshot, measure Measure) (map[string]float64, error) {
	g := buildNetwork(snapshot)
	scores, err := e.compute(g, measure)
	if err != nil {
		return nil, err
	}
	return g.toMap(scores), nil
}

func (e *Engine) compute(g *network, measure Measure) ([]float64, error) {
	switch measure {
	case MeasureDegree:
		return g.degree(), nil
	case MeasureBetweenness:
		return g.betweenness(), nil
	case MeasureCloseness:
		return g.closeness(), nil
	case MeasureEigenvector:
		return g.eigenvector(e.maxIterations), nil
	case MeasurePageRank:
		return g.pagerank(e.damping, e.maxIterations), nil
	default:
		return nil, fmt.Errorf("unknown centrality measure: %s", measure)
	}
}

// Suite computes every measure concurrently and returns scores plus
// per-measure distribution stats. The shared network index is built once.
func (e *Engine) Suite(ctx context.Context, snapshot *graph.Snapshot) (*Result, error) {
	log := logger.Get()
	started := time.Now()

	g := buildNetwork(snapshot)
	result := &Result{
		Nodes:  g.size(),
		Edges:  snapshot.EdgeCount(),
		Scores: make(map[Measure]map[string]float64, len(AllMeasures())),
		Stats:  make(map[Measure]Stats, len(AllMeasures())),
		names:  g.names,
	}

	type measured struct {
		measure Measure
		scores  map[string]float64
	}
	results := make(chan measured, len(AllMeasures()))

	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range AllMeasures() {
		m := m
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores, err := e.compute(g, m)
			if err != nil {
				return err
			}
			results <- measured{measure: m, scores: g.toMap(scores)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for r := range results {
		result.Scores[r.measure] = r.scores
		result.Stats[r.measure] = ComputeStats(r.scores)
	}
	result.Elapsed = time.Since(started)

	log.Debug(fmt.Sprintf("Centrality suite finished: %d nodes, %d edges in %s",
		result.Nodes, result.Edges, result.Elapsed))
	return result, nil
}

// TopN ranks the highest-scoring nodes for one measure. Ties break on
// node ID so rankings are stable across runs.
func (r *Result) TopN(measure Measure, n int) []Ranked {
	scores, ok := r.Scores[measure]
	if !ok || n <= 0 {
		return nil
	}

	ranked := make([]Ranked, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, Ranked{NodeID: id, Name: r.names[id], Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].NodeID < ranked[j].NodeID
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
