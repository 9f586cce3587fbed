package analytics

import (
	"math"

	"kgas/internal/graph"
)

// Measure names one centrality measure
type Measure string

const (
	MeasureDegree      Measure = "degree"
	MeasureBetweenness Measure = "betweenness"
	MeasureCloseness   Measure = "closeness"
	MeasureEigenvector Measure = "eigenvector"
	MeasurePageRank    Measure = "pagerank"
)

// AllMeasures returns every measure the suite computes
func AllMeasures() []Measure {
	return []Measure{MeasureDegree, MeasureBetweenness, MeasureCloseness, MeasureEigenvector, MeasurePageRank}
}

const convergenceTolerance = 1e-6

// network is a compact index of a snapshot. Degree, betweenness, closeness
// and eigenvector treat the graph as undirected; PageRank keeps direction.
// Parallel edges collapse and self-loops are dropped: neither carries
// centrality signal.
type network struct {
	ids   []string
	names map[string]string
	index map[string]int
	adj   [][]int // undirected
	out   [][]int // directed, for PageRank
}

func buildNetwork(snapshot *graph.Snapshot) *network {
	g := &network{
		names: make(map[string]string),
		index: make(map[string]int),
	}
	for _, n := range snapshot.Nodes {
		if n.ID == "" {
			continue
		}
		if _, ok := g.index[n.ID]; ok {
			continue
		}
		g.index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
		g.names[n.ID] = n.Name
	}

	n := len(g.ids)
	g.adj = make([][]int, n)
	g.out = make([][]int, n)

	seenUndirected := make(map[[2]int]bool)
	seenDirected := make(map[[2]int]bool)
	for _, e := range snapshot.Edges {
		s, okS := g.index[e.SourceID]
		t, okT := g.index[e.TargetID]
		if !okS || !okT || s == t {
			continue
		}

		if !seenDirected[[2]int{s, t}] {
			seenDirected[[2]int{s, t}] = true
			g.out[s] = append(g.out[s], t)
		}

		lo, hi := s, t
		if lo > hi {
			lo, hi = hi, lo
		}
		if !seenUndirected[[2]int{lo, hi}] {
			seenUndirected[[2]int{lo, hi}] = true
			g.adj[s] = append(g.adj[s], t)
			g.adj[t] = append(g.adj[t], s)
		}
	}
	return g
}

func (g *network) size() int { return len(g.ids) }

func (g *network) toMap(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, v := range values {
		out[g.ids[i]] = v
	}
	return out
}

// degree is the fraction of other nodes each node touches
func (g *network) degree() []float64 {
	n := g.size()
	scores := make([]float64, n)
	if n < 2 {
		return scores
	}
	for i := range g.adj {
		scores[i] = float64(len(g.adj[i])) / float64(n-1)
	}
	return scores
}

// betweenness runs Brandes' accumulation over BFS shortest paths and
// normalizes to [0,1] with endpoints excluded.
func (g *network) betweenness() []float64 {
	n := g.size()
	scores := make([]float64, n)
	if n < 3 {
		return scores
	}

	for s := 0; s < n; s++ {
		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0

		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
	}

	// Each unordered pair was counted from both endpoints; dividing by
	// (n-1)(n-2) both halves and rescales to [0,1].
	norm := float64((n - 1) * (n - 2))
	for i := range scores {
		scores[i] /= norm
	}
	return scores
}

// closeness applies the Wasserman-Faust correction so nodes in small
// components cannot outrank nodes central to large ones.
func (g *network) closeness() []float64 {
	n := g.size()
	scores := make([]float64, n)
	if n < 2 {
		return scores
	}

	dist := make([]int, n)
	for v := 0; v < n; v++ {
		for i := range dist {
			dist[i] = -1
		}
		dist[v] = 0
		queue := []int{v}
		reached := 1
		total := 0
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, w := range g.adj[u] {
				if dist[w] < 0 {
					dist[w] = dist[u] + 1
					total += dist[w]
					reached++
					queue = append(queue, w)
				}
			}
		}
		if total > 0 {
			r := float64(reached - 1)
			scores[v] = (r / float64(n-1)) * (r / float64(total))
		}
	}
	return scores
}

// eigenvector runs power iteration with L2 normalization. Iterating
// x + Ax instead of Ax keeps bipartite graphs (stars, paths) from
// oscillating between the two dominant eigenvalues.
func (g *network) eigenvector(maxIterations int) []float64 {
	n := g.size()
	scores := make([]float64, n)

	hasEdge := false
	for _, nb := range g.adj {
		if len(nb) > 0 {
			hasEdge = true
			break
		}
	}
	if n == 0 || !hasEdge {
		return scores
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / math.Sqrt(float64(n))
	}

	next := make([]float64, n)
	for it := 0; it < maxIterations; it++ {
		copy(next, x)
		for v := 0; v < n; v++ {
			for _, w := range g.adj[v] {
				next[w] += x[v]
			}
		}

		var norm float64
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)

		maxDiff := 0.0
		for i := range next {
			next[i] /= norm
			if d := math.Abs(next[i] - x[i]); d > maxDiff {
				maxDiff = d
			}
		}
		x, next = next, x
		if maxDiff < convergenceTolerance {
			break
		}
	}
	copy(scores, x)
	return scores
}

// pagerank iterates the damped random walk over directed edges, spreading
// dangling-node mass uniformly. Scores sum to 1.
func (g *network) pagerank(damping float64, maxIterations int) []float64 {
	n := g.size()
	if n == 0 {
		return nil
	}

	pr := make([]float64, n)
	for i := range pr {
		pr[i] = 1 / float64(n)
	}

	next := make([]float64, n)
	for it := 0; it < maxIterations; it++ {
		var dangling float64
		for v := 0; v < n; v++ {
			if len(g.out[v]) == 0 {
				dangling += pr[v]
			}
		}

		base := (1-damping)/float64(n) + damping*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for v := 0; v < n; v++ {
			if deg := len(g.out[v]); deg > 0 {
				share := damping * pr[v] / float64(deg)
				for _, w := range g.out[v] {
					next[w] += share
				}
			}
		}

		var diff float64
		for i := range next {
			diff += math.Abs(next[i] - pr[i])
		}
		pr, next = next, pr
		if diff < convergenceTolerance {
			break
		}
	}
	return pr
}
