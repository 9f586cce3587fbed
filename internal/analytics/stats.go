package analytics

import (
	"math"
	"sort"
)

// Stats summarizes the score distribution of one measure
type Stats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ComputeStats reduces a score map to its distribution summary.
// An empty map yields the zero Stats.
func ComputeStats(scores map[string]float64) Stats {
	if len(scores) == 0 {
		return Stats{}
	}

	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, v)
	}
	sort.Float64s(values)

	n := len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	var median float64
	if n%2 == 1 {
		median = values[n/2]
	} else {
		median = (values[n/2-1] + values[n/2]) / 2
	}

	return Stats{
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(variance),
		Min:    values[0],
		Max:    values[n-1],
	}
}
