// Package analysis implements the per-window analytics engine: weighted
// edge construction, variant expansion, diffusion timing, the graph
// metric families, the community/echo block, validation, and the window
// state machine that sequences them.
package analysis

import (
	"sort"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// BuildWeightedEdges aggregates events into the unique weighted edge
// list, optionally dropping self-loops. The removed count is the number
// of events (summed weight) on dropped src==dst rows, so that the base
// weight sum always equals the event count minus the removed count.
// Output is sorted by (src, dst) for reproducible persistence.
func BuildWeightedEdges(events []model.Event, dropSelfLoops bool) ([]model.Edge, int64) {
	type pair struct{ src, dst string }
	counts := make(map[pair]int64, len(events))
	for _, ev := range events {
		counts[pair{ev.Src, ev.Dst}]++
	}

	var removed int64
	edges := make([]model.Edge, 0, len(counts))
	for p, w := range counts {
		if dropSelfLoops && p.src == p.dst {
			removed += w
			continue
		}
		edges = append(edges, model.Edge{Src: p.src, Dst: p.dst, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges, removed
}

// EdgeWeights extracts the weight column as float64 for the stats packs.
func EdgeWeights(edges []model.Edge) []float64 {
	out := make([]float64, len(edges))
	for i, e := range edges {
		out[i] = float64(e.Weight)
	}
	return out
}
