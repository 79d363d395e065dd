package analysis_test

import (
	"testing"
	"time"

	"github.com/sergiubuhatel/ra2/pkg/analysis"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

func at(minutes int) time.Time {
	return time.Date(2017, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

// S1 events: A->B, A->B, B->C within 30 minutes.
func s1Events() []model.Event {
	return []model.Event{
		{Src: "A", Dst: "B", TS: at(0)},
		{Src: "A", Dst: "B", TS: at(15)},
		{Src: "B", Dst: "C", TS: at(30)},
	}
}

func TestBuildWeightedEdges(t *testing.T) {
	edges, removed := analysis.BuildWeightedEdges(s1Events(), false)
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	want := []model.Edge{
		{Src: "A", Dst: "B", Weight: 2},
		{Src: "B", Dst: "C", Weight: 1},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v", edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge[%d] = %v, want %v", i, edges[i], want[i])
		}
	}
}

func TestBuildWeightedEdgesDropsSelfLoopEvents(t *testing.T) {
	events := []model.Event{
		{Src: "A", Dst: "A", TS: at(0)},
		{Src: "A", Dst: "A", TS: at(1)},
		{Src: "A", Dst: "A", TS: at(2)},
	}
	edges, removed := analysis.BuildWeightedEdges(events, true)
	if len(edges) != 0 {
		t.Errorf("edges = %v, want empty", edges)
	}
	// Removed counts events, keeping weight-sum == events - removed.
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
}

func TestBuildWeightedEdgesKeepsSelfLoopsWhenDisabled(t *testing.T) {
	events := []model.Event{
		{Src: "A", Dst: "A", TS: at(0)},
		{Src: "A", Dst: "B", TS: at(1)},
	}
	edges, removed := analysis.BuildWeightedEdges(events, false)
	if removed != 0 || len(edges) != 2 {
		t.Errorf("edges = %v removed = %d", edges, removed)
	}
}

func TestEdgeWeightSumInvariant(t *testing.T) {
	events := append(s1Events(),
		model.Event{Src: "C", Dst: "C", TS: at(40)},
	)
	edges, removed := analysis.BuildWeightedEdges(events, true)
	var sum int64
	for _, e := range edges {
		sum += e.Weight
	}
	if sum+removed != int64(len(events)) {
		t.Errorf("weight sum %d + removed %d != events %d", sum, removed, len(events))
	}
}
