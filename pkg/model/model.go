// Package model defines the window-scoped entities shared across the
// pipeline: raw retweet events, weighted edges, window tasks, the flat
// per-window summary, and validation reports.
//
// Every entity here is scoped to a single window. Nothing outlives the
// window except the files persisted by pkg/export.
package model

import (
	"strings"
	"time"
)

// Event is a single retweet: Src retweeted Dst at TS.
type Event struct {
	Src string
	Dst string
	TS  time.Time
}

// Edge is a weighted directed edge aggregated from events.
// Unique on (Src, Dst); Weight is the event count (>= 1).
type Edge struct {
	Src    string `parquet:"src"`
	Dst    string `parquet:"dst"`
	Weight int64  `parquet:"weight"`
}

// Window is one schedule entry: a (company, start, end) triple plus an
// optional caller-supplied id. Start and End stay as the raw schedule
// strings until the worker parses them, so the id derivation and the
// persisted identifiers match the input bytes.
type Window struct {
	Company string `json:"company"`
	Start   string `json:"start"`
	End     string `json:"end"`
	ID      string `json:"window_id,omitempty"`
}

// WindowID returns the caller-supplied id, or derives the deterministic
// fallback <company>_<start>_<end> with spaces mapped to 'T' and colons
// stripped from the time tokens.
func (w Window) WindowID() string {
	if w.ID != "" {
		return w.ID
	}
	return w.Company + "_" + idToken(w.Start) + "_" + idToken(w.End)
}

func idToken(s string) string {
	s = strings.ReplaceAll(s, ":", "")
	return strings.ReplaceAll(s, " ", "T")
}

// Summary is the flat metric map persisted as summary.json. Values are
// strings for the identifier fields and float64/int64 for metrics;
// variant metrics carry a "<variant>__" key prefix.
type Summary map[string]any

// Merge copies all entries of m into the summary under the given key
// prefix ("" for window-level metrics).
func (s Summary) Merge(prefix string, m map[string]float64) {
	for k, v := range m {
		s[prefix+k] = v
	}
}

// ValidationReport captures the named checks run for one variant.
// Checks maps a check name to its boolean outcome; a "<name>_details"
// entry may carry diagnostic values alongside.
type ValidationReport struct {
	Variant string         `json:"variant"`
	Checks  map[string]any `json:"checks"`
	OK      bool           `json:"ok"`
}

// RunRecord summarizes one completed (or failed) window for the run
// catalog and for spawn-isolated workers reporting back to the parent.
type RunRecord struct {
	Company    string        `json:"company"`
	WindowID   string        `json:"window_id"`
	Status     string        `json:"status"` // written|skipped|fatal
	Fatal      string        `json:"fatal,omitempty"`
	NEvents    int64         `json:"n_events"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	FinishedAt time.Time     `json:"finished_at"`

	// StopRequested propagates a fail-fast-global escalation from a
	// spawn-isolated worker back to the orchestrator.
	StopRequested bool `json:"stop_requested,omitempty"`
}

// Per-node output rows (persisted as parquet when node tables are enabled).

// StrengthRow carries weighted in/out degrees for one vertex.
type StrengthRow struct {
	Vertex      string  `parquet:"vertex"`
	InStrength  float64 `parquet:"in_strength"`
	OutStrength float64 `parquet:"out_strength"`
}

// DegreeRow carries unweighted in/out degrees for one vertex.
type DegreeRow struct {
	Vertex string `parquet:"vertex"`
	InDeg  int64  `parquet:"in_deg"`
	OutDeg int64  `parquet:"out_deg"`
}

// ScoreRow carries a single centrality score for one vertex.
type ScoreRow struct {
	Vertex string  `parquet:"vertex"`
	Value  float64 `parquet:"value"`
}

// CoreRow carries the k-core number for one vertex.
type CoreRow struct {
	Vertex     string `parquet:"vertex"`
	CoreNumber int32  `parquet:"core_number"`
}

// TriangleRow carries undirected degree and triangle count for one vertex.
type TriangleRow struct {
	Vertex    string `parquet:"vertex"`
	Degree    int64  `parquet:"deg"`
	Triangles int64  `parquet:"triangles"`
}

// PartitionRow carries the community label for one factorized vertex id.
type PartitionRow struct {
	Vertex    int32 `parquet:"vertex"`
	Partition int32 `parquet:"partition"`
}
