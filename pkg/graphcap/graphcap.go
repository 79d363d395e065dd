// Package graphcap is the graph capability layer consumed by the window
// analytics engine. It abstracts the minimum set of primitives the engine
// actually calls — graph construction from a weighted edge list, degrees,
// components, PageRank, core numbers, triangles, Louvain, and the optional
// heavy centralities — behind a Backend interface so that an accelerator
// implementation can be swapped in without touching the engine.
//
// Every primitive is independently fallible: a backend that lacks a
// capability returns an error wrapping ErrUnavailable, which the engine
// records by tag and skips past.
package graphcap

import (
	"errors"
	"fmt"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// ErrUnavailable marks a capability the backend cannot provide.
var ErrUnavailable = errors.New("graph capability unavailable")

// Unavailable wraps ErrUnavailable with the capability name.
func Unavailable(name string) error {
	return fmt.Errorf("%s: %w", name, ErrUnavailable)
}

// Handle is a backend-private graph built from one edge list. Vertices
// are renumbered to dense ids 0..n-1; the label mapping is private to the
// invocation that created the handle.
type Handle struct {
	labels []string
	index  map[string]int32

	src []int32
	dst []int32
	w   []float64

	selfLoops int

	undirected *undirectedAdjacency
}

// NumVertices returns the renumbered vertex count.
func (h *Handle) NumVertices() int { return len(h.labels) }

// NumEdges returns the unique directed edge count (self-loops included).
func (h *Handle) NumEdges() int { return len(h.src) }

// Label maps a dense vertex id back to its original label.
func (h *Handle) Label(id int32) string { return h.labels[id] }

// Labels returns the dense id -> label table in id order.
func (h *Handle) Labels() []string { return h.labels }

// EdgeArrays exposes the renumbered edge list (src, dst, weight) in the
// handle's dense id space. Callers must not mutate the slices.
func (h *Handle) EdgeArrays() (src, dst []int32, w []float64) {
	return h.src, h.dst, h.w
}

// Backend is the set of graph primitives the engine consumes. All slices
// returned are indexed by the handle's dense vertex ids.
type Backend interface {
	Name() string

	// BindDevice claims the given accelerator for the lifetime of the
	// worker. A CPU backend treats this as a no-op.
	BindDevice(id int) error

	// FromEdges builds a directed weighted graph, renumbering vertex
	// labels to dense ids in first-appearance order (all sources before
	// all destinations).
	FromEdges(edges []model.Edge) (*Handle, error)

	// Degrees returns in/out degree vectors; weighted degrees are the
	// strengths used by the dominance metrics.
	Degrees(h *Handle, weighted bool) (in, out []float64, err error)

	// WeaklyCC and StronglyCC label every vertex with a dense component
	// id.
	WeaklyCC(h *Handle) ([]int32, error)
	StronglyCC(h *Handle) ([]int32, error)

	// PageRank runs weighted PageRank with the given damping and
	// convergence tolerance. The returned vector sums to ~1.
	PageRank(h *Handle, damp, tol float64) ([]float64, error)

	// CoreNumbers returns the k-core number per vertex on the
	// undirected view.
	CoreNumbers(h *Handle) ([]int32, error)

	// TrianglesPerVertex returns per-vertex triangle counts and the
	// undirected degrees they pair with.
	TrianglesPerVertex(h *Handle) (tri []int64, deg []int64, err error)

	// Louvain detects communities on the undirected weighted projection
	// and returns dense partition labels plus the modularity achieved.
	Louvain(h *Handle) (partition []int32, modularity float64, err error)

	// Optional heavy centralities. Backends may return ErrUnavailable.
	Eigenvector(h *Handle) ([]float64, error)
	Betweenness(h *Handle) ([]float64, error)
	Closeness(h *Handle) ([]float64, error)
}

// New constructs a backend by name. "cpu" is always available; "gpu"
// requires an accelerator-enabled build and is reported as a
// configuration error here.
func New(name string) (Backend, error) {
	switch name {
	case "", "cpu":
		return &CPUBackend{}, nil
	case "gpu":
		return nil, fmt.Errorf("backend %q not linked into this build", name)
	default:
		return nil, fmt.Errorf("unknown graph backend %q", name)
	}
}
