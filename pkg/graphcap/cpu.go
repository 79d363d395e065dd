package graphcap

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// CPUBackend implements every capability on the host. Components and
// Louvain are delegated to gonum; PageRank, eigenvector, cores and
// triangles are deterministic hand-rolled implementations so that
// summaries are reproducible across runs.
type CPUBackend struct{}

func (b *CPUBackend) Name() string { return "cpu" }

// BindDevice is a no-op on the host; the id is accepted so workers can
// treat CPU and accelerator backends uniformly.
func (b *CPUBackend) BindDevice(id int) error { return nil }

func (b *CPUBackend) FromEdges(edges []model.Edge) (*Handle, error) {
	h := &Handle{
		index: make(map[string]int32, len(edges)),
		src:   make([]int32, 0, len(edges)),
		dst:   make([]int32, 0, len(edges)),
		w:     make([]float64, 0, len(edges)),
	}
	intern := func(label string) int32 {
		if id, ok := h.index[label]; ok {
			return id
		}
		id := int32(len(h.labels))
		h.index[label] = id
		h.labels = append(h.labels, label)
		return id
	}
	// Factorize all sources before all destinations so the dense id
	// space matches the stable factorization the echo block relies on.
	for _, e := range edges {
		intern(e.Src)
	}
	for _, e := range edges {
		intern(e.Dst)
	}
	for _, e := range edges {
		u, v := h.index[e.Src], h.index[e.Dst]
		if u == v {
			h.selfLoops++
		}
		h.src = append(h.src, u)
		h.dst = append(h.dst, v)
		h.w = append(h.w, float64(e.Weight))
	}
	return h, nil
}

func (b *CPUBackend) Degrees(h *Handle, weighted bool) ([]float64, []float64, error) {
	n := h.NumVertices()
	in := make([]float64, n)
	out := make([]float64, n)
	for i := range h.src {
		w := 1.0
		if weighted {
			w = h.w[i]
		}
		out[h.src[i]] += w
		in[h.dst[i]] += w
	}
	return in, out, nil
}

func (b *CPUBackend) WeaklyCC(h *Handle) ([]int32, error) {
	g := simple.NewUndirectedGraph()
	for i := 0; i < h.NumVertices(); i++ {
		g.AddNode(simple.Node(i))
	}
	for i := range h.src {
		if h.src[i] == h.dst[i] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(h.src[i]), T: simple.Node(h.dst[i])})
	}
	return componentLabels(h.NumVertices(), topo.ConnectedComponents(g)), nil
}

func (b *CPUBackend) StronglyCC(h *Handle) ([]int32, error) {
	g := simple.NewDirectedGraph()
	for i := 0; i < h.NumVertices(); i++ {
		g.AddNode(simple.Node(i))
	}
	for i := range h.src {
		if h.src[i] == h.dst[i] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(h.src[i]), T: simple.Node(h.dst[i])})
	}
	return componentLabels(h.NumVertices(), topo.TarjanSCC(g)), nil
}

// componentLabels converts gonum component node sets to a dense label
// vector. Components are relabelled by their smallest member so the
// output does not depend on traversal order.
func componentLabels(n int, comps [][]graph.Node) []int32 {
	type comp struct {
		min   int64
		nodes []graph.Node
	}
	cs := make([]comp, 0, len(comps))
	for _, nodes := range comps {
		mn := nodes[0].ID()
		for _, nd := range nodes[1:] {
			if nd.ID() < mn {
				mn = nd.ID()
			}
		}
		cs = append(cs, comp{min: mn, nodes: nodes})
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].min < cs[j].min })
	labels := make([]int32, n)
	for ci, c := range cs {
		for _, nd := range c.nodes {
			labels[nd.ID()] = int32(ci)
		}
	}
	return labels
}

// PageRank runs a deterministic power iteration with dangling-mass
// redistribution, splitting each vertex's rank across out-edges in
// proportion to edge weight.
func (b *CPUBackend) PageRank(h *Handle, damp, tol float64) ([]float64, error) {
	n := h.NumVertices()
	if n == 0 {
		return nil, nil
	}
	if tol <= 0 {
		tol = 1e-6
	}

	type arc struct {
		to int32
		p  float64 // weight share of the source's out-weight
	}
	outWeight := make([]float64, n)
	for i := range h.src {
		outWeight[h.src[i]] += h.w[i]
	}
	arcs := make([][]arc, n)
	for i := range h.src {
		u := h.src[i]
		arcs[u] = append(arcs[u], arc{to: h.dst[i], p: h.w[i] / outWeight[u]})
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	uniform := 1.0 / float64(n)
	for i := range rank {
		rank[i] = uniform
	}
	base := (1 - damp) / float64(n)

	const maxIterations = 1000
	for iter := 0; iter < maxIterations; iter++ {
		for i := range next {
			next[i] = base
		}
		dangling := 0.0
		for u := 0; u < n; u++ {
			if len(arcs[u]) == 0 {
				dangling += rank[u]
				continue
			}
			share := damp * rank[u]
			for _, a := range arcs[u] {
				next[a.to] += share * a.p
			}
		}
		if dangling != 0 {
			add := damp * dangling / float64(n)
			for i := range next {
				next[i] += add
			}
		}
		diff := 0.0
		for i := range rank {
			d := next[i] - rank[i]
			diff += d * d
		}
		rank, next = next, rank
		if math.Sqrt(diff) < tol {
			break
		}
	}
	return rank, nil
}

// CoreNumbers runs the linear-time Batagelj–Zaveršnik core decomposition
// on the undirected view.
func (b *CPUBackend) CoreNumbers(h *Handle) ([]int32, error) {
	adj := h.undirectedView()
	n := len(adj.neighbors)
	if n == 0 {
		return nil, nil
	}

	deg := make([]int, n)
	pos := make([]int, n)
	maxDeg := 0
	for v := range adj.neighbors {
		d := len(adj.neighbors[v])
		deg[v] = d
		if d > maxDeg {
			maxDeg = d
		}
	}

	// Bin-sort vertices by degree.
	bin := make([]int, maxDeg+1)
	for v := range deg {
		bin[deg[v]]++
	}
	start := 0
	for d := 0; d <= maxDeg; d++ {
		num := bin[d]
		bin[d] = start
		start += num
	}
	vert := make([]int32, n)
	for v := range deg {
		d := deg[v]
		i := bin[d]
		pos[v] = i
		vert[i] = int32(v)
		bin[d]++
	}
	for d := maxDeg; d >= 1; d-- {
		bin[d] = bin[d-1]
	}
	bin[0] = 0

	// Core decomposition in-place; final deg[v] is the core number.
	for i := 0; i < n; i++ {
		v := vert[i]
		for _, u := range adj.neighbors[v] {
			if deg[u] > deg[v] {
				du := deg[u]
				pu := pos[u]
				pw := bin[du]
				w := vert[pw]
				if u != w {
					vert[pu] = w
					vert[pw] = u
					pos[u] = pw
					pos[w] = pu
				}
				bin[du]++
				deg[u]--
			}
		}
	}

	core := make([]int32, n)
	for v := range deg {
		core[v] = int32(deg[v])
	}
	return core, nil
}

// TrianglesPerVertex counts triangles by intersecting sorted neighbor
// lists along each undirected edge (u<v), crediting the ordered triple
// u<v<w once so each vertex of a triangle is incremented exactly once.
func (b *CPUBackend) TrianglesPerVertex(h *Handle) ([]int64, []int64, error) {
	adj := h.undirectedView()
	n := len(adj.neighbors)
	tri := make([]int64, n)
	deg := make([]int64, n)
	for v := range adj.neighbors {
		deg[v] = int64(len(adj.neighbors[v]))
	}
	for u := int32(0); int(u) < n; u++ {
		for _, v := range adj.neighbors[u] {
			if v <= u {
				continue
			}
			nu, nv := adj.neighbors[u], adj.neighbors[v]
			i, j := 0, 0
			for i < len(nu) && j < len(nv) {
				a, c := nu[i], nv[j]
				switch {
				case a < c:
					i++
				case a > c:
					j++
				default:
					if a > v { // enforce u < v < w
						tri[u]++
						tri[v]++
						tri[a]++
					}
					i++
					j++
				}
			}
		}
	}
	return tri, deg, nil
}

// Louvain delegates to gonum's Modularize on the undirected weighted
// projection (both directions summed) and relabels communities by their
// smallest member for stable output.
func (b *CPUBackend) Louvain(h *Handle) ([]int32, float64, error) {
	n := h.NumVertices()
	if n == 0 {
		return nil, math.NaN(), nil
	}
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	type key struct{ u, v int32 }
	sums := make(map[key]float64, len(h.src))
	for i := range h.src {
		u, v := h.src[i], h.dst[i]
		if u == v {
			continue
		}
		if u > v {
			u, v = v, u
		}
		sums[key{u, v}] += h.w[i]
	}
	if len(sums) == 0 {
		// Edgeless projection (singletons or self-loops only): every
		// vertex is its own community and modularity is undefined.
		part := make([]int32, n)
		for i := range part {
			part[i] = int32(i)
		}
		return part, math.NaN(), nil
	}
	for k, w := range sums {
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(k.u),
			T: simple.Node(k.v),
			W: w,
		})
	}

	reduced := community.Modularize(g, 1.0, nil)
	comms := reduced.Communities()
	part := componentLabels(n, comms)
	q := community.Q(g, comms, 1.0)
	return part, q, nil
}

// Eigenvector estimates eigenvector centrality with a weighted power
// iteration over incoming edges, L2-normalized each step.
func (b *CPUBackend) Eigenvector(h *Handle) ([]float64, error) {
	n := h.NumVertices()
	if n == 0 {
		return nil, nil
	}
	type arc struct {
		from int32
		w    float64
	}
	incoming := make([][]arc, n)
	for i := range h.src {
		incoming[h.dst[i]] = append(incoming[h.dst[i]], arc{from: h.src[i], w: h.w[i]})
	}

	vec := make([]float64, n)
	for i := range vec {
		vec[i] = 1.0 / float64(n)
	}
	work := make([]float64, n)

	const iterations = 100
	for iter := 0; iter < iterations; iter++ {
		for i := range work {
			work[i] = 0
		}
		for v := range incoming {
			for _, a := range incoming[v] {
				work[v] += a.w * vec[a.from]
			}
		}
		sum := 0.0
		for _, v := range work {
			sum += v * v
		}
		if sum == 0 {
			break
		}
		norm := 1 / math.Sqrt(sum)
		for i := range work {
			vec[i] = work[i] * norm
		}
	}
	return vec, nil
}

// Betweenness delegates to gonum on the unweighted undirected view and
// rescales to the normalized form 2b/((n-1)(n-2)).
func (b *CPUBackend) Betweenness(h *Handle) ([]float64, error) {
	n := h.NumVertices()
	out := make([]float64, n)
	if n < 3 {
		return out, nil
	}
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := range h.src {
		if h.src[i] == h.dst[i] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(h.src[i]), T: simple.Node(h.dst[i])})
	}
	scores := network.Betweenness(g)
	scale := 2.0 / (float64(n-1) * float64(n-2))
	for id, v := range scores {
		out[id] = v * scale
	}
	return out, nil
}

// Closeness delegates to gonum over all-pairs shortest paths on the
// unweighted undirected view. Vertices unreachable from part of the
// graph report 0.
func (b *CPUBackend) Closeness(h *Handle) ([]float64, error) {
	n := h.NumVertices()
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := range h.src {
		if h.src[i] == h.dst[i] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(h.src[i]), T: simple.Node(h.dst[i])})
	}
	p := path.DijkstraAllPaths(g)
	scores := network.Closeness(g, p)
	for id, v := range scores {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			v = 0
		}
		out[id] = v
	}
	return out, nil
}

// undirectedAdjacency is the deduplicated undirected view used by the
// core, triangle and leaf-share computations. Neighbor lists are sorted
// ascending; self-loops are dropped.
type undirectedAdjacency struct {
	neighbors [][]int32
}

func (h *Handle) undirectedView() *undirectedAdjacency {
	if h.undirected != nil {
		return h.undirected
	}
	n := h.NumVertices()
	neighbors := make([][]int32, n)
	for i := range h.src {
		u, v := h.src[i], h.dst[i]
		if u == v {
			continue
		}
		neighbors[u] = append(neighbors[u], v)
		neighbors[v] = append(neighbors[v], u)
	}
	// De-dup: two directed edges may map to the same undirected neighbor.
	for v := range neighbors {
		nbrs := neighbors[v]
		if len(nbrs) < 2 {
			continue
		}
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i] < nbrs[j] })
		writeIdx := 1
		last := nbrs[0]
		for _, u := range nbrs[1:] {
			if u == last {
				continue
			}
			nbrs[writeIdx] = u
			writeIdx++
			last = u
		}
		neighbors[v] = nbrs[:writeIdx]
	}
	h.undirected = &undirectedAdjacency{neighbors: neighbors}
	return h.undirected
}
