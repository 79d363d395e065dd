package graphcap_test

import (
	"math"
	"testing"

	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

func mustHandle(t *testing.T, b graphcap.Backend, edges []model.Edge) *graphcap.Handle {
	t.Helper()
	h, err := b.FromEdges(edges)
	if err != nil {
		t.Fatalf("FromEdges: %v", err)
	}
	return h
}

// starEdges is A->{B,C,D,E} with weight 10 each.
func starEdges() []model.Edge {
	return []model.Edge{
		{Src: "A", Dst: "B", Weight: 10},
		{Src: "A", Dst: "C", Weight: 10},
		{Src: "A", Dst: "D", Weight: 10},
		{Src: "A", Dst: "E", Weight: 10},
	}
}

// twoTriangles is two disconnected triangles over 6 nodes.
func twoTriangles() []model.Edge {
	return []model.Edge{
		{Src: "a", Dst: "b", Weight: 1},
		{Src: "b", Dst: "c", Weight: 1},
		{Src: "c", Dst: "a", Weight: 1},
		{Src: "x", Dst: "y", Weight: 1},
		{Src: "y", Dst: "z", Weight: 1},
		{Src: "z", Dst: "x", Weight: 1},
	}
}

func TestFromEdgesFactorizationOrder(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, []model.Edge{
		{Src: "B", Dst: "C", Weight: 1},
		{Src: "A", Dst: "B", Weight: 2},
	})
	// Sources first (B, A), then unseen destinations (C).
	want := []string{"B", "A", "C"}
	got := h.Labels()
	if len(got) != len(want) {
		t.Fatalf("labels = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("label[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDegreesStar(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, starEdges())

	inS, outS, err := b.Degrees(h, true)
	if err != nil {
		t.Fatal(err)
	}
	// A is vertex 0 (first source).
	if outS[0] != 40 {
		t.Errorf("out strength of A = %v, want 40", outS[0])
	}
	if inS[0] != 0 {
		t.Errorf("in strength of A = %v, want 0", inS[0])
	}
	var inSum, outSum float64
	for i := range inS {
		inSum += inS[i]
		outSum += outS[i]
	}
	if inSum != 40 || outSum != 40 {
		t.Errorf("strength sums = %v/%v, want 40/40", inSum, outSum)
	}

	inD, outD, err := b.Degrees(h, false)
	if err != nil {
		t.Fatal(err)
	}
	if outD[0] != 4 || inD[0] != 0 {
		t.Errorf("unweighted degrees of A = in %v out %v", inD[0], outD[0])
	}
}

func TestPageRankMassAndDeterminism(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, starEdges())

	pr, err := b.PageRank(h, 0.85, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, v := range pr {
		sum += v
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Errorf("pagerank sum = %v, want ~1", sum)
	}
	// Leaves receive identical rank by symmetry.
	for i := 2; i < len(pr); i++ {
		if math.Abs(pr[i]-pr[1]) > 1e-12 {
			t.Errorf("leaf ranks differ: %v vs %v", pr[i], pr[1])
		}
	}

	pr2, err := b.PageRank(h, 0.85, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	for i := range pr {
		if pr[i] != pr2[i] {
			t.Fatal("pagerank is not deterministic")
		}
	}
}

func TestComponentsTwoTriangles(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, twoTriangles())

	wcc, err := b.WeaklyCC(h)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[int32]int{}
	for _, l := range wcc {
		counts[l]++
	}
	if len(counts) != 2 {
		t.Fatalf("n_wcc = %d, want 2", len(counts))
	}
	for l, c := range counts {
		if c != 3 {
			t.Errorf("component %d size = %d, want 3", l, c)
		}
	}

	// Each directed 3-cycle is strongly connected.
	scc, err := b.StronglyCC(h)
	if err != nil {
		t.Fatal(err)
	}
	sccCounts := map[int32]int{}
	for _, l := range scc {
		sccCounts[l]++
	}
	if len(sccCounts) != 2 {
		t.Errorf("n_scc = %d, want 2", len(sccCounts))
	}
}

func TestTrianglesAndCores(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, twoTriangles())

	tri, deg, err := b.TrianglesPerVertex(h)
	if err != nil {
		t.Fatal(err)
	}
	var triSum int64
	for i := range tri {
		if tri[i] != 1 {
			t.Errorf("tri[%d] = %d, want 1", i, tri[i])
		}
		if deg[i] != 2 {
			t.Errorf("deg[%d] = %d, want 2", i, deg[i])
		}
		triSum += tri[i]
	}
	if triSum/3 != 2 {
		t.Errorf("total triangles = %d, want 2", triSum/3)
	}

	core, err := b.CoreNumbers(h)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range core {
		if c != 2 {
			t.Errorf("core[%d] = %d, want 2", i, c)
		}
	}
}

func TestLouvainTwoTriangles(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, twoTriangles())

	part, q, err := b.Louvain(h)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[int32]int{}
	for _, p := range part {
		counts[p]++
	}
	if len(counts) != 2 {
		t.Fatalf("n_communities = %d, want 2", len(counts))
	}
	for _, c := range counts {
		if c != 3 {
			t.Errorf("community size = %d, want 3", c)
		}
	}
	if q <= 0 {
		t.Errorf("modularity = %v, want > 0", q)
	}
}

func TestSelfLoopsDoNotBreakUndirectedBlock(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, []model.Edge{
		{Src: "A", Dst: "A", Weight: 5},
		{Src: "A", Dst: "B", Weight: 1},
	})
	if _, err := b.CoreNumbers(h); err != nil {
		t.Fatalf("CoreNumbers: %v", err)
	}
	if _, _, err := b.TrianglesPerVertex(h); err != nil {
		t.Fatalf("TrianglesPerVertex: %v", err)
	}
	if _, _, err := b.Louvain(h); err != nil {
		t.Fatalf("Louvain: %v", err)
	}
	if _, err := b.WeaklyCC(h); err != nil {
		t.Fatalf("WeaklyCC: %v", err)
	}
	pr, err := b.PageRank(h, 0.85, 1e-6)
	if err != nil {
		t.Fatalf("PageRank: %v", err)
	}
	sum := 0.0
	for _, v := range pr {
		sum += v
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Errorf("pagerank sum with self-loop = %v", sum)
	}
}

func TestHeavyCentralities(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, twoTriangles())

	ev, err := b.Eigenvector(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev) != 6 {
		t.Fatalf("eigenvector length = %d", len(ev))
	}

	bc, err := b.Betweenness(h)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range bc {
		if v != 0 {
			t.Errorf("triangle betweenness[%d] = %v, want 0", i, v)
		}
	}

	cc, err := b.Closeness(h)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range cc {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			t.Errorf("closeness[%d] not finite: %v", i, v)
		}
	}
}

func TestEmptyEdges(t *testing.T) {
	b := &graphcap.CPUBackend{}
	h := mustHandle(t, b, nil)
	if h.NumVertices() != 0 || h.NumEdges() != 0 {
		t.Fatalf("empty handle has %d vertices %d edges", h.NumVertices(), h.NumEdges())
	}
	if pr, err := b.PageRank(h, 0.85, 1e-6); err != nil || len(pr) != 0 {
		t.Errorf("empty pagerank = %v, %v", pr, err)
	}
	if core, err := b.CoreNumbers(h); err != nil || len(core) != 0 {
		t.Errorf("empty cores = %v, %v", core, err)
	}
}
