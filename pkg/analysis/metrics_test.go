package analysis_test

import (
	"math"
	"testing"

	"github.com/sergiubuhatel/ra2/pkg/analysis"
	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/model"
)

func computeVariant(t *testing.T, edges []model.Edge, opts analysis.MetricsOptions) (map[string]float64, map[string]string) {
	t.Helper()
	errs := map[string]string{}
	res := analysis.VariantMetrics(&graphcap.CPUBackend{}, edges, "base", opts, errs)
	return res.Metrics, errs
}

func TestVariantMetricsS1(t *testing.T) {
	edges := []model.Edge{
		{Src: "A", Dst: "B", Weight: 2},
		{Src: "B", Dst: "C", Weight: 1},
	}
	m, errs := computeVariant(t, edges, analysis.MetricsOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected metric errors: %v", errs)
	}

	if m["n_nodes"] != 3 || m["edges_unique"] != 2 || m["total_weight"] != 3 {
		t.Errorf("basics: n=%v e=%v w=%v", m["n_nodes"], m["edges_unique"], m["total_weight"])
	}
	if math.Abs(m["density"]-1.0/3) > 1e-12 {
		t.Errorf("density = %v, want 1/3", m["density"])
	}
	if m["reciprocity"] != 0 {
		t.Errorf("reciprocity = %v, want 0", m["reciprocity"])
	}
	if m["n_wcc"] != 1 || m["largest_wcc_share"] != 1 {
		t.Errorf("wcc: n=%v share=%v", m["n_wcc"], m["largest_wcc_share"])
	}
	// Strength reconciliation.
	if m["check_sum_in_minus_total"] != 0 || m["check_sum_out_minus_total"] != 0 {
		t.Errorf("strength checks: in %v out %v",
			m["check_sum_in_minus_total"], m["check_sum_out_minus_total"])
	}
	if math.Abs(m["pagerank_sum"]-1) > 1e-3 {
		t.Errorf("pagerank_sum = %v", m["pagerank_sum"])
	}
}

func TestVariantMetricsStar(t *testing.T) {
	edges := []model.Edge{
		{Src: "A", Dst: "B", Weight: 10},
		{Src: "A", Dst: "C", Weight: 10},
		{Src: "A", Dst: "D", Weight: 10},
		{Src: "A", Dst: "E", Weight: 10},
	}
	m, errs := computeVariant(t, edges, analysis.MetricsOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected metric errors: %v", errs)
	}

	if m["total_weight"] != 40 || m["edges_unique"] != 4 {
		t.Errorf("star basics: %v / %v", m["total_weight"], m["edges_unique"])
	}
	if math.Abs(m["in_gini"]-0.2) > 1e-12 {
		t.Errorf("in_gini = %v, want 0.2", m["in_gini"])
	}
	if math.Abs(m["out_gini"]-0.8) > 1e-12 {
		t.Errorf("out_gini = %v, want 0.8", m["out_gini"])
	}
	if math.Abs(m["in_zero_share"]-0.2) > 1e-12 {
		t.Errorf("in_zero_share = %v, want 0.2", m["in_zero_share"])
	}
	// One community spans the star.
	if m["n_communities"] != 1 || m["largest_comm_share"] != 1 {
		t.Errorf("communities: n=%v share=%v", m["n_communities"], m["largest_comm_share"])
	}
	if m["echo_EI_index_weighted"] != -1 {
		t.Errorf("EI = %v, want -1 for a single community", m["echo_EI_index_weighted"])
	}
}

func TestVariantMetricsTwoTriangles(t *testing.T) {
	edges := []model.Edge{
		{Src: "a", Dst: "b", Weight: 1}, {Src: "b", Dst: "c", Weight: 1}, {Src: "c", Dst: "a", Weight: 1},
		{Src: "x", Dst: "y", Weight: 1}, {Src: "y", Dst: "z", Weight: 1}, {Src: "z", Dst: "x", Weight: 1},
	}
	m, errs := computeVariant(t, edges, analysis.MetricsOptions{ExtraCentrality: true})
	if len(errs) != 0 {
		t.Fatalf("unexpected metric errors: %v", errs)
	}

	if m["n_wcc"] != 2 || m["largest_wcc_share"] != 0.5 {
		t.Errorf("wcc: n=%v share=%v", m["n_wcc"], m["largest_wcc_share"])
	}
	if math.Abs(m["transitivity"]-1) > 1e-12 {
		t.Errorf("transitivity = %v, want 1", m["transitivity"])
	}
	if math.Abs(m["avg_clustering"]-1) > 1e-12 {
		t.Errorf("avg_clustering = %v, want 1", m["avg_clustering"])
	}
	if m["total_triangles"] != 2 {
		t.Errorf("total_triangles = %v, want 2", m["total_triangles"])
	}
	if m["leaf_share_undirected"] != 0 {
		t.Errorf("leaf_share = %v, want 0", m["leaf_share_undirected"])
	}
	if m["echo_EI_index_weighted"] != -1 {
		t.Errorf("EI = %v, want -1 (no cross-community weight)", m["echo_EI_index_weighted"])
	}
	if m["largest_comm_share"] != 0.5 {
		t.Errorf("largest_comm_share = %v, want 0.5", m["largest_comm_share"])
	}
	if m["max_core"] != 2 {
		t.Errorf("max_core = %v, want 2", m["max_core"])
	}
	if m["core_size_k2"] != 6 {
		t.Errorf("core_size_k2 = %v, want 6", m["core_size_k2"])
	}
	// Heavy centralities present with Gini/HHI.
	for _, k := range []string{"evec_gini", "evec_hhi", "betweenness_gini", "betweenness_hhi", "closeness_gini", "closeness_hhi"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing heavy centrality key %s", k)
		}
	}
}

func TestVariantMetricsReciprocal(t *testing.T) {
	edges := []model.Edge{
		{Src: "A", Dst: "B", Weight: 3},
		{Src: "B", Dst: "A", Weight: 1},
	}
	m, _ := computeVariant(t, edges, analysis.MetricsOptions{})
	if m["reciprocity"] != 1 {
		t.Errorf("reciprocity = %v, want 1", m["reciprocity"])
	}
	// n=2: density = 2/(2*1) = 1.
	if m["density"] != 1 {
		t.Errorf("density = %v, want 1", m["density"])
	}
}

func TestVariantMetricsEmptyEdges(t *testing.T) {
	m, errs := computeVariant(t, nil, analysis.MetricsOptions{})
	if len(errs) != 0 {
		t.Fatalf("empty edges produced errors: %v", errs)
	}
	if m["n_nodes"] != 0 {
		t.Errorf("n_nodes = %v, want 0", m["n_nodes"])
	}
	if len(m) != 1 {
		t.Errorf("empty variant should emit only n_nodes, got %v", m)
	}
}

func TestVariantMetricsSingleNode(t *testing.T) {
	// Self-loop only, loops kept: one node, density undefined.
	m, _ := computeVariant(t, []model.Edge{{Src: "A", Dst: "A", Weight: 2}}, analysis.MetricsOptions{})
	if m["n_nodes"] != 1 {
		t.Errorf("n_nodes = %v", m["n_nodes"])
	}
	if !math.IsNaN(m["density"]) {
		t.Errorf("density = %v, want NaN for n=1", m["density"])
	}
}

func TestEchoBlockMixing(t *testing.T) {
	// Two dense clusters with one weak bridge: within weight dominates.
	edges := []model.Edge{
		{Src: "a", Dst: "b", Weight: 10}, {Src: "b", Dst: "c", Weight: 10}, {Src: "c", Dst: "a", Weight: 10},
		{Src: "x", Dst: "y", Weight: 10}, {Src: "y", Dst: "z", Weight: 10}, {Src: "z", Dst: "x", Weight: 10},
		{Src: "a", Dst: "x", Weight: 1},
	}
	echo, parts, err := analysis.EchoBlock(&graphcap.CPUBackend{}, edges)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 6 {
		t.Fatalf("partition rows = %d, want 6", len(parts))
	}

	within := echo["echo_within_comm_weight_share"]
	between := echo["echo_between_comm_weight_share"]
	if math.Abs(within+between-1) > 1e-12 {
		t.Errorf("within+between = %v, want 1", within+between)
	}
	if math.Abs(within-60.0/61) > 1e-12 {
		t.Errorf("within share = %v, want 60/61", within)
	}
	ei := echo["echo_EI_index_weighted"]
	if ei < -1 || ei > 1 {
		t.Errorf("EI = %v out of [-1,1]", ei)
	}
	if math.Abs(ei-(1.0-60.0)/61.0) > 1e-12 {
		t.Errorf("EI = %v, want %v", ei, (1.0-60.0)/61.0)
	}
	if echo["echo_mix_entropy_src_to_dst_comm"] < 0 {
		t.Errorf("mix entropy = %v", echo["echo_mix_entropy_src_to_dst_comm"])
	}
}
