package analysis

import (
	"math"
	"strconv"

	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/metrics"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/stats"
)

// MetricsOptions controls the optional parts of the variant engine.
type MetricsOptions struct {
	ExtraCentrality bool
	SaveNodeTables  bool
}

// VariantResult carries the flat metric map for one variant plus the
// per-node tables populated when SaveNodeTables is set.
type VariantResult struct {
	Metrics map[string]float64

	Degrees     []model.DegreeRow
	Strengths   []model.StrengthRow
	PageRank    []model.ScoreRow
	Cores       []model.CoreRow
	Triangles   []model.TriangleRow
	Eigenvector []model.ScoreRow
	Betweenness []model.ScoreRow
	Closeness   []model.ScoreRow
	Partitions  []model.PartitionRow
}

// VariantMetrics computes every metric family for one variant edge set.
// Keys in the returned map are unprefixed; the window engine attaches
// the "<variant>__" prefix. Individual family failures are recorded in
// errs under "<variant>__<tag>" and never abort the variant.
func VariantMetrics(b graphcap.Backend, edges []model.Edge, variant string,
	opts MetricsOptions, errs map[string]string) VariantResult {

	defer metrics.Timer(metrics.VariantMetrics)()

	pref := variant + "__"
	res := VariantResult{Metrics: make(map[string]float64, 128)}
	out := res.Metrics

	if len(edges) == 0 {
		out["n_nodes"] = 0
		return res
	}

	h, err := b.FromEdges(edges)
	if err != nil {
		errs[pref+"graph_build"] = err.Error()
		return res
	}
	n := h.NumVertices()
	totalWeight := 0.0
	for _, e := range edges {
		totalWeight += float64(e.Weight)
	}

	out["n_nodes"] = float64(n)
	out["edges_unique"] = float64(len(edges))
	out["total_weight"] = totalWeight
	if n > 1 {
		out["density"] = float64(len(edges)) / (float64(n) * float64(n-1))
	} else {
		out["density"] = math.NaN()
	}

	// Unweighted degrees for Freeman centralization.
	if inDeg, outDeg, err := b.Degrees(h, false); err != nil {
		errs[pref+"deg_centralization"] = err.Error()
	} else {
		out["in_deg_centralization"] = stats.FreemanCentralization(inDeg)
		out["out_deg_centralization"] = stats.FreemanCentralization(outDeg)
		if opts.SaveNodeTables {
			res.Degrees = make([]model.DegreeRow, n)
			for i := 0; i < n; i++ {
				res.Degrees[i] = model.DegreeRow{
					Vertex: h.Label(int32(i)),
					InDeg:  int64(inDeg[i]),
					OutDeg: int64(outDeg[i]),
				}
			}
		}
	}

	// Strengths (weighted degrees): dominance and concentration packs.
	if inS, outS, err := b.Degrees(h, true); err != nil {
		errs[pref+"strengths"] = err.Error()
	} else {
		mergeInto(out, stats.Pack("in", inS))
		mergeInto(out, stats.Pack("out", outS))
		mergeInto(out, stats.ConcPack("in", inS))
		mergeInto(out, stats.ConcPack("out", outS))
		out["in_zero_share"] = stats.ZeroShare(inS)
		out["out_zero_share"] = stats.ZeroShare(outS)
		out["check_sum_in_minus_total"] = stats.Sum(inS) - totalWeight
		out["check_sum_out_minus_total"] = stats.Sum(outS) - totalWeight
		if opts.SaveNodeTables {
			res.Strengths = make([]model.StrengthRow, n)
			for i := 0; i < n; i++ {
				res.Strengths[i] = model.StrengthRow{
					Vertex:      h.Label(int32(i)),
					InStrength:  inS[i],
					OutStrength: outS[i],
				}
			}
		}
	}

	out["reciprocity"] = reciprocity(edges)

	// Fragmentation: weak and strong component size distributions.
	if labels, err := b.WeaklyCC(h); err != nil {
		errs[pref+"wcc"] = err.Error()
	} else {
		sizes := componentSizes(labels)
		out["n_wcc"] = float64(len(sizes))
		out["largest_wcc_share"] = maxOf(sizes) / float64(n)
		out["wcc_size_hhi"] = stats.HHI(sizes)
		out["wcc_size_gini"] = stats.Gini(sizes)
		out["wcc_size_entropy"] = stats.ShareEntropy(sizes)
		out["wcc_top5_share"] = stats.TopShare(sizes, 5.0/float64(len(sizes)))
	}
	if labels, err := b.StronglyCC(h); err != nil {
		errs[pref+"scc"] = err.Error()
	} else {
		sizes := componentSizes(labels)
		out["n_scc"] = float64(len(sizes))
		out["largest_scc_share"] = maxOf(sizes) / float64(n)
		out["scc_size_hhi"] = stats.HHI(sizes)
		out["scc_size_gini"] = stats.Gini(sizes)
		out["scc_size_entropy"] = stats.ShareEntropy(sizes)
	}

	// PageRank influence distribution.
	if pr, err := pagerankTimed(b, h); err != nil {
		errs[pref+"pagerank"] = err.Error()
	} else if pr != nil {
		mergeInto(out, stats.Pack("pagerank", pr))
		mergeInto(out, stats.ConcPack("pagerank", pr))
		out["pagerank_sum"] = stats.Sum(pr)
		if opts.SaveNodeTables {
			res.PageRank = scoreRows(h, pr)
		}
	}

	// Undirected block: communities, cores, triangles/clustering.
	if part, modularity, err := louvainTimed(b, h); err != nil {
		errs[pref+"louvain"] = err.Error()
	} else if part != nil {
		sizes := componentSizes(part)
		out["modularity"] = modularity
		out["n_communities"] = float64(len(sizes))
		out["comm_size_hhi"] = stats.HHI(sizes)
		out["comm_size_gini"] = stats.Gini(sizes)
		out["comm_size_entropy"] = stats.ShareEntropy(sizes)
		out["largest_comm_share"] = maxOf(sizes) / float64(n)
	}

	if core, err := b.CoreNumbers(h); err != nil {
		errs[pref+"core_number"] = err.Error()
	} else if core != nil {
		maxCore := int32(0)
		for _, c := range core {
			if c > maxCore {
				maxCore = c
			}
		}
		out["max_core"] = float64(maxCore)
		for k := 2; k <= 10; k++ {
			cnt := 0
			for _, c := range core {
				if int(c) >= k {
					cnt++
				}
			}
			out["core_size_k"+strconv.Itoa(k)] = float64(cnt)
		}
		if opts.SaveNodeTables {
			res.Cores = make([]model.CoreRow, n)
			for i := 0; i < n; i++ {
				res.Cores[i] = model.CoreRow{Vertex: h.Label(int32(i)), CoreNumber: core[i]}
			}
		}
	}

	if tri, deg, err := b.TrianglesPerVertex(h); err != nil {
		errs[pref+"clustering"] = err.Error()
	} else if deg != nil {
		triplets := 0.0
		totalTri := 0.0
		local := 0.0
		leaves := 0
		for i := range deg {
			d := float64(deg[i])
			triplets += d * (d - 1) / 2
			totalTri += float64(tri[i])
			if deg[i] == 1 {
				leaves++
			}
			if d >= 2 {
				local += 2 * float64(tri[i]) / (d * (d - 1))
			}
		}
		totalTri /= 3
		out["total_triangles"] = totalTri
		if triplets > 0 {
			out["transitivity"] = 3 * totalTri / triplets
		} else {
			out["transitivity"] = math.NaN()
		}
		out["avg_clustering"] = local / float64(n)
		out["leaf_share_undirected"] = float64(leaves) / float64(n)
		if opts.SaveNodeTables {
			res.Triangles = make([]model.TriangleRow, n)
			for i := 0; i < n; i++ {
				res.Triangles[i] = model.TriangleRow{
					Vertex:    h.Label(int32(i)),
					Degree:    deg[i],
					Triangles: tri[i],
				}
			}
		}
	}

	// Optional heavy centralities report their concentration only.
	if opts.ExtraCentrality {
		if ev, err := b.Eigenvector(h); err != nil {
			errs[pref+"eigenvector"] = err.Error()
		} else if ev != nil {
			out["evec_gini"] = stats.Gini(ev)
			out["evec_hhi"] = stats.HHI(ev)
			if opts.SaveNodeTables {
				res.Eigenvector = scoreRows(h, ev)
			}
		}
		if bc, err := b.Betweenness(h); err != nil {
			errs[pref+"betweenness"] = err.Error()
		} else if bc != nil {
			out["betweenness_gini"] = stats.Gini(bc)
			out["betweenness_hhi"] = stats.HHI(bc)
			if opts.SaveNodeTables {
				res.Betweenness = scoreRows(h, bc)
			}
		}
		if cc, err := b.Closeness(h); err != nil {
			errs[pref+"closeness"] = err.Error()
		} else if cc != nil {
			out["closeness_gini"] = stats.Gini(cc)
			out["closeness_hhi"] = stats.HHI(cc)
			if opts.SaveNodeTables {
				res.Closeness = scoreRows(h, cc)
			}
		}
	}

	// Echo chamber block on a fresh handle of the variant edges: its edges
	// and partition labels are both indexed by that handle's dense ids.
	if echo, parts, err := EchoBlock(b, edges); err != nil {
		errs[pref+"echo_factorized"] = err.Error()
	} else {
		mergeInto(out, echo)
		if opts.SaveNodeTables {
			res.Partitions = parts
		}
	}

	return res
}

func mergeInto(dst map[string]float64, src map[string]float64) {
	for k, v := range src {
		dst[k] = v
	}
}

// reciprocity is the share of unique edges whose reverse edge exists.
func reciprocity(edges []model.Edge) float64 {
	if len(edges) == 0 {
		return math.NaN()
	}
	type pair struct{ a, b string }
	seen := make(map[pair]struct{}, len(edges))
	for _, e := range edges {
		seen[pair{e.Src, e.Dst}] = struct{}{}
	}
	mutual := 0
	for _, e := range edges {
		if _, ok := seen[pair{e.Dst, e.Src}]; ok {
			mutual++
		}
	}
	return float64(mutual) / float64(len(edges))
}

// componentSizes turns dense component labels into a size vector.
func componentSizes(labels []int32) []float64 {
	if len(labels) == 0 {
		return nil
	}
	maxLabel := int32(0)
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	sizes := make([]float64, maxLabel+1)
	for _, l := range labels {
		sizes[l]++
	}
	return sizes
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func scoreRows(h *graphcap.Handle, scores []float64) []model.ScoreRow {
	rows := make([]model.ScoreRow, len(scores))
	for i := range scores {
		rows[i] = model.ScoreRow{Vertex: h.Label(int32(i)), Value: scores[i]}
	}
	return rows
}

func pagerankTimed(b graphcap.Backend, h *graphcap.Handle) ([]float64, error) {
	defer metrics.Timer(metrics.PageRankCompute)()
	return b.PageRank(h, 0.85, 1e-6)
}

func louvainTimed(b graphcap.Backend, h *graphcap.Handle) ([]int32, float64, error) {
	defer metrics.Timer(metrics.LouvainCompute)()
	return b.Louvain(h)
}
