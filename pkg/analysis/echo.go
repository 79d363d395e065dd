package analysis

import (
	"math"

	"github.com/sergiubuhatel/ra2/pkg/graphcap"
	"github.com/sergiubuhatel/ra2/pkg/metrics"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/stats"
)

// EchoBlock runs community detection on a fresh handle built from the
// variant edges and derives the echo-chamber mixing metrics from it. The
// dense ids are the ones the backend's FromEdges assigns (first
// appearance, all sources before all destinations); the engine does not
// factorize the labels itself. Edges (EdgeArrays) and partition labels
// (Louvain) are both read from that one handle, so the join between them
// stays in a single integer id space.
//
// Returned keys: modularity_factorized plus the echo_* family.
func EchoBlock(b graphcap.Backend, edges []model.Edge) (map[string]float64, []model.PartitionRow, error) {
	defer metrics.Timer(metrics.EchoCompute)()

	h, err := b.FromEdges(edges)
	if err != nil {
		return nil, nil, err
	}
	part, modularity, err := louvainTimed(b, h)
	if err != nil {
		return nil, nil, err
	}

	out := map[string]float64{"modularity_factorized": modularity}
	mergeInto(out, echoMetrics(h, part))

	rows := make([]model.PartitionRow, len(part))
	for i, p := range part {
		rows[i] = model.PartitionRow{Vertex: int32(i), Partition: p}
	}
	return out, rows, nil
}

// echoMetrics computes within/between weight shares, the weighted EI
// index, community size and attention concentration, and the weighted
// row entropy of the community-to-community mixing matrix.
func echoMetrics(h *graphcap.Handle, part []int32) map[string]float64 {
	keys := []string{
		"within_comm_weight_share", "between_comm_weight_share",
		"EI_index_weighted", "mix_entropy_src_to_dst_comm",
		"comm_size_hhi", "comm_size_gini", "comm_size_entropy",
		"comm_attention_hhi", "comm_attention_gini", "comm_attention_entropy",
		"largest_comm_attention_share",
	}
	out := make(map[string]float64, len(keys)+1)
	nan := func() {
		for _, k := range keys {
			out["echo_"+k] = math.NaN()
		}
	}
	if h.NumEdges() == 0 || len(part) == 0 {
		nan()
		return out
	}

	type cpair struct{ src, dst int32 }
	var within, between float64
	mix := make(map[cpair]float64)
	attention := make(map[int32]float64)
	totalByRow := make(map[int32]float64)

	src, dst, w := h.EdgeArrays()
	for i := range src {
		cs, cd := part[src[i]], part[dst[i]]
		if cs == cd {
			within += w[i]
			attention[cs] += w[i]
		} else {
			between += w[i]
		}
		mix[cpair{cs, cd}] += w[i]
		totalByRow[cs] += w[i]
	}
	tot := within + between
	if tot <= 0 {
		nan()
		return out
	}

	out["echo_within_comm_weight_share"] = within / tot
	out["echo_between_comm_weight_share"] = between / tot
	out["echo_EI_index_weighted"] = (between - within) / tot

	sizes := componentSizes(part)
	out["echo_comm_size_hhi"] = stats.HHI(sizes)
	out["echo_comm_size_gini"] = stats.Gini(sizes)
	out["echo_comm_size_entropy"] = stats.ShareEntropy(sizes)

	if len(attention) == 0 {
		out["echo_comm_attention_hhi"] = math.NaN()
		out["echo_comm_attention_gini"] = math.NaN()
		out["echo_comm_attention_entropy"] = math.NaN()
		out["echo_largest_comm_attention_share"] = math.NaN()
	} else {
		att := make([]float64, 0, len(attention))
		attSum, attMax := 0.0, 0.0
		for _, v := range attention {
			att = append(att, v)
			attSum += v
			if v > attMax {
				attMax = v
			}
		}
		out["echo_comm_attention_hhi"] = stats.HHI(att)
		out["echo_comm_attention_gini"] = stats.Gini(att)
		out["echo_comm_attention_entropy"] = stats.ShareEntropy(att)
		out["echo_largest_comm_attention_share"] = attMax / attSum
	}

	// Mixing entropy: row entropy of the per-source-community target
	// distribution, averaged weighted by row mass.
	rowEntropy := make(map[int32]float64)
	for k, v := range mix {
		rowW := totalByRow[k.src]
		if rowW <= 0 {
			continue
		}
		p := v / rowW
		if p > 0 {
			rowEntropy[k.src] -= p * math.Log(p)
		}
	}
	var hSum, wSum float64
	for cs, hRow := range rowEntropy {
		hSum += hRow * totalByRow[cs]
		wSum += totalByRow[cs]
	}
	if wSum > 0 {
		out["echo_mix_entropy_src_to_dst_comm"] = hSum / wSum
	} else {
		out["echo_mix_entropy_src_to_dst_comm"] = math.NaN()
	}

	return out
}
