package analysis

import (
	"math"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// ValidateVariant runs the per-variant invariant checks against the
// summary built so far: strength sums reconcile with the total weight,
// density lies in [0,1], and PageRank mass is near 1. Checks whose
// inputs were never emitted (metric failed upstream) are skipped rather
// than failed; the aggregate OK is the conjunction of performed checks.
func ValidateVariant(summary model.Summary, variant string, tol float64) (bool, model.ValidationReport) {
	pref := variant + "__"
	rep := model.ValidationReport{
		Variant: variant,
		Checks:  make(map[string]any),
		OK:      true,
	}
	chk := func(name string, cond bool, details map[string]float64) {
		rep.Checks[name] = cond
		if details != nil {
			rep.Checks[name+"_details"] = details
		}
		if !cond {
			rep.OK = false
		}
	}

	tw := summaryFloat(summary, pref+"total_weight")
	dIn := summaryFloat(summary, pref+"check_sum_in_minus_total")
	dOut := summaryFloat(summary, pref+"check_sum_out_minus_total")

	if !math.IsNaN(dIn) && !math.IsNaN(tw) {
		chk("sum_in_matches_total",
			math.Abs(dIn) <= tol*math.Max(1, tw),
			map[string]float64{"diff": dIn, "tw": tw})
	}
	if !math.IsNaN(dOut) && !math.IsNaN(tw) {
		chk("sum_out_matches_total",
			math.Abs(dOut) <= tol*math.Max(1, tw),
			map[string]float64{"diff": dOut, "tw": tw})
	}

	if dens := summaryFloat(summary, pref+"density"); !math.IsNaN(dens) {
		chk("density_in_0_1",
			dens >= -1e-12 && dens <= 1+1e-12,
			map[string]float64{"density": dens})
	}

	if prSum := summaryFloat(summary, pref+"pagerank_sum"); !math.IsNaN(prSum) {
		chk("pagerank_sum_near_1",
			math.Abs(prSum-1) <= 1e-3,
			map[string]float64{"pagerank_sum": prSum})
	}

	return rep.OK, rep
}

// summaryFloat reads a numeric summary entry, returning NaN when the key
// is absent or non-numeric.
func summaryFloat(s model.Summary, key string) float64 {
	v, ok := s[key]
	if !ok {
		return math.NaN()
	}
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return math.NaN()
	}
}
