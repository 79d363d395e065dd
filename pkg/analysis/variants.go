package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sergiubuhatel/ra2/pkg/model"
)

// Variant is one weight-definition rule applied to the base edges.
type Variant struct {
	Name      string
	threshold int64 // thrK cutoff; 0 for base/unweighted
}

// ParseVariants validates a variant name list and prepends "base" when
// it is missing. Recognized names: base, unweighted, thrK (K >= 1).
func ParseVariants(names []string) ([]Variant, error) {
	hasBase := false
	for _, n := range names {
		if n == "base" {
			hasBase = true
		}
	}
	if !hasBase {
		names = append([]string{"base"}, names...)
	}

	out := make([]Variant, 0, len(names))
	for _, n := range names {
		switch {
		case n == "base", n == "unweighted":
			out = append(out, Variant{Name: n})
		case strings.HasPrefix(n, "thr"):
			k, err := strconv.ParseInt(strings.TrimPrefix(n, "thr"), 10, 64)
			if err != nil || k < 1 {
				return nil, fmt.Errorf("invalid threshold variant %q", n)
			}
			out = append(out, Variant{Name: n, threshold: k})
		default:
			return nil, fmt.Errorf("unknown variant %q", n)
		}
	}
	return out, nil
}

// Apply derives the variant edge set from the base edges. The base
// slice is never mutated; base returns it unchanged.
func (v Variant) Apply(base []model.Edge) []model.Edge {
	switch {
	case v.Name == "unweighted":
		out := make([]model.Edge, len(base))
		for i, e := range base {
			e.Weight = 1
			out[i] = e
		}
		return out
	case v.threshold > 0:
		var out []model.Edge
		for _, e := range base {
			if e.Weight >= v.threshold {
				out = append(out, e)
			}
		}
		return out
	default:
		return base
	}
}
