// Package stats implements the descriptive-statistics and concentration
// measures emitted per window: moment/quantile packs, Gini, HHI, share
// entropy, Theil, top-k shares, Freeman degree centralization, and the
// least-squares slope used for early growth fitting.
//
// Conventions: empty inputs yield NaN (Sum excepted, which yields 0).
// Gini, HHI and top-k shares yield 0 when the total is nonpositive;
// share entropy and Theil yield NaN there. Inputs are never mutated;
// sorting happens on copies.
package stats

import (
	"math"
	"sort"
	"strconv"
)

var quantileProbes = []float64{0.25, 0.50, 0.75, 0.90, 0.95, 0.99}

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// Std returns the sample standard deviation (ddof=1), or NaN when fewer
// than two values are present.
func Std(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}
	mu := Mean(xs)
	ss := 0.0
	for _, v := range xs {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Quantile returns the q-th quantile with linear interpolation between
// order statistics, matching the dataframe default the summaries were
// historically produced with.
func Quantile(xs []float64, q float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if q <= 0 {
		return s[0]
	}
	if q >= 1 {
		return s[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}

// Pack returns the standard stats pack: mean, std, min, max and the
// 25/50/75/90/95/99 quantiles, keyed "<prefix>_mean" etc.
func Pack(prefix string, xs []float64) map[string]float64 {
	out := map[string]float64{
		prefix + "_mean": Mean(xs),
		prefix + "_std":  Std(xs),
		prefix + "_min":  math.NaN(),
		prefix + "_max":  math.NaN(),
	}
	if len(xs) > 0 {
		mn, mx := xs[0], xs[0]
		for _, v := range xs[1:] {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		out[prefix+"_min"] = mn
		out[prefix+"_max"] = mx
	}
	for _, q := range quantileProbes {
		out[prefix+"_q"+strconv.Itoa(int(math.Round(q*100)))] = Quantile(xs, q)
	}
	return out
}

// Gini computes the Gini coefficient over nonnegative values:
// G = 2*sum(i*x_(i))/(n*S) - (n+1)/n on the ascending-sorted values.
// Tiny negatives from float error are clamped to 0.
func Gini(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, v := range xs {
		total += v
	}
	if total <= 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	acc := 0.0
	for i, v := range s {
		acc += float64(i+1) * v
	}
	g := 2*acc/(float64(n)*total) - (float64(n)+1)/float64(n)
	if g < 0 && g > -1e-12 {
		g = 0
	}
	return g
}

// HHI is the Herfindahl–Hirschman index of the share distribution.
func HHI(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, v := range xs {
		total += v
	}
	if total <= 0 {
		return 0
	}
	h := 0.0
	for _, v := range xs {
		p := v / total
		h += p * p
	}
	return h
}

// ShareEntropy is the Shannon entropy (natural log) of the shares
// p_i = x_i/S, summed over positive shares only.
func ShareEntropy(xs []float64) float64 {
	total := 0.0
	for _, v := range xs {
		total += v
	}
	if len(xs) == 0 || total <= 0 {
		return math.NaN()
	}
	h := 0.0
	for _, v := range xs {
		p := v / total
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// Theil is the Theil index on shares: T = sum p_i * ln(p_i * n).
func Theil(xs []float64) float64 {
	n := len(xs)
	total := 0.0
	for _, v := range xs {
		total += v
	}
	if n == 0 || total <= 0 {
		return math.NaN()
	}
	t := 0.0
	for _, v := range xs {
		p := v / total
		if p > 0 {
			t += p * math.Log(p*float64(n))
		}
	}
	return t
}

// TopShare returns the share of the total held by the largest
// k = max(1, ceil(frac*n)) values.
func TopShare(xs []float64, frac float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, v := range xs {
		total += v
	}
	if total <= 0 {
		return 0
	}
	k := int(math.Ceil(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	s := append([]float64(nil), xs...)
	sort.Sort(sort.Reverse(sort.Float64Slice(s)))
	top := 0.0
	for _, v := range s[:k] {
		top += v
	}
	return top / total
}

// ConcPack returns the standard concentration pack: Gini, HHI, share
// entropy, Theil, top-1/5/10% shares and the single largest share,
// keyed "<prefix>_gini" etc.
func ConcPack(prefix string, xs []float64) map[string]float64 {
	maxFrac := math.NaN()
	if n := len(xs); n > 0 {
		maxFrac = 1.0 / float64(n)
	}
	return map[string]float64{
		prefix + "_gini":        Gini(xs),
		prefix + "_hhi":         HHI(xs),
		prefix + "_entropy":     ShareEntropy(xs),
		prefix + "_theil":       Theil(xs),
		prefix + "_top1_share":  TopShare(xs, 0.01),
		prefix + "_top5_share":  TopShare(xs, 0.05),
		prefix + "_top10_share": TopShare(xs, 0.10),
		prefix + "_max_share":   TopShare(xs, maxFrac),
	}
}

// FreemanCentralization computes C = sum(max - d_i) / ((n-1)(n-2)) over a
// degree vector. NaN when n < 3.
func FreemanCentralization(degrees []float64) float64 {
	n := len(degrees)
	if n < 3 {
		return math.NaN()
	}
	dmax := degrees[0]
	for _, d := range degrees[1:] {
		if d > dmax {
			dmax = d
		}
	}
	num := 0.0
	for _, d := range degrees {
		num += dmax - d
	}
	denom := float64(n-1) * float64(n-2)
	return num / denom
}

// OLSSlope fits y = a + b*x by ordinary least squares and returns b.
// NaN when fewer than 3 points are given or x has zero variance.
func OLSSlope(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 3 {
		return math.NaN()
	}
	xmu := Mean(x)
	ymu := Mean(y)
	cov, varx := 0.0, 0.0
	for i := range x {
		dx := x[i] - xmu
		cov += dx * (y[i] - ymu)
		varx += dx * dx
	}
	if varx <= 0 {
		return math.NaN()
	}
	return cov / varx
}

// ZeroShare is the fraction of entries equal to zero.
func ZeroShare(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	z := 0
	for _, v := range xs {
		if v == 0 {
			z++
		}
	}
	return float64(z) / float64(len(xs))
}

// Sum returns the plain sum of the slice.
func Sum(xs []float64) float64 {
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s
}
