package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sergiubuhatel/ra2/pkg/metrics"
	"github.com/sergiubuhatel/ra2/pkg/model"
	"github.com/sergiubuhatel/ra2/pkg/stats"
)

var diffusionKeys = []string{
	"t10_hours", "t50_hours", "t90_hours",
	"nodes_t10_hours", "nodes_t50_hours", "nodes_t90_hours",
	"src_t10_hours", "src_t50_hours", "src_t90_hours",
	"dst_t10_hours", "dst_t50_hours", "dst_t90_hours",
	"time_to_peak_hours", "post_peak_half_life_hours",
	"early_log_cum_events_slope",
}

var binPattern = regexp.MustCompile(`^(\d+)([smhdSMHD])`)

// ParseBin parses a diffusion bin width like "10min", "30s", "1H", "1d".
// Only the leading digits and first unit letter matter, matching the
// schedule strings the pipeline has historically accepted.
func ParseBin(s string) (time.Duration, error) {
	m := binPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid diff bin %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid diff bin %q", s)
	}
	unitSeconds := map[string]int{"s": 1, "m": 60, "h": 3600, "d": 86400}
	sec := unitSeconds[strings.ToLower(m[2])]
	return time.Duration(n) * time.Duration(sec) * time.Second, nil
}

// Diffusion computes the adoption/timing metrics on events sorted by
// timestamp: event and unique-node quantile times, peak timing,
// post-peak half-life, and the early log-cumulative growth slope.
// All times are hours relative to the first event; bins are floored
// against the first event so results do not depend on window offset.
func Diffusion(events []model.Event, bin time.Duration, growthWindowHours float64) map[string]float64 {
	defer metrics.Timer(metrics.DiffusionCompute)()

	out := make(map[string]float64, len(diffusionKeys))
	if len(events) == 0 {
		for _, k := range diffusionKeys {
			out[k] = math.NaN()
		}
		return out
	}

	t0 := events[0].TS
	hours := func(t time.Time) float64 {
		return t.Sub(t0).Seconds() / 3600.0
	}
	floorBin := func(t time.Time) time.Time {
		return t0.Add((t.Sub(t0) / bin) * bin)
	}

	// Event quantile times: timestamp of the ceil(q*N)-th event.
	n := len(events)
	timeToFrac := func(frac float64) time.Time {
		k := int(math.Ceil(frac * float64(n)))
		if k < 1 {
			k = 1
		}
		return events[k-1].TS
	}
	out["t10_hours"] = hours(timeToFrac(0.10))
	out["t50_hours"] = hours(timeToFrac(0.50))
	out["t90_hours"] = hours(timeToFrac(0.90))

	// Binned event counts.
	counts := make(map[time.Time]int)
	for _, ev := range events {
		counts[floorBin(ev.TS)]++
	}
	bins := make([]time.Time, 0, len(counts))
	for b := range counts {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].Before(bins[j]) })

	// Peak timing: earliest bin holding the maximum count.
	peakT := bins[0]
	peakN := counts[peakT]
	for _, b := range bins[1:] {
		if counts[b] > peakN {
			peakT, peakN = b, counts[b]
		}
	}
	out["time_to_peak_hours"] = hours(peakT)

	// Post-peak half-life: first later bin whose count <= half the peak.
	out["post_peak_half_life_hours"] = math.NaN()
	half := 0.5 * float64(peakN)
	for _, b := range bins {
		if b.After(peakT) && float64(counts[b]) <= half {
			out["post_peak_half_life_hours"] = b.Sub(peakT).Seconds() / 3600.0
			break
		}
	}

	// Adoption curves for unique nodes / sources / targets: bin each
	// id's first appearance, cumulate, and locate the first bin whose
	// cumulative count reaches q*total.
	srcFirst := firstAppearance(events, func(ev model.Event) string { return ev.Src })
	dstFirst := firstAppearance(events, func(ev model.Event) string { return ev.Dst })
	nodeFirst := make(map[string]time.Time, len(srcFirst)+len(dstFirst))
	for id, t := range srcFirst {
		nodeFirst[id] = t
	}
	for id, t := range dstFirst {
		if prev, ok := nodeFirst[id]; !ok || t.Before(prev) {
			nodeFirst[id] = t
		}
	}
	adoptionTimes(out, "nodes", nodeFirst, floorBin, hours)
	adoptionTimes(out, "src", srcFirst, floorBin, hours)
	adoptionTimes(out, "dst", dstFirst, floorBin, hours)

	// Early growth: OLS slope of log(cum events) vs t_hours over bins
	// within the growth window.
	var xs, ys []float64
	cum := 0
	for _, b := range bins {
		cum += counts[b]
		th := hours(b)
		if th > growthWindowHours {
			break
		}
		if cum > 0 {
			xs = append(xs, th)
			ys = append(ys, math.Log(float64(cum)))
		}
	}
	out["early_log_cum_events_slope"] = stats.OLSSlope(xs, ys)

	return out
}

// firstAppearance maps each id to its earliest event timestamp. Events
// are already time-sorted, so the first sighting wins.
func firstAppearance(events []model.Event, id func(model.Event) string) map[string]time.Time {
	first := make(map[string]time.Time)
	for _, ev := range events {
		k := id(ev)
		if _, ok := first[k]; !ok {
			first[k] = ev.TS
		}
	}
	return first
}

func adoptionTimes(out map[string]float64, prefix string, first map[string]time.Time,
	floorBin func(time.Time) time.Time, hours func(time.Time) float64) {

	total := len(first)
	if total == 0 {
		out[prefix+"_t10_hours"] = math.NaN()
		out[prefix+"_t50_hours"] = math.NaN()
		out[prefix+"_t90_hours"] = math.NaN()
		return
	}

	counts := make(map[time.Time]int)
	for _, t := range first {
		counts[floorBin(t)]++
	}
	bins := make([]time.Time, 0, len(counts))
	for b := range counts {
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].Before(bins[j]) })

	tAt := func(frac float64) float64 {
		target := frac * float64(total)
		cum := 0
		for _, b := range bins {
			cum += counts[b]
			if float64(cum) >= target {
				return hours(b)
			}
		}
		return hours(bins[len(bins)-1])
	}
	out[prefix+"_t10_hours"] = tAt(0.10)
	out[prefix+"_t50_hours"] = tAt(0.50)
	out[prefix+"_t90_hours"] = tAt(0.90)
}
