package analysis

import (
	"sort"

	"energy-dispatch/internal/results"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FlowSummary is a flow-level summary you can use for ranking.
// Quantiles are taken over steps without duration weighting; Energy and
// FullLoadHours integrate over the step durations.
type FlowSummary struct {
	Key results.Key

	Count int

	Min  float64
	Max  float64
	Mean float64
	P05  float64
	P95  float64

	// Energy is Σ P(t)·τ(t).
	Energy float64
	// FullLoadHours is Energy divided by the peak flow, 0 for an idle flow.
	FullLoadHours float64
}

// Summarize computes a FlowSummary per flow of r in flow order.
func Summarize(r *results.Results) []FlowSummary {
	out := make([]FlowSummary, 0, len(r.FlowKeys))
	for _, k := range r.FlowKeys {
		out = append(out, summarizeFlow(k, r.Flows[k], r.Increments))
	}
	return out
}

func summarizeFlow(k results.Key, values, increments []float64) FlowSummary {
	s := FlowSummary{Key: k, Count: len(values)}
	if len(values) == 0 {
		return s
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Mean = stat.Mean(values, nil)
	s.P05 = stat.Quantile(0.05, stat.LinInterp, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.LinInterp, sorted, nil)

	s.Energy = floats.Dot(values, increments)
	if s.Max > 0 {
		s.FullLoadHours = s.Energy / s.Max
	}
	return s
}

// RankByFullLoadHours sorts summaries descending by FullLoadHours, then by
// flow label.
func RankByFullLoadHours(summaries []FlowSummary) []FlowSummary {
	out := append([]FlowSummary(nil), summaries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FullLoadHours != out[j].FullLoadHours {
			return out[i].FullLoadHours > out[j].FullLoadHours
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}
