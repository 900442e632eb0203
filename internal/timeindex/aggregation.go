package timeindex

import (
	"errors"
	"fmt"
)

// Aggregation is the output of a time-series clustering run: P typical
// periods of K steps each, the typical period assigned to every original
// period, and how often each typical period occurs.
type Aggregation struct {
	StepsPerPeriod int
	Order          []int
	Occurrences    []int
}

// TypicalPeriods is the number of distinct typical periods.
func (a *Aggregation) TypicalPeriods() int {
	return len(a.Occurrences)
}

func (a *Aggregation) validate() error {
	if a.StepsPerPeriod <= 0 {
		return errors.New("steps per typical period must be > 0")
	}
	if len(a.Order) == 0 {
		return errors.New("aggregation order is empty")
	}
	maxTyp := -1
	for i, p := range a.Order {
		if p < 0 {
			return fmt.Errorf("order[%d] = %d is negative", i, p)
		}
		if p > maxTyp {
			maxTyp = p
		}
	}
	counts := make([]int, maxTyp+1)
	for _, p := range a.Order {
		counts[p]++
	}
	if a.Occurrences == nil {
		a.Occurrences = counts
		return nil
	}
	if len(a.Occurrences) < len(counts) {
		return fmt.Errorf("order refers to typical period %d but only %d occurrences are given", maxTyp, len(a.Occurrences))
	}
	for p, n := range a.Occurrences {
		c := 0
		if p < len(counts) {
			c = counts[p]
		}
		if n != c {
			return fmt.Errorf("typical period %d occurs %d times in order but occurrences says %d", p, c, n)
		}
	}
	return nil
}

// WithAggregation returns a copy of ti interpreted as P·K typical-period
// steps. The number of steps of ti must equal P·K.
func (ti *TimeIndex) WithAggregation(a Aggregation) (*TimeIndex, error) {
	if ti.IsMultiPeriod() {
		return nil, errors.New("typical periods cannot be combined with multi-period time indexes")
	}
	cp := Aggregation{
		StepsPerPeriod: a.StepsPerPeriod,
		Order:          append([]int(nil), a.Order...),
	}
	if a.Occurrences != nil {
		cp.Occurrences = append([]int(nil), a.Occurrences...)
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	if want := cp.TypicalPeriods() * cp.StepsPerPeriod; ti.N() != want {
		return nil, fmt.Errorf("typical-period axis needs %d steps (%d periods x %d), got %d",
			want, cp.TypicalPeriods(), cp.StepsPerPeriod, ti.N())
	}
	out := *ti
	out.agg = &cp
	return &out, nil
}

func (ti *TimeIndex) IsAggregated() bool { return ti.agg != nil }

// Aggregation returns the typical-period metadata or nil.
func (ti *TimeIndex) Aggregation() *Aggregation { return ti.agg }

// Weight is the occurrence count of the typical period holding step t, or 1.
func (ti *TimeIndex) Weight(t int) float64 {
	if ti.agg == nil {
		return 1
	}
	typ, _ := ti.Split(t)
	return float64(ti.agg.Occurrences[typ])
}

// Split maps a model step to (typical period, intra-period step).
func (ti *TimeIndex) Split(t int) (int, int) {
	if ti.agg == nil {
		return 0, t
	}
	k := ti.agg.StepsPerPeriod
	return t / k, t % k
}

// Step maps (typical period, intra-period step) back to the model step.
func (ti *TimeIndex) Step(typ, k int) int {
	if ti.agg == nil {
		return k
	}
	return typ*ti.agg.StepsPerPeriod + k
}

// OriginalSteps is the length of the disaggregated axis.
func (ti *TimeIndex) OriginalSteps() int {
	if ti.agg == nil {
		return ti.N()
	}
	return len(ti.agg.Order) * ti.agg.StepsPerPeriod
}

// Expand maps a series on the model steps to the original axis by repeating
// typical periods along the order.
func (ti *TimeIndex) Expand(series []float64) []float64 {
	if ti.agg == nil {
		return append([]float64(nil), series...)
	}
	k := ti.agg.StepsPerPeriod
	out := make([]float64, 0, ti.OriginalSteps())
	for _, typ := range ti.agg.Order {
		out = append(out, series[typ*k:(typ+1)*k]...)
	}
	return out
}
