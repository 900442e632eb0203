package timeindex

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TimeIndex is the discrete time grid of a model.
// Units:
// - increments: hours per timestep
// - period years: calendar years, offsets relative to the first period
//
// Steps are indexed 0..N-1, timepoints 0..N.
type TimeIndex struct {
	increments []float64
	stamps     []time.Time

	periods  []Period
	periodOf []int

	agg *Aggregation
}

// Period is a contiguous slice [Start, End) of timesteps sharing one set of
// investment decisions.
type Period struct {
	Year  int
	Start int
	End   int
}

// New builds a time index from explicit interval durations in hours.
func New(increments []float64) (*TimeIndex, error) {
	if len(increments) == 0 {
		return nil, errors.New("time index needs at least one timestep")
	}
	for t, d := range increments {
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("timestep %d: duration must be > 0 and finite, got %g", t, d)
		}
	}
	cp := make([]float64, len(increments))
	copy(cp, increments)
	return &TimeIndex{increments: cp}, nil
}

// Uniform builds n timesteps of equal length.
func Uniform(n int, hours float64) (*TimeIndex, error) {
	if n <= 0 {
		return nil, errors.New("time index needs at least one timestep")
	}
	inc := make([]float64, n)
	for i := range inc {
		inc[i] = hours
	}
	return New(inc)
}

// FromTimestamps derives durations from consecutive instants. With
// inferLastInterval the final instant opens one more interval whose length
// equals the constant spacing of the series; the spacing must then be
// uniform.
func FromTimestamps(stamps []time.Time, inferLastInterval bool) (*TimeIndex, error) {
	if len(stamps) < 2 && !(inferLastInterval && len(stamps) == 1) {
		return nil, errors.New("need at least two timestamps, or one with an inferred last interval")
	}
	inc := make([]float64, 0, len(stamps))
	for i := 1; i < len(stamps); i++ {
		inc = append(inc, stamps[i].Sub(stamps[i-1]).Hours())
	}
	if inferLastInterval {
		if len(inc) == 0 {
			return nil, errors.New("cannot infer interval length from a single timestamp")
		}
		freq := inc[0]
		for t, d := range inc {
			if math.Abs(d-freq) > 1e-9 {
				return nil, fmt.Errorf("cannot infer last interval: spacing at step %d is %gh, expected %gh", t, d, freq)
			}
		}
		inc = append(inc, freq)
	}
	ti, err := New(inc)
	if err != nil {
		return nil, err
	}
	ti.stamps = append([]time.Time(nil), stamps...)
	if !inferLastInterval {
		ti.stamps = ti.stamps[:len(ti.stamps)-1]
	}
	return ti, nil
}

// Range returns n instants starting at start spaced by freq.
func Range(start time.Time, n int, freq time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * freq)
	}
	return out
}

// N is the number of timesteps.
func (ti *TimeIndex) N() int { return len(ti.increments) }

// Increment is the duration of step t in hours.
func (ti *TimeIndex) Increment(t int) float64 { return ti.increments[t] }

func (ti *TimeIndex) Increments() []float64 {
	return append([]float64(nil), ti.increments...)
}

// Timestamps returns the start instant of every step, or nil when the index
// was built from durations.
func (ti *TimeIndex) Timestamps() []time.Time { return ti.stamps }

// Timesteps lists 0..N-1.
func (ti *TimeIndex) Timesteps() []int {
	out := make([]int, ti.N())
	for i := range out {
		out[i] = i
	}
	return out
}

// Timepoints lists 0..N.
func (ti *TimeIndex) Timepoints() []int {
	out := make([]int, ti.N()+1)
	for i := range out {
		out[i] = i
	}
	return out
}

// TotalHours sums all increments.
func (ti *TimeIndex) TotalHours() float64 {
	sum := 0.0
	for _, d := range ti.increments {
		sum += d
	}
	return sum
}
