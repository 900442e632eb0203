package timeindex

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WithPeriods returns a copy of ti split into investment periods. Periods
// must be ordered, contiguous and cover every timestep; years must increase
// strictly.
func (ti *TimeIndex) WithPeriods(periods []Period) (*TimeIndex, error) {
	if len(periods) == 0 {
		return nil, errors.New("at least one period is required")
	}
	if ti.agg != nil {
		return nil, errors.New("multi-period time indexes cannot be combined with typical periods")
	}
	periodOf := make([]int, ti.N())
	next := 0
	for p, pr := range periods {
		if pr.Start != next {
			return nil, fmt.Errorf("period %d starts at step %d, expected %d", p, pr.Start, next)
		}
		if pr.End <= pr.Start {
			return nil, fmt.Errorf("period %d is empty", p)
		}
		if pr.End > ti.N() {
			return nil, fmt.Errorf("period %d ends at step %d beyond the %d timesteps", p, pr.End, ti.N())
		}
		if p > 0 && pr.Year <= periods[p-1].Year {
			return nil, fmt.Errorf("period %d: year %d must be after %d", p, pr.Year, periods[p-1].Year)
		}
		for t := pr.Start; t < pr.End; t++ {
			periodOf[t] = p
		}
		next = pr.End
	}
	if next != ti.N() {
		return nil, fmt.Errorf("periods cover %d of %d timesteps", next, ti.N())
	}
	out := *ti
	out.periods = append([]Period(nil), periods...)
	out.periodOf = periodOf
	return &out, nil
}

// PeriodsByYear groups the timestamps of ti into one period per calendar
// year.
func PeriodsByYear(stamps []time.Time) []Period {
	var out []Period
	for t, s := range stamps {
		if len(out) == 0 || out[len(out)-1].Year != s.Year() {
			if len(out) > 0 {
				out[len(out)-1].End = t
			}
			out = append(out, Period{Year: s.Year(), Start: t})
		}
	}
	if len(out) > 0 {
		out[len(out)-1].End = len(stamps)
	}
	return out
}

// IsMultiPeriod reports whether explicit investment periods were set.
func (ti *TimeIndex) IsMultiPeriod() bool { return len(ti.periods) > 0 }

// NumPeriods is 1 for single-period indexes.
func (ti *TimeIndex) NumPeriods() int {
	if len(ti.periods) == 0 {
		return 1
	}
	return len(ti.periods)
}

func (ti *TimeIndex) Periods() []Period {
	if len(ti.periods) == 0 {
		return []Period{{Start: 0, End: ti.N()}}
	}
	return append([]Period(nil), ti.periods...)
}

// PeriodOf returns the period holding step t.
func (ti *TimeIndex) PeriodOf(t int) int {
	if len(ti.periodOf) == 0 {
		return 0
	}
	if t >= len(ti.periodOf) {
		return ti.periodOf[len(ti.periodOf)-1]
	}
	return ti.periodOf[t]
}

// PeriodYear is the year offset of period p from the first period.
func (ti *TimeIndex) PeriodYear(p int) int {
	if len(ti.periods) == 0 {
		return 0
	}
	return ti.periods[p].Year - ti.periods[0].Year
}

// PeriodDuration is the number of years period p represents: the gap to the
// next period, one for the last period.
func (ti *TimeIndex) PeriodDuration(p int) int {
	if p+1 < len(ti.periods) {
		return ti.periods[p+1].Year - ti.periods[p].Year
	}
	return 1
}

// EndYear is the year offset right after the optimisation horizon.
func (ti *TimeIndex) EndYear() int {
	last := ti.NumPeriods() - 1
	return ti.PeriodYear(last) + ti.PeriodDuration(last)
}

// DiscountFactor is (1+d)^-(year(p)-year(0)).
func (ti *TimeIndex) DiscountFactor(p int, rate float64) float64 {
	return math.Pow(1+rate, -float64(ti.PeriodYear(p)))
}

// YearDiscount is (1+d)^-year for a year offset.
func YearDiscount(year int, rate float64) float64 {
	return math.Pow(1+rate, -float64(year))
}
