package timeindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniform(t *testing.T) {
	ti, err := Uniform(24, 1)
	require.NoError(t, err)
	assert.Equal(t, 24, ti.N())
	assert.Len(t, ti.Timepoints(), 25)
	assert.Equal(t, 24.0, ti.TotalHours())
	assert.False(t, ti.IsMultiPeriod())
	assert.Equal(t, 1, ti.NumPeriods())
	assert.Equal(t, 1.0, ti.Weight(3))
}

func TestRejectsNonPositiveDurations(t *testing.T) {
	_, err := New([]float64{1, 0, 1})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
	_, err = Uniform(0, 1)
	assert.Error(t, err)
}

func TestFromTimestamps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamps := Range(start, 4, time.Hour)

	ti, err := FromTimestamps(stamps, true)
	require.NoError(t, err)
	assert.Equal(t, 4, ti.N())
	assert.Equal(t, 1.0, ti.Increment(3))
	assert.Len(t, ti.Timestamps(), 4)

	ti, err = FromTimestamps(stamps, false)
	require.NoError(t, err)
	assert.Equal(t, 3, ti.N())

	irregular := []time.Time{start, start.Add(time.Hour), start.Add(3 * time.Hour)}
	ti, err = FromTimestamps(irregular, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, ti.Increments())
	_, err = FromTimestamps(irregular, true)
	assert.Error(t, err)
}

func TestPeriods(t *testing.T) {
	ti, err := Uniform(6, 1)
	require.NoError(t, err)
	mp, err := ti.WithPeriods([]Period{
		{Year: 2020, Start: 0, End: 2},
		{Year: 2030, Start: 2, End: 4},
		{Year: 2040, Start: 4, End: 6},
	})
	require.NoError(t, err)
	assert.True(t, mp.IsMultiPeriod())
	assert.Equal(t, 3, mp.NumPeriods())
	assert.Equal(t, 1, mp.PeriodOf(3))
	assert.Equal(t, 20, mp.PeriodYear(2))
	assert.Equal(t, 10, mp.PeriodDuration(0))
	assert.Equal(t, 1, mp.PeriodDuration(2))
	assert.Equal(t, 21, mp.EndYear())
	assert.InDelta(t, 1.0, mp.DiscountFactor(0, 0.05), 1e-12)
	assert.InDelta(t, 0.6139132535, mp.DiscountFactor(1, 0.05), 1e-9)

	// original index untouched
	assert.False(t, ti.IsMultiPeriod())
}

func TestPeriodsValidation(t *testing.T) {
	ti, _ := Uniform(4, 1)
	cases := map[string][]Period{
		"gap":        {{Year: 1, Start: 0, End: 1}, {Year: 2, Start: 2, End: 4}},
		"short":      {{Year: 1, Start: 0, End: 3}},
		"year order": {{Year: 2, Start: 0, End: 2}, {Year: 1, Start: 2, End: 4}},
		"empty":      {{Year: 1, Start: 0, End: 0}, {Year: 2, Start: 0, End: 4}},
	}
	for name, ps := range cases {
		_, err := ti.WithPeriods(ps)
		assert.Error(t, err, name)
	}
}

func TestPeriodsByYear(t *testing.T) {
	stamps := []time.Time{
		time.Date(2020, 12, 31, 22, 0, 0, 0, time.UTC),
		time.Date(2020, 12, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	ps := PeriodsByYear(stamps)
	require.Len(t, ps, 2)
	assert.Equal(t, Period{Year: 2020, Start: 0, End: 2}, ps[0])
	assert.Equal(t, Period{Year: 2021, Start: 2, End: 3}, ps[1])
}

func TestAggregation(t *testing.T) {
	ti, err := Uniform(2*3, 1)
	require.NoError(t, err)
	agg, err := ti.WithAggregation(Aggregation{StepsPerPeriod: 3, Order: []int{0, 1, 1, 0}})
	require.NoError(t, err)

	assert.True(t, agg.IsAggregated())
	assert.Equal(t, []int{2, 2}, agg.Aggregation().Occurrences)
	assert.Equal(t, 12, agg.OriginalSteps())
	typ, k := agg.Split(4)
	assert.Equal(t, 1, typ)
	assert.Equal(t, 1, k)
	assert.Equal(t, 4, agg.Step(1, 1))
	assert.Equal(t, 2.0, agg.Weight(5))

	series := []float64{0, 1, 2, 10, 11, 12}
	assert.Equal(t,
		[]float64{0, 1, 2, 10, 11, 12, 10, 11, 12, 0, 1, 2},
		agg.Expand(series))
}

func TestAggregationValidation(t *testing.T) {
	ti, _ := Uniform(6, 1)
	_, err := ti.WithAggregation(Aggregation{StepsPerPeriod: 2, Order: []int{0, 1}})
	assert.Error(t, err, "3 typical periods needed for 6 steps of length 2")
	_, err = ti.WithAggregation(Aggregation{StepsPerPeriod: 3, Order: []int{0, 1}, Occurrences: []int{2, 2}})
	assert.Error(t, err)

	mp, _ := ti.WithPeriods([]Period{{Year: 2020, Start: 0, End: 6}})
	_, err = mp.WithAggregation(Aggregation{StepsPerPeriod: 3, Order: []int{0, 1}})
	assert.Error(t, err)
}
