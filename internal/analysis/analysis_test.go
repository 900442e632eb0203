package analysis

import (
	"context"
	"testing"

	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/results"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/timeindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func hourly(n int) *timeindex.TimeIndex { return must(timeindex.Uniform(n, 1)) }

func solve(t *testing.T, ti *timeindex.TimeIndex, opts optimize.Options, nodes ...model.Node) *optimize.Model {
	t.Helper()
	es := model.NewEnergySystem(ti)
	require.NoError(t, es.Add(nodes...))
	m, err := optimize.Build(es, opts)
	require.NoError(t, err)
	_, err = m.Solve(context.Background())
	require.NoError(t, err)
	return m
}

func assertClean(t *testing.T, m *optimize.Model) {
	t.Helper()
	violations, err := Check(m, 1e-6)
	require.NoError(t, err)
	for _, v := range violations {
		t.Error(v.String())
	}
}

func TestCheckConverterAndStorage(t *testing.T) {
	gas, el := model.NewBus("gas"), model.NewBus("electricity")
	src := must(model.NewSource("gas_supply", model.Connect(gas, &model.Flow{VariableCosts: sequence.Scalar(2)})))
	pp := must(model.NewConverter("plant",
		[]model.Port{model.Connect(gas, &model.Flow{})},
		[]model.Port{model.Connect(el, &model.Flow{NominalCapacity: 8})},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.4)}))
	battery := must(model.NewGenericStorage("battery", model.StorageParams{
		NominalCapacity:         20,
		InitialStorageLevel:     sequence.Scalar(0.5),
		Balanced:                true,
		LossRate:                sequence.Scalar(0.01),
		InflowConversionFactor:  sequence.Scalar(0.95),
		OutflowConversionFactor: sequence.Scalar(0.95),
	}, []model.Port{model.Connect(el, &model.Flow{NominalCapacity: 5})}, []model.Port{model.Connect(el, &model.Flow{NominalCapacity: 5})}))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Of(0.2, 0.5, 1, 1, 0.6, 0.2)})))

	m := solve(t, hourly(6), optimize.Options{}, gas, el, src, pp, battery, snk)
	assertClean(t, m)
}

func TestCheckNonConvexUptime(t *testing.T) {
	el := model.NewBus("electricity")
	main := &model.Flow{
		NominalCapacity: 10,
		Min:             sequence.Scalar(0.5),
		VariableCosts:   sequence.Scalar(1),
		NonConvex:       &model.NonConvex{MinimumUptime: 3, StartupCosts: sequence.Scalar(5)},
	}
	gen := must(model.NewSource("gen", model.Connect(el, main)))
	backup := must(model.NewSource("backup", model.Connect(el, &model.Flow{VariableCosts: sequence.Scalar(100)})))
	excess := must(model.NewSink("excess", model.Connect(el, &model.Flow{})))
	demand := []float64{0, 0, 0, 5, 0, 0, 5, 5, 5, 0, 0, 0}
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 1, Fix: sequence.FromSlice(demand)})))

	m := solve(t, hourly(12), optimize.Options{}, el, gen, backup, excess, snk)
	assertClean(t, m)
}

func TestCheckMultiPeriodInvestment(t *testing.T) {
	ti, err := hourly(2).WithPeriods([]timeindex.Period{{Year: 2020, Start: 0, End: 1}, {Year: 2030, Start: 1, End: 2}})
	require.NoError(t, err)
	el := model.NewBus("electricity")
	src := must(model.NewSource("gen", model.Connect(el, &model.Flow{Investment: &model.Investment{
		EPCosts:      sequence.Scalar(100),
		Lifetime:     10,
		InterestRate: 0.05,
	}})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))

	m := solve(t, ti, optimize.Options{DiscountRate: optimize.Rate(0.02)}, el, src, snk)
	assertClean(t, m)
}

func TestCheckDetectsTamperedSolution(t *testing.T) {
	el := model.NewBus("electricity")
	supply := &model.Flow{VariableCosts: sequence.Scalar(5)}
	src := must(model.NewSource("gen", model.Connect(el, supply)))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	m := solve(t, hourly(3), optimize.Options{}, el, src, snk)

	m.Solution().Values[m.FlowVars(supply)[1]] = 12

	violations, err := Check(m, 1e-6)
	require.NoError(t, err)
	var props []Property
	for _, v := range violations {
		props = append(props, v.Property)
	}
	assert.Contains(t, props, BusBalance)
	assert.Contains(t, props, ObjectiveRebuild)
	assert.Equal(t, "electricity", violations[0].Label)
	assert.Equal(t, 1, violations[0].Step)
}

func TestCheckUnsolvedModel(t *testing.T) {
	el := model.NewBus("electricity")
	src := must(model.NewSource("gen", model.Connect(el, &model.Flow{})))
	es := model.NewEnergySystem(hourly(1))
	require.NoError(t, es.Add(el, src))
	m, err := optimize.Build(es, optimize.Options{})
	require.NoError(t, err)
	_, err = Check(m, 1e-6)
	assert.Error(t, err)
}

func TestSummarizeAndRank(t *testing.T) {
	el := model.NewBus("electricity")
	base := must(model.NewSource("base", model.Connect(el, &model.Flow{NominalCapacity: 15, VariableCosts: sequence.Scalar(1)})))
	peak := must(model.NewSource("peak", model.Connect(el, &model.Flow{VariableCosts: sequence.Scalar(3)})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Of(1, 2, 3, 4)})))
	m := solve(t, hourly(4), optimize.Options{}, el, base, peak, snk)

	r, err := results.Extract(m)
	require.NoError(t, err)
	summaries := Summarize(r)
	require.Len(t, summaries, 3)

	byLabel := map[string]FlowSummary{}
	for _, s := range summaries {
		byLabel[s.Key.String()] = s
	}
	demand := byLabel["electricity->demand"]
	assert.Equal(t, 4, demand.Count)
	assert.InDelta(t, 10, demand.Min, 1e-6)
	assert.InDelta(t, 40, demand.Max, 1e-6)
	assert.InDelta(t, 25, demand.Mean, 1e-6)
	assert.InDelta(t, 100, demand.Energy, 1e-6)
	assert.InDelta(t, 2.5, demand.FullLoadHours, 1e-6)
	assert.LessOrEqual(t, demand.P05, demand.P95)

	// base runs at 10, 15, 15, 15; peak at 0, 5, 15, 25
	assert.InDelta(t, 55.0/15, byLabel["base->electricity"].FullLoadHours, 1e-6)
	assert.InDelta(t, 45.0/25, byLabel["peak->electricity"].FullLoadHours, 1e-6)

	ranked := RankByFullLoadHours(summaries)
	assert.Equal(t, "base->electricity", ranked[0].Key.String())
	assert.Equal(t, "electricity->demand", ranked[1].Key.String())
	assert.Equal(t, "peak->electricity", ranked[2].Key.String())
}
