package optimize

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"energy-dispatch/internal/model"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/solver"
	"energy-dispatch/internal/timeindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-6

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func hourly(n int) *timeindex.TimeIndex { return must(timeindex.Uniform(n, 1)) }

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func system(t *testing.T, ti *timeindex.TimeIndex, nodes ...model.Node) *model.EnergySystem {
	t.Helper()
	es := model.NewEnergySystem(ti)
	require.NoError(t, es.Add(nodes...))
	return es
}

func solve(t *testing.T, es *model.EnergySystem, opts Options) (*Model, *solver.Solution) {
	t.Helper()
	m, err := Build(es, opts)
	require.NoError(t, err)
	sol, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, solver.Optimal, sol.Status)
	return m, sol
}

func flowValues(m *Model, sol *solver.Solution, f *model.Flow) []float64 {
	vars := m.FlowVars(f)
	out := make([]float64, len(vars))
	for t, v := range vars {
		out[t] = sol.Values[v]
	}
	return out
}

func series(t *testing.T, m *Model, sol *solver.Solution, owner, name string) []float64 {
	t.Helper()
	set, ok := m.Lookup(owner, name)
	require.True(t, ok, "%s %s", owner, name)
	return set.Values(sol.Values)
}

func sum(vs []float64) float64 {
	s := 0.0
	for _, v := range vs {
		s += v
	}
	return s
}

func singleBus(t *testing.T, n int) (*model.EnergySystem, *model.Flow, *model.Flow, *model.Bus) {
	el := model.NewBus("electricity")
	supply := &model.Flow{VariableCosts: sequence.Scalar(5)}
	demand := &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)}
	src := must(model.NewSource("gen", model.Connect(el, supply)))
	snk := must(model.NewSink("demand", model.Connect(el, demand)))
	return system(t, hourly(n), el, src, snk), supply, demand, el
}

func TestSingleBusDispatch(t *testing.T) {
	es, supply, _, el := singleBus(t, 24)
	m, sol := solve(t, es, Options{SolveOptions: solver.Options{ReceiveDuals: true}})

	assert.InDelta(t, 1200, sol.Objective, tol)
	for _, v := range flowValues(m, sol, supply) {
		assert.InDelta(t, 10, v, tol)
	}
	rows, ok := m.BalanceRows(el)
	require.True(t, ok)
	require.Len(t, rows, 24)
	for _, r := range rows {
		assert.InDelta(t, 5, sol.Duals[r], tol)
	}
}

func TestObjectivePartsAddUp(t *testing.T) {
	es, _, _, _ := singleBus(t, 6)
	m, sol := solve(t, es, Options{})
	total := 0.0
	for _, part := range m.ObjectiveParts() {
		total += part.Expr.Value(sol.Values)
	}
	assert.InDelta(t, sol.Objective, total, tol)
	require.Len(t, m.ObjectiveParts(), 1)
	assert.Equal(t, string(model.SimpleFlowGroup), m.ObjectiveParts()[0].Block)
}

func TestLPExportIsDeterministic(t *testing.T) {
	export := func() []byte {
		es, _, _, _ := singleBus(t, 4)
		m, err := Build(es, Options{})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, m.WriteLP(&buf))
		return buf.Bytes()
	}
	a, b := export(), export()
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), "BusBlock_balance(electricity,0)")
}

func TestLabelsDifferingInPunctuation(t *testing.T) {
	var nodes []model.Node
	for _, label := range []string{"el-1", "el_1", "1", "x1", "a→b_c", "a_b→c"} {
		bus := model.NewBus(label)
		src := must(model.NewSource("gen "+label, model.Connect(bus, &model.Flow{VariableCosts: sequence.Scalar(1)})))
		snk := must(model.NewSink("demand "+label, model.Connect(bus, &model.Flow{NominalCapacity: 2, Fix: sequence.Scalar(1)})))
		nodes = append(nodes, bus, src, snk)
	}
	_, sol := solve(t, system(t, hourly(2), nodes...), Options{})
	assert.InDelta(t, 6*2*2, sol.Objective, tol)
}

func TestObjectiveWeighting(t *testing.T) {
	es, _, _, _ := singleBus(t, 2)
	_, sol := solve(t, es, Options{ObjectiveWeighting: sequence.Of(2, 3)})
	assert.InDelta(t, 10*5*2+10*5*3, sol.Objective, tol)

	_, err := Build(es, Options{ObjectiveWeighting: sequence.Of(1, 2, 3)})
	var cfg *model.ConfigurationError
	assert.ErrorAs(t, err, &cfg)
}

func storageSystem(t *testing.T, sourceCap float64) (*model.EnergySystem, *model.Flow, *model.GenericStorage) {
	el := model.NewBus("electricity")
	profile := append(repeat(1, 4), repeat(0, 20)...)
	src := must(model.NewSource("pv", model.Connect(el, &model.Flow{
		NominalCapacity: sourceCap,
		Max:             sequence.FromSlice(profile),
		VariableCosts:   sequence.Scalar(1),
	})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 5, Fix: sequence.Scalar(1)})))
	charge := &model.Flow{}
	battery := must(model.NewGenericStorage("battery", model.StorageParams{
		NominalCapacity:         150,
		InitialStorageLevel:     sequence.Scalar(0),
		Balanced:                true,
		InflowConversionFactor:  sequence.Scalar(0.9),
		OutflowConversionFactor: sequence.Scalar(0.9),
	}, []model.Port{model.Connect(el, charge)}, []model.Port{model.Connect(el, &model.Flow{})}))
	return system(t, hourly(24), el, src, snk, battery), charge, battery
}

func TestStorageRoundTrip(t *testing.T) {
	es, charge, _ := storageSystem(t, 50)
	m, sol := solve(t, es, Options{})

	inflow := sum(flowValues(m, sol, charge))
	assert.InDelta(t, 100/0.81, inflow, 1e-4)
	assert.InDelta(t, 20+100/0.81, sol.Objective, 1e-4)

	content := series(t, m, sol, "battery", "storage_content")
	require.Len(t, content, 25)
	assert.InDelta(t, 0, content[0], tol)
	assert.InDelta(t, 0, content[24], tol)
	assert.InDelta(t, 100/0.9, content[4], 1e-4)
}

func TestStorageRoundTripInfeasible(t *testing.T) {
	es, _, _ := storageSystem(t, 25)
	m, err := Build(es, Options{})
	require.NoError(t, err)
	_, err = m.Solve(context.Background())
	var serr *solver.SolverError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, solver.Infeasible, serr.Status)
	assert.Nil(t, m.Solution())
}

func TestStorageLossAndFixedLosses(t *testing.T) {
	el := model.NewBus("electricity")
	src := must(model.NewSource("grid", model.Connect(el, &model.Flow{
		NominalCapacity: 100,
		Max:             sequence.Of(1, 0, 0),
		VariableCosts:   sequence.Scalar(1),
	})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Of(0, 0, 1)})))
	store := must(model.NewGenericStorage("store", model.StorageParams{
		NominalCapacity:     100,
		InitialStorageLevel: sequence.Scalar(0),
		LossRate:            sequence.Scalar(0.5),
		FixedLossesAbsolute: sequence.Scalar(1),
	}, []model.Port{model.Connect(el, &model.Flow{})}, []model.Port{model.Connect(el, &model.Flow{})}))
	m, sol := solve(t, system(t, hourly(3), el, src, snk, store), Options{})

	content := series(t, m, sol, "store", "storage_content")
	// E1 = P - 1, E2 = E1/2 - 1, E3 = E2/2 - 1 - 10 = 0
	assert.InDelta(t, 22, content[2], tol)
	assert.InDelta(t, 46, content[1], tol)
	assert.InDelta(t, 47, sol.Objective, tol)
}

func TestConverterEfficiency(t *testing.T) {
	gas, el := model.NewBus("gas"), model.NewBus("electricity")
	fuel := &model.Flow{}
	src := must(model.NewSource("gas_supply", model.Connect(gas, &model.Flow{})))
	pp := must(model.NewConverter("plant",
		[]model.Port{model.Connect(gas, fuel)},
		[]model.Port{model.Connect(el, &model.Flow{})},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.5)}))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, hourly(1), gas, el, src, pp, snk), Options{})
	assert.InDelta(t, 20, flowValues(m, sol, fuel)[0], tol)
}

func TestNonConvexInvestmentOffset(t *testing.T) {
	el := model.NewBus("electricity")
	supply := &model.Flow{Investment: &model.Investment{
		EPCosts:   sequence.Scalar(1),
		Offset:    sequence.Scalar(10),
		NonConvex: true,
		Maximum:   sequence.Scalar(200),
	}}
	src := must(model.NewSource("gen", model.Connect(el, supply)))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 100, Fix: sequence.Of(0, 1)})))
	m, sol := solve(t, system(t, hourly(2), el, src, snk), Options{})

	assert.InDelta(t, 110, sol.Objective, tol)
	assert.InDelta(t, 100, series(t, m, sol, "gen->electricity", "invest")[0], tol)
	assert.InDelta(t, 1, series(t, m, sol, "gen->electricity", "invest_status")[0], tol)
	assert.InDelta(t, 100, series(t, m, sol, "gen->electricity", "total")[0], tol)
}

func TestMinimumUptime(t *testing.T) {
	el := model.NewBus("electricity")
	demand := []float64{0, 0, 0, 5, 0, 0, 5, 5, 5, 0, 0, 0}
	main := &model.Flow{
		NominalCapacity: 10,
		Min:             sequence.Scalar(0.5),
		Max:             sequence.Scalar(1),
		VariableCosts:   sequence.Scalar(1),
		NonConvex:       &model.NonConvex{MinimumUptime: 3, StartupCosts: sequence.Scalar(5)},
	}
	gen := must(model.NewSource("gen", model.Connect(el, main)))
	backup := must(model.NewSource("backup", model.Connect(el, &model.Flow{VariableCosts: sequence.Scalar(100)})))
	excess := must(model.NewSink("excess", model.Connect(el, &model.Flow{})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 1, Fix: sequence.FromSlice(demand)})))
	m, sol := solve(t, system(t, hourly(12), el, gen, backup, excess, snk), Options{})

	assert.InDelta(t, 35, sol.Objective, tol)
	status := series(t, m, sol, "gen->electricity", "status")
	for step, s := range status {
		want := 0.0
		if step >= 3 && step <= 8 {
			want = 1
		}
		assert.InDelta(t, want, s, tol, "status at %d", step)
	}
	assert.InDelta(t, 1, sum(series(t, m, sol, "gen->electricity", "startup")), tol)
}

// With six steps and an uptime of three every status is pinned to the
// initial status, so demand in the first step cannot be served.
func TestMinimumUptimeShortHorizonIsInfeasible(t *testing.T) {
	el := model.NewBus("electricity")
	main := &model.Flow{
		NominalCapacity: 10,
		Min:             sequence.Scalar(0.5),
		Max:             sequence.Scalar(1),
		NonConvex:       &model.NonConvex{MinimumUptime: 3, StartupCosts: sequence.Scalar(5)},
	}
	gen := must(model.NewSource("gen", model.Connect(el, main)))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 1, Fix: sequence.Of(5, 0, 0, 5, 5, 5)})))
	m, err := Build(system(t, hourly(6), el, gen, snk), Options{})
	require.NoError(t, err)

	sol, err := m.Solve(context.Background())
	assert.Nil(t, sol)
	var se *solver.SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, solver.Infeasible, se.Status)
	assert.Nil(t, m.Solution())
}

func TestPositiveGradientLimit(t *testing.T) {
	el := model.NewBus("electricity")
	slow := &model.Flow{NominalCapacity: 10, PositiveGradientLimit: sequence.Scalar(0.2), VariableCosts: sequence.Scalar(1)}
	fast := &model.Flow{VariableCosts: sequence.Scalar(10)}
	a := must(model.NewSource("slow", model.Connect(el, slow)))
	b := must(model.NewSource("fast", model.Connect(el, fast)))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Of(0, 1, 1, 1)})))
	m, sol := solve(t, system(t, hourly(4), el, a, b, snk), Options{})

	assert.InDeltaSlice(t, []float64{0, 2, 4, 6}, flowValues(m, sol, slow), tol)
	assert.InDeltaSlice(t, []float64{0, 8, 6, 4}, flowValues(m, sol, fast), tol)
	assert.InDelta(t, 192, sol.Objective, tol)
}

func TestFullLoadTimeMax(t *testing.T) {
	el := model.NewBus("electricity")
	cheap := &model.Flow{NominalCapacity: 10, FullLoadTimeMax: sequence.Scalar(2), VariableCosts: sequence.Scalar(1)}
	a := must(model.NewSource("cheap", model.Connect(el, cheap)))
	b := must(model.NewSource("expensive", model.Connect(el, &model.Flow{VariableCosts: sequence.Scalar(10)})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, hourly(4), el, a, b, snk), Options{})

	assert.InDelta(t, 20, sum(flowValues(m, sol, cheap)), tol)
	assert.InDelta(t, 220, sol.Objective, tol)
}

func TestExtractionTurbineCHP(t *testing.T) {
	gas, el, heat := model.NewBus("gas"), model.NewBus("electricity"), model.NewBus("heat")
	fuel := &model.Flow{}
	src := must(model.NewSource("gas_supply", model.Connect(gas, &model.Flow{VariableCosts: sequence.Scalar(1)})))
	chp := must(model.NewExtractionTurbineCHP("chp",
		model.Connect(gas, fuel),
		[]model.Port{model.Connect(el, &model.Flow{}), model.Connect(heat, &model.Flow{})},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.3), heat: sequence.Scalar(0.5)},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.5)}))
	elDemand := must(model.NewSink("el_demand", model.Connect(el, &model.Flow{NominalCapacity: 30, Fix: sequence.Scalar(1)})))
	heatDemand := must(model.NewSink("heat_demand", model.Connect(heat, &model.Flow{NominalCapacity: 20, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, hourly(1), gas, el, heat, src, chp, elDemand, heatDemand), Options{})

	// fuel = (30 + 0.4·20) / 0.5
	assert.InDelta(t, 76, flowValues(m, sol, fuel)[0], tol)
	assert.InDelta(t, 76, sol.Objective, tol)
}

func TestCHPBackPressureLimit(t *testing.T) {
	gas, el, heat := model.NewBus("gas"), model.NewBus("electricity"), model.NewBus("heat")
	src := must(model.NewSource("gas_supply", model.Connect(gas, &model.Flow{})))
	chp := must(model.NewExtractionTurbineCHP("chp",
		model.Connect(gas, &model.Flow{}),
		[]model.Port{model.Connect(el, &model.Flow{}), model.Connect(heat, &model.Flow{})},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.3), heat: sequence.Scalar(0.5)},
		map[model.Node]sequence.Sequence{el: sequence.Scalar(0.5)}))
	// 10 electricity cannot come with 20 heat: P_el >= 0.6·P_heat
	elDemand := must(model.NewSink("el_demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	heatDemand := must(model.NewSink("heat_demand", model.Connect(heat, &model.Flow{NominalCapacity: 20, Fix: sequence.Scalar(1)})))
	m, err := Build(system(t, hourly(1), gas, el, heat, src, chp, elDemand, heatDemand), Options{})
	require.NoError(t, err)
	_, err = m.Solve(context.Background())
	var serr *solver.SolverError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, solver.Infeasible, serr.Status)
}

func TestLinkLosses(t *testing.T) {
	a, b := model.NewBus("north"), model.NewBus("south")
	ab, ba := &model.Flow{}, &model.Flow{}
	src := must(model.NewSource("gen", model.Connect(a, &model.Flow{VariableCosts: sequence.Scalar(1)})))
	link := must(model.NewLink("line",
		[]model.Port{model.Connect(a, ab), model.Connect(b, ba)},
		[]model.Port{model.Connect(a, &model.Flow{}), model.Connect(b, &model.Flow{})},
		[]model.LinkFactor{
			{From: a, To: b, Factor: sequence.Scalar(0.9)},
			{From: b, To: a, Factor: sequence.Scalar(0.8)},
		}))
	snk := must(model.NewSink("demand", model.Connect(b, &model.Flow{NominalCapacity: 9, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, hourly(1), a, b, src, link, snk), Options{})

	assert.InDelta(t, 10, flowValues(m, sol, ab)[0], tol)
	assert.InDelta(t, 0, flowValues(m, sol, ba)[0], tol)
	assert.InDelta(t, 10, sol.Objective, tol)
}

func TestOffsetConverter(t *testing.T) {
	gas, el := model.NewBus("gas"), model.NewBus("electricity")
	offset, slope, err := model.SlopeOffset(100, 0.3, 1, 0.3, 0.5)
	require.NoError(t, err)
	in := &model.Flow{NominalCapacity: 100, Min: sequence.Scalar(0.3), NonConvex: &model.NonConvex{}}
	src := must(model.NewSource("gas_supply", model.Connect(gas, &model.Flow{VariableCosts: sequence.Scalar(1)})))
	oc := must(model.NewOffsetConverter("boiler",
		model.Connect(gas, in), model.Connect(el, &model.Flow{}),
		[2]sequence.Sequence{sequence.Scalar(offset), sequence.Scalar(slope)}))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 20, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, hourly(1), gas, el, src, oc, snk), Options{})

	assert.InDelta(t, 2000.0/41, flowValues(m, sol, in)[0], tol)
	assert.InDelta(t, 1, series(t, m, sol, "gas->boiler", "status")[0], tol)
}

func TestInvestStorageRelations(t *testing.T) {
	el := model.NewBus("electricity")
	src := must(model.NewSource("pv", model.Connect(el, &model.Flow{NominalCapacity: 100, Max: sequence.Of(1, 0, 0, 0)})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	in := &model.Flow{Investment: &model.Investment{}}
	out := &model.Flow{Investment: &model.Investment{}}
	store := must(model.NewGenericStorage("battery", model.StorageParams{
		Investment:                   &model.Investment{EPCosts: sequence.Scalar(10), Maximum: sequence.Scalar(1000)},
		Balanced:                     true,
		InvestRelationInputCapacity:  sequence.Scalar(1),
		InvestRelationOutputCapacity: sequence.Scalar(1.0 / 3),
	}, []model.Port{model.Connect(el, in)}, []model.Port{model.Connect(el, out)}))
	m, sol := solve(t, system(t, hourly(4), el, src, snk, store), Options{})

	assert.InDelta(t, 30, series(t, m, sol, "battery", "total")[0], tol)
	assert.InDelta(t, 30, series(t, m, sol, "electricity->battery", "total")[0], tol)
	assert.InDelta(t, 10, series(t, m, sol, "battery->electricity", "total")[0], tol)
	assert.InDelta(t, 300, sol.Objective, tol)
}

func TestTypicalPeriodStorage(t *testing.T) {
	const k = 24
	ti := must(hourly(2 * k).WithAggregation(timeindex.Aggregation{StepsPerPeriod: k, Order: []int{0, 1, 1, 0}}))
	el := model.NewBus("electricity")
	prices := append(repeat(1, k), repeat(10, k)...)
	src := must(model.NewSource("grid", model.Connect(el, &model.Flow{VariableCosts: sequence.FromSlice(prices)})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 2, Fix: sequence.Scalar(1)})))
	store := must(model.NewGenericStorage("store", model.StorageParams{
		NominalCapacity:     100,
		InitialStorageLevel: sequence.Scalar(0.5),
		Balanced:            true,
		LossRate:            sequence.Scalar(0.01),
	}, []model.Port{model.Connect(el, &model.Flow{NominalCapacity: 10})}, []model.Port{model.Connect(el, &model.Flow{NominalCapacity: 10})}))
	m, sol := solve(t, system(t, ti, el, src, snk, store), Options{})

	soc := series(t, m, sol, "store", "storage_content")
	inter := series(t, m, sol, "store", "storage_content_inter")
	intra := series(t, m, sol, "store", "storage_content_intra")
	require.Len(t, soc, 4*k+1)
	require.Len(t, inter, 5)
	require.Len(t, intra, 2*(k+1))

	assert.InDelta(t, 50, inter[0], tol)
	assert.InDelta(t, inter[0], inter[4], tol)
	assert.InDelta(t, inter[3], soc[3*k], tol)
	for j := 0; j < k; j++ {
		want := inter[3]*math.Pow(0.99, float64(j)) + intra[j]
		assert.InDelta(t, want, soc[3*k+j], 1e-6, "step %d", j)
	}
	for i, typ := range []int{0, 1, 1, 0} {
		want := inter[i]*math.Pow(0.99, k) + intra[typ*(k+1)+k]
		assert.InDelta(t, want, inter[i+1], 1e-6)
	}
	for _, v := range soc {
		assert.GreaterOrEqual(t, v, -tol)
		assert.LessOrEqual(t, v, 100+tol)
	}
}

func multiPeriodIndex(t *testing.T) *timeindex.TimeIndex {
	t.Helper()
	ti, err := hourly(2).WithPeriods([]timeindex.Period{{Year: 2020, Start: 0, End: 1}, {Year: 2030, Start: 1, End: 2}})
	require.NoError(t, err)
	return ti
}

func investSystem(t *testing.T, inv *model.Investment) *model.EnergySystem {
	el := model.NewBus("electricity")
	src := must(model.NewSource("gen", model.Connect(el, &model.Flow{Investment: inv})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	return system(t, multiPeriodIndex(t), el, src, snk)
}

func TestMultiPeriodInvestment(t *testing.T) {
	inv := &model.Investment{EPCosts: sequence.Scalar(100), Lifetime: 20, InterestRate: 0.05}
	m, sol := solve(t, investSystem(t, inv), Options{DiscountRate: Rate(0.02)})

	invest := series(t, m, sol, "gen->electricity", "invest")
	total := series(t, m, sol, "gen->electricity", "total")
	old := series(t, m, sol, "gen->electricity", "old")
	assert.InDeltaSlice(t, []float64{10, 0}, invest, tol)
	assert.InDeltaSlice(t, []float64{10, 10}, total, tol)
	assert.InDeltaSlice(t, []float64{0, 0}, old, tol)

	q := math.Pow(1.05, 20)
	a := 100 * q * 0.05 / (q - 1)
	pv := 0.0
	for y := 1; y <= 11; y++ {
		pv += math.Pow(1.02, -float64(y))
	}
	assert.InDelta(t, 10*a*pv, sol.Objective, 1e-6)
}

func TestMultiPeriodDecommissioning(t *testing.T) {
	inv := &model.Investment{EPCosts: sequence.Scalar(100), Lifetime: 10, InterestRate: 0.05}
	m, sol := solve(t, investSystem(t, inv), Options{DiscountRate: Rate(0.02)})

	owner := "gen->electricity"
	assert.InDeltaSlice(t, []float64{10, 10}, series(t, m, sol, owner, "invest"), tol)
	assert.InDeltaSlice(t, []float64{0, 10}, series(t, m, sol, owner, "old_end"), tol)
	total := series(t, m, sol, owner, "total")
	invest := series(t, m, sol, owner, "invest")
	old := series(t, m, sol, owner, "old")
	assert.InDelta(t, total[0]+invest[1]-old[1], total[1], tol)
}

func TestMultiPeriodExistingCapacity(t *testing.T) {
	inv := &model.Investment{EPCosts: sequence.Scalar(100), Lifetime: 15, Age: 10, Existing: 10, InterestRate: 0.05}
	m, sol := solve(t, investSystem(t, inv), Options{DiscountRate: Rate(0.02)})

	owner := "gen->electricity"
	assert.InDeltaSlice(t, []float64{0, 10}, series(t, m, sol, owner, "invest"), tol)
	assert.InDeltaSlice(t, []float64{0, 10}, series(t, m, sol, owner, "old_exo"), tol)
	assert.InDeltaSlice(t, []float64{10, 10}, series(t, m, sol, owner, "total"), tol)
}

func TestMultiPeriodRequiresLifetime(t *testing.T) {
	_, err := Build(investSystem(t, &model.Investment{EPCosts: sequence.Scalar(1)}), Options{DiscountRate: Rate(0.02)})
	var cfg *model.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "gen->electricity", cfg.Label)
}

func TestMultiPeriodDefaultDiscountRate(t *testing.T) {
	var got []model.UsageWarning
	prev := model.SetWarningHandler(func(w model.UsageWarning) { got = append(got, w) })
	defer model.SetWarningHandler(prev)

	inv := &model.Investment{EPCosts: sequence.Scalar(1), Lifetime: 20}
	m, err := Build(investSystem(t, inv), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDiscountRate, m.DiscountRate())
	require.Len(t, got, 2)
	assert.Equal(t, "model", got[0].Label)
	assert.Contains(t, got[1].Message, "interest_rate")
}

func TestSimpleFlowLifetime(t *testing.T) {
	el := model.NewBus("electricity")
	old := &model.Flow{NominalCapacity: 10, Lifetime: 5, VariableCosts: sequence.Scalar(1)}
	a := must(model.NewSource("old_plant", model.Connect(el, old)))
	b := must(model.NewSource("backup", model.Connect(el, &model.Flow{VariableCosts: sequence.Scalar(10)})))
	snk := must(model.NewSink("demand", model.Connect(el, &model.Flow{NominalCapacity: 10, Fix: sequence.Scalar(1)})))
	m, sol := solve(t, system(t, multiPeriodIndex(t), el, a, b, snk), Options{DiscountRate: Rate(0)})

	assert.InDeltaSlice(t, []float64{10, 0}, flowValues(m, sol, old), tol)
	assert.InDelta(t, 10+100, sol.Objective, tol)
}

func TestNonConvexInvestRejectedInMultiPeriod(t *testing.T) {
	el := model.NewBus("electricity")
	src := must(model.NewSource("gen", model.Connect(el, &model.Flow{
		Investment: &model.Investment{Maximum: sequence.Scalar(10), Lifetime: 10},
		NonConvex:  &model.NonConvex{},
	})))
	_, err := Build(system(t, multiPeriodIndex(t), el, src), Options{DiscountRate: Rate(0.02)})
	var cfg *model.ConfigurationError
	assert.ErrorAs(t, err, &cfg)
}

func TestSequenceLengthMismatch(t *testing.T) {
	el := model.NewBus("electricity")
	src := must(model.NewSource("gen", model.Connect(el, &model.Flow{VariableCosts: sequence.Of(1, 2, 3)})))
	_, err := Build(system(t, hourly(2), el, src), Options{})
	var cfg *model.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "gen->electricity", cfg.Label)
}

func TestEmptyBalancedBusWarns(t *testing.T) {
	var got []model.UsageWarning
	prev := model.SetWarningHandler(func(w model.UsageWarning) { got = append(got, w) })
	defer model.SetWarningHandler(prev)

	es, _, _, _ := singleBus(t, 2)
	require.NoError(t, es.Add(model.NewBus("island")))
	m, err := Build(es, Options{})
	require.NoError(t, err)
	_, ok := m.BalanceRows(es.Nodes()[3].(*model.Bus))
	assert.False(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "island", got[0].Label)
}

func TestSolveWithUnknownSolver(t *testing.T) {
	es, _, _, _ := singleBus(t, 2)
	m, err := Build(es, Options{Solver: "nope"})
	require.NoError(t, err)
	_, err = m.Solve(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
