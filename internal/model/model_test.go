package model

import (
	"errors"
	"math"
	"testing"

	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/timeindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureWarnings(t *testing.T) *[]UsageWarning {
	t.Helper()
	var got []UsageWarning
	prev := SetWarningHandler(func(w UsageWarning) { got = append(got, w) })
	t.Cleanup(func() { SetWarningHandler(prev) })
	return &got
}

func TestFlowValidation(t *testing.T) {
	cases := map[string]Flow{
		"fix with max":           {NominalCapacity: 1, Fix: sequence.Scalar(1), Max: sequence.Scalar(1)},
		"invest with nominal":    {NominalCapacity: 1, Investment: &Investment{}},
		"fix without capacity":   {Fix: sequence.Scalar(0.5)},
		"negative nominal":       {NominalCapacity: -1},
		"infinite nominal":       {NominalCapacity: math.Inf(1)},
		"nonconvex gradient":     {NominalCapacity: 1, NonConvex: &NonConvex{}, PositiveGradientLimit: sequence.Scalar(0.1)},
		"nonconvex invest inf":   {Investment: &Investment{}, NonConvex: &NonConvex{}},
		"min above one":          {NominalCapacity: 1, Min: sequence.Scalar(1.5)},
		"age beyond lifetime":    {NominalCapacity: 1, Lifetime: 10, Age: 10},
		"full load time no size": {FullLoadTimeMax: sequence.Scalar(100)},
		"initial status":         {NominalCapacity: 1, NonConvex: &NonConvex{InitialStatus: 2}},
	}
	for name, f := range cases {
		f := f
		assert.Error(t, f.Validate(), name)
	}

	ok := Flow{NominalCapacity: 10, Min: sequence.Scalar(0.2), Max: sequence.Of(1, 0.5), VariableCosts: sequence.Scalar(3)}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, SimpleFlowGroup, ok.ConstraintGroup())

	bi := Flow{NominalCapacity: 10, Bidirectional: true}
	require.NoError(t, bi.Validate())
	assert.Equal(t, -1.0, bi.MinAt(0))
}

func TestFlowGroups(t *testing.T) {
	inv := &Investment{Maximum: sequence.Scalar(10)}
	assert.Equal(t, InvestFlowGroup, (&Flow{Investment: inv}).ConstraintGroup())
	assert.Equal(t, NonConvexFlowGroup, (&Flow{NonConvex: &NonConvex{}}).ConstraintGroup())
	assert.Equal(t, NonConvexInvestFlowGroup, (&Flow{Investment: inv, NonConvex: &NonConvex{}}).ConstraintGroup())
}

func TestInvestmentValidation(t *testing.T) {
	assert.Error(t, (&Investment{NonConvex: true, Existing: 1, Maximum: sequence.Scalar(5)}).Validate())
	assert.Error(t, (&Investment{NonConvex: true}).Validate())
	assert.Error(t, (&Investment{Offset: sequence.Scalar(3)}).Validate())
	assert.Error(t, (&Investment{Lifetime: 5, Age: 6}).Validate())
	assert.Error(t, (&Investment{Minimum: sequence.Scalar(5), Maximum: sequence.Scalar(2)}).Validate())
	assert.NoError(t, (&Investment{NonConvex: true, Maximum: sequence.Scalar(5), Offset: sequence.Scalar(3)}).Validate())

	inv := &Investment{}
	assert.Equal(t, 0.0, inv.MinimumAt(2))
	assert.True(t, math.IsInf(inv.MaximumAt(2), 1))

	w := (&Investment{NonConvex: true, Maximum: sequence.Scalar(5)}).Warnings()
	assert.Len(t, w, 1)
}

func TestNonConvexMaxUpDown(t *testing.T) {
	nc := &NonConvex{MinimumUptime: 3, MinimumDowntime: 5}
	assert.Equal(t, 5, nc.MaxUpDown())
	assert.False(t, nc.NeedsStartup())
	nc.StartupCosts = sequence.Scalar(1)
	assert.True(t, nc.NeedsStartup())
}

func TestWiringSharesFlow(t *testing.T) {
	bel := NewBus("electricity")
	f := &Flow{NominalCapacity: 5}
	src, err := NewSource("pv", Connect(bel, f))
	require.NoError(t, err)

	got, ok := bel.Inputs().Flow(src)
	require.True(t, ok)
	assert.Same(t, f, got)
	out, ok := src.Outputs().Flow(bel)
	require.True(t, ok)
	assert.Same(t, f, out)
	assert.Equal(t, src, f.From())
	assert.Equal(t, Node(bel), f.To())
	assert.Equal(t, "pv->electricity", f.Label())

	_, err = NewSink("demand", Connect(bel, f))
	assert.Error(t, err, "a flow cannot be connected twice")
}

func TestRejectedComponentLeavesBusesUntouched(t *testing.T) {
	bel, heat := NewBus("el"), NewBus("heat")
	_, err := NewSink("bad",
		Connect(bel, &Flow{NominalCapacity: 1}),
		Connect(heat, &Flow{NominalCapacity: 1, Fix: sequence.Scalar(1), Max: sequence.Scalar(1)}),
	)
	require.Error(t, err)
	assert.Equal(t, 0, bel.Outputs().Len())
	assert.Equal(t, 0, heat.Outputs().Len())

	shared := &Flow{}
	_, err = NewSink("twice", Connect(bel, shared), Connect(heat, shared))
	require.Error(t, err, "one flow on two ports")
	assert.Equal(t, 0, bel.Outputs().Len())
	assert.Nil(t, shared.From())

	ti, err := timeindex.Uniform(2, 1)
	require.NoError(t, err)
	src, err := NewSource("src", Connect(bel, &Flow{}))
	require.NoError(t, err)
	snk, err := NewSink("snk", Connect(bel, &Flow{NominalCapacity: 1, Fix: sequence.Scalar(1)}))
	require.NoError(t, err)
	es := NewEnergySystem(ti)
	require.NoError(t, es.Add(bel, src, snk))
	assert.NoError(t, es.Validate())
}

func TestConfigurationErrorCarriesLabel(t *testing.T) {
	bel := NewBus("electricity")
	_, err := NewSource("pv", Connect(bel, &Flow{Fix: sequence.Scalar(1)}))
	require.Error(t, err)
	var cfg *ConfigurationError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "pv->electricity", cfg.Label)
}

func TestConverterDefaultsFactors(t *testing.T) {
	gas := NewBus("gas")
	el := NewBus("electricity")
	c, err := NewConverter("pp", []Port{Connect(gas, nil)}, []Port{Connect(el, nil)},
		map[Node]sequence.Sequence{el: sequence.Scalar(0.4)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Factor(gas, 3))
	assert.Equal(t, 0.4, c.Factor(el, 0))
	assert.Equal(t, ConverterGroup, c.ConstraintGroup())

	other := NewBus("heat")
	_, err = NewConverter("bad", []Port{Connect(gas, nil)}, []Port{Connect(el, nil)},
		map[Node]sequence.Sequence{other: sequence.Scalar(0.4)})
	var topo *TopologyError
	assert.True(t, errors.As(err, &topo))
}

func TestLinkWarnsOnShape(t *testing.T) {
	got := captureWarnings(t)
	a, b := NewBus("a"), NewBus("b")
	_, err := NewLink("line", []Port{Connect(a, nil)}, []Port{Connect(b, nil)},
		[]LinkFactor{{From: a, To: b, Factor: sequence.Scalar(0.9)}})
	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, "line", (*got)[0].Label)

	MuteWarnings(true)
	defer MuteWarnings(false)
	c, d := NewBus("c"), NewBus("d")
	_, err = NewLink("line2", []Port{Connect(c, nil)}, []Port{Connect(d, nil)},
		[]LinkFactor{{From: c, To: d}})
	require.NoError(t, err)
	assert.Len(t, *got, 1)
}

func TestCHPCoefficients(t *testing.T) {
	gas, el, heat := NewBus("gas"), NewBus("el"), NewBus("heat")
	chp, err := NewExtractionTurbineCHP("chp",
		Connect(gas, nil),
		[]Port{Connect(el, nil), Connect(heat, nil)},
		map[Node]sequence.Sequence{el: sequence.Scalar(0.3), heat: sequence.Scalar(0.5)},
		map[Node]sequence.Sequence{el: sequence.Scalar(0.5)})
	require.NoError(t, err)
	assert.Equal(t, Node(el), chp.MainOutput())
	assert.Equal(t, Node(heat), chp.TappedOutput())
	assert.Equal(t, Node(gas), chp.FuelInput())
	assert.InDelta(t, 0.4, chp.Beta(0), 1e-12)
	assert.InDelta(t, 0.6, chp.FlowRelation(0), 1e-12)
	assert.Equal(t, CHPGroup, chp.ConstraintGroup())
}

func TestSlopeOffset(t *testing.T) {
	offset, slope, err := SlopeOffset(100, 0.3, 1, 0.3, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 41.0/70.0, slope, 1e-12)
	assert.InDelta(t, 9-41.0/70.0*30, offset, 1e-12)
	// both operating points are reproduced
	assert.InDelta(t, 9.0, offset+slope*30, 1e-9)
	assert.InDelta(t, 50.0, offset+slope*100, 1e-9)

	_, _, err = SlopeOffset(100, 0.5, 0.5, 0.3, 0.3)
	assert.Error(t, err)
}

func TestOffsetConverterNeedsNonConvexInput(t *testing.T) {
	fuel, el := NewBus("fuel"), NewBus("el")
	coeff := [2]sequence.Sequence{sequence.Scalar(-2), sequence.Scalar(0.5)}
	_, err := NewOffsetConverter("gen", Connect(fuel, &Flow{NominalCapacity: 10}), Connect(el, nil), coeff)
	assert.Error(t, err)

	oc, err := NewOffsetConverter("gen2",
		Connect(fuel, &Flow{NominalCapacity: 10, Min: sequence.Scalar(0.3), NonConvex: &NonConvex{}}),
		Connect(el, nil), coeff)
	require.NoError(t, err)
	assert.NotNil(t, oc.InputFlow().NonConvex)
	assert.NotNil(t, oc.OutputFlow())
}

func TestStorageValidation(t *testing.T) {
	bel := NewBus("el")
	mk := func(p StorageParams) error {
		_, err := NewGenericStorage("s", p, []Port{Connect(bel, nil)}, []Port{Connect(bel, nil)})
		return err
	}
	assert.NoError(t, mk(StorageParams{NominalCapacity: 10, InitialStorageLevel: sequence.Scalar(0.5)}))
	assert.Error(t, mk(StorageParams{NominalCapacity: 10, InitialStorageLevel: sequence.Scalar(0.1), MinStorageLevel: sequence.Scalar(0.2)}))
	assert.Error(t, mk(StorageParams{Investment: &Investment{}, InitialStorageLevel: sequence.Scalar(0.5)}))
	assert.Error(t, mk(StorageParams{Investment: &Investment{}, NominalCapacity: 3}))
	assert.Error(t, mk(StorageParams{Investment: &Investment{}, FixedLossesAbsolute: sequence.Scalar(1)}))
	assert.Error(t, mk(StorageParams{NominalCapacity: 10, InflowConversionFactor: sequence.Scalar(1.2)}))
	assert.Error(t, mk(StorageParams{}))
	assert.Error(t, mk(StorageParams{
		Investment:                   &Investment{},
		InvestRelationInputCapacity:  sequence.Scalar(1),
		InvestRelationOutputCapacity: sequence.Scalar(1),
		InvestRelationInputOutput:    sequence.Scalar(1),
	}))
	// relation to the capacity needs an investment on the input flow
	assert.Error(t, mk(StorageParams{Investment: &Investment{}, InvestRelationInputCapacity: sequence.Scalar(1)}))

	_, err := NewGenericStorage("two", StorageParams{NominalCapacity: 1},
		[]Port{Connect(bel, nil), Connect(NewBus("x"), nil)}, nil)
	assert.Error(t, err)
}

func TestStorageRetention(t *testing.T) {
	bel := NewBus("el")
	s, err := NewGenericStorage("s", StorageParams{NominalCapacity: 10, LossRate: sequence.Scalar(0.01)},
		[]Port{Connect(bel, nil)}, []Port{Connect(bel, nil)})
	require.NoError(t, err)
	assert.InDelta(t, 0.99, s.RetentionFactor(0, 1), 1e-12)
	assert.InDelta(t, 0.99*0.99, s.RetentionFactor(0, 2), 1e-12)
	assert.Equal(t, StorageGroup, s.ConstraintGroup())
}

func TestEnergySystem(t *testing.T) {
	ti, err := timeindex.Uniform(3, 1)
	require.NoError(t, err)
	es := NewEnergySystem(ti)

	bel := NewBus("el")
	src, err := NewSource("src", Connect(bel, &Flow{}))
	require.NoError(t, err)
	snk, err := NewSink("snk", Connect(bel, &Flow{NominalCapacity: 1, Fix: sequence.Scalar(1)}))
	require.NoError(t, err)

	require.NoError(t, es.Add(bel, src))
	var topo *TopologyError
	require.True(t, errors.As(es.Validate(), &topo), "sink not added yet")

	require.NoError(t, es.Add(snk))
	require.NoError(t, es.Validate())
	assert.Error(t, es.Add(NewBus("el")), "duplicate label")

	flows := es.Flows()
	require.Len(t, flows, 2)
	assert.Equal(t, "el->snk", flows[0].Label())
	assert.Equal(t, "src->el", flows[1].Label())

	g := es.Groups()
	assert.Equal(t, []Node{bel}, g.Nodes[BusGroup])
	assert.Len(t, g.Flows[SimpleFlowGroup], 2)

	other := NewEnergySystem(ti)
	assert.Error(t, other.Add(bel))
}

func TestActionFromNetFlow(t *testing.T) {
	assert.Equal(t, ActionCharging, ActionFromNetFlow(-1, 1e-9))
	assert.Equal(t, ActionDischarging, ActionFromNetFlow(1, 1e-9))
	assert.Equal(t, ActionIdle, ActionFromNetFlow(1e-12, 1e-9))
}
