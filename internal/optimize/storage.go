package optimize

import (
	"errors"
	"fmt"
	"math"

	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
)

func buildStorages(m *Model, g model.Groups) error {
	block := string(model.StorageGroup)
	for _, n := range g.Nodes[model.StorageGroup] {
		s := n.(*model.GenericStorage)
		if err := m.storage(block, s, constCapacity(s.NominalCapacity), false); err != nil {
			return err
		}
	}
	return nil
}

func buildInvestStorages(m *Model, g model.Groups) error {
	block := string(model.InvestStorageGroup)
	for _, n := range g.Nodes[model.InvestStorageGroup] {
		s := n.(*model.GenericStorage)
		if m.TimeIndex.IsMultiPeriod() && !s.FixedLossesAbsolute.AllZero() {
			return &model.ConfigurationError{Label: s.Label(), Err: errors.New("fixed_losses_absolute is not supported for investment storages in multi-period models")}
		}
		iv, err := m.addInvestment(investOwner{
			block:      block,
			parts:      []any{s.Label()},
			label:      s.Label(),
			node:       s,
			inv:        s.Investment,
			fixedCosts: s.Investment.FixedCosts,
		})
		if err != nil {
			return err
		}
		if err := m.storage(block, s, iv.capacity(), true); err != nil {
			return err
		}
	}
	return nil
}

// storageStep holds the per-step coefficients of the storage balance
// E(t+1) = ret·E(t) + ηin·τ·Pin - τ/ηout·Pout - rel·τ·C - abs·τ.
type storageStep struct {
	s        *model.GenericStorage
	in, out  []lp.Var
	capacity capacityFunc
	m        *Model
}

// flows returns the terms ηin·τ·Pin - τ/ηout·Pout - rel·τ·C - abs·τ.
func (st storageStep) flows(t int) lp.Expr {
	tau := st.m.TimeIndex.Increment(t)
	var e lp.Expr
	if st.in != nil {
		e.Add(st.in[t], st.s.InflowEta(t)*tau)
	}
	if st.out != nil {
		e.Add(st.out[t], -tau/st.s.OutflowEta(t))
	}
	if rel := st.s.FixedLossesRelative.At(t); rel != 0 {
		e.AddExpr(st.capacity(st.m.TimeIndex.PeriodOf(t)), -rel*tau)
	}
	e.AddConstant(-st.s.FixedLossesAbsolute.At(t) * tau)
	return e
}

func (st storageStep) retention(t int) float64 {
	return st.s.RetentionFactor(t, st.m.TimeIndex.Increment(t))
}

func (m *Model) storage(block string, s *model.GenericStorage, capacity capacityFunc, invest bool) error {
	st := storageStep{s: s, capacity: capacity, m: m}
	if f := s.InputFlow(); f != nil {
		st.in = m.flowVar[f]
	}
	if f := s.OutputFlow(); f != nil {
		st.out = m.flowVar[f]
	}
	if err := m.investRelations(block, s, capacity); err != nil {
		return err
	}
	if m.TimeIndex.IsAggregated() {
		m.typicalPeriodStorage(block, s, st, invest)
		return nil
	}

	ti := m.TimeIndex
	n := ti.N()
	content := make([]lp.Var, n+1)
	for t := range content {
		lo, up := 0.0, math.Inf(1)
		if !invest {
			lo, up = s.MinLevel(t)*s.NominalCapacity, s.MaxLevel(t)*s.NominalCapacity
		}
		content[t] = m.Problem.AddVar(name(block, "storage_content", s.Label(), t), lo, up, lp.Continuous)
	}
	if invest {
		for t, v := range content {
			c := capacity(ti.PeriodOf(t))
			var up lp.Expr
			up.Add(v, 1).AddExpr(c, -s.MaxLevel(t))
			m.Problem.AddConstraint(name(block, "max_storage_content", s.Label(), t), up, lp.LE, 0)
			if lvl := s.MinLevel(t); lvl != 0 {
				var lo lp.Expr
				lo.Add(v, 1).AddExpr(c, -lvl)
				m.Problem.AddConstraint(name(block, "min_storage_content", s.Label(), t), lo, lp.GE, 0)
			}
		}
	}
	for t := 0; t < n; t++ {
		var e lp.Expr
		e.Add(content[t+1], 1).Add(content[t], -st.retention(t)).AddExpr(st.flows(t), -1)
		m.Problem.AddConstraint(name(block, "balance", s.Label(), t), e, lp.EQ, 0)
	}
	if s.InitialStorageLevel.IsSet() {
		m.Problem.Fix(content[0], s.InitialStorageLevel.At(0)*s.NominalCapacity)
	}
	if s.Balanced {
		var e lp.Expr
		e.Add(content[n], 1).Add(content[0], -1)
		m.Problem.AddConstraint(name(block, "balanced_cstr", s.Label()), e, lp.EQ, 0)
	}
	if s.StorageCosts.IsSet() {
		var cost lp.Expr
		for t := 0; t < n; t++ {
			cost.Add(content[t+1], s.StorageCosts.At(t)*m.EventWeight(t))
		}
		m.addObjective(block, cost)
	}
	m.register(&VarSet{Node: s, Name: "storage_content", Index: ByTimepoint, Exprs: exprsOf(content)})
	return nil
}

// typicalPeriodStorage splits the content into an intra-period state per
// typical period, starting at zero, and an inter-period state at the start
// of every original period. The content at original step k of period i is
// inter(i)·decay(k) + intra(order(i), k).
func (m *Model) typicalPeriodStorage(block string, s *model.GenericStorage, st storageStep, invest bool) {
	ti := m.TimeIndex
	agg := ti.Aggregation()
	k := agg.StepsPerPeriod
	order := agg.Order

	intra := make([][]lp.Var, agg.TypicalPeriods())
	var intraAll []lp.Var
	decay := make([][]float64, len(intra))
	for typ := range intra {
		intra[typ] = make([]lp.Var, k+1)
		decay[typ] = make([]float64, k+1)
		decay[typ][0] = 1
		for j := 0; j <= k; j++ {
			intra[typ][j] = m.Problem.AddVar(name(block, "storage_content_intra", s.Label(), typ, j), math.Inf(-1), math.Inf(1), lp.Continuous)
		}
		m.Problem.Fix(intra[typ][0], 0)
		for j := 0; j < k; j++ {
			t := ti.Step(typ, j)
			decay[typ][j+1] = decay[typ][j] * st.retention(t)
			var e lp.Expr
			e.Add(intra[typ][j+1], 1).Add(intra[typ][j], -st.retention(t)).AddExpr(st.flows(t), -1)
			m.Problem.AddConstraint(name(block, "balance_intra", s.Label(), typ, j), e, lp.EQ, 0)
		}
		intraAll = append(intraAll, intra[typ]...)
	}

	inter := make([]lp.Var, len(order)+1)
	for i := range inter {
		inter[i] = m.Problem.AddVar(name(block, "storage_content_inter", s.Label(), i), 0, math.Inf(1), lp.Continuous)
	}
	for i, typ := range order {
		var e lp.Expr
		e.Add(inter[i+1], 1).Add(inter[i], -decay[typ][k]).Add(intra[typ][k], -1).Add(intra[typ][0], 1)
		m.Problem.AddConstraint(name(block, "balance_inter", s.Label(), i), e, lp.EQ, 0)
	}

	soc := make([]lp.Expr, 0, len(order)*k+1)
	for i, typ := range order {
		for j := 0; j < k; j++ {
			var e lp.Expr
			e.Add(inter[i], decay[typ][j]).Add(intra[typ][j], 1)
			soc = append(soc, e)
		}
	}
	soc = append(soc, lp.Sum(inter[len(order)]))

	c := st.capacity(0)
	for j, e := range soc {
		t := ti.N()
		if j < len(order)*k {
			t = ti.Step(order[j/k], j%k)
		}
		up := e.Copy()
		up.AddExpr(c, -s.MaxLevel(t))
		m.Problem.AddConstraint(name(block, "max_storage_content", s.Label(), j), up, lp.LE, 0)
		lo := e.Copy()
		lo.AddExpr(c, -s.MinLevel(t))
		m.Problem.AddConstraint(name(block, "min_storage_content", s.Label(), j), lo, lp.GE, 0)
	}

	if s.InitialStorageLevel.IsSet() && !invest {
		m.Problem.Fix(inter[0], s.InitialStorageLevel.At(0)*s.NominalCapacity)
	}
	if s.Balanced {
		var e lp.Expr
		e.Add(inter[len(order)], 1).Add(inter[0], -1)
		m.Problem.AddConstraint(name(block, "balanced_cstr", s.Label()), e, lp.EQ, 0)
	}
	if s.StorageCosts.IsSet() {
		var cost lp.Expr
		for j := 0; j+1 < len(soc); j++ {
			cost.AddExpr(soc[j+1], s.StorageCosts.At(ti.Step(order[j/k], j%k)))
		}
		m.addObjective(block, cost)
	}

	m.register(&VarSet{Node: s, Name: "storage_content", Index: ByOriginalTimepoint, Exprs: soc})
	m.register(&VarSet{Node: s, Name: "storage_content_intra", Index: ByTypicalTimepoint, Exprs: exprsOf(intraAll)})
	m.register(&VarSet{Node: s, Name: "storage_content_inter", Index: ByOriginalPeriod, Exprs: exprsOf(inter)})
}

// investRelations ties flow capacities to the storage capacity and to each
// other in every period.
func (m *Model) investRelations(block string, s *model.GenericStorage, capacity capacityFunc) error {
	in, out := s.InputFlow(), s.OutputFlow()
	flowCap := func(f *model.Flow) (capacityFunc, error) {
		if f == nil {
			return nil, &model.TopologyError{Label: s.Label(), Err: errors.New("invest relation refers to a missing flow")}
		}
		c, ok := m.flowCapacity[f]
		if !ok {
			return nil, &model.ConfigurationError{Label: s.Label(), Err: fmt.Errorf("invest relation needs an investment on %s", f.Label())}
		}
		return c, nil
	}
	type relation struct {
		what  string
		ratio float64
		lhs   *model.Flow
		rhs   func() (capacityFunc, error)
	}
	var rels []relation
	if r := s.InvestRelationInputCapacity; r.IsSet() {
		rels = append(rels, relation{"storage_capacity_inflow", r.At(0), in, func() (capacityFunc, error) { return capacity, nil }})
	}
	if r := s.InvestRelationOutputCapacity; r.IsSet() {
		rels = append(rels, relation{"storage_capacity_outflow", r.At(0), out, func() (capacityFunc, error) { return capacity, nil }})
	}
	if r := s.InvestRelationInputOutput; r.IsSet() {
		rels = append(rels, relation{"power_coupled", r.At(0), out, func() (capacityFunc, error) { return flowCap(in) }})
	}
	for _, rel := range rels {
		lhs, err := flowCap(rel.lhs)
		if err != nil {
			return err
		}
		rhs, err := rel.rhs()
		if err != nil {
			return err
		}
		for p := 0; p < m.TimeIndex.NumPeriods(); p++ {
			e := lhs(p)
			e.AddExpr(rhs(p), -rel.ratio)
			m.Problem.AddConstraint(name(block, rel.what, s.Label(), p), e, lp.EQ, 0)
		}
	}
	return nil
}
