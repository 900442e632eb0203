package optimize

import (
	"errors"
	"math"

	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/timeindex"
)

// investment holds the per-period capacity variables of one investment.
// old, oldEnd and oldExo exist in multi-period models only; status only for
// nonconvex investments.
type investment struct {
	invest []lp.Var
	total  []lp.Var
	old    []lp.Var
	oldEnd []lp.Var
	oldExo []lp.Var
	status []lp.Var
}

func (iv *investment) capacity() capacityFunc { return varCapacity(iv.total) }

// investOwner is the flow or storage an investment is attached to.
type investOwner struct {
	block      string
	parts      []any
	label      string
	node       model.Node
	flow       *model.Flow
	inv        *model.Investment
	fixedCosts sequence.Sequence
}

func (m *Model) addInvestment(o investOwner) (*investment, error) {
	ti := m.TimeIndex
	inv := o.inv
	np := ti.NumPeriods()
	if ti.IsMultiPeriod() && inv.Lifetime == 0 {
		return nil, &model.ConfigurationError{Label: o.label, Err: errors.New("lifetime is required for investments in multi-period models")}
	}
	for _, s := range []sequence.Sequence{inv.Minimum, inv.Maximum, inv.EPCosts, inv.Offset, inv.OverallMaximum, inv.OverallMinimum} {
		if err := s.CheckLength(np); err != nil {
			return nil, &model.ConfigurationError{Label: o.label, Err: err}
		}
	}
	for p := 0; p < np; p++ {
		if inv.MinimumAt(p) > inv.MaximumAt(p) {
			return nil, &model.ConfigurationError{Label: o.label, Err: errors.New("investment minimum must not exceed maximum")}
		}
	}

	iv := &investment{invest: make([]lp.Var, np), total: make([]lp.Var, np)}
	part := func(p int) []any { return append(append([]any(nil), o.parts...), p) }
	add := func(what string, p int, lo, up float64, kind lp.Kind) lp.Var {
		return m.Problem.AddVar(name(o.block, what, part(p)...), lo, up, kind)
	}
	for p := 0; p < np; p++ {
		lo := inv.MinimumAt(p)
		if inv.NonConvex {
			lo = 0
		}
		iv.invest[p] = add("invest", p, lo, inv.MaximumAt(p), lp.Continuous)
		iv.total[p] = add("total", p, 0, math.Inf(1), lp.Continuous)
	}
	if inv.NonConvex {
		iv.status = make([]lp.Var, np)
		for p := 0; p < np; p++ {
			iv.status[p] = add("invest_status", p, 0, 1, lp.Binary)
			var up, lo lp.Expr
			up.Add(iv.invest[p], 1).Add(iv.status[p], -inv.MaximumAt(p))
			m.Problem.AddConstraint(name(o.block, "maximum_rule", part(p)...), up, lp.LE, 0)
			lo.Add(iv.invest[p], 1).Add(iv.status[p], -inv.MinimumAt(p))
			m.Problem.AddConstraint(name(o.block, "minimum_rule", part(p)...), lo, lp.GE, 0)
		}
	}

	if ti.IsMultiPeriod() {
		m.multiPeriodInvestment(o, iv)
	} else {
		var e lp.Expr
		e.Add(iv.total[0], 1).Add(iv.invest[0], -1)
		m.Problem.AddConstraint(name(o.block, "total_rule", part(0)...), e, lp.EQ, inv.Existing)

		var cost lp.Expr
		cost.Add(iv.invest[0], inv.EPCostsAt(0))
		if iv.status != nil {
			cost.Add(iv.status[0], inv.OffsetAt(0))
		}
		m.addObjective(o.block, cost)
		m.investCosts.AddExpr(cost, 1)
		if !o.fixedCosts.AllZero() {
			model.Warn(o.label, "fixed costs are only applied in multi-period models")
		}
	}

	if inv.OverallMaximum.IsSet() {
		for p := 0; p < np; p++ {
			m.Problem.AddConstraint(name(o.block, "overall_maximum", part(p)...), lp.Sum(iv.total[p]), lp.LE, inv.OverallMaximum.At(p))
		}
	}
	if inv.OverallMinimum.IsSet() {
		last := np - 1
		m.Problem.AddConstraint(name(o.block, "overall_minimum", part(last)...), lp.Sum(iv.total[last]), lp.GE, inv.OverallMinimum.At(last))
	}

	reg := func(what string, vars []lp.Var) {
		if vars != nil {
			m.register(&VarSet{Node: o.node, Flow: o.flow, Name: what, Index: ByPeriod, Exprs: exprsOf(vars)})
		}
	}
	reg("invest", iv.invest)
	reg("total", iv.total)
	reg("old", iv.old)
	reg("old_end", iv.oldEnd)
	reg("old_exo", iv.oldExo)
	reg("invest_status", iv.status)
	return iv, nil
}

// multiPeriodInvestment emits the capacity evolution
// total(p) = total(p-1) + invest(p) - old(p) with age-based
// decommissioning, and the annuity and fixed-cost objective terms.
func (m *Model) multiPeriodInvestment(o investOwner, iv *investment) {
	ti := m.TimeIndex
	inv := o.inv
	np := ti.NumPeriods()
	part := func(p int) []any { return append(append([]any(nil), o.parts...), p) }
	add := func(what string, p int) lp.Var {
		return m.Problem.AddVar(name(o.block, what, part(p)...), 0, math.Inf(1), lp.Continuous)
	}
	iv.old = make([]lp.Var, np)
	iv.oldEnd = make([]lp.Var, np)
	iv.oldExo = make([]lp.Var, np)
	for p := 0; p < np; p++ {
		iv.old[p] = add("old", p)
		iv.oldEnd[p] = add("old_end", p)
		iv.oldExo[p] = add("old_exo", p)
	}

	// existing capacity leaves in the first period reaching lifetime - age
	exoPeriod := -1
	for p := 1; p < np; p++ {
		if ti.PeriodYear(p) >= inv.Lifetime-inv.Age {
			exoPeriod = p
			break
		}
	}
	for p := 0; p < np; p++ {
		if p == exoPeriod {
			m.Problem.Fix(iv.oldExo[p], inv.Existing)
		} else {
			m.Problem.Fix(iv.oldExo[p], 0)
		}
	}

	// capacity commissioned in q leaves in the first period at least one
	// lifetime later
	retiring := make([][]int, np)
	for q := 0; q < np; q++ {
		for p := q + 1; p < np; p++ {
			if ti.PeriodYear(p)-ti.PeriodYear(q) >= inv.Lifetime {
				retiring[p] = append(retiring[p], q)
				break
			}
		}
	}
	for p := 0; p < np; p++ {
		e := lp.Sum(iv.oldEnd[p])
		for _, q := range retiring[p] {
			e.Add(iv.invest[q], -1)
		}
		m.Problem.AddConstraint(name(o.block, "old_rule_end", part(p)...), e, lp.EQ, 0)

		var sum lp.Expr
		sum.Add(iv.old[p], 1).Add(iv.oldEnd[p], -1).Add(iv.oldExo[p], -1)
		m.Problem.AddConstraint(name(o.block, "old_rule", part(p)...), sum, lp.EQ, 0)

		var tot lp.Expr
		tot.Add(iv.total[p], 1).Add(iv.invest[p], -1)
		rhs := inv.Existing
		if p > 0 {
			tot.Add(iv.total[p-1], -1).Add(iv.old[p], 1)
			rhs = 0
		}
		m.Problem.AddConstraint(name(o.block, "total_rule", part(p)...), tot, lp.EQ, rhs)
	}

	rate := inv.InterestRate
	if rate == 0 {
		model.Warn(o.label, "interest_rate is not set; using the discount rate %g", m.discountRate)
		rate = m.discountRate
	}
	fixed := func(y int) float64 { return o.fixedCosts.At(y) }
	var capex, fix lp.Expr
	for p := 0; p < np; p++ {
		df := ti.DiscountFactor(p, m.discountRate)
		years := m.remainingYears(ti.PeriodYear(p), inv.Lifetime)
		a := annuity(inv.EPCostsAt(p), inv.Lifetime, rate)
		capex.Add(iv.invest[p], a*presentValueFactor(years, m.discountRate)*df)
		if iv.status != nil {
			capex.Add(iv.status[p], inv.OffsetAt(p)*df)
		}
		if o.fixedCosts.IsSet() {
			fix.Add(iv.invest[p], m.fixedCostsOfCapacity(fixed, ti.PeriodYear(p), years))
		}
	}
	if o.fixedCosts.IsSet() && inv.Existing > 0 {
		years := m.remainingYears(0, inv.Lifetime-inv.Age)
		fix.AddConstant(inv.Existing * m.fixedCostsOfCapacity(fixed, 0, years))
	}
	m.investCosts.AddExpr(capex, 1)
	capex.AddExpr(fix, 1)
	m.addObjective(o.block, capex)
}

// annuity spreads capex over n years at interest rate r.
func annuity(capex float64, n int, r float64) float64 {
	if n <= 0 {
		return capex
	}
	if r == 0 {
		return capex / float64(n)
	}
	q := math.Pow(1+r, float64(n))
	return capex * q * r / (q - 1)
}

// presentValueFactor is the value today of paying 1 at the end of each of
// the next n years at discount rate d.
func presentValueFactor(n int, d float64) float64 {
	sum := 0.0
	for y := 1; y <= n; y++ {
		sum += timeindex.YearDiscount(y, d)
	}
	return sum
}
