package optimize

import (
	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/timeindex"
)

// capacityFunc returns the effective capacity of an entity in period p.
type capacityFunc func(p int) lp.Expr

func constCapacity(c float64) capacityFunc {
	return func(int) lp.Expr { return lp.Expr{Constant: c} }
}

func varCapacity(total []lp.Var) capacityFunc {
	return func(p int) lp.Expr { return lp.Sum(total[p]) }
}

// name builds a block-scoped identifier such as
// SimpleFlowBlock_gradient(pv,electricity,3).
func name(block, what string, parts ...any) string {
	return lp.Name(block+"_"+what, parts...)
}

// flowParts are the name parts of a flow.
func flowParts(f *model.Flow, more ...any) []any {
	return append([]any{f.From().Label(), f.To().Label()}, more...)
}

// variableCosts adds Σ_t P(t)·c(t) weighted by step duration, typical-period
// weight and discounting.
func (m *Model) variableCosts(block string, f *model.Flow) {
	if f.VariableCosts.AllZero() {
		return
	}
	var e lp.Expr
	for t, v := range m.flowVar[f] {
		e.Add(v, f.VariableCosts.At(t)*m.EnergyWeight(t))
	}
	m.addObjective(block, e)
}

// fullLoadTime bounds the weighted energy of a flow by full-load hours
// times the summed capacity of all periods.
func (m *Model) fullLoadTime(block string, f *model.Flow, capacity capacityFunc) {
	if !f.FullLoadTimeMax.IsSet() && !f.FullLoadTimeMin.IsSet() {
		return
	}
	var energy, total lp.Expr
	for t, v := range m.flowVar[f] {
		energy.Add(v, m.TimeIndex.Increment(t)*m.tsamWeight[t])
	}
	for p := 0; p < m.TimeIndex.NumPeriods(); p++ {
		total.AddExpr(capacity(p), 1)
	}
	if f.FullLoadTimeMax.IsSet() {
		e := energy.Copy()
		e.AddExpr(total, -f.FullLoadTimeMax.At(0))
		m.Problem.AddConstraint(name(block, "full_load_time_max", flowParts(f)...), e, lp.LE, 0)
	}
	if f.FullLoadTimeMin.IsSet() {
		e := energy.Copy()
		e.AddExpr(total, -f.FullLoadTimeMin.At(0))
		m.Problem.AddConstraint(name(block, "full_load_time_min", flowParts(f)...), e, lp.GE, 0)
	}
}

// continues reports whether step t follows t-1 on the same trajectory.
// Steps at the start of a typical period do not.
func continues(ti *timeindex.TimeIndex, t int) bool {
	if t == 0 {
		return false
	}
	_, k := ti.Split(t)
	return k != 0
}

// gradients limits the change of a flow between consecutive steps:
// P(t) - P(t-1) <= limit(t)·C·τ(t-1).
func (m *Model) gradients(block string, f *model.Flow, capacity capacityFunc) {
	type dir struct {
		what  string
		limit func(t int) (float64, bool)
		sign  float64
	}
	dirs := []dir{
		{"positive_gradient", func(t int) (float64, bool) { return f.PositiveGradientLimit.At(t), f.PositiveGradientLimit.IsSet() }, 1},
		{"negative_gradient", func(t int) (float64, bool) { return f.NegativeGradientLimit.At(t), f.NegativeGradientLimit.IsSet() }, -1},
	}
	vars := m.flowVar[f]
	for _, d := range dirs {
		if _, ok := d.limit(0); !ok {
			continue
		}
		for t := 1; t < len(vars); t++ {
			if !continues(m.TimeIndex, t) {
				continue
			}
			lim, _ := d.limit(t)
			var e lp.Expr
			e.Add(vars[t], d.sign).Add(vars[t-1], -d.sign)
			e.AddExpr(capacity(m.TimeIndex.PeriodOf(t)), -lim*m.TimeIndex.Increment(t-1))
			m.Problem.AddConstraint(name(block, d.what+"_constr", flowParts(f, t)...), e, lp.LE, 0)
		}
	}
}

// integerShadow ties an integer variable to every step of an integer flow.
func (m *Model) integerShadow(block string, f *model.Flow) {
	if !f.Integer {
		return
	}
	ints := make([]lp.Var, len(m.flowVar[f]))
	for t, v := range m.flowVar[f] {
		bound := m.Problem.Variable(v)
		ints[t] = m.Problem.AddVar(name(block, "integer_flow", flowParts(f, t)...), bound.Lower, bound.Upper, lp.Integer)
		var e lp.Expr
		e.Add(v, 1).Add(ints[t], -1)
		m.Problem.AddConstraint(name(block, "integer_flow_constr", flowParts(f, t)...), e, lp.EQ, 0)
	}
	m.register(&VarSet{Flow: f, Name: "integer_flow", Index: ByTimestep, Exprs: exprsOf(ints)})
}

// capacityBounds emits min(t)·C(p) <= P(t) <= max(t)·C(p), or the fixed
// profile, for flows whose capacity is a decision variable.
func (m *Model) capacityBounds(block string, f *model.Flow, capacity capacityFunc) {
	for t, v := range m.flowVar[f] {
		c := capacity(m.TimeIndex.PeriodOf(t))
		if f.Fix.IsSet() {
			var e lp.Expr
			e.Add(v, 1).AddExpr(c, -f.Fix.At(t))
			m.Problem.AddConstraint(name(block, "fixed", flowParts(f, t)...), e, lp.EQ, 0)
			continue
		}
		var up lp.Expr
		up.Add(v, 1).AddExpr(c, -f.MaxAt(t))
		m.Problem.AddConstraint(name(block, "max", flowParts(f, t)...), up, lp.LE, 0)
		if lo := f.MinAt(t); lo != 0 || f.Bidirectional {
			var e lp.Expr
			e.Add(v, 1).AddExpr(c, -lo)
			m.Problem.AddConstraint(name(block, "min", flowParts(f, t)...), e, lp.GE, 0)
		}
	}
}

// fixedCostsOfCapacity is the discounted sum of yearly fixed costs from
// year start over years years, per unit of capacity.
func (m *Model) fixedCostsOfCapacity(f func(year int) float64, start, years int) float64 {
	sum := 0.0
	for y := start; y < start+years; y++ {
		sum += f(y) * timeindex.YearDiscount(y, m.discountRate)
	}
	return sum
}

// remainingYears is the number of years from start an asset of the given
// lifetime still serves within the horizon. A lifetime of 0 lasts the whole
// horizon.
func (m *Model) remainingYears(start, lifetime int) int {
	end := m.TimeIndex.EndYear()
	if lifetime > 0 {
		end = min(end, start+lifetime)
	}
	return max(end-start, 0)
}
