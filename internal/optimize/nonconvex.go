package optimize

import (
	"errors"
	"math"

	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
)

func buildNonConvexFlows(m *Model, g model.Groups) error {
	block := string(model.NonConvexFlowGroup)
	for _, f := range g.Flows[model.NonConvexFlowGroup] {
		status := m.addStatus(block, f)
		c := f.NominalCapacity
		for t, v := range m.flowVar[f] {
			var up lp.Expr
			up.Add(v, 1).Add(status[t], -f.MaxAt(t)*c)
			m.Problem.AddConstraint(name(block, "max", flowParts(f, t)...), up, lp.LE, 0)
			if f.MinAt(t) == 0 {
				continue
			}
			var lo lp.Expr
			lo.Add(v, 1).Add(status[t], -f.MinAt(t)*c)
			m.Problem.AddConstraint(name(block, "min", flowParts(f, t)...), lo, lp.GE, 0)
		}
		m.nonconvexCommon(block, f, status, constCapacity(c))
		m.fullLoadTime(block, f, constCapacity(c))
		m.integerShadow(block, f)
		m.variableCosts(block, f)
		m.flowLifetime(block, f)
		m.nominalFixedCosts(block, f)
	}
	return nil
}

// buildNonConvexInvestFlows combines an investment with a status. The
// product J(t) = total·status(t) is linearised with the investment maximum
// as big-M.
func buildNonConvexInvestFlows(m *Model, g model.Groups) error {
	block := string(model.NonConvexInvestFlowGroup)
	for _, f := range g.Flows[model.NonConvexInvestFlowGroup] {
		if m.TimeIndex.IsMultiPeriod() {
			return &model.ConfigurationError{Label: f.Label(), Err: errors.New("nonconvex investment flows are not supported in multi-period models")}
		}
		iv, err := m.addInvestment(investOwner{
			block:      block,
			parts:      flowParts(f),
			label:      f.Label(),
			flow:       f,
			inv:        f.Investment,
			fixedCosts: f.Investment.FixedCosts.Or(f.FixedCosts),
		})
		if err != nil {
			return err
		}
		c := iv.capacity()
		m.flowCapacity[f] = c
		status := m.addStatus(block, f)

		bigM := f.Investment.Existing + f.Investment.MaximumAt(0)
		total := iv.total[0]
		prod := make([]lp.Var, len(status))
		for t, v := range m.flowVar[f] {
			j := m.Problem.AddVar(name(block, "status_nominal", flowParts(f, t)...), 0, bigM, lp.Continuous)
			prod[t] = j

			var a, b, d lp.Expr
			a.Add(j, 1).Add(status[t], -bigM)
			m.Problem.AddConstraint(name(block, "invest_nc_one", flowParts(f, t)...), a, lp.LE, 0)
			b.Add(j, 1).Add(total, -1)
			m.Problem.AddConstraint(name(block, "invest_nc_two", flowParts(f, t)...), b, lp.LE, 0)
			d.Add(j, 1).Add(total, -1).Add(status[t], -bigM)
			m.Problem.AddConstraint(name(block, "invest_nc_three", flowParts(f, t)...), d, lp.GE, -bigM)

			var up lp.Expr
			up.Add(v, 1).Add(j, -f.MaxAt(t))
			m.Problem.AddConstraint(name(block, "max", flowParts(f, t)...), up, lp.LE, 0)
			if f.MinAt(t) != 0 {
				var lo lp.Expr
				lo.Add(v, 1).Add(j, -f.MinAt(t))
				m.Problem.AddConstraint(name(block, "min", flowParts(f, t)...), lo, lp.GE, 0)
			}
		}
		m.register(&VarSet{Flow: f, Name: "status_nominal", Index: ByTimestep, Exprs: exprsOf(prod)})
		m.nonconvexCommon(block, f, status, c)
		m.fullLoadTime(block, f, c)
		m.integerShadow(block, f)
		m.variableCosts(block, f)
	}
	return nil
}

func (m *Model) addStatus(block string, f *model.Flow) []lp.Var {
	status := make([]lp.Var, m.TimeIndex.N())
	for t := range status {
		status[t] = m.Problem.AddVar(name(block, "status", flowParts(f, t)...), 0, 1, lp.Binary)
	}
	m.status[f] = status
	m.register(&VarSet{Flow: f, Name: "status", Index: ByTimestep, Exprs: exprsOf(status)})
	return status
}

// nonconvexCommon emits startups, shutdowns, minimum up and down times,
// gradients and the status-dependent costs of a nonconvex flow.
func (m *Model) nonconvexCommon(block string, f *model.Flow, status []lp.Var, capacity capacityFunc) {
	nc := f.NonConvex
	n := len(status)
	initial := float64(nc.InitialStatus)

	// prev is status(t-1) with status(-1) = initial status.
	prev := func(t int) lp.Expr {
		if t == 0 {
			return lp.Expr{Constant: initial}
		}
		return lp.Sum(status[t-1])
	}

	if nc.NeedsStartup() {
		up := make([]lp.Var, n)
		var count, cost lp.Expr
		for t := range up {
			up[t] = m.Problem.AddVar(name(block, "startup", flowParts(f, t)...), 0, 1, lp.Binary)
			var e lp.Expr
			e.Add(up[t], 1).Add(status[t], -1).AddExpr(prev(t), 1)
			m.Problem.AddConstraint(name(block, "startup_constr", flowParts(f, t)...), e, lp.GE, 0)
			count.Add(up[t], 1)
			if nc.StartupCosts.IsSet() {
				cost.Add(up[t], nc.StartupCosts.At(t)*m.EventWeight(t))
			}
		}
		if nc.MaximumStartups > 0 {
			m.Problem.AddConstraint(name(block, "max_startup_constr", flowParts(f)...), count, lp.LE, float64(nc.MaximumStartups))
		}
		m.addObjective(block, cost)
		m.register(&VarSet{Flow: f, Name: "startup", Index: ByTimestep, Exprs: exprsOf(up)})
	}

	if nc.NeedsShutdown() {
		down := make([]lp.Var, n)
		var count, cost lp.Expr
		for t := range down {
			down[t] = m.Problem.AddVar(name(block, "shutdown", flowParts(f, t)...), 0, 1, lp.Binary)
			var e lp.Expr
			e.Add(down[t], 1).Add(status[t], 1).AddExpr(prev(t), -1)
			m.Problem.AddConstraint(name(block, "shutdown_constr", flowParts(f, t)...), e, lp.GE, 0)
			count.Add(down[t], 1)
			if nc.ShutdownCosts.IsSet() {
				cost.Add(down[t], nc.ShutdownCosts.At(t)*m.EventWeight(t))
			}
		}
		if nc.MaximumShutdowns > 0 {
			m.Problem.AddConstraint(name(block, "max_shutdown_constr", flowParts(f)...), count, lp.LE, float64(nc.MaximumShutdowns))
		}
		m.addObjective(block, cost)
		m.register(&VarSet{Flow: f, Name: "shutdown", Index: ByTimestep, Exprs: exprsOf(down)})
	}

	m.minUpDown(block, f, status)

	var cost lp.Expr
	for t, s := range status {
		w := m.EventWeight(t)
		if nc.ActivityCosts.IsSet() {
			cost.Add(s, nc.ActivityCosts.At(t)*w)
		}
		if nc.InactivityCosts.IsSet() {
			c := nc.InactivityCosts.At(t) * w
			cost.AddConstant(c).Add(s, -c)
		}
	}
	m.addObjective(block, cost)

	m.nonconvexGradient(block, f, "positive_gradient", 1, nc.PositiveGradientLimit.IsSet(), nc.PositiveGradientLimit.At,
		nc.PositiveGradientCosts.IsSet(), nc.PositiveGradientCosts.At, capacity)
	m.nonconvexGradient(block, f, "negative_gradient", -1, nc.NegativeGradientLimit.IsSet(), nc.NegativeGradientLimit.At,
		nc.NegativeGradientCosts.IsSet(), nc.NegativeGradientCosts.At, capacity)
}

// minUpDown pins the status to its initial value in the first and last
// max(uptime, downtime) steps and enforces the minimum times in between.
func (m *Model) minUpDown(block string, f *model.Flow, status []lp.Var) {
	nc := f.NonConvex
	edge := nc.MaxUpDown()
	if edge == 0 {
		return
	}
	n := len(status)
	initial := float64(nc.InitialStatus)
	for t := 0; t < n; t++ {
		if t < edge || t >= n-edge {
			m.Problem.Fix(status[t], initial)
			continue
		}
		if u := nc.MinimumUptime; u > 0 {
			var e lp.Expr
			e.Add(status[t], float64(u)).Add(status[t-1], -float64(u))
			for k := 0; k < u; k++ {
				e.Add(status[t+k], -1)
			}
			m.Problem.AddConstraint(name(block, "min_uptime_constr", flowParts(f, t)...), e, lp.LE, 0)
		}
		if d := nc.MinimumDowntime; d > 0 {
			var e lp.Expr
			e.Add(status[t-1], float64(d)).Add(status[t], -float64(d))
			for k := 0; k < d; k++ {
				e.Add(status[t+k], 1)
			}
			m.Problem.AddConstraint(name(block, "min_downtime_constr", flowParts(f, t)...), e, lp.LE, float64(d))
		}
	}
}

// nonconvexGradient adds a gradient variable bounded below by the signed
// change of the flow. Because the flow is zero whenever the status is off,
// the change of the flow equals the change of flow·status.
func (m *Model) nonconvexGradient(block string, f *model.Flow, what string, sign float64,
	hasLimit bool, limit func(int) float64, hasCost bool, cost func(int) float64, capacity capacityFunc) {
	if !hasLimit && !hasCost {
		return
	}
	vars := m.flowVar[f]
	grad := make([]lp.Var, len(vars))
	var obj lp.Expr
	for t := range vars {
		grad[t] = m.Problem.AddVar(name(block, what, flowParts(f, t)...), 0, math.Inf(1), lp.Continuous)
		if !continues(m.TimeIndex, t) {
			m.Problem.Fix(grad[t], 0)
			continue
		}
		var e lp.Expr
		e.Add(grad[t], 1).Add(vars[t], -sign).Add(vars[t-1], sign)
		m.Problem.AddConstraint(name(block, what+"_constr", flowParts(f, t)...), e, lp.GE, 0)
		if hasLimit {
			var l lp.Expr
			l.Add(grad[t], 1).AddExpr(capacity(m.TimeIndex.PeriodOf(t)), -limit(t)*m.TimeIndex.Increment(t-1))
			m.Problem.AddConstraint(name(block, what+"_limit", flowParts(f, t)...), l, lp.LE, 0)
		}
		if hasCost {
			obj.Add(grad[t], cost(t)*m.EventWeight(t))
		}
	}
	m.addObjective(block, obj)
	m.register(&VarSet{Flow: f, Name: what, Index: ByTimestep, Exprs: exprsOf(grad)})
}
