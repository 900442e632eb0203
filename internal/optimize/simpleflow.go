package optimize

import (
	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
)

// buildSimpleFlows handles flows without investment or nonconvex options.
// Their bounds were set when the flow variables were created.
func buildSimpleFlows(m *Model, g model.Groups) error {
	block := string(model.SimpleFlowGroup)
	for _, f := range g.Flows[model.SimpleFlowGroup] {
		if f.HasNominal() {
			c := constCapacity(f.NominalCapacity)
			m.fullLoadTime(block, f, c)
			m.gradients(block, f, c)
		}
		m.integerShadow(block, f)
		m.variableCosts(block, f)
		m.flowLifetime(block, f)
		m.nominalFixedCosts(block, f)
	}
	return nil
}

// flowLifetime forces a flow to zero in every period in which its unit has
// reached the end of its lifetime.
func (m *Model) flowLifetime(block string, f *model.Flow) {
	ti := m.TimeIndex
	if !ti.IsMultiPeriod() || f.Lifetime == 0 {
		return
	}
	for t, v := range m.flowVar[f] {
		if f.Lifetime-f.Age <= ti.PeriodYear(ti.PeriodOf(t)) {
			m.Problem.AddConstraint(name(block, "lifetime_output", flowParts(f, t)...), lp.Sum(v), lp.EQ, 0)
		}
	}
}

// nominalFixedCosts charges yearly fixed costs on a literal capacity over
// its remaining life. They are a constant of the objective.
func (m *Model) nominalFixedCosts(block string, f *model.Flow) {
	if f.FixedCosts.AllZero() || !f.HasNominal() {
		return
	}
	if !m.TimeIndex.IsMultiPeriod() {
		model.Warn(f.Label(), "fixed costs are only applied in multi-period models")
		return
	}
	life := 0
	if f.Lifetime > 0 {
		life = f.Lifetime - f.Age
	}
	years := m.remainingYears(0, life)
	fixed := func(y int) float64 { return f.FixedCosts.At(y) }
	m.addObjective(block, lp.Expr{Constant: f.NominalCapacity * m.fixedCostsOfCapacity(fixed, 0, years)})
}

// buildInvestFlows sizes flows whose capacity is an investment.
func buildInvestFlows(m *Model, g model.Groups) error {
	block := string(model.InvestFlowGroup)
	for _, f := range g.Flows[model.InvestFlowGroup] {
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
		m.capacityBounds(block, f, c)
		m.fullLoadTime(block, f, c)
		m.gradients(block, f, c)
		m.integerShadow(block, f)
		m.variableCosts(block, f)
	}
	return nil
}
