package optimize

import (
	"fmt"

	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
)

// buildBuses emits Σ inflow = Σ outflow for every balanced bus and step.
func buildBuses(m *Model, g model.Groups) error {
	block := string(model.BusGroup)
	for _, n := range g.Nodes[model.BusGroup] {
		b := n.(*model.Bus)
		in, out := b.Inputs().Flows(), b.Outputs().Flows()
		if len(in) == 0 && len(out) == 0 {
			model.Warn(b.Label(), "balanced bus has no flows and is skipped")
			continue
		}
		rows := make([]int, m.TimeIndex.N())
		for t := range rows {
			var e lp.Expr
			for _, f := range in {
				e.Add(m.flowVar[f][t], 1)
			}
			for _, f := range out {
				e.Add(m.flowVar[f][t], -1)
			}
			rows[t] = m.Problem.AddConstraint(name(block, "balance", b.Label(), t), e, lp.EQ, 0)
		}
		m.balance[b] = rows
	}
	return nil
}

// buildConverters relates every input and output of a converter:
// P(i,n,t)·η(o,t) = P(n,o,t)·η(i,t).
func buildConverters(m *Model, g model.Groups) error {
	block := string(model.ConverterGroup)
	for _, n := range g.Nodes[model.ConverterGroup] {
		c := n.(*model.Converter)
		for _, i := range c.Inputs().Nodes() {
			fin, _ := c.Inputs().Flow(i)
			for _, o := range c.Outputs().Nodes() {
				fout, _ := c.Outputs().Flow(o)
				for t := 0; t < m.TimeIndex.N(); t++ {
					var e lp.Expr
					e.Add(m.flowVar[fin][t], c.Factor(o, t)).Add(m.flowVar[fout][t], -c.Factor(i, t))
					m.Problem.AddConstraint(name(block, "relation", c.Label(), i.Label(), o.Label(), t), e, lp.EQ, 0)
				}
			}
		}
	}
	return nil
}

// buildLinks emits P(link,to,t) = c(from,to,t)·P(from,link,t) per direction.
func buildLinks(m *Model, g model.Groups) error {
	block := string(model.LinkGroup)
	for _, n := range g.Nodes[model.LinkGroup] {
		l := n.(*model.Link)
		for _, key := range l.Directions() {
			fin, ok := l.Inputs().Flow(key.From)
			if !ok {
				return &model.TopologyError{Label: l.Label(), Err: fmt.Errorf("no input flow from %s", key.From.Label())}
			}
			fout, ok := l.Outputs().Flow(key.To)
			if !ok {
				return &model.TopologyError{Label: l.Label(), Err: fmt.Errorf("no output flow to %s", key.To.Label())}
			}
			factor := l.ConversionFactors[key]
			for t := 0; t < m.TimeIndex.N(); t++ {
				var e lp.Expr
				e.Add(m.flowVar[fout][t], 1).Add(m.flowVar[fin][t], -factor.At(t))
				m.Problem.AddConstraint(name(block, "relation", l.Label(), key.From.Label(), key.To.Label(), t), e, lp.EQ, 0)
			}
		}
	}
	return nil
}

// buildCHPs emits the fuel equation fuel·η_cond = P_el + β·P_heat and the
// back-pressure limit P_el >= P_heat·η_el/η_heat.
func buildCHPs(m *Model, g model.Groups) error {
	block := string(model.CHPGroup)
	for _, n := range g.Nodes[model.CHPGroup] {
		c := n.(*model.ExtractionTurbineCHP)
		fuel, _ := c.Inputs().Flow(c.FuelInput())
		main, _ := c.Outputs().Flow(c.MainOutput())
		tapped, _ := c.Outputs().Flow(c.TappedOutput())
		for t := 0; t < m.TimeIndex.N(); t++ {
			var e lp.Expr
			e.Add(m.flowVar[fuel][t], c.CondensationEfficiency(t)).
				Add(m.flowVar[main][t], -1).
				Add(m.flowVar[tapped][t], -c.Beta(t))
			m.Problem.AddConstraint(name(block, "input_output_relation", c.Label(), t), e, lp.EQ, 0)

			var r lp.Expr
			r.Add(m.flowVar[main][t], 1).Add(m.flowVar[tapped][t], -c.FlowRelation(t))
			m.Problem.AddConstraint(name(block, "out_flow_relation", c.Label(), t), r, lp.GE, 0)
		}
	}
	return nil
}

// buildOffsetConverters emits P_out = a1·P_in + a0·status with the status of
// the nonconvex input flow.
func buildOffsetConverters(m *Model, g model.Groups) error {
	block := string(model.OffsetConverterGroup)
	for _, n := range g.Nodes[model.OffsetConverterGroup] {
		c := n.(*model.OffsetConverter)
		in, out := c.InputFlow(), c.OutputFlow()
		status, ok := m.status[in]
		if !ok {
			return &model.ConfigurationError{Label: c.Label(), Err: fmt.Errorf("input flow %s has no status", in.Label())}
		}
		for t := 0; t < m.TimeIndex.N(); t++ {
			var e lp.Expr
			e.Add(m.flowVar[out][t], 1).
				Add(m.flowVar[in][t], -c.Coefficients[1].At(t)).
				Add(status[t], -c.Coefficients[0].At(t))
			m.Problem.AddConstraint(name(block, "relation", c.Label(), t), e, lp.EQ, 0)
		}
	}
	return nil
}
