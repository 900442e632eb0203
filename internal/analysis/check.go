package analysis

import (
	"errors"
	"fmt"
	"math"

	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/timeindex"
)

// Property names a checked invariant of a solved model.
type Property string

const (
	BusBalance       Property = "bus_balance"
	FlowBounds       Property = "flow_bounds"
	ConverterRatio   Property = "converter_ratio"
	StorageBalance   Property = "storage_balance"
	NonConvexStatus  Property = "nonconvex_status"
	MinimumUptime    Property = "minimum_uptime"
	InvestmentStock  Property = "investment_stock"
	ObjectiveRebuild Property = "objective_reconstruction"
)

// Violation is one failed check. Step is -1 for checks that are not tied
// to a timestep.
type Violation struct {
	Property Property
	Label    string
	Step     int
	Detail   string
}

func (v Violation) String() string {
	if v.Step < 0 {
		return fmt.Sprintf("%s %s: %s", v.Property, v.Label, v.Detail)
	}
	return fmt.Sprintf("%s %s t=%d: %s", v.Property, v.Label, v.Step, v.Detail)
}

// Check verifies the solved model m against the balance, bound, conversion,
// storage, status, uptime, investment and objective invariants. tol is
// relative to the magnitude of the compared values, with an absolute floor
// of tol.
func Check(m *optimize.Model, tol float64) ([]Violation, error) {
	sol := m.Solution()
	if sol == nil {
		return nil, errors.New("model has no solution")
	}
	c := &checker{m: m, x: sol.Values, tol: tol}
	c.busBalance()
	c.flowBounds()
	c.converterRatios()
	c.storageBalance()
	c.nonconvex()
	c.investmentStock()

	total := 0.0
	for _, part := range m.ObjectiveParts() {
		total += part.Expr.Value(sol.Values)
	}
	if !c.close(total, sol.Objective) {
		c.fail(ObjectiveRebuild, "model", -1, "blocks sum to %g, solver reported %g", total, sol.Objective)
	}
	return c.out, nil
}

type checker struct {
	m   *optimize.Model
	x   []float64
	tol float64
	out []Violation
}

func (c *checker) fail(p Property, label string, t int, format string, args ...any) {
	c.out = append(c.out, Violation{Property: p, Label: label, Step: t, Detail: fmt.Sprintf(format, args...)})
}

func (c *checker) close(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= c.tol*scale
}

func (c *checker) flow(f *model.Flow, t int) float64 { return c.x[c.m.FlowVars(f)[t]] }

func (c *checker) series(owner, name string) ([]float64, bool) {
	set, ok := c.m.Lookup(owner, name)
	if !ok {
		return nil, false
	}
	return set.Values(c.x), true
}

// capacity is the effective capacity of an investment owner per period, or
// nil when owner has no investment.
func (c *checker) capacity(owner string) []float64 {
	total, ok := c.series(owner, "total")
	if !ok {
		return nil
	}
	return total
}

func (c *checker) busBalance() {
	for _, n := range c.m.ES.Nodes() {
		b, ok := n.(*model.Bus)
		if !ok {
			continue
		}
		if _, ok := c.m.BalanceRows(b); !ok {
			continue
		}
		for t := 0; t < c.m.TimeIndex.N(); t++ {
			in, out := 0.0, 0.0
			for _, f := range b.Inputs().Flows() {
				in += c.flow(f, t)
			}
			for _, f := range b.Outputs().Flows() {
				out += c.flow(f, t)
			}
			if !c.close(in, out) {
				c.fail(BusBalance, b.Label(), t, "inflow %g != outflow %g", in, out)
			}
		}
	}
}

func (c *checker) flowBounds() {
	ti := c.m.TimeIndex
	for _, f := range c.m.Flows() {
		var capacity func(t int) float64
		switch {
		case f.Investment != nil:
			total := c.capacity(f.Label())
			if total == nil {
				continue
			}
			capacity = func(t int) float64 { return total[ti.PeriodOf(t)] }
		case f.HasNominal():
			capacity = func(int) float64 { return f.NominalCapacity }
		default:
			continue
		}
		for t := 0; t < ti.N(); t++ {
			p, limit := c.flow(f, t), capacity(t)
			if f.Fix.IsSet() {
				if want := f.Fix.At(t) * limit; !c.close(p, want) {
					c.fail(FlowBounds, f.Label(), t, "flow %g != fixed %g", p, want)
				}
				continue
			}
			if up := f.MaxAt(t) * limit; p > up && !c.close(p, up) {
				c.fail(FlowBounds, f.Label(), t, "flow %g above %g", p, up)
			}
			if f.NonConvex != nil {
				continue
			}
			if lo := f.MinAt(t) * limit; p < lo && !c.close(p, lo) {
				c.fail(FlowBounds, f.Label(), t, "flow %g below %g", p, lo)
			}
		}
	}
}

func (c *checker) converterRatios() {
	for _, n := range c.m.ES.Nodes() {
		conv, ok := n.(*model.Converter)
		if !ok {
			continue
		}
		for _, i := range conv.Inputs().Nodes() {
			fin, _ := conv.Inputs().Flow(i)
			for _, o := range conv.Outputs().Nodes() {
				fout, _ := conv.Outputs().Flow(o)
				for t := 0; t < c.m.TimeIndex.N(); t++ {
					lhs := c.flow(fin, t) * conv.Factor(o, t)
					rhs := c.flow(fout, t) * conv.Factor(i, t)
					if !c.close(lhs, rhs) {
						c.fail(ConverterRatio, conv.Label(), t, "%s->%s: %g != %g", i.Label(), o.Label(), lhs, rhs)
					}
				}
			}
		}
	}
}

// storageBalance replays E(t+1) = ret·E(t) + ηin·τ·Pin - τ/ηout·Pout - losses
// on the reported content. Typical-period contents are replayed on the
// original axis.
func (c *checker) storageBalance() {
	ti := c.m.TimeIndex
	for _, n := range c.m.ES.Nodes() {
		s, ok := n.(*model.GenericStorage)
		if !ok {
			continue
		}
		content, ok := c.series(s.Label(), "storage_content")
		if !ok {
			continue
		}
		capacity := func(int) float64 { return s.NominalCapacity }
		if total := c.capacity(s.Label()); total != nil {
			capacity = func(t int) float64 { return total[ti.PeriodOf(t)] }
		}
		for j := 0; j+1 < len(content); j++ {
			t := modelStep(ti, j)
			tau := ti.Increment(t)
			want := s.RetentionFactor(t, tau) * content[j]
			if f := s.InputFlow(); f != nil {
				want += s.InflowEta(t) * tau * c.flow(f, t)
			}
			if f := s.OutputFlow(); f != nil {
				want -= tau / s.OutflowEta(t) * c.flow(f, t)
			}
			want -= s.FixedLossesRelative.At(t) * tau * capacity(t)
			want -= s.FixedLossesAbsolute.At(t) * tau
			if !c.close(content[j+1], want) {
				c.fail(StorageBalance, s.Label(), j, "content %g, balance gives %g", content[j+1], want)
			}
		}
	}
}

// modelStep maps step j of the reported axis to the model step.
func modelStep(ti *timeindex.TimeIndex, j int) int {
	agg := ti.Aggregation()
	if agg == nil {
		return j
	}
	k := agg.StepsPerPeriod
	return ti.Step(agg.Order[j/k], j%k)
}

func (c *checker) nonconvex() {
	ti := c.m.TimeIndex
	for _, f := range c.m.Flows() {
		if f.NonConvex == nil {
			continue
		}
		status, ok := c.series(f.Label(), "status")
		if !ok {
			continue
		}
		capacity := func(int) float64 { return f.NominalCapacity }
		if total := c.capacity(f.Label()); total != nil {
			capacity = func(t int) float64 { return total[ti.PeriodOf(t)] }
		}
		for t, st := range status {
			p := c.flow(f, t)
			if p > c.tol && st < 0.5 {
				c.fail(NonConvexStatus, f.Label(), t, "flow %g with status off", p)
			}
			if up := st * f.MaxAt(t) * capacity(t); p > up && !c.close(p, up) {
				c.fail(NonConvexStatus, f.Label(), t, "flow %g above status·max·C %g", p, up)
			}
			if lo := st * f.MinAt(t) * capacity(t); p < lo && !c.close(p, lo) {
				c.fail(NonConvexStatus, f.Label(), t, "flow %g below status·min·C %g", p, lo)
			}
		}

		u := f.NonConvex.MinimumUptime
		edge := f.NonConvex.MaxUpDown()
		if u == 0 {
			continue
		}
		for t := max(edge, 1); t < len(status)-edge; t++ {
			if !(status[t] > status[t-1]+0.5) {
				continue
			}
			on := 0.0
			for k := 0; k < u && t+k < len(status); k++ {
				on += math.Round(status[t+k])
			}
			if on < float64(u) {
				c.fail(MinimumUptime, f.Label(), t, "started but on for %g of %d steps", on, u)
			}
		}
	}
}

// investmentStock checks total(p) = total(p-1) + invest(p) - old(p) with
// total(-1) = existing, and total >= 0.
func (c *checker) investmentStock() {
	for _, set := range c.m.Registry() {
		if set.Name != "total" {
			continue
		}
		var inv *model.Investment
		switch {
		case set.Flow != nil:
			inv = set.Flow.Investment
		case set.Node != nil:
			if s, ok := set.Node.(*model.GenericStorage); ok {
				inv = s.Investment
			}
		}
		if inv == nil {
			continue
		}
		owner := set.Owner()
		total := set.Values(c.x)
		invest, _ := c.series(owner, "invest")
		old, hasOld := c.series(owner, "old")
		prev := inv.Existing
		for p, e := range total {
			if e < -c.tol {
				c.fail(InvestmentStock, owner, -1, "period %d: total %g < 0", p, e)
			}
			want := prev + invest[p]
			if hasOld {
				want -= old[p]
			}
			if !c.close(e, want) {
				c.fail(InvestmentStock, owner, -1, "period %d: total %g, stock gives %g", p, e, want)
			}
			prev = e
		}
	}
}
