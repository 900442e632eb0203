package results

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/solver"
)

// Key identifies a flow by the labels of its endpoints.
type Key struct {
	From string
	To   string
}

func (k Key) String() string { return k.From + "->" + k.To }

// Series is one named result series of a node or flow.
type Series struct {
	Owner  string
	Name   string
	Index  optimize.Index
	Values []float64
}

// BlockCost is the objective contribution of one constraint block.
type BlockCost struct {
	Block string
	Value float64
}

// Results is the read-only view of a solved model.
// Step series are reported on the original time axis: for typical-period
// models they are repeated along the aggregation order.
type Results struct {
	Status    solver.Status
	Objective float64
	Breakdown []BlockCost

	// Increments are the step durations in hours on the reported axis.
	Increments []float64
	// Timestamps are the step start instants when the time index has them.
	Timestamps []time.Time

	FlowKeys []Key
	Flows    map[Key][]float64

	Series []Series

	// Duals are per-unit-of-energy shadow prices of the bus balances.
	Duals map[string][]float64
}

// ErrNotSolved is returned by Extract for a model without a solution.
var ErrNotSolved = errors.New("model has no solution")

// Extract reads the last solution of m.
func Extract(m *optimize.Model) (*Results, error) {
	sol := m.Solution()
	if sol == nil {
		return nil, ErrNotSolved
	}
	if len(sol.Values) != m.Problem.NumVars() {
		return nil, fmt.Errorf("solution has %d values for %d variables", len(sol.Values), m.Problem.NumVars())
	}
	ti := m.TimeIndex
	r := &Results{
		Status:    sol.Status,
		Objective: sol.Objective,
		Flows:     map[Key][]float64{},
		Duals:     map[string][]float64{},
	}
	r.Increments = ti.Expand(ti.Increments())
	if !ti.IsAggregated() {
		r.Timestamps = ti.Timestamps()
	}

	for _, part := range m.ObjectiveParts() {
		r.Breakdown = append(r.Breakdown, BlockCost{Block: part.Block, Value: part.Expr.Value(sol.Values)})
	}

	for _, set := range m.Registry() {
		values := set.Values(sol.Values)
		if set.Index == optimize.ByTimestep {
			values = ti.Expand(values)
		}
		if set.Flow != nil && set.Name == "flow" {
			k := Key{From: set.Flow.From().Label(), To: set.Flow.To().Label()}
			r.FlowKeys = append(r.FlowKeys, k)
			r.Flows[k] = values
			continue
		}
		r.Series = append(r.Series, Series{Owner: set.Owner(), Name: set.Name, Index: set.Index, Values: values})
	}

	if sol.Duals != nil {
		for _, n := range m.ES.Nodes() {
			b, ok := n.(*model.Bus)
			if !ok {
				continue
			}
			rows, ok := m.BalanceRows(b)
			if !ok {
				continue
			}
			d := make([]float64, len(rows))
			for t, row := range rows {
				d[t] = sol.Duals[row]
				if w := m.EnergyWeight(t); w != 0 {
					d[t] /= w
				}
			}
			r.Duals[b.Label()] = ti.Expand(d)
		}
	}
	return r, nil
}

// Flow returns the series of the flow from -> to.
func (r *Results) Flow(from, to string) ([]float64, bool) {
	v, ok := r.Flows[Key{From: from, To: to}]
	return v, ok
}

// Variable returns the series name of owner, where owner is a node label
// or a flow label "from->to".
func (r *Results) Variable(owner, name string) ([]float64, bool) {
	for _, s := range r.Series {
		if s.Owner == owner && s.Name == name {
			return s.Values, true
		}
	}
	return nil, false
}

// Node returns every series owned by label, keyed by name.
func (r *Results) Node(label string) map[string][]float64 {
	out := map[string][]float64{}
	for _, s := range r.Series {
		if s.Owner == label {
			out[s.Name] = s.Values
		}
	}
	return out
}

// Dual returns the shadow price series of a balanced bus.
func (r *Results) Dual(bus string) ([]float64, bool) {
	d, ok := r.Duals[bus]
	return d, ok
}

// Steps is the number of steps on the reported axis.
func (r *Results) Steps() int { return len(r.Increments) }

// SortedDualBuses lists the buses with duals in label order.
func (r *Results) SortedDualBuses() []string {
	out := make([]string, 0, len(r.Duals))
	for b := range r.Duals {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
