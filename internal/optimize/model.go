package optimize

import (
	"context"
	"fmt"
	"io"
	"math"

	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/solver"
	"energy-dispatch/internal/timeindex"

	"go.uber.org/zap"
)

// DefaultDiscountRate applies to multi-period models built without a
// discount rate.
const DefaultDiscountRate = 0.02

// Options configures Build and Solve.
type Options struct {
	// DiscountRate is used for multi-period discounting. Nil means unset.
	DiscountRate *float64
	// ObjectiveWeighting weights each step in cost terms; defaults to the
	// step duration.
	ObjectiveWeighting sequence.Sequence
	// TSAMWeighting defaults to the occurrence count of the typical period
	// of each step (1 without aggregation).
	TSAMWeighting sequence.Sequence

	// Extensions add constraints once every block is built.
	Extensions []Extension

	Solver       string
	SolveOptions solver.Options

	Logger *zap.Logger
}

// Rate returns a pointer to r, for Options.DiscountRate.
func Rate(r float64) *float64 { return &r }

// ObjectivePart is the contribution of one block to the objective.
type ObjectivePart struct {
	Block string
	Expr  lp.Expr
}

// Model is the algebraic model of one energy system. It must not be
// modified once Solve has been called.
type Model struct {
	ES        *model.EnergySystem
	TimeIndex *timeindex.TimeIndex
	Problem   *lp.Problem
	Options   Options

	discountRate float64
	objWeight    []float64
	tsamWeight   []float64

	flows   []*model.Flow
	flowVar map[*model.Flow][]lp.Var
	// capacity of investment flows per period, used by storage relations
	flowCapacity map[*model.Flow]func(p int) lp.Expr
	// status variables of nonconvex flows
	status map[*model.Flow][]lp.Var

	balance map[*model.Bus][]int
	sets    []*VarSet
	parts   []ObjectivePart
	// annuities and offsets of every investment, without fixed costs
	investCosts lp.Expr

	solution *solver.Solution
	log      *zap.Logger
}

type block struct {
	name  string
	build func(m *Model, g model.Groups) error
}

// blocks run in this order; buses come last so every adjacent flow exists.
var blocks = []block{
	{string(model.SimpleFlowGroup), buildSimpleFlows},
	{string(model.InvestFlowGroup), buildInvestFlows},
	{string(model.NonConvexFlowGroup), buildNonConvexFlows},
	{string(model.NonConvexInvestFlowGroup), buildNonConvexInvestFlows},
	{string(model.ConverterGroup), buildConverters},
	{string(model.LinkGroup), buildLinks},
	{string(model.CHPGroup), buildCHPs},
	{string(model.OffsetConverterGroup), buildOffsetConverters},
	{string(model.StorageGroup), buildStorages},
	{string(model.InvestStorageGroup), buildInvestStorages},
	{string(model.BusGroup), buildBuses},
}

// Build validates es and emits its algebraic model.
func Build(es *model.EnergySystem, opts Options) (*Model, error) {
	if es == nil {
		return nil, fmt.Errorf("energy system is nil")
	}
	if err := es.Validate(); err != nil {
		return nil, err
	}
	ti := es.TimeIndex
	m := &Model{
		ES:           es,
		TimeIndex:    ti,
		Problem:      lp.NewProblem("energy_dispatch"),
		Options:      opts,
		flowVar:      map[*model.Flow][]lp.Var{},
		flowCapacity: map[*model.Flow]func(int) lp.Expr{},
		status:       map[*model.Flow][]lp.Var{},
		balance:      map[*model.Bus][]int{},
		log:          logging.Or(opts.Logger),
	}
	if err := m.setWeights(); err != nil {
		return nil, err
	}
	if err := checkLengths(es); err != nil {
		return nil, err
	}

	groups := es.Groups()
	m.createFlowVariables()
	for _, b := range blocks {
		nv, nc := m.Problem.NumVars(), m.Problem.NumConstraints()
		if err := b.build(m, groups); err != nil {
			return nil, err
		}
		if err := m.Problem.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		if added := m.Problem.NumVars() - nv + m.Problem.NumConstraints() - nc; added > 0 {
			m.log.Info("block built",
				zap.String("block", b.name),
				zap.Int("variables", m.Problem.NumVars()-nv),
				zap.Int("constraints", m.Problem.NumConstraints()-nc))
		}
	}

	for _, ext := range opts.Extensions {
		if err := ext.Apply(m); err != nil {
			return nil, err
		}
		if err := m.Problem.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", ext.Name(), err)
		}
	}

	var obj lp.Expr
	for _, part := range m.parts {
		obj.AddExpr(part.Expr, 1)
	}
	m.Problem.SetObjective(obj)
	if err := m.Problem.Err(); err != nil {
		return nil, err
	}
	m.log.Info("model built",
		zap.Int("variables", m.Problem.NumVars()),
		zap.Int("constraints", m.Problem.NumConstraints()),
		zap.Int("flows", len(m.flows)),
		zap.Int("timesteps", ti.N()))
	return m, nil
}

func (m *Model) setWeights() error {
	ti := m.TimeIndex
	n := ti.N()
	if err := m.Options.ObjectiveWeighting.CheckLength(n); err != nil {
		return &model.ConfigurationError{Label: "objective_weighting", Err: err}
	}
	if err := m.Options.TSAMWeighting.CheckLength(n); err != nil {
		return &model.ConfigurationError{Label: "tsam_weighting", Err: err}
	}
	m.objWeight = make([]float64, n)
	m.tsamWeight = make([]float64, n)
	for t := 0; t < n; t++ {
		m.objWeight[t] = ti.Increment(t)
		if m.Options.ObjectiveWeighting.IsSet() {
			m.objWeight[t] = m.Options.ObjectiveWeighting.At(t)
		}
		m.tsamWeight[t] = ti.Weight(t)
		if m.Options.TSAMWeighting.IsSet() {
			m.tsamWeight[t] = m.Options.TSAMWeighting.At(t)
		}
	}
	if ti.IsMultiPeriod() {
		if m.Options.DiscountRate == nil {
			model.Warn("model", "discount_rate is not set for a multi-period model; using %g", DefaultDiscountRate)
			m.discountRate = DefaultDiscountRate
		} else {
			m.discountRate = *m.Options.DiscountRate
		}
		if m.discountRate < 0 || math.IsNaN(m.discountRate) {
			return &model.ConfigurationError{Label: "discount_rate", Err: fmt.Errorf("must be >= 0")}
		}
	}
	return nil
}

// DiscountRate is the rate in effect (0 for single-period models).
func (m *Model) DiscountRate() float64 { return m.discountRate }

// df is the discount factor of the period holding step t.
func (m *Model) df(t int) float64 {
	if !m.TimeIndex.IsMultiPeriod() {
		return 1
	}
	return m.TimeIndex.DiscountFactor(m.TimeIndex.PeriodOf(t), m.discountRate)
}

// EnergyWeight scales a per-energy cost at step t: objective weighting,
// typical-period weight and discounting.
func (m *Model) EnergyWeight(t int) float64 { return m.objWeight[t] * m.tsamWeight[t] * m.df(t) }

// EventWeight scales a per-step or per-event cost at step t.
func (m *Model) EventWeight(t int) float64 { return m.tsamWeight[t] * m.df(t) }

func (m *Model) createFlowVariables() {
	ti := m.TimeIndex
	for _, f := range m.ES.Flows() {
		vars := make([]lp.Var, ti.N())
		for t := range vars {
			lo, up := flowBounds(f, t)
			vars[t] = m.Problem.AddVar(lp.Name("flow", f.From().Label(), f.To().Label(), t), lo, up, lp.Continuous)
		}
		m.flows = append(m.flows, f)
		m.flowVar[f] = vars
		m.register(&VarSet{Flow: f, Name: "flow", Index: ByTimestep, Exprs: exprsOf(vars)})
	}
}

// flowBounds are the variable bounds of a flow before any block runs.
func flowBounds(f *model.Flow, t int) (float64, float64) {
	lo, up := 0.0, math.Inf(1)
	if f.Bidirectional {
		lo = math.Inf(-1)
	}
	if !f.HasNominal() {
		return lo, up
	}
	c := f.NominalCapacity
	switch {
	case f.Fix.IsSet():
		return f.Fix.At(t) * c, f.Fix.At(t) * c
	case f.NonConvex != nil:
		return 0, f.MaxAt(t) * c
	}
	return f.MinAt(t) * c, f.MaxAt(t) * c
}

// FlowVars returns the per-step variables of f.
func (m *Model) FlowVars(f *model.Flow) []lp.Var { return m.flowVar[f] }

// Flows lists flows in the order their variables were created.
func (m *Model) Flows() []*model.Flow { return m.flows }

// Status returns the status variables of a nonconvex flow.
func (m *Model) Status(f *model.Flow) ([]lp.Var, bool) {
	s, ok := m.status[f]
	return s, ok
}

// BalanceRows returns the constraint indices of a bus balance per step.
func (m *Model) BalanceRows(b *model.Bus) ([]int, bool) {
	r, ok := m.balance[b]
	return r, ok
}

func (m *Model) addObjective(block string, e lp.Expr) {
	if len(e.Terms) == 0 && e.Constant == 0 {
		return
	}
	for i := range m.parts {
		if m.parts[i].Block == block {
			m.parts[i].Expr.AddExpr(e, 1)
			return
		}
	}
	m.parts = append(m.parts, ObjectivePart{Block: block, Expr: e.Copy()})
}

// ObjectiveParts lists the objective contributions in block order.
func (m *Model) ObjectiveParts() []ObjectivePart { return m.parts }

// Solve runs the configured solver. Non-optimal terminations come back as
// *solver.SolverError.
func (m *Model) Solve(ctx context.Context) (*solver.Solution, error) {
	s, err := solver.New(m.Options.Solver)
	if err != nil {
		return nil, err
	}
	if b, ok := s.(*solver.Simplex); ok {
		b.Logger = m.log
	}
	sol, err := s.Solve(ctx, m.Problem, m.Options.SolveOptions)
	if err != nil {
		return nil, err
	}
	m.solution = sol
	return sol, nil
}

// SolveWith runs an explicit solver instead of the configured one.
func (m *Model) SolveWith(ctx context.Context, s solver.Solver) (*solver.Solution, error) {
	sol, err := s.Solve(ctx, m.Problem, m.Options.SolveOptions)
	if err != nil {
		return nil, err
	}
	m.solution = sol
	return sol, nil
}

// Solution returns the last successful solution or nil.
func (m *Model) Solution() *solver.Solution { return m.solution }

// WriteLP writes the model in CPLEX LP format.
func (m *Model) WriteLP(w io.Writer) error { return lp.WriteLP(w, m.Problem) }

// WriteMPS writes the model in free MPS format.
func (m *Model) WriteMPS(w io.Writer) error { return lp.WriteMPS(w, m.Problem) }

func checkLengths(es *model.EnergySystem) error {
	n := es.TimeIndex.N()
	check := func(label string, seqs ...sequence.Sequence) error {
		for _, s := range seqs {
			if err := s.CheckLength(n); err != nil {
				return &model.ConfigurationError{Label: label, Err: err}
			}
		}
		return nil
	}
	for _, f := range es.Flows() {
		if err := check(f.Label(), f.Min, f.Max, f.Fix, f.VariableCosts,
			f.PositiveGradientLimit, f.NegativeGradientLimit); err != nil {
			return err
		}
		if nc := f.NonConvex; nc != nil {
			if err := check(f.Label(), nc.StartupCosts, nc.ShutdownCosts, nc.ActivityCosts,
				nc.InactivityCosts, nc.PositiveGradientLimit, nc.NegativeGradientLimit,
				nc.PositiveGradientCosts, nc.NegativeGradientCosts); err != nil {
				return err
			}
		}
	}
	for _, node := range es.Nodes() {
		if s, ok := node.(*model.GenericStorage); ok {
			if err := check(s.Label(), s.LossRate, s.FixedLossesRelative, s.FixedLossesAbsolute,
				s.InflowConversionFactor, s.OutflowConversionFactor, s.MinStorageLevel,
				s.MaxStorageLevel, s.StorageCosts); err != nil {
				return err
			}
		}
	}
	return nil
}
