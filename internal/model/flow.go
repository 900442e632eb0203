package model

import (
	"errors"
	"math"

	"energy-dispatch/internal/sequence"
)

// Flow is a directed edge carrying one power variable per timestep.
// Units:
// - NominalCapacity: power units; 0 means unset
// - Min, Max, Fix: fraction of the (effective) capacity
// - FullLoadTimeMax, FullLoadTimeMin: hours at nominal capacity (scalars)
// - VariableCosts: currency per energy unit
// - FixedCosts: currency per capacity unit and year, indexed by year offset
// - gradient limits: fraction of capacity per hour
// - Lifetime, Age: years
type Flow struct {
	NominalCapacity float64
	Investment      *Investment
	NonConvex       *NonConvex

	Min sequence.Sequence
	Max sequence.Sequence
	Fix sequence.Sequence

	FullLoadTimeMax sequence.Sequence
	FullLoadTimeMin sequence.Sequence

	VariableCosts sequence.Sequence
	FixedCosts    sequence.Sequence

	PositiveGradientLimit sequence.Sequence
	NegativeGradientLimit sequence.Sequence

	Integer       bool
	Bidirectional bool

	Lifetime int
	Age      int

	// Custom carries user attributes for block extensions.
	Custom map[string]any

	from, to Node
}

// From is the source node of the flow.
func (f *Flow) From() Node { return f.from }

// To is the target node of the flow.
func (f *Flow) To() Node { return f.to }

// Label identifies the flow as "from->to".
func (f *Flow) Label() string {
	name := func(n Node) string {
		if n == nil {
			return "?"
		}
		return n.Label()
	}
	return name(f.from) + "->" + name(f.to)
}

// HasNominal reports whether a literal nominal capacity is set.
func (f *Flow) HasNominal() bool { return f.NominalCapacity != 0 }

// MinAt is the normalised lower bound at step t. Bidirectional flows
// default to -1, everything else to 0.
func (f *Flow) MinAt(t int) float64 {
	if f.Bidirectional {
		return f.Min.OrScalar(-1).At(t)
	}
	return f.Min.OrScalar(0).At(t)
}

// MaxAt is the normalised upper bound at step t (default 1).
func (f *Flow) MaxAt(t int) float64 { return f.Max.OrScalar(1).At(t) }

// ConstraintGroup partitions flows by option combination.
func (f *Flow) ConstraintGroup() Group {
	switch {
	case f.Investment != nil && f.NonConvex != nil:
		return NonConvexInvestFlowGroup
	case f.Investment != nil:
		return InvestFlowGroup
	case f.NonConvex != nil:
		return NonConvexFlowGroup
	}
	return SimpleFlowGroup
}

func (f *Flow) Validate() error {
	if math.IsNaN(f.NominalCapacity) || math.IsInf(f.NominalCapacity, 0) {
		return errors.New("nominal capacity must be finite")
	}
	if f.NominalCapacity < 0 {
		return errors.New("nominal capacity must be >= 0")
	}
	if f.Fix.IsSet() && (f.Min.IsSet() || f.Max.IsSet()) {
		return errors.New("fix cannot be combined with min or max")
	}
	if f.Investment != nil && f.HasNominal() {
		return errors.New("investment cannot be combined with a nominal capacity")
	}
	sized := f.HasNominal() || f.Investment != nil
	if !sized {
		switch {
		case f.Fix.IsSet():
			return errors.New("fix needs a nominal capacity or an investment")
		case f.Min.IsSet(), f.Max.IsSet():
			return errors.New("min/max need a nominal capacity or an investment")
		case f.FullLoadTimeMax.IsSet(), f.FullLoadTimeMin.IsSet():
			return errors.New("full load time limits need a nominal capacity or an investment")
		case f.PositiveGradientLimit.IsSet(), f.NegativeGradientLimit.IsSet():
			return errors.New("gradient limits need a nominal capacity or an investment")
		case f.NonConvex != nil:
			return errors.New("nonconvex flows need a nominal capacity or an investment")
		}
	}
	lo := 0.0
	if f.Bidirectional {
		lo = -1
	}
	if !f.Min.InRange(lo, 1) || !f.Max.InRange(lo, math.Inf(1)) {
		return errors.New("min must lie in [0, 1] (or [-1, 1] for bidirectional flows) and max must not be negative")
	}
	if !f.Fix.InRange(lo, math.Inf(1)) {
		return errors.New("fix must not be negative")
	}
	if f.Min.IsScalar() && f.Max.IsScalar() && f.Min.At(0) > f.Max.At(0) {
		return errors.New("min must not exceed max")
	}
	for _, s := range []sequence.Sequence{f.FullLoadTimeMax, f.FullLoadTimeMin} {
		if s.IsSet() && (!s.IsScalar() || s.At(0) < 0) {
			return errors.New("full load times must be non-negative scalars")
		}
	}
	if !f.PositiveGradientLimit.InRange(0, math.Inf(1)) || !f.NegativeGradientLimit.InRange(0, math.Inf(1)) {
		return errors.New("gradient limits must be >= 0")
	}
	if f.NonConvex != nil {
		if f.PositiveGradientLimit.IsSet() || f.NegativeGradientLimit.IsSet() {
			return errors.New("nonconvex flows take gradient limits from their NonConvex option")
		}
		if f.Bidirectional {
			return errors.New("nonconvex flows cannot be bidirectional")
		}
		if err := f.NonConvex.Validate(); err != nil {
			return err
		}
		if f.Investment != nil && math.IsInf(f.Investment.MaximumAt(0), 1) {
			return errors.New("nonconvex investment flows need a finite investment maximum")
		}
	}
	if f.Investment != nil {
		if err := f.Investment.Validate(); err != nil {
			return err
		}
	}
	if f.Lifetime < 0 || f.Age < 0 {
		return errors.New("lifetime and age must be >= 0")
	}
	if f.Lifetime > 0 && f.Age >= f.Lifetime {
		return errors.New("age must be smaller than lifetime")
	}
	for _, s := range []sequence.Sequence{f.VariableCosts, f.FixedCosts, f.Min, f.Max, f.Fix} {
		if err := s.CheckFinite(); err != nil {
			return err
		}
	}
	return nil
}

// Warnings lists suspicious but legal settings.
func (f *Flow) Warnings() []string {
	var out []string
	if f.Investment != nil {
		out = append(out, f.Investment.Warnings()...)
	}
	if f.FixedCosts.IsSet() && !f.HasNominal() && f.Investment == nil {
		out = append(out, "fixed costs have no effect without a nominal capacity or investment")
	}
	return out
}
