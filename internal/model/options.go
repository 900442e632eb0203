package model

import (
	"errors"
	"math"

	"energy-dispatch/internal/sequence"
)

// Investment turns a capacity into a decision variable.
// Units:
// - Minimum, Maximum, Existing, OverallMinimum, OverallMaximum: capacity units
// - EPCosts: currency per capacity unit (annualised or nominal, per period)
// - Offset: currency, charged when the binary invest status is 1
// - FixedCosts: currency per capacity unit and year, indexed by year offset
// - Lifetime, Age: years
type Investment struct {
	Minimum  sequence.Sequence
	Maximum  sequence.Sequence
	Existing float64

	EPCosts sequence.Sequence
	Offset  sequence.Sequence

	NonConvex bool

	Lifetime int
	Age      int

	OverallMaximum sequence.Sequence
	OverallMinimum sequence.Sequence

	FixedCosts   sequence.Sequence
	InterestRate float64

	// Custom carries user attributes for block extensions, e.g. the weight
	// read by an investment flow limit.
	Custom map[string]any
}

// MinimumAt is the lower bound on new capacity in period p (default 0).
func (inv *Investment) MinimumAt(p int) float64 { return inv.Minimum.OrScalar(0).At(p) }

// MaximumAt is the upper bound on new capacity in period p (default +Inf).
func (inv *Investment) MaximumAt(p int) float64 { return inv.Maximum.OrScalar(math.Inf(1)).At(p) }

func (inv *Investment) EPCostsAt(p int) float64 { return inv.EPCosts.At(p) }
func (inv *Investment) OffsetAt(p int) float64  { return inv.Offset.At(p) }

func (inv *Investment) Validate() error {
	if inv.Existing < 0 || math.IsNaN(inv.Existing) || math.IsInf(inv.Existing, 0) {
		return errors.New("investment existing must be finite and >= 0")
	}
	if inv.Minimum.IsSet() && inv.Minimum.Min() < 0 {
		return errors.New("investment minimum must be >= 0")
	}
	if inv.Maximum.IsSet() && inv.Maximum.Min() < 0 {
		return errors.New("investment maximum must be >= 0")
	}
	if inv.Minimum.IsSet() && inv.Maximum.IsSet() && inv.Minimum.IsScalar() && inv.Maximum.IsScalar() &&
		inv.Minimum.At(0) > inv.Maximum.At(0) {
		return errors.New("investment minimum must not exceed maximum")
	}
	if inv.Lifetime < 0 || inv.Age < 0 {
		return errors.New("investment lifetime and age must be >= 0")
	}
	if inv.Lifetime > 0 && inv.Age >= inv.Lifetime {
		return errors.New("investment age must be smaller than lifetime")
	}
	if inv.NonConvex {
		if inv.Existing != 0 {
			return errors.New("nonconvex investments cannot have existing capacity")
		}
		if !inv.Maximum.IsSet() || math.IsInf(inv.Maximum.Max(), 1) {
			return errors.New("nonconvex investments need a finite maximum")
		}
	} else if !inv.Offset.AllZero() {
		return errors.New("an investment offset requires nonconvex=true")
	}
	if inv.InterestRate < 0 {
		return errors.New("investment interest rate must be >= 0")
	}
	for _, s := range []sequence.Sequence{inv.EPCosts, inv.Offset, inv.FixedCosts, inv.OverallMaximum, inv.OverallMinimum} {
		if err := s.CheckFinite(); err != nil {
			return err
		}
	}
	return nil
}

// Warnings lists suspicious but legal settings.
func (inv *Investment) Warnings() []string {
	var out []string
	if inv.NonConvex && inv.Minimum.AllZero() && inv.Offset.AllZero() {
		out = append(out, "nonconvex investment with minimum=0 and offset=0 makes the invest status meaningless")
	}
	return out
}

// NonConvex introduces a per-step binary status on a flow.
// Units:
// - MinimumUptime, MinimumDowntime: timesteps
// - StartupCosts, ShutdownCosts: currency per event
// - ActivityCosts, InactivityCosts: currency per step
// - gradient limits: fraction of nominal capacity per hour
//
// MaximumStartups and MaximumShutdowns of 0 mean unlimited.
type NonConvex struct {
	MinimumUptime    int
	MinimumDowntime  int
	MaximumStartups  int
	MaximumShutdowns int
	InitialStatus    int

	StartupCosts    sequence.Sequence
	ShutdownCosts   sequence.Sequence
	ActivityCosts   sequence.Sequence
	InactivityCosts sequence.Sequence

	PositiveGradientLimit sequence.Sequence
	NegativeGradientLimit sequence.Sequence
	PositiveGradientCosts sequence.Sequence
	NegativeGradientCosts sequence.Sequence
}

// MaxUpDown is the width of the edge regions in which the status is pinned
// to the initial status.
func (nc *NonConvex) MaxUpDown() int {
	if nc.MinimumUptime > nc.MinimumDowntime {
		return nc.MinimumUptime
	}
	return nc.MinimumDowntime
}

// NeedsStartup reports whether a startup variable is required.
func (nc *NonConvex) NeedsStartup() bool {
	return nc.StartupCosts.IsSet() || nc.MaximumStartups > 0
}

// NeedsShutdown reports whether a shutdown variable is required.
func (nc *NonConvex) NeedsShutdown() bool {
	return nc.ShutdownCosts.IsSet() || nc.MaximumShutdowns > 0
}

func (nc *NonConvex) Validate() error {
	if nc.InitialStatus != 0 && nc.InitialStatus != 1 {
		return errors.New("nonconvex initial_status must be 0 or 1")
	}
	if nc.MinimumUptime < 0 || nc.MinimumDowntime < 0 {
		return errors.New("nonconvex minimum up/downtime must be >= 0")
	}
	if nc.MaximumStartups < 0 || nc.MaximumShutdowns < 0 {
		return errors.New("nonconvex maximum startups/shutdowns must be >= 0")
	}
	for _, s := range []sequence.Sequence{nc.PositiveGradientLimit, nc.NegativeGradientLimit} {
		if !s.InRange(0, math.Inf(1)) {
			return errors.New("nonconvex gradient limits must be >= 0")
		}
	}
	for _, s := range []sequence.Sequence{
		nc.StartupCosts, nc.ShutdownCosts, nc.ActivityCosts, nc.InactivityCosts,
		nc.PositiveGradientCosts, nc.NegativeGradientCosts,
	} {
		if err := s.CheckFinite(); err != nil {
			return err
		}
	}
	return nil
}
