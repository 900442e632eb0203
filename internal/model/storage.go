package model

import (
	"errors"
	"math"

	"energy-dispatch/internal/sequence"
)

// StorageParams defines the physical and economic parameters of a storage.
// Units:
// - NominalCapacity: energy units (0 = unset, use Investment instead)
// - InitialStorageLevel, MinStorageLevel, MaxStorageLevel: fraction 0..1 of capacity
// - LossRate: relative self-discharge per hour
// - FixedLossesRelative: fraction of capacity lost per hour
// - FixedLossesAbsolute: energy units lost per hour
// - Inflow/OutflowConversionFactor: efficiencies 0..1
// - StorageCosts: currency per energy unit stored per timepoint
// - InvestRelation*: ratios between power and capacity investments
type StorageParams struct {
	NominalCapacity float64
	Investment      *Investment

	InitialStorageLevel sequence.Sequence
	Balanced            bool

	LossRate            sequence.Sequence
	FixedLossesRelative sequence.Sequence
	FixedLossesAbsolute sequence.Sequence

	InflowConversionFactor  sequence.Sequence
	OutflowConversionFactor sequence.Sequence

	MinStorageLevel sequence.Sequence
	MaxStorageLevel sequence.Sequence

	StorageCosts sequence.Sequence

	InvestRelationInputCapacity  sequence.Sequence
	InvestRelationOutputCapacity sequence.Sequence
	InvestRelationInputOutput    sequence.Sequence
}

// GenericStorage holds energy between timepoints. It has at most one input
// and one output flow, normally to the same bus.
type GenericStorage struct {
	core
	StorageParams
}

func NewGenericStorage(label string, params StorageParams, inputs, outputs []Port) (*GenericStorage, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	if len(inputs) > 1 || len(outputs) > 1 {
		return nil, configErr(label, "a storage takes at most one input and one output flow")
	}
	s := &GenericStorage{core: newCore(label), StorageParams: params}
	if err := s.Validate(); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	if s.Investment != nil {
		for _, w := range s.Investment.Warnings() {
			Warn(label, "%s", w)
		}
	}
	if err := wire(s, inputs, outputs); err != nil {
		return nil, err
	}
	if err := s.checkInvestRelations(); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	return s, nil
}

func (s *GenericStorage) Validate() error {
	p := s.StorageParams
	if math.IsNaN(p.NominalCapacity) || math.IsInf(p.NominalCapacity, 0) || p.NominalCapacity < 0 {
		return errors.New("nominal capacity must be finite and >= 0")
	}
	if p.Investment == nil && p.NominalCapacity == 0 {
		return errors.New("a storage needs a nominal capacity or an investment")
	}
	if p.Investment != nil && p.NominalCapacity != 0 {
		return errors.New("investment cannot be combined with a nominal capacity")
	}
	if p.Investment != nil {
		if err := p.Investment.Validate(); err != nil {
			return err
		}
		if p.InitialStorageLevel.IsSet() {
			return errors.New("initial storage level cannot be set when the capacity is an investment")
		}
		if !p.FixedLossesAbsolute.AllZero() && p.Investment.Existing == 0 && p.Investment.Minimum.AllZero() {
			return errors.New("fixed_losses_absolute with an investment needs existing or minimum capacity > 0")
		}
	}
	if p.InitialStorageLevel.IsSet() {
		if !p.InitialStorageLevel.IsScalar() {
			return errors.New("initial storage level must be a scalar")
		}
		lvl := p.InitialStorageLevel.At(0)
		if lvl < 0 || lvl > 1 {
			return errors.New("initial storage level must be within [0, 1]")
		}
		if lvl < s.MinLevel(0) || lvl > s.MaxLevel(0) {
			return errors.New("initial storage level must be within [min_storage_level, max_storage_level]")
		}
	}
	if !p.MinStorageLevel.InRange(0, 1) || !p.MaxStorageLevel.InRange(0, 1) {
		return errors.New("storage levels must lie in [0, 1]")
	}
	if p.MinStorageLevel.IsScalar() && p.MaxStorageLevel.IsScalar() && p.MinStorageLevel.At(0) > p.MaxStorageLevel.At(0) {
		return errors.New("min storage level must not exceed max storage level")
	}
	if !p.LossRate.InRange(0, 1) {
		return errors.New("loss rate must lie in [0, 1]")
	}
	if !p.FixedLossesRelative.InRange(0, 1) || !p.FixedLossesAbsolute.InRange(0, math.Inf(1)) {
		return errors.New("fixed losses must be >= 0")
	}
	for _, c := range []sequence.Sequence{p.InflowConversionFactor, p.OutflowConversionFactor} {
		if c.IsSet() && (c.Min() <= 0 || c.Max() > 1) {
			return errors.New("conversion factors must lie in (0, 1]")
		}
	}
	rel := 0
	for _, r := range []sequence.Sequence{p.InvestRelationInputCapacity, p.InvestRelationOutputCapacity, p.InvestRelationInputOutput} {
		if r.IsSet() {
			rel++
			if !r.IsScalar() || r.At(0) < 0 {
				return errors.New("invest relations must be non-negative scalars")
			}
		}
	}
	if rel == 3 {
		return errors.New("invest_relation_input_capacity, invest_relation_output_capacity and invest_relation_input_output together overdetermine the storage")
	}
	for _, c := range []sequence.Sequence{p.StorageCosts, p.LossRate, p.FixedLossesAbsolute} {
		if err := c.CheckFinite(); err != nil {
			return err
		}
	}
	return nil
}

// checkInvestRelations requires investment flows where a relation ties a
// flow capacity to the storage capacity.
func (s *GenericStorage) checkInvestRelations() error {
	in, out := s.InputFlow(), s.OutputFlow()
	needs := func(f *Flow, what string) error {
		if f == nil {
			return errors.New(what + " flow is missing")
		}
		if f.Investment == nil {
			return errors.New(what + " flow needs an investment")
		}
		return nil
	}
	if s.InvestRelationInputCapacity.IsSet() || s.InvestRelationOutputCapacity.IsSet() {
		if s.Investment == nil {
			return errors.New("invest relations to the capacity need a storage investment")
		}
	}
	if s.InvestRelationInputCapacity.IsSet() {
		if err := needs(in, "input"); err != nil {
			return err
		}
	}
	if s.InvestRelationOutputCapacity.IsSet() {
		if err := needs(out, "output"); err != nil {
			return err
		}
	}
	if s.InvestRelationInputOutput.IsSet() {
		if err := needs(in, "input"); err != nil {
			return err
		}
		if err := needs(out, "output"); err != nil {
			return err
		}
	}
	return nil
}

// InputFlow returns the charging flow or nil.
func (s *GenericStorage) InputFlow() *Flow {
	_, f := s.inputs.First()
	return f
}

// OutputFlow returns the discharging flow or nil.
func (s *GenericStorage) OutputFlow() *Flow {
	_, f := s.outputs.First()
	return f
}

func (s *GenericStorage) MinLevel(t int) float64   { return s.MinStorageLevel.OrScalar(0).At(t) }
func (s *GenericStorage) MaxLevel(t int) float64   { return s.MaxStorageLevel.OrScalar(1).At(t) }
func (s *GenericStorage) InflowEta(t int) float64  { return s.InflowConversionFactor.OrScalar(1).At(t) }
func (s *GenericStorage) OutflowEta(t int) float64 { return s.OutflowConversionFactor.OrScalar(1).At(t) }

// RetentionFactor is the share of content kept over a step of tau hours:
// (1 - loss(t))^tau.
func (s *GenericStorage) RetentionFactor(t int, tau float64) float64 {
	return math.Pow(1-s.LossRate.At(t), tau)
}

func (s *GenericStorage) ConstraintGroup() Group {
	if s.Investment != nil {
		return InvestStorageGroup
	}
	return StorageGroup
}
