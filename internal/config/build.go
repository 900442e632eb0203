package config

import (
	"errors"
	"fmt"
	"time"

	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/sequence"
	"energy-dispatch/internal/solver"
	"energy-dispatch/internal/timeindex"
)

// Build constructs the energy system and the model options described by c.
func (c *Config) Build() (*model.EnergySystem, optimize.Options, error) {
	ti, err := c.TimeIndex.build()
	if err != nil {
		return nil, optimize.Options{}, fmt.Errorf("timeindex: %w", err)
	}
	r := &resolver{series: c.series}

	opts := optimize.Options{
		DiscountRate:       c.Model.DiscountRate,
		ObjectiveWeighting: r.seq("objective_weighting", c.Model.ObjectiveWeighting),
		TSAMWeighting:      r.seq("tsam_weighting", c.Model.TSAMWeighting),
		Solver:             c.Model.Solver,
		SolveOptions: solver.Options{
			Tee:            c.Model.SolveKwargs.Tee,
			KeepFiles:      c.Model.SolveKwargs.KeepFiles,
			ReceiveDuals:   c.Model.ReceiveDuals,
			SolverOptions:  c.Model.SolveKwargs.Options,
			CmdlineOptions: c.Model.CmdlineOptions,
		},
	}
	if r.err != nil {
		return nil, optimize.Options{}, fmt.Errorf("model: %w", r.err)
	}

	es := model.NewEnergySystem(ti)
	buses := map[string]*model.Bus{}
	for _, b := range c.Buses {
		if b.Label == "" {
			return nil, optimize.Options{}, errors.New("bus label is required")
		}
		if _, dup := buses[b.Label]; dup {
			return nil, optimize.Options{}, &model.ConfigurationError{Label: b.Label, Err: errors.New("duplicate bus label")}
		}
		bus := model.NewBus(b.Label)
		if b.Balanced != nil && !*b.Balanced {
			bus = model.NewUnbalancedBus(b.Label)
		}
		buses[b.Label] = bus
		if err := es.Add(bus); err != nil {
			return nil, optimize.Options{}, err
		}
	}

	for _, comp := range c.Components {
		b := &componentBuilder{comp: comp, buses: buses, r: &resolver{series: c.series}}
		node, err := b.build()
		if err != nil {
			return nil, optimize.Options{}, fmt.Errorf("component %s: %w", comp.Label, err)
		}
		if err := es.Add(node); err != nil {
			return nil, optimize.Options{}, err
		}
	}

	for i, cc := range c.Constraints {
		ext, err := cc.build(es)
		if err != nil {
			return nil, optimize.Options{}, fmt.Errorf("constraints[%d]: %w", i, err)
		}
		opts.Extensions = append(opts.Extensions, ext)
	}
	return es, opts, nil
}

func (cc ConstraintConfig) build(es *model.EnergySystem) (optimize.Extension, error) {
	flows := func() ([]*model.Flow, error) {
		if len(cc.Flows) == 0 {
			return nil, nil
		}
		byLabel := map[string]*model.Flow{}
		for _, f := range es.Flows() {
			byLabel[f.Label()] = f
		}
		out := make([]*model.Flow, 0, len(cc.Flows))
		for _, label := range cc.Flows {
			f, ok := byLabel[label]
			if !ok {
				return nil, fmt.Errorf("unknown flow %q", label)
			}
			out = append(out, f)
		}
		return out, nil
	}
	switch cc.Type {
	case ConstraintEmissionLimit, ConstraintIntegralLimit:
		keyword := cc.Keyword
		if cc.Type == ConstraintEmissionLimit {
			keyword = optimize.EmissionKeyword
		}
		if keyword == "" {
			return nil, errors.New("keyword is required")
		}
		fs, err := flows()
		if err != nil {
			return nil, err
		}
		return optimize.IntegralLimit{Keyword: keyword, Flows: fs, Limit: cc.Limit}, nil
	case ConstraintInvestmentLimit:
		return optimize.InvestmentLimit{Limit: cc.Limit}, nil
	case ConstraintInvestmentFlowLimit:
		if cc.Keyword == "" {
			return nil, errors.New("keyword is required")
		}
		return optimize.InvestmentFlowLimit{Keyword: cc.Keyword, Limit: cc.Limit}, nil
	case "":
		return nil, errors.New("type is required")
	}
	return nil, fmt.Errorf("unknown constraint type %q", cc.Type)
}

func (t TimeIndexConfig) build() (*timeindex.TimeIndex, error) {
	freq := time.Hour
	if t.Freq != "" {
		d, err := time.ParseDuration(t.Freq)
		if err != nil {
			return nil, fmt.Errorf("freq: %w", err)
		}
		if d <= 0 {
			return nil, errors.New("freq must be > 0")
		}
		freq = d
	}

	var (
		ti  *timeindex.TimeIndex
		err error
	)
	switch {
	case len(t.Increments) > 0:
		ti, err = timeindex.New(t.Increments)
	case t.Start != "":
		start, perr := time.Parse(time.RFC3339, t.Start)
		if perr != nil {
			return nil, fmt.Errorf("start: %w", perr)
		}
		if t.Steps <= 0 {
			return nil, errors.New("steps must be > 0")
		}
		infer := t.InferLastInterval == nil || *t.InferLastInterval
		n := t.Steps
		if !infer {
			n++
		}
		ti, err = timeindex.FromTimestamps(timeindex.Range(start, n, freq), infer)
	default:
		ti, err = timeindex.Uniform(t.Steps, freq.Hours())
	}
	if err != nil {
		return nil, err
	}

	periods := make([]timeindex.Period, 0, len(t.Periods))
	for _, p := range t.Periods {
		periods = append(periods, timeindex.Period{Year: p.Year, Start: p.Start, End: p.End})
	}
	if t.PeriodsByYear {
		if len(periods) > 0 {
			return nil, errors.New("periods and periods_by_year are mutually exclusive")
		}
		if ti.Timestamps() == nil {
			return nil, errors.New("periods_by_year needs a start timestamp")
		}
		periods = timeindex.PeriodsByYear(ti.Timestamps())
	}
	if len(periods) > 0 {
		if ti, err = ti.WithPeriods(periods); err != nil {
			return nil, err
		}
	}
	if a := t.Aggregation; a != nil {
		ti, err = ti.WithAggregation(timeindex.Aggregation{
			StepsPerPeriod: a.StepsPerPeriod,
			Order:          a.Order,
			Occurrences:    a.Occurrences,
		})
		if err != nil {
			return nil, err
		}
	}
	return ti, nil
}

type componentBuilder struct {
	comp  ComponentConfig
	buses map[string]*model.Bus
	r     *resolver
}

func (b *componentBuilder) bus(label string) (*model.Bus, error) {
	bus, ok := b.buses[label]
	if !ok {
		return nil, &model.TopologyError{Label: b.comp.Label, Err: fmt.Errorf("unknown bus %q", label)}
	}
	return bus, nil
}

func (b *componentBuilder) ports(side string, cfgs []PortConfig) ([]model.Port, error) {
	out := make([]model.Port, 0, len(cfgs))
	for i, pc := range cfgs {
		bus, err := b.bus(pc.Bus)
		if err != nil {
			return nil, err
		}
		f, err := b.flow(fmt.Sprintf("%s[%d]", side, i), pc.FlowConfig)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Connect(bus, f))
	}
	return out, nil
}

func (b *componentBuilder) flow(field string, fc FlowConfig) (*model.Flow, error) {
	r := b.r
	f := &model.Flow{
		NominalCapacity:       fc.NominalCapacity,
		Min:                   r.seq(field+".min", fc.Min),
		Max:                   r.seq(field+".max", fc.Max),
		Fix:                   r.seq(field+".fix", fc.Fix),
		FullLoadTimeMax:       r.seq(field+".full_load_time_max", fc.FullLoadTimeMax),
		FullLoadTimeMin:       r.seq(field+".full_load_time_min", fc.FullLoadTimeMin),
		VariableCosts:         r.seq(field+".variable_costs", fc.VariableCosts),
		FixedCosts:            r.seq(field+".fixed_costs", fc.FixedCosts),
		PositiveGradientLimit: r.seq(field+".positive_gradient_limit", fc.PositiveGradientLimit),
		NegativeGradientLimit: r.seq(field+".negative_gradient_limit", fc.NegativeGradientLimit),
		Integer:               fc.Integer,
		Bidirectional:         fc.Bidirectional,
		Lifetime:              fc.Lifetime,
		Age:                   fc.Age,
		Custom:                r.custom(field+".custom", fc.Custom),
		Investment:            b.investment(field+".investment", fc.Investment),
	}
	if nc := fc.NonConvex; nc != nil {
		f.NonConvex = &model.NonConvex{
			MinimumUptime:         nc.MinimumUptime,
			MinimumDowntime:       nc.MinimumDowntime,
			MaximumStartups:       nc.MaximumStartups,
			MaximumShutdowns:      nc.MaximumShutdowns,
			InitialStatus:         nc.InitialStatus,
			StartupCosts:          r.seq(field+".startup_costs", nc.StartupCosts),
			ShutdownCosts:         r.seq(field+".shutdown_costs", nc.ShutdownCosts),
			ActivityCosts:         r.seq(field+".activity_costs", nc.ActivityCosts),
			InactivityCosts:       r.seq(field+".inactivity_costs", nc.InactivityCosts),
			PositiveGradientLimit: r.seq(field+".nonconvex.positive_gradient_limit", nc.PositiveGradientLimit),
			NegativeGradientLimit: r.seq(field+".nonconvex.negative_gradient_limit", nc.NegativeGradientLimit),
			PositiveGradientCosts: r.seq(field+".positive_gradient_costs", nc.PositiveGradientCosts),
			NegativeGradientCosts: r.seq(field+".negative_gradient_costs", nc.NegativeGradientCosts),
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return f, nil
}

func (b *componentBuilder) investment(field string, ic *InvestmentConfig) *model.Investment {
	if ic == nil {
		return nil
	}
	r := b.r
	return &model.Investment{
		Minimum:        r.seq(field+".minimum", ic.Minimum),
		Maximum:        r.seq(field+".maximum", ic.Maximum),
		Existing:       ic.Existing,
		EPCosts:        r.seq(field+".ep_costs", ic.EPCosts),
		Offset:         r.seq(field+".offset", ic.Offset),
		NonConvex:      ic.NonConvex,
		Lifetime:       ic.Lifetime,
		Age:            ic.Age,
		OverallMaximum: r.seq(field+".overall_maximum", ic.OverallMaximum),
		OverallMinimum: r.seq(field+".overall_minimum", ic.OverallMinimum),
		FixedCosts:     r.seq(field+".fixed_costs", ic.FixedCosts),
		InterestRate:   ic.InterestRate,
		Custom:         r.custom(field+".custom", ic.Custom),
	}
}

// factors resolves conversion factors keyed by bus label.
func (b *componentBuilder) factors(field string, in map[string]Value) (map[model.Node]sequence.Sequence, error) {
	out := make(map[model.Node]sequence.Sequence, len(in))
	for label, v := range in {
		bus, err := b.bus(label)
		if err != nil {
			return nil, err
		}
		out[bus] = b.r.seq(field+"."+label, v)
	}
	return out, b.r.err
}

func (b *componentBuilder) build() (model.Node, error) {
	comp := b.comp
	in, err := b.ports("inputs", comp.Inputs)
	if err != nil {
		return nil, err
	}
	out, err := b.ports("outputs", comp.Outputs)
	if err != nil {
		return nil, err
	}

	switch comp.Type {
	case TypeSource:
		if len(in) > 0 {
			return nil, errors.New("a source has no inputs")
		}
		return model.NewSource(comp.Label, out...)
	case TypeSink:
		if len(out) > 0 {
			return nil, errors.New("a sink has no outputs")
		}
		return model.NewSink(comp.Label, in...)
	case TypeConverter:
		factors, err := b.factors("conversion_factors", comp.ConversionFactors)
		if err != nil {
			return nil, err
		}
		return model.NewConverter(comp.Label, in, out, factors)
	case TypeCHP:
		if len(in) != 1 {
			return nil, fmt.Errorf("a chp needs exactly one fuel input, got %d", len(in))
		}
		factors, err := b.factors("conversion_factors", comp.ConversionFactors)
		if err != nil {
			return nil, err
		}
		full, err := b.factors("full_condensation", comp.FullCondensation)
		if err != nil {
			return nil, err
		}
		return model.NewExtractionTurbineCHP(comp.Label, in[0], out, factors, full)
	case TypeLink:
		factors := make([]model.LinkFactor, 0, len(comp.LinkFactors))
		for _, lf := range comp.LinkFactors {
			from, err := b.bus(lf.From)
			if err != nil {
				return nil, err
			}
			to, err := b.bus(lf.To)
			if err != nil {
				return nil, err
			}
			factors = append(factors, model.LinkFactor{From: from, To: to, Factor: b.r.seq("link_factors", lf.Factor)})
		}
		if b.r.err != nil {
			return nil, b.r.err
		}
		return model.NewLink(comp.Label, in, out, factors)
	case TypeOffsetConverter:
		if len(in) != 1 || len(out) != 1 {
			return nil, errors.New("an offset converter needs exactly one input and one output")
		}
		coefficients := [2]sequence.Sequence{b.r.seq("offset", comp.Offset), b.r.seq("slope", comp.Slope)}
		if b.r.err != nil {
			return nil, b.r.err
		}
		return model.NewOffsetConverter(comp.Label, in[0], out[0], coefficients)
	case TypeStorage:
		params, err := b.storage()
		if err != nil {
			return nil, err
		}
		return model.NewGenericStorage(comp.Label, params, in, out)
	case "":
		return nil, errors.New("type is required")
	}
	return nil, fmt.Errorf("unknown component type %q", comp.Type)
}

func (b *componentBuilder) storage() (model.StorageParams, error) {
	sc := b.comp.Storage
	if sc == nil {
		return model.StorageParams{}, errors.New("storage parameters are required")
	}
	r := b.r
	p := model.StorageParams{
		NominalCapacity:              sc.NominalCapacity,
		Investment:                   b.investment("storage.investment", sc.Investment),
		InitialStorageLevel:          r.seq("initial_storage_level", sc.InitialStorageLevel),
		Balanced:                     sc.Balanced == nil || *sc.Balanced,
		LossRate:                     r.seq("loss_rate", sc.LossRate),
		FixedLossesRelative:          r.seq("fixed_losses_relative", sc.FixedLossesRelative),
		FixedLossesAbsolute:          r.seq("fixed_losses_absolute", sc.FixedLossesAbsolute),
		InflowConversionFactor:       r.seq("inflow_conversion_factor", sc.InflowConversionFactor),
		OutflowConversionFactor:      r.seq("outflow_conversion_factor", sc.OutflowConversionFactor),
		MinStorageLevel:              r.seq("min_storage_level", sc.MinStorageLevel),
		MaxStorageLevel:              r.seq("max_storage_level", sc.MaxStorageLevel),
		StorageCosts:                 r.seq("storage_costs", sc.StorageCosts),
		InvestRelationInputCapacity:  r.seq("invest_relation_input_capacity", sc.InvestRelationInputCapacity),
		InvestRelationOutputCapacity: r.seq("invest_relation_output_capacity", sc.InvestRelationOutputCapacity),
		InvestRelationInputOutput:    r.seq("invest_relation_input_output", sc.InvestRelationInputOutput),
	}
	return p, r.err
}
