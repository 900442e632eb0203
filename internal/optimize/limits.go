package optimize

import (
	"errors"
	"fmt"

	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/sequence"
)

// Extension adds constraints to a model after every block is built. The
// limits below read their weights from the Custom attributes of flows and
// investments.
type Extension interface {
	Name() string
	Apply(m *Model) error
}

// EmissionKeyword is the flow attribute summed by EmissionLimit.
const EmissionKeyword = "emission_factor"

// IntegralLimit bounds Σ_f Σ_t P_f(t)·w_f(t)·τ(t)·tsam(t) <= Limit where
// w_f is the Custom attribute Keyword of flow f. With Flows nil every flow
// carrying the keyword is summed; listed flows must carry it.
//
// The total is reported as the ownerless series integral_limit_<keyword>.
type IntegralLimit struct {
	Keyword string
	Flows   []*model.Flow
	Limit   float64
}

// EmissionLimit is an IntegralLimit over "emission_factor".
func EmissionLimit(limit float64) IntegralLimit {
	return IntegralLimit{Keyword: EmissionKeyword, Limit: limit}
}

func (l IntegralLimit) Name() string { return "integral_limit_" + l.Keyword }

func (l IntegralLimit) Apply(m *Model) error {
	if l.Keyword == "" {
		return &model.ConfigurationError{Label: "integral_limit", Err: errors.New("keyword is required")}
	}
	flows := l.Flows
	if flows == nil {
		for _, f := range m.flows {
			if _, ok := f.Custom[l.Keyword]; ok {
				flows = append(flows, f)
			}
		}
	}
	n := m.TimeIndex.N()
	var total lp.Expr
	for _, f := range flows {
		vars, ok := m.flowVar[f]
		if !ok {
			return &model.TopologyError{Label: l.Name(), Err: fmt.Errorf("flow %s is not part of the model", f.Label())}
		}
		w, err := customWeight(f.Label(), f.Custom, l.Keyword, n)
		if err != nil {
			return err
		}
		for t, v := range vars {
			total.Add(v, w.At(t)*m.TimeIndex.Increment(t)*m.tsamWeight[t])
		}
	}
	m.addLimit(l.Name(), total, l.Limit)
	return nil
}

// InvestmentLimit bounds the investment costs of all investment flows and
// storages: annuities (or ep_costs) and nonconvex offsets, fixed costs
// excluded. The total is reported as the series investment_costs.
type InvestmentLimit struct {
	Limit float64
}

func (InvestmentLimit) Name() string { return "investment_limit" }

func (l InvestmentLimit) Apply(m *Model) error {
	m.addLimit("investment_costs", m.investCosts, l.Limit)
	return nil
}

// InvestmentFlowLimit bounds Σ_f Σ_p invest_f(p)·w_f(p) <= Limit over
// investment flows whose Investment carries the Custom attribute Keyword.
// Investment storages are not included. The total is reported as the
// series invest_limit_<keyword>.
type InvestmentFlowLimit struct {
	Keyword string
	Limit   float64
}

func (l InvestmentFlowLimit) Name() string { return "invest_limit_" + l.Keyword }

func (l InvestmentFlowLimit) Apply(m *Model) error {
	if l.Keyword == "" {
		return &model.ConfigurationError{Label: "investment_flow_limit", Err: errors.New("keyword is required")}
	}
	np := m.TimeIndex.NumPeriods()
	var total lp.Expr
	for _, set := range m.sets {
		if set.Flow == nil || set.Name != "invest" || set.Flow.Investment == nil {
			continue
		}
		inv := set.Flow.Investment
		if _, ok := inv.Custom[l.Keyword]; !ok {
			continue
		}
		w, err := customWeight(set.Flow.Label(), inv.Custom, l.Keyword, np)
		if err != nil {
			return err
		}
		for p, e := range set.Exprs {
			total.AddExpr(e, w.At(p))
		}
	}
	m.addLimit(l.Name(), total, l.Limit)
	return nil
}

func (m *Model) addLimit(what string, total lp.Expr, limit float64) {
	if len(total.Simplify().Terms) == 0 {
		model.Warn(what, "no variable takes part in the limit; it is not added")
		return
	}
	m.Problem.AddConstraint(lp.Name(what), total, lp.LE, limit)
	m.register(&VarSet{Name: what, Index: Single, Exprs: []lp.Expr{total.Copy()}})
}

func customWeight(label string, custom map[string]any, keyword string, n int) (sequence.Sequence, error) {
	raw, ok := custom[keyword]
	if !ok {
		return sequence.Sequence{}, &model.ConfigurationError{Label: label, Err: fmt.Errorf("no attribute %q", keyword)}
	}
	w, err := sequence.FromAny(raw)
	if err == nil {
		err = w.CheckLength(n)
	}
	if err == nil {
		err = w.CheckFinite()
	}
	if err != nil {
		return sequence.Sequence{}, &model.ConfigurationError{Label: label, Err: fmt.Errorf("%s: %w", keyword, err)}
	}
	return w, nil
}
