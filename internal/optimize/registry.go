package optimize

import (
	"energy-dispatch/internal/lp"
	"energy-dispatch/internal/model"
)

// Index tells how the entries of a VarSet are laid out.
type Index int

const (
	// ByTimestep holds one entry per model step.
	ByTimestep Index = iota
	// ByTimepoint holds one entry per timepoint 0..N.
	ByTimepoint
	// ByPeriod holds one entry per investment period.
	ByPeriod
	// Single holds one entry.
	Single
	// ByOriginalTimepoint holds one entry per timepoint of the
	// disaggregated axis of a typical-period model.
	ByOriginalTimepoint
	// ByTypicalTimepoint holds K+1 entries per typical period.
	ByTypicalTimepoint
	// ByOriginalPeriod holds one entry per boundary of the original
	// periods of a typical-period model.
	ByOriginalPeriod
)

func (i Index) String() string {
	switch i {
	case ByTimestep:
		return "timestep"
	case ByTimepoint:
		return "timepoint"
	case ByPeriod:
		return "period"
	case Single:
		return "scalar"
	case ByOriginalTimepoint:
		return "original_timepoint"
	case ByTypicalTimepoint:
		return "typical_timepoint"
	case ByOriginalPeriod:
		return "original_period"
	}
	return "unknown"
}

// VarSet is a named result series of a node or flow. Entries are linear
// expressions so derived quantities such as a reconstructed storage content
// can be reported like plain variables.
type VarSet struct {
	Node  model.Node
	Flow  *model.Flow
	Name  string
	Index Index
	Exprs []lp.Expr
}

// Owner labels the node or flow the set belongs to.
func (s *VarSet) Owner() string {
	if s.Flow != nil {
		return s.Flow.Label()
	}
	if s.Node != nil {
		return s.Node.Label()
	}
	return ""
}

// Values evaluates every entry at x.
func (s *VarSet) Values(x []float64) []float64 {
	out := make([]float64, len(s.Exprs))
	for i, e := range s.Exprs {
		out[i] = e.Value(x)
	}
	return out
}

func (m *Model) register(s *VarSet) { m.sets = append(m.sets, s) }

// Registry lists every result series in creation order.
func (m *Model) Registry() []*VarSet { return m.sets }

// Lookup finds a series by owner label and name.
func (m *Model) Lookup(owner, name string) (*VarSet, bool) {
	for _, s := range m.sets {
		if s.Name == name && s.Owner() == owner {
			return s, true
		}
	}
	return nil, false
}

func exprsOf(vars []lp.Var) []lp.Expr {
	out := make([]lp.Expr, len(vars))
	for i, v := range vars {
		out[i] = lp.Sum(v)
	}
	return out
}
