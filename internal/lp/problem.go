package lp

import (
	"fmt"
	"math"
	"strings"
)

// OneVarConstant is the column written to LP and MPS files to carry the
// objective constant. It is fixed to 1.
const OneVarConstant = "ONE_VAR_CONSTANT"

// Kind is the domain of a variable.
type Kind int

const (
	Continuous Kind = iota
	Integer
	Binary
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	}
	return "continuous"
}

// Sense is the relation of a constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case GE:
		return ">="
	case EQ:
		return "="
	}
	return "<="
}

// Variable is a column of the problem.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	Kind  Kind
}

// Constraint is a row Expr sense RHS. The expression carries no constant;
// AddConstraint moves it to the right-hand side.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Problem is a minimisation problem over named variables and constraints.
// Errors raised while building (duplicate names, non-finite coefficients)
// are sticky: the first one is kept and returned by Err.
type Problem struct {
	Name string

	vars      []Variable
	cons      []Constraint
	varIdx    map[string]Var
	conIdx    map[string]int
	objective Expr
	err       error
}

func NewProblem(name string) *Problem {
	return &Problem{
		Name:   name,
		varIdx: map[string]Var{},
		conIdx: map[string]int{},
	}
}

// Err returns the first error recorded while building the problem.
func (p *Problem) Err() error { return p.err }

func (p *Problem) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

// AddVar adds a variable. Binary variables are clamped to [0, 1].
func (p *Problem) AddVar(name string, lb, ub float64, kind Kind) Var {
	if _, dup := p.varIdx[name]; dup || name == OneVarConstant {
		p.fail("duplicate variable name %q", name)
	}
	if math.IsNaN(lb) || math.IsNaN(ub) {
		p.fail("variable %q has a NaN bound", name)
	}
	if kind == Binary {
		lb, ub = math.Max(lb, 0), math.Min(ub, 1)
	}
	v := Var(len(p.vars))
	p.vars = append(p.vars, Variable{Name: name, Lower: lb, Upper: ub, Kind: kind})
	p.varIdx[name] = v
	return v
}

// AddConstraint adds a row and returns its index.
func (p *Problem) AddConstraint(name string, e Expr, sense Sense, rhs float64) int {
	if _, dup := p.conIdx[name]; dup {
		p.fail("duplicate constraint name %q", name)
	}
	if !e.finite() || math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		p.fail("constraint %q has a non-finite coefficient", name)
	}
	s := e.Simplify()
	rhs -= s.Constant
	s.Constant = 0
	for _, t := range s.Terms {
		if int(t.Var) < 0 || int(t.Var) >= len(p.vars) {
			p.fail("constraint %q references unknown variable %d", name, t.Var)
		}
	}
	i := len(p.cons)
	p.cons = append(p.cons, Constraint{Name: name, Expr: s, Sense: sense, RHS: rhs})
	p.conIdx[name] = i
	return i
}

// Fix sets both bounds of v to val.
func (p *Problem) Fix(v Var, val float64) { p.SetBounds(v, val, val) }

func (p *Problem) SetBounds(v Var, lb, ub float64) {
	p.vars[v].Lower, p.vars[v].Upper = lb, ub
}

// SetObjective replaces the objective.
func (p *Problem) SetObjective(e Expr) {
	if !e.finite() {
		p.fail("objective has a non-finite coefficient")
	}
	p.objective = e.Simplify()
}

// AddObjective adds e to the objective.
func (p *Problem) AddObjective(e Expr) {
	if !e.finite() {
		p.fail("objective has a non-finite coefficient")
	}
	sum := p.objective.Copy()
	sum.AddExpr(e, 1)
	p.objective = sum.Simplify()
}

func (p *Problem) Objective() Expr { return p.objective }

func (p *Problem) NumVars() int        { return len(p.vars) }
func (p *Problem) NumConstraints() int { return len(p.cons) }

func (p *Problem) Variable(v Var) Variable { return p.vars[v] }

// Variables returns the variables in creation order.
func (p *Problem) Variables() []Variable { return p.vars }

func (p *Problem) Constraint(i int) Constraint { return p.cons[i] }

// Constraints returns the rows in creation order.
func (p *Problem) Constraints() []Constraint { return p.cons }

func (p *Problem) VarByName(name string) (Var, bool) {
	v, ok := p.varIdx[name]
	return v, ok
}

func (p *Problem) ConstraintByName(name string) (int, bool) {
	i, ok := p.conIdx[name]
	return i, ok
}

// IsMIP reports whether any variable is integer or binary.
func (p *Problem) IsMIP() bool {
	for _, v := range p.vars {
		if v.Kind != Continuous {
			return true
		}
	}
	return false
}

// Clone copies the problem so bounds can be changed without touching p.
// Expressions are shared; callers must not modify them.
func (p *Problem) Clone() *Problem {
	q := &Problem{
		Name:      p.Name,
		vars:      append([]Variable(nil), p.vars...),
		cons:      append([]Constraint(nil), p.cons...),
		varIdx:    p.varIdx,
		conIdx:    p.conIdx,
		objective: p.objective,
		err:       p.err,
	}
	return q
}

// Name builds a file-safe identifier base(part,part,...). Bytes that LP
// and MPS readers reject are written as ~XX (hex), as are '~' and ',' inside
// a part, so distinct inputs always give distinct names. A leading digit or
// period is escaped the same way.
func Name(base string, parts ...any) string {
	var b strings.Builder
	escape(&b, base)
	if len(parts) > 0 {
		b.WriteByte('(')
		for i, part := range parts {
			if i > 0 {
				b.WriteByte(',')
			}
			escape(&b, fmt.Sprint(part))
		}
		b.WriteByte(')')
	}
	if b.Len() == 0 {
		return "~"
	}
	return b.String()
}

func escape(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case b.Len() == 0 && (isDigit(c) || c == '.'):
			fmt.Fprintf(b, "~%02x", c)
		case isLetter(c) || isDigit(c) || c == '_' || c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(b, "~%02x", c)
		}
	}
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
