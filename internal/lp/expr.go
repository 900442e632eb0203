package lp

import "math"

// Var is the index of a variable in its Problem.
type Var int

// Term is one coefficient·variable product.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression Σ coef·var + Constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Sum builds an expression with coefficient 1 on every variable.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vars))}
	for _, v := range vars {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

// Add appends coef·v and returns e for chaining.
func (e *Expr) Add(v Var, coef float64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// AddExpr appends k·o.
func (e *Expr) AddExpr(o Expr, k float64) *Expr {
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: k * t.Coef})
	}
	e.Constant += k * o.Constant
	return e
}

// Scale multiplies every coefficient and the constant by k.
func (e *Expr) Scale(k float64) *Expr {
	for i := range e.Terms {
		e.Terms[i].Coef *= k
	}
	e.Constant *= k
	return e
}

// Copy returns an expression that shares no storage with e.
func (e Expr) Copy() Expr {
	return Expr{Terms: append([]Term(nil), e.Terms...), Constant: e.Constant}
}

// Simplify merges duplicate variables, keeping the position of their first
// appearance, and drops zero coefficients.
func (e Expr) Simplify() Expr {
	pos := make(map[Var]int, len(e.Terms))
	merged := make([]Term, 0, len(e.Terms))
	for _, t := range e.Terms {
		if i, ok := pos[t.Var]; ok {
			merged[i].Coef += t.Coef
			continue
		}
		pos[t.Var] = len(merged)
		merged = append(merged, t)
	}
	out := Expr{Terms: merged[:0], Constant: e.Constant}
	for _, t := range merged {
		if t.Coef != 0 {
			out.Terms = append(out.Terms, t)
		}
	}
	return out
}

// Value evaluates the expression at x.
func (e Expr) Value(x []float64) float64 {
	v := e.Constant
	for _, t := range e.Terms {
		v += t.Coef * x[t.Var]
	}
	return v
}

// IsConstant reports whether the expression has no variable terms left
// after simplification.
func (e Expr) IsConstant() bool { return len(e.Simplify().Terms) == 0 }

func (e Expr) finite() bool {
	if math.IsNaN(e.Constant) || math.IsInf(e.Constant, 0) {
		return false
	}
	for _, t := range e.Terms {
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return false
		}
	}
	return true
}
