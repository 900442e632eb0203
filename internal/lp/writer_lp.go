package lp

import (
	"bufio"
	"io"
	"math"
	"strconv"
)

func fmtNum(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func fmtCoef(v float64) string {
	if v >= 0 {
		return "+" + fmtNum(v)
	}
	return fmtNum(v)
}

// WriteLP writes p in CPLEX LP format. The output depends only on the order
// in which variables and constraints were added.
func WriteLP(w io.Writer, p *Problem) error {
	if p.err != nil {
		return p.err
	}
	bw := bufio.NewWriter(w)
	name := p.Name
	if name == "" {
		name = "unknown"
	}
	bw.WriteString("\\* Problem: " + Name(name) + " *\\\n\n")
	bw.WriteString("min \nobjective:\n")
	obj := p.objective
	for _, t := range obj.Terms {
		bw.WriteString(fmtCoef(t.Coef) + " " + p.vars[t.Var].Name + "\n")
	}
	bw.WriteString(fmtCoef(obj.Constant) + " " + OneVarConstant + "\n\n")

	bw.WriteString("s.t.\n\n")
	for _, c := range p.cons {
		bw.WriteString(c.Name + ":\n")
		if len(c.Expr.Terms) == 0 {
			bw.WriteString("+0 " + OneVarConstant + "\n")
		}
		for _, t := range c.Expr.Terms {
			bw.WriteString(fmtCoef(t.Coef) + " " + p.vars[t.Var].Name + "\n")
		}
		bw.WriteString(c.Sense.String() + " " + fmtNum(c.RHS) + "\n\n")
	}

	bw.WriteString("bounds\n")
	bw.WriteString("   1 <= " + OneVarConstant + " <= 1\n")
	for _, v := range p.vars {
		if math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1) {
			bw.WriteString("   " + v.Name + " free\n")
			continue
		}
		bw.WriteString("   " + fmtNum(v.Lower) + " <= " + v.Name + " <= " + fmtNum(v.Upper) + "\n")
	}
	writeKind := func(header string, k Kind) {
		first := true
		for _, v := range p.vars {
			if v.Kind != k {
				continue
			}
			if first {
				bw.WriteString(header + "\n")
				first = false
			}
			bw.WriteString("  " + v.Name + "\n")
		}
	}
	writeKind("general", Integer)
	writeKind("binary", Binary)
	bw.WriteString("end\n")
	return bw.Flush()
}

// ColumnOrder lists variables in order of first appearance in the output of
// WriteLP, which is how LP readers number columns. The constant column is
// reported as -1.
func ColumnOrder(p *Problem) []Var {
	seen := make(map[Var]bool, len(p.vars))
	var order []Var
	visit := func(v Var) {
		if !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}
	for _, t := range p.objective.Terms {
		visit(t.Var)
	}
	visit(-1)
	for _, c := range p.cons {
		for _, t := range c.Expr.Terms {
			visit(t.Var)
		}
	}
	for i := range p.vars {
		visit(Var(i))
	}
	return order
}
