package lp

import (
	"bufio"
	"io"
	"math"
)

type mpsEntry struct {
	row  string
	coef float64
}

// WriteMPS writes p in free MPS format. Integer and binary columns are
// wrapped in INTORG/INTEND markers; binaries also get BV bounds.
func WriteMPS(w io.Writer, p *Problem) error {
	if p.err != nil {
		return p.err
	}
	const objRow = "obj"
	bw := bufio.NewWriter(w)
	name := p.Name
	if name == "" {
		name = "unknown"
	}
	bw.WriteString("NAME " + Name(name) + "\n")
	bw.WriteString("OBJSENSE\n    MIN\n")
	bw.WriteString("ROWS\n N  " + objRow + "\n")
	for _, c := range p.cons {
		code := "L"
		switch c.Sense {
		case GE:
			code = "G"
		case EQ:
			code = "E"
		}
		bw.WriteString(" " + code + "  " + c.Name + "\n")
	}

	cols := make([][]mpsEntry, len(p.vars))
	for _, t := range p.objective.Terms {
		cols[t.Var] = append(cols[t.Var], mpsEntry{objRow, t.Coef})
	}
	for _, c := range p.cons {
		for _, t := range c.Expr.Terms {
			cols[t.Var] = append(cols[t.Var], mpsEntry{c.Name, t.Coef})
		}
	}

	bw.WriteString("COLUMNS\n")
	inInt := false
	marker := 0
	for i, v := range p.vars {
		isInt := v.Kind != Continuous
		if isInt != inInt {
			tag := "'INTORG'"
			if !isInt {
				tag = "'INTEND'"
			}
			bw.WriteString("    M" + fmtNum(float64(marker)) + " 'MARKER' " + tag + "\n")
			marker++
			inInt = isInt
		}
		if len(cols[i]) == 0 {
			// keep empty columns so the variable exists in the file
			bw.WriteString("    " + v.Name + " " + objRow + " 0\n")
		}
		for _, e := range cols[i] {
			bw.WriteString("    " + v.Name + " " + e.row + " " + fmtNum(e.coef) + "\n")
		}
	}
	if inInt {
		bw.WriteString("    M" + fmtNum(float64(marker)) + " 'MARKER' 'INTEND'\n")
	}
	bw.WriteString("    " + OneVarConstant + " " + objRow + " " + fmtNum(p.objective.Constant) + "\n")

	bw.WriteString("RHS\n")
	for _, c := range p.cons {
		if c.RHS != 0 {
			bw.WriteString("    RHS " + c.Name + " " + fmtNum(c.RHS) + "\n")
		}
	}

	bw.WriteString("BOUNDS\n")
	for _, v := range p.vars {
		writeMPSBounds(bw, v)
	}
	bw.WriteString(" FX BND " + OneVarConstant + " 1\n")
	bw.WriteString("ENDATA\n")
	return bw.Flush()
}

func writeMPSBounds(bw *bufio.Writer, v Variable) {
	lo, up := v.Lower, v.Upper
	switch {
	case v.Kind == Binary && lo == 0 && up == 1:
		bw.WriteString(" BV BND " + v.Name + "\n")
	case lo == up:
		bw.WriteString(" FX BND " + v.Name + " " + fmtNum(lo) + "\n")
	case math.IsInf(lo, -1) && math.IsInf(up, 1):
		bw.WriteString(" FR BND " + v.Name + "\n")
	default:
		// MPS columns default to [0, +inf); integer columns are written
		// explicitly because some readers default them to [0, 1].
		if math.IsInf(lo, -1) {
			bw.WriteString(" MI BND " + v.Name + "\n")
		} else if lo != 0 || v.Kind != Continuous {
			bw.WriteString(" LO BND " + v.Name + " " + fmtNum(lo) + "\n")
		}
		if math.IsInf(up, 1) {
			if v.Kind != Continuous {
				bw.WriteString(" PL BND " + v.Name + "\n")
			}
		} else {
			bw.WriteString(" UP BND " + v.Name + " " + fmtNum(up) + "\n")
		}
	}
}
