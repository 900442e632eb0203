package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"energy-dispatch/internal/lp"

	"github.com/pkg/errors"
)

// GLPK runs glpsol and reads its raw (-w) solution format.
type GLPK struct {
	Binary string
}

func (g *GLPK) Name() string { return "glpk" }

func (g *GLPK) Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	return solveWithCLI(ctx, g.Name(), p, opts,
		func(_, model, sol string) (string, []string, error) {
			return g.Binary, glpkArgs(model, sol, opts), nil
		},
		func(sol, _ string) (*Solution, error) {
			f, err := openSolution(sol)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return parseGLPKSolution(f, p, opts.ReceiveDuals)
		})
}

func glpkArgs(model, sol string, opts Options) []string {
	args := []string{"--lp", model, "-w", sol}
	for _, k := range sortedKeys(opts.SolverOptions) {
		args = append(args, "--"+k)
		if v := opts.SolverOptions[k]; v != nil && fmt.Sprint(v) != "" {
			args = append(args, fmt.Sprint(v))
		}
	}
	return append(args, cmdlineArgs(opts.CmdlineOptions)...)
}

// parseGLPKSolution reads the raw format written by glpsol -w. Columns are
// numbered in order of first appearance in the LP file and rows in
// constraint order.
//
//	s bas ROWS COLS PRIM DUAL OBJ   or   s mip ROWS COLS STAT OBJ
//	i ROW ST PRIM DUAL               or   i ROW VAL
//	j COL ST PRIM DUAL               or   j COL VAL
func parseGLPKSolution(r io.Reader, p *lp.Problem, wantDuals bool) (*Solution, error) {
	order := lp.ColumnOrder(p)
	sol := &Solution{Status: Unknown, Values: make([]float64, p.NumVars())}
	if wantDuals {
		sol.Duals = make([]float64, p.NumConstraints())
	}
	mip := false
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "s":
			if len(f) < 6 {
				return nil, errors.Errorf("malformed glpk status line %q", sc.Text())
			}
			switch f[1] {
			case "bas":
				if len(f) < 7 {
					return nil, errors.Errorf("malformed glpk status line %q", sc.Text())
				}
				sol.Status = glpkBasisStatus(f[4], f[5])
				obj, err := strconv.ParseFloat(f[6], 64)
				if err != nil {
					return nil, errors.Wrap(err, "glpk objective")
				}
				sol.Objective = obj
			case "mip":
				mip = true
				sol.Status = glpkMIPStatus(f[4])
				obj, err := strconv.ParseFloat(f[5], 64)
				if err != nil {
					return nil, errors.Wrap(err, "glpk objective")
				}
				sol.Objective = obj
			default:
				return nil, errors.Errorf("unsupported glpk solution type %q", f[1])
			}
		case "i":
			if !wantDuals || mip || len(f) < 5 {
				continue
			}
			row, err := strconv.Atoi(f[1])
			if err != nil || row < 1 || row > p.NumConstraints() {
				return nil, errors.Errorf("bad glpk row line %q", sc.Text())
			}
			dual, err := strconv.ParseFloat(f[4], 64)
			if err != nil {
				return nil, errors.Wrap(err, "glpk dual")
			}
			sol.Duals[row-1] = dual
		case "j":
			col, err := strconv.Atoi(f[1])
			if err != nil || col < 1 || col > len(order) {
				return nil, errors.Errorf("bad glpk column line %q", sc.Text())
			}
			field := 3
			if mip {
				field = 2
			}
			if len(f) <= field {
				return nil, errors.Errorf("bad glpk column line %q", sc.Text())
			}
			val, err := strconv.ParseFloat(f[field], 64)
			if err != nil {
				return nil, errors.Wrap(err, "glpk value")
			}
			if v := order[col-1]; v >= 0 {
				sol.Values[v] = val
			}
		}
	}
	return sol, errors.Wrap(sc.Err(), "read glpk solution")
}

func glpkBasisStatus(prim, dual string) Status {
	switch {
	case prim == "f" && dual == "f":
		return Optimal
	case prim == "n" || prim == "i":
		return Infeasible
	case dual == "n":
		return Unbounded
	}
	return Unknown
}

func glpkMIPStatus(stat string) Status {
	switch stat {
	case "o":
		return Optimal
	case "f":
		return Feasible
	case "n":
		return Infeasible
	}
	return Unknown
}
