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

// CBC runs the COIN-OR cbc executable.
type CBC struct {
	Binary string
}

func (c *CBC) Name() string { return "cbc" }

func (c *CBC) Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	return solveWithCLI(ctx, c.Name(), p, opts,
		func(_, model, sol string) (string, []string, error) {
			return c.Binary, cbcArgs(model, sol, opts), nil
		},
		func(sol, _ string) (*Solution, error) {
			f, err := openSolution(sol)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return parseCBCSolution(f, p, opts.ReceiveDuals)
		})
}

func cbcArgs(model, sol string, opts Options) []string {
	args := []string{model}
	for _, k := range sortedKeys(opts.SolverOptions) {
		args = append(args, "-"+k, fmt.Sprint(opts.SolverOptions[k]))
	}
	args = append(args, cmdlineArgs(opts.CmdlineOptions)...)
	if opts.ReceiveDuals {
		args = append(args, "-printingOptions", "all")
	}
	return append(args, "-solve", "-solu", sol)
}

// parseCBCSolution reads a cbc "solu" file:
//
//	Optimal - objective value 35.00000000
//	      0 flow(a,b,0)    5    0
//
// With printingOptions all, rows precede columns and the last field of a
// row line is its dual.
func parseCBCSolution(r io.Reader, p *lp.Problem, wantDuals bool) (*Solution, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		return nil, errors.New("empty cbc solution file")
	}
	header := strings.TrimSpace(sc.Text())
	sol := &Solution{Status: cbcStatus(header), Values: make([]float64, p.NumVars())}
	if i := strings.Index(header, "objective value"); i >= 0 {
		fields := strings.Fields(header[i+len("objective value"):])
		if len(fields) > 0 {
			v, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, errors.Wrap(err, "cbc objective")
			}
			sol.Objective = v
		}
	}
	if wantDuals {
		sol.Duals = make([]float64, p.NumConstraints())
	}
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sc.Text()), "**"))
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := fields[1]
		val, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "cbc value for %s", name)
		}
		if v, ok := p.VarByName(name); ok {
			sol.Values[v] = val
			continue
		}
		if i, ok := p.ConstraintByName(name); ok && wantDuals {
			dual, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "cbc dual for %s", name)
			}
			sol.Duals[i] = dual
		}
	}
	return sol, errors.Wrap(sc.Err(), "read cbc solution")
}

func cbcStatus(header string) Status {
	switch {
	case strings.HasPrefix(header, "Optimal"):
		return Optimal
	case strings.HasPrefix(header, "Infeasible"), strings.HasPrefix(header, "Integer infeasible"):
		return Infeasible
	case strings.HasPrefix(header, "Unbounded"):
		return Unbounded
	case strings.HasPrefix(header, "Stopped"):
		return Limit
	}
	return Unknown
}
