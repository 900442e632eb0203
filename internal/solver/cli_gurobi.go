package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"energy-dispatch/internal/lp"

	"github.com/pkg/errors"
)

// Gurobi runs gurobi_cl and reads its JSON result file.
type Gurobi struct {
	Binary string
}

func (g *Gurobi) Name() string { return "gurobi" }

func (g *Gurobi) Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	var result string
	return solveWithCLI(ctx, g.Name(), p, opts,
		func(dir, model, _ string) (string, []string, error) {
			result = filepath.Join(dir, "solution.json")
			return g.Binary, gurobiArgs(model, result, opts), nil
		},
		func(_, _ string) (*Solution, error) {
			f, err := openSolution(result)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return parseGurobiSolution(f, p, opts.ReceiveDuals)
		})
}

func gurobiArgs(model, result string, opts Options) []string {
	args := []string{"ResultFile=" + result, "JSONSolDetail=1"}
	for _, k := range sortedKeys(opts.SolverOptions) {
		args = append(args, fmt.Sprintf("%s=%v", k, opts.SolverOptions[k]))
	}
	args = append(args, cmdlineArgs(opts.CmdlineOptions)...)
	return append(args, model)
}

type gurobiResult struct {
	SolutionInfo struct {
		Status    int     `json:"Status"`
		ObjVal    float64 `json:"ObjVal"`
		IterCount float64 `json:"IterCount"`
		NodeCount float64 `json:"NodeCount"`
		SolCount  int     `json:"SolCount"`
	} `json:"SolutionInfo"`
	Vars []struct {
		VarName string  `json:"VarName"`
		X       float64 `json:"X"`
	} `json:"Vars"`
	Constrs []struct {
		ConstrName string  `json:"ConstrName"`
		Pi         float64 `json:"Pi"`
	} `json:"Constrs"`
}

func parseGurobiSolution(r io.Reader, p *lp.Problem, wantDuals bool) (*Solution, error) {
	var res gurobiResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decode gurobi result")
	}
	info := res.SolutionInfo
	sol := &Solution{
		Status:     gurobiStatus(info.Status, info.SolCount),
		Objective:  info.ObjVal,
		Values:     make([]float64, p.NumVars()),
		Iterations: int(info.IterCount),
		Nodes:      int(info.NodeCount),
	}
	for _, v := range res.Vars {
		if i, ok := p.VarByName(v.VarName); ok {
			sol.Values[i] = v.X
		}
	}
	if wantDuals {
		sol.Duals = make([]float64, p.NumConstraints())
		for _, c := range res.Constrs {
			if i, ok := p.ConstraintByName(c.ConstrName); ok {
				sol.Duals[i] = c.Pi
			}
		}
	}
	return sol, nil
}

// gurobiStatus maps Gurobi status codes (2 optimal, 3 infeasible,
// 4 infeasible or unbounded, 5 unbounded, 7-11 limits).
func gurobiStatus(code, solutions int) Status {
	switch code {
	case 2:
		return Optimal
	case 3, 4:
		return Infeasible
	case 5:
		return Unbounded
	case 7, 8, 9, 10, 11:
		if solutions > 0 {
			return Feasible
		}
		return Limit
	}
	return Unknown
}
