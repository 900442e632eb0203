package solver

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"energy-dispatch/internal/lp"

	"github.com/pkg/errors"
)

// CPLEX drives the interactive cplex binary through a command file and
// reads its XML solution.
type CPLEX struct {
	Binary string
}

func (c *CPLEX) Name() string { return "cplex" }

func (c *CPLEX) Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	var solPath string
	return solveWithCLI(ctx, c.Name(), p, opts,
		func(dir, model, _ string) (string, []string, error) {
			solPath = filepath.Join(dir, "solution.sol")
			cmdFile := filepath.Join(dir, "commands.txt")
			if err := os.WriteFile(cmdFile, []byte(cplexCommands(model, solPath, opts)), 0o644); err != nil {
				return "", nil, errors.Wrap(err, "write cplex command file")
			}
			return c.Binary, append([]string{"-f", cmdFile}, cmdlineArgs(opts.CmdlineOptions)...), nil
		},
		func(_, log string) (*Solution, error) {
			if i := strings.Index(log, "CPLEX Error"); i >= 0 {
				end := strings.IndexByte(log[i:], '\n')
				if end < 0 {
					end = len(log) - i
				}
				return nil, errors.New(log[i : i+end])
			}
			f, err := os.Open(solPath)
			if os.IsNotExist(err) {
				// cplex writes no solution file when nothing feasible was found
				return &Solution{Status: cplexLogStatus(log)}, nil
			}
			if err != nil {
				return nil, errors.Wrap(err, "open cplex solution")
			}
			defer f.Close()
			return parseCPLEXSolution(f, p, opts.ReceiveDuals)
		})
}

// cplexCommands builds the command file. SolverOptions keys are CPLEX
// parameter paths such as "mip tolerances mipgap".
func cplexCommands(model, sol string, opts Options) string {
	var b strings.Builder
	fmt.Fprintln(&b, "read", model, "lp")
	for _, k := range sortedKeys(opts.SolverOptions) {
		fmt.Fprintln(&b, "set", k, opts.SolverOptions[k])
	}
	fmt.Fprintln(&b, "optimize")
	fmt.Fprintln(&b, "write", sol, "sol")
	fmt.Fprintln(&b, "quit")
	return b.String()
}

type cplexSolution struct {
	XMLName xml.Name `xml:"CPLEXSolution"`
	Header  struct {
		ObjectiveValue      float64 `xml:"objectiveValue,attr"`
		SolutionStatusValue int     `xml:"solutionStatusValue,attr"`
		SimplexIterations   int     `xml:"simplexIterations,attr"`
		MIPNodes            int     `xml:"MIPNodes,attr"`
	} `xml:"header"`
	Constraints []struct {
		Name string  `xml:"name,attr"`
		Dual float64 `xml:"dual,attr"`
	} `xml:"linearConstraints>constraint"`
	Variables []struct {
		Name  string  `xml:"name,attr"`
		Value float64 `xml:"value,attr"`
	} `xml:"variables>variable"`
}

func parseCPLEXSolution(r io.Reader, p *lp.Problem, wantDuals bool) (*Solution, error) {
	var cs cplexSolution
	if err := xml.NewDecoder(r).Decode(&cs); err != nil {
		return nil, errors.Wrap(err, "decode cplex solution")
	}
	sol := &Solution{
		Status:     cplexStatus(cs.Header.SolutionStatusValue),
		Objective:  cs.Header.ObjectiveValue,
		Values:     make([]float64, p.NumVars()),
		Iterations: cs.Header.SimplexIterations,
		Nodes:      cs.Header.MIPNodes,
	}
	for _, v := range cs.Variables {
		if i, ok := p.VarByName(v.Name); ok {
			sol.Values[i] = v.Value
		}
	}
	if wantDuals {
		sol.Duals = make([]float64, p.NumConstraints())
		for _, c := range cs.Constraints {
			if i, ok := p.ConstraintByName(c.Name); ok {
				sol.Duals[i] = c.Dual
			}
		}
	}
	return sol, nil
}

func cplexStatus(code int) Status {
	switch code {
	case 1, 101, 102:
		return Optimal
	case 2, 118:
		return Unbounded
	case 3, 103:
		return Infeasible
	case 104, 105, 106, 107, 113:
		return Feasible
	case 10, 11, 108, 110, 111, 112, 114:
		return Limit
	}
	return Unknown
}

func cplexLogStatus(log string) Status {
	switch {
	case strings.Contains(log, "nfeasible"):
		return Infeasible
	case strings.Contains(log, "nbounded"):
		return Unbounded
	}
	return Unknown
}
