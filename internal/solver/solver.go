package solver

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"energy-dispatch/internal/lp"
)

// Status is the termination condition reported by a solver.
type Status string

const (
	Optimal    Status = "optimal"
	Feasible   Status = "feasible"
	Infeasible Status = "infeasible"
	Unbounded  Status = "unbounded"
	Limit      Status = "limit"
	Error      Status = "error"
	Unknown    Status = "unknown"
)

// Options configures one solve call.
type Options struct {
	// Tee streams the solver log to Output.
	Tee bool
	// KeepFiles leaves the model and solution files in WorkDir.
	KeepFiles bool
	// ReceiveDuals requests constraint duals.
	ReceiveDuals bool
	// SolverOptions are solver parameters, e.g. {"mip_gap": 0.01}.
	SolverOptions map[string]any
	// CmdlineOptions are appended to the solver command line as "-key value".
	CmdlineOptions map[string]any
	// WorkDir holds temporary files; a fresh temp dir is used when empty.
	WorkDir string
	Output  io.Writer
}

// Solution is the primal (and optionally dual) result of a solve.
type Solution struct {
	Status    Status
	Objective float64
	// Values holds one entry per problem variable.
	Values []float64
	// Duals holds one entry per constraint when duals were requested.
	Duals      []float64
	Iterations int
	Nodes      int
	Log        string
}

// SolverError reports a non-optimal termination or a solver that failed to
// run. Log carries whatever the solver printed.
type SolverError struct {
	Solver string
	Status Status
	Log    string
	Err    error
}

func (e *SolverError) Error() string {
	msg := fmt.Sprintf("solver %s terminated with status %s", e.Solver, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SolverError) Unwrap() error { return e.Err }

// Solver accepts a flat algebraic problem and returns its solution.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error)
}

var registry = map[string]func() Solver{
	"builtin": func() Solver { return NewSimplex() },
	"simplex": func() Solver { return NewSimplex() },
	"cbc":     func() Solver { return &CBC{Binary: "cbc"} },
	"glpk":    func() Solver { return &GLPK{Binary: "glpsol"} },
	"gurobi":  func() Solver { return &Gurobi{Binary: "gurobi_cl"} },
	"cplex":   func() Solver { return &CPLEX{Binary: "cplex"} },
}

// New returns the solver registered under name. An empty name selects the
// built-in solver.
func New(name string) (Solver, error) {
	if name == "" {
		name = "builtin"
	}
	mk, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown solver %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Names lists the registered solver names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func optFloat(opts map[string]any, key string, def float64) float64 {
	v, ok := opts[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f
		}
	}
	return def
}

func optInt(opts map[string]any, key string, def int) int {
	return int(optFloat(opts, key, float64(def)))
}

// sortedKeys gives option maps a stable order on the command line.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
