package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"energy-dispatch/internal/lp"
)

type bound struct {
	v      lp.Var
	lo, up float64
}

// node is one subproblem of the search: the root problem with tightened
// bounds on some integer variables.
type node struct {
	bounds []bound
	depth  int
}

func (n node) child(b bound) node {
	bs := make([]bound, len(n.bounds), len(n.bounds)+1)
	copy(bs, n.bounds)
	return node{bounds: append(bs, b), depth: n.depth + 1}
}

func (n node) apply(p *lp.Problem) *lp.Problem {
	q := p.Clone()
	for _, b := range n.bounds {
		v := q.Variable(b.v)
		q.SetBounds(b.v, math.Max(v.Lower, b.lo), math.Min(v.Upper, b.up))
	}
	return q
}

// branchAndBound explores subproblems depth first, branching on the most
// fractional integer variable and visiting the child closer to the relaxed
// value first.
func (s *Simplex) branchAndBound(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	maxNodes := optInt(opts.SolverOptions, "max_nodes", defaultMaxNodes)
	maxIter := optInt(opts.SolverOptions, "max_iter", defaultMaxIter)
	gap := optFloat(opts.SolverOptions, "mip_gap", 1e-9)
	intTol := optFloat(opts.SolverOptions, "int_tol", 1e-6)

	var (
		incumbent    []float64
		incumbentObj = math.Inf(1)
		nodes        int
		iterations   int
		hitLimit     bool
	)
	stack := []node{{}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, &SolverError{Solver: s.Name(), Status: Limit, Err: err}
		}
		if nodes >= maxNodes {
			hitLimit = true
			break
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		r, err := solveLP(ctx, n.apply(p), maxIter, false)
		iterations += r.iterations
		if err != nil {
			if errors.Is(err, errInfeasible) {
				continue
			}
			return nil, &SolverError{Solver: s.Name(), Status: statusOf(err), Err: err}
		}
		if incumbent != nil && r.objective >= incumbentObj-gap*math.Max(1, math.Abs(incumbentObj)) {
			continue
		}

		branch, frac := -1, 0.0
		for i, v := range p.Variables() {
			if v.Kind == lp.Continuous {
				continue
			}
			f := r.x[i] - math.Floor(r.x[i])
			dist := math.Min(f, 1-f)
			if dist > intTol && dist > frac {
				branch, frac = i, dist
			}
		}
		if branch < 0 {
			incumbent, incumbentObj = roundIntegers(p, r.x), r.objective
			continue
		}

		val := r.x[branch]
		down := n.child(bound{lp.Var(branch), math.Inf(-1), math.Floor(val)})
		up := n.child(bound{lp.Var(branch), math.Ceil(val), math.Inf(1)})
		// LIFO: push the farther child first
		if val-math.Floor(val) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	if incumbent == nil {
		status := Infeasible
		if hitLimit {
			status = Limit
		}
		return nil, &SolverError{Solver: s.Name(), Status: status, Err: fmt.Errorf("no integer solution after %d nodes", nodes)}
	}

	sol := &Solution{
		Status:     Optimal,
		Objective:  p.Objective().Value(incumbent),
		Values:     incumbent,
		Iterations: iterations,
		Nodes:      nodes,
	}
	if hitLimit {
		sol.Status = Feasible
	}
	if opts.ReceiveDuals {
		fixed := p.Clone()
		for i, v := range p.Variables() {
			if v.Kind != lp.Continuous {
				fixed.Fix(lp.Var(i), incumbent[i])
			}
		}
		r, err := solveLP(ctx, fixed, maxIter, true)
		if err != nil {
			return nil, &SolverError{Solver: s.Name(), Status: statusOf(err), Err: fmt.Errorf("dual solve with fixed integers: %w", err)}
		}
		sol.Duals = r.duals
		sol.Values = r.x
		sol.Iterations += r.iterations
	}
	return sol, nil
}

func roundIntegers(p *lp.Problem, x []float64) []float64 {
	out := append([]float64(nil), x...)
	for i, v := range p.Variables() {
		if v.Kind != lp.Continuous {
			out[i] = math.Round(out[i])
		}
	}
	return out
}
