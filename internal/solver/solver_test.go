package solver

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"energy-dispatch/internal/lp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inf = math.Inf(1)

func solve(t *testing.T, p *lp.Problem, opts Options) *Solution {
	t.Helper()
	sol, err := NewSimplex().Solve(context.Background(), p, opts)
	require.NoError(t, err)
	return sol
}

func TestSimplexTwoConstraints(t *testing.T) {
	p := lp.NewProblem("two")
	x := p.AddVar("x", 0, inf, lp.Continuous)
	y := p.AddVar("y", 0, inf, lp.Continuous)
	var c1, c2 lp.Expr
	c1.Add(x, 1).Add(y, 2)
	c2.Add(x, 3).Add(y, 1)
	p.AddConstraint("c1", c1, lp.LE, 4)
	p.AddConstraint("c2", c2, lp.LE, 6)
	var obj lp.Expr
	obj.Add(x, -1).Add(y, -1)
	p.SetObjective(obj)

	sol := solve(t, p, Options{ReceiveDuals: true})
	assert.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 1.6, sol.Values[x], 1e-9)
	assert.InDelta(t, 1.2, sol.Values[y], 1e-9)
	assert.InDelta(t, -2.8, sol.Objective, 1e-9)
	require.Len(t, sol.Duals, 2)
	assert.InDelta(t, -0.4, sol.Duals[0], 1e-9)
	assert.InDelta(t, -0.2, sol.Duals[1], 1e-9)
}

func TestSimplexFreeVariableAndNegativeRHS(t *testing.T) {
	p := lp.NewProblem("free")
	x := p.AddVar("x", math.Inf(-1), inf, lp.Continuous)
	y := p.AddVar("y", 1, 2, lp.Continuous)
	var e lp.Expr
	e.Add(x, 1).Add(y, -1)
	p.AddConstraint("link", e, lp.EQ, -3)
	p.SetObjective(lp.Sum(x))

	sol := solve(t, p, Options{ReceiveDuals: true})
	assert.InDelta(t, -2, sol.Values[x], 1e-9)
	assert.InDelta(t, 1, sol.Values[y], 1e-9)
	assert.InDelta(t, 1, sol.Duals[0], 1e-9)
}

func TestSimplexUpperBoundedOnly(t *testing.T) {
	p := lp.NewProblem("ub")
	x := p.AddVar("x", math.Inf(-1), 5, lp.Continuous)
	p.AddConstraint("floor", lp.Sum(x), lp.GE, -1)
	var obj lp.Expr
	obj.Add(x, -2).AddConstant(4)
	p.SetObjective(obj)

	sol := solve(t, p, Options{})
	assert.InDelta(t, 5, sol.Values[x], 1e-9)
	assert.InDelta(t, -6, sol.Objective, 1e-9)
}

func TestSimplexRedundantEqualities(t *testing.T) {
	p := lp.NewProblem("redundant")
	x := p.AddVar("x", 0, inf, lp.Continuous)
	y := p.AddVar("y", 0, inf, lp.Continuous)
	var a, b lp.Expr
	a.Add(x, 1).Add(y, 1)
	b.Add(x, 2).Add(y, 2)
	p.AddConstraint("a", a, lp.EQ, 2)
	p.AddConstraint("b", b, lp.EQ, 4)
	p.SetObjective(lp.Sum(x))

	sol := solve(t, p, Options{})
	assert.InDelta(t, 0, sol.Values[x], 1e-9)
	assert.InDelta(t, 2, sol.Values[y], 1e-9)
}

func TestSimplexFixedVariables(t *testing.T) {
	p := lp.NewProblem("fixed")
	d := p.AddVar("demand", 3, 3, lp.Continuous)
	s := p.AddVar("supply", 0, inf, lp.Continuous)
	var bal lp.Expr
	bal.Add(s, 1).Add(d, -1)
	p.AddConstraint("balance", bal, lp.EQ, 0)
	var obj lp.Expr
	obj.Add(s, 5)
	p.SetObjective(obj)

	sol := solve(t, p, Options{ReceiveDuals: true})
	assert.InDelta(t, 3, sol.Values[s], 1e-9)
	assert.InDelta(t, 3, sol.Values[d], 1e-12)
	assert.InDelta(t, 15, sol.Objective, 1e-9)
	assert.InDelta(t, 5, sol.Duals[0], 1e-9)
}

func TestSimplexInfeasible(t *testing.T) {
	p := lp.NewProblem("infeasible")
	x := p.AddVar("x", 0, inf, lp.Continuous)
	p.AddConstraint("lo", lp.Sum(x), lp.GE, 3)
	p.AddConstraint("hi", lp.Sum(x), lp.LE, 1)
	p.SetObjective(lp.Sum(x))

	_, err := NewSimplex().Solve(context.Background(), p, Options{})
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Infeasible, se.Status)
	assert.Equal(t, "builtin", se.Solver)
}

func TestSimplexUnbounded(t *testing.T) {
	p := lp.NewProblem("unbounded")
	x := p.AddVar("x", 0, inf, lp.Continuous)
	p.AddConstraint("lo", lp.Sum(x), lp.GE, 1)
	var obj lp.Expr
	obj.Add(x, -1)
	p.SetObjective(obj)

	_, err := NewSimplex().Solve(context.Background(), p, Options{})
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Unbounded, se.Status)
}

func knapsack() (*lp.Problem, []lp.Var) {
	p := lp.NewProblem("knapsack")
	a := p.AddVar("a", 0, 1, lp.Binary)
	b := p.AddVar("b", 0, 1, lp.Binary)
	c := p.AddVar("c", 0, 1, lp.Binary)
	var w lp.Expr
	w.Add(a, 3).Add(b, 4).Add(c, 2)
	p.AddConstraint("weight", w, lp.LE, 6)
	var obj lp.Expr
	obj.Add(a, -10).Add(b, -13).Add(c, -7)
	p.SetObjective(obj)
	return p, []lp.Var{a, b, c}
}

func TestBranchAndBound(t *testing.T) {
	p, v := knapsack()
	sol := solve(t, p, Options{})
	assert.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, -20, sol.Objective, 1e-9)
	assert.Equal(t, 0.0, sol.Values[v[0]])
	assert.Equal(t, 1.0, sol.Values[v[1]])
	assert.Equal(t, 1.0, sol.Values[v[2]])
	assert.Greater(t, sol.Nodes, 1)
}

func TestBranchAndBoundGeneralIntegers(t *testing.T) {
	p := lp.NewProblem("ints")
	x := p.AddVar("x", 0, 10, lp.Integer)
	y := p.AddVar("y", 0, 10, lp.Integer)
	var e lp.Expr
	e.Add(x, 2).Add(y, 2)
	p.AddConstraint("cap", e, lp.LE, 3)
	var obj lp.Expr
	obj.Add(x, -1).Add(y, -1)
	p.SetObjective(obj)

	sol := solve(t, p, Options{})
	assert.InDelta(t, -1, sol.Objective, 1e-9)
	assert.InDelta(t, 1, sol.Values[x]+sol.Values[y], 1e-9)
}

func TestBranchAndBoundNodeLimit(t *testing.T) {
	p, _ := knapsack()
	_, err := NewSimplex().Solve(context.Background(), p, Options{SolverOptions: map[string]any{"max_nodes": 1}})
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Limit, se.Status)
}

func TestBranchAndBoundCancelled(t *testing.T) {
	p, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimplex().Solve(ctx, p, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSimplexObservesDeadline(t *testing.T) {
	p := lp.NewProblem("lp")
	x := p.AddVar("x", 0, 4, lp.Continuous)
	y := p.AddVar("y", 0, inf, lp.Continuous)
	var e lp.Expr
	e.Add(x, 1).Add(y, 1)
	p.AddConstraint("c", e, lp.GE, 2)
	p.SetObjective(lp.Sum(y))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := NewSimplex().Solve(ctx, p, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	var serr *SolverError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, Limit, serr.Status)

	sol := solve(t, p, Options{})
	assert.InDelta(t, 0, sol.Objective, 1e-9)
}

func TestBranchAndBoundDuals(t *testing.T) {
	p := lp.NewProblem("unit")
	on := p.AddVar("on", 0, 1, lp.Binary)
	x := p.AddVar("x", 0, inf, lp.Continuous)
	var capRow lp.Expr
	capRow.Add(x, 1).Add(on, -10)
	p.AddConstraint("cap", capRow, lp.LE, 0)
	p.AddConstraint("demand", lp.Sum(x), lp.GE, 4)
	var obj lp.Expr
	obj.Add(x, 2).Add(on, 3)
	p.SetObjective(obj)

	sol := solve(t, p, Options{ReceiveDuals: true})
	assert.InDelta(t, 11, sol.Objective, 1e-9)
	require.Len(t, sol.Duals, 2)
	assert.InDelta(t, 2, sol.Duals[1], 1e-9)
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "builtin", "simplex", "cbc", "GLPK", "gurobi", "cplex"} {
		s, err := New(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, s.Name())
	}
	_, err := New("nope")
	assert.Error(t, err)
	assert.Contains(t, Names(), "cbc")
}

func TestCBCArgs(t *testing.T) {
	args := cbcArgs("m.lp", "s.sol", Options{
		ReceiveDuals:   true,
		SolverOptions:  map[string]any{"ratio": 0.01, "sec": 60},
		CmdlineOptions: map[string]any{"threads": 2},
	})
	assert.Equal(t, []string{"m.lp", "-ratio", "0.01", "-sec", "60", "-threads", "2",
		"-printingOptions", "all", "-solve", "-solu", "s.sol"}, args)
}

func parserProblem() *lp.Problem {
	p := lp.NewProblem("parse")
	x := p.AddVar("x", 0, inf, lp.Continuous)
	y := p.AddVar("y", 0, inf, lp.Continuous)
	p.AddConstraint("c1", lp.Sum(x, y), lp.GE, 2)
	p.AddConstraint("c2", lp.Sum(y), lp.LE, 1.5)
	p.SetObjective(lp.Sum(x))
	return p
}

func TestParseCBCSolution(t *testing.T) {
	raw := `Optimal - objective value 0.50000000
      0 c1                     2                      1
      1 c2                   1.5                     -1
      0 x                    0.5                      0
      1 y                    1.5                      0
`
	sol, err := parseCBCSolution(strings.NewReader(raw), parserProblem(), true)
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 0.5, sol.Objective)
	assert.Equal(t, []float64{0.5, 1.5}, sol.Values)
	assert.Equal(t, []float64{1, -1}, sol.Duals)

	sol, err = parseCBCSolution(strings.NewReader("Infeasible - objective value 0.00000000\n"), parserProblem(), false)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, sol.Status)
}

func TestParseGLPKSolution(t *testing.T) {
	// columns: x (objective), ONE_VAR_CONSTANT, y
	raw := `c Problem:
c Rows:       2
s bas 2 3 f f 0.5
i 1 l 2 1
i 2 u 1.5 -1
j 1 b 0.5 0
j 2 b 1 0
j 3 u 1.5 0
e o f
`
	sol, err := parseGLPKSolution(strings.NewReader(raw), parserProblem(), true)
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, []float64{0.5, 1.5}, sol.Values)
	assert.Equal(t, []float64{1, -1}, sol.Duals)

	mip := "s mip 2 3 o 0.5\ni 1 2\ni 2 1.5\nj 1 0.5\nj 2 1\nj 3 1.5\ne o f\n"
	sol, err = parseGLPKSolution(strings.NewReader(mip), parserProblem(), false)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, sol.Values)
}

func TestParseGurobiSolution(t *testing.T) {
	raw := `{"SolutionInfo": {"Status": 2, "ObjVal": 0.5, "IterCount": 2, "SolCount": 1},
	"Vars": [{"VarName": "x", "X": 0.5}, {"VarName": "y", "X": 1.5}, {"VarName": "ONE_VAR_CONSTANT", "X": 1}],
	"Constrs": [{"ConstrName": "c1", "Pi": 1}, {"ConstrName": "c2", "Pi": -1}]}`
	sol, err := parseGurobiSolution(strings.NewReader(raw), parserProblem(), true)
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 2, sol.Iterations)
	assert.Equal(t, []float64{0.5, 1.5}, sol.Values)
	assert.Equal(t, []float64{1, -1}, sol.Duals)
	assert.Equal(t, Feasible, gurobiStatus(9, 1))
	assert.Equal(t, Limit, gurobiStatus(9, 0))
}

func TestParseCPLEXSolution(t *testing.T) {
	raw := `<?xml version="1.0" encoding="UTF-8"?>
<CPLEXSolution version="1.2">
 <header problemName="model.lp" objectiveValue="0.5" solutionStatusValue="1" solutionStatusString="optimal" simplexIterations="2"/>
 <linearConstraints>
  <constraint name="c1" index="0" status="LL" slack="0" dual="1"/>
  <constraint name="c2" index="1" status="LL" slack="0" dual="-1"/>
 </linearConstraints>
 <variables>
  <variable name="x" index="0" status="BS" value="0.5" reducedCost="0"/>
  <variable name="y" index="1" status="BS" value="1.5" reducedCost="0"/>
 </variables>
</CPLEXSolution>`
	sol, err := parseCPLEXSolution(strings.NewReader(raw), parserProblem(), true)
	require.NoError(t, err)
	assert.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 0.5, sol.Objective)
	assert.Equal(t, []float64{0.5, 1.5}, sol.Values)
	assert.Equal(t, []float64{1, -1}, sol.Duals)

	cmds := cplexCommands("m.lp", "s.sol", Options{SolverOptions: map[string]any{"mip tolerances mipgap": 0.01}})
	assert.Equal(t, "read m.lp lp\nset mip tolerances mipgap 0.01\noptimize\nwrite s.sol sol\nquit\n", cmds)
}

func TestFinishRejectsNonOptimal(t *testing.T) {
	_, err := finish("cbc", &Solution{Status: Infeasible}, "log text", parserProblem())
	var se *SolverError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Infeasible, se.Status)
	assert.Equal(t, "log text", se.Log)
}
