package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/lp"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivotTol    = 1e-9
	costTol     = 1e-9
	feasTol     = 1e-7
	blandSwitch = 50
	// pivots between context checks
	ctxEvery = 64

	defaultMaxIter  = 1000000
	defaultMaxNodes = 100000
)

var (
	errInfeasible = errors.New("problem is infeasible")
	errUnbounded  = errors.New("problem is unbounded")
	errIterLimit  = errors.New("iteration limit reached")
)

// Simplex is the built-in solver: a two-phase dense tableau simplex with
// branch-and-bound for integer and binary variables.
//
// Recognised SolverOptions: max_iter, max_nodes, mip_gap, int_tol.
type Simplex struct {
	Logger *zap.Logger
}

func NewSimplex() *Simplex { return &Simplex{} }

func (s *Simplex) Name() string { return "builtin" }

func (s *Simplex) Solve(ctx context.Context, p *lp.Problem, opts Options) (*Solution, error) {
	if err := p.Err(); err != nil {
		return nil, &SolverError{Solver: s.Name(), Status: Error, Err: err}
	}
	log := logging.Or(s.Logger)
	var (
		sol *Solution
		err error
	)
	if p.IsMIP() {
		sol, err = s.branchAndBound(ctx, p, opts)
	} else {
		var r lpResult
		r, err = solveLP(ctx, p, optInt(opts.SolverOptions, "max_iter", defaultMaxIter), opts.ReceiveDuals)
		if err == nil {
			sol = &Solution{Status: Optimal, Objective: r.objective, Values: r.x, Duals: r.duals, Iterations: r.iterations}
		} else {
			err = &SolverError{Solver: s.Name(), Status: statusOf(err), Err: err}
		}
	}
	if err != nil {
		log.Warn("builtin solver failed", zap.Error(err))
		return nil, err
	}
	sol.Log = fmt.Sprintf("status=%s objective=%g iterations=%d nodes=%d\n", sol.Status, sol.Objective, sol.Iterations, sol.Nodes)
	if opts.Tee && opts.Output != nil {
		fmt.Fprint(opts.Output, sol.Log)
	}
	log.Info("builtin solver finished",
		zap.String("status", string(sol.Status)),
		zap.Float64("objective", sol.Objective),
		zap.Int("iterations", sol.Iterations),
		zap.Int("nodes", sol.Nodes))
	return sol, nil
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, errInfeasible):
		return Infeasible
	case errors.Is(err, errUnbounded):
		return Unbounded
	case errors.Is(err, errIterLimit), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Limit
	}
	return Error
}

type lpResult struct {
	x          []float64
	duals      []float64
	objective  float64
	iterations int
}

// column maps a tableau column back to a problem variable:
// x[v] += sign * value.
type column struct {
	v    lp.Var
	sign float64
}

// tableau holds B^-1 [A | b] for the standard form
//
//	min c'x  s.t.  A x = b, x >= 0, b >= 0
//
// built from the problem by shifting and splitting variables, adding upper
// bound rows, slacks and artificials.
type tableau struct {
	t     *mat.Dense
	rows  int
	cols  int // excluding the rhs column
	basis []int
	d     []float64 // reduced costs, last entry is minus the objective

	structCols int
	artFrom    int
	banned     []bool

	iterations int
	maxIter    int
	ctx        context.Context
}

func (tb *tableau) row(r int) []float64 { return tb.t.RawRowView(r) }
func (tb *tableau) rhs(r int) float64   { return tb.t.At(r, tb.cols) }

func (tb *tableau) pivot(r, j int) {
	pr := tb.row(r)
	floats.Scale(1/pr[j], pr)
	pr[j] = 1
	for i := 0; i < tb.rows; i++ {
		if i == r {
			continue
		}
		ri := tb.row(i)
		if f := ri[j]; f != 0 {
			floats.AddScaled(ri, -f, pr)
			ri[j] = 0
		}
	}
	if f := tb.d[j]; f != 0 {
		floats.AddScaled(tb.d, -f, pr)
		tb.d[j] = 0
	}
	tb.basis[r] = j
	tb.iterations++
}

// setCosts recomputes reduced costs for cost vector c.
func (tb *tableau) setCosts(c []float64) {
	tb.d = make([]float64, tb.cols+1)
	copy(tb.d, c)
	for r, j := range tb.basis {
		if cb := c[j]; cb != 0 {
			floats.AddScaled(tb.d, -cb, tb.row(r))
		}
	}
}

// run iterates until no improving column is left.
func (tb *tableau) run() error {
	degenerate := 0
	bland := false
	for {
		if tb.maxIter > 0 && tb.iterations >= tb.maxIter {
			return errIterLimit
		}
		if tb.iterations%ctxEvery == 0 {
			if err := tb.ctx.Err(); err != nil {
				return err
			}
		}
		j := -1
		best := -costTol
		for c := 0; c < tb.cols; c++ {
			if tb.banned[c] || tb.d[c] >= -costTol {
				continue
			}
			if bland {
				j = c
				break
			}
			if tb.d[c] < best {
				best, j = tb.d[c], c
			}
		}
		if j < 0 {
			return nil
		}
		r := -1
		ratio := math.Inf(1)
		for i := 0; i < tb.rows; i++ {
			a := tb.t.At(i, j)
			if a <= pivotTol {
				continue
			}
			q := math.Max(tb.rhs(i), 0) / a
			if q < ratio-1e-12 || (q <= ratio+1e-12 && r >= 0 && tb.basis[i] < tb.basis[r]) {
				ratio, r = q, i
			}
		}
		if r < 0 {
			return errUnbounded
		}
		if ratio <= 1e-12 {
			degenerate++
			if degenerate > blandSwitch {
				bland = true
			}
		} else {
			degenerate = 0
		}
		tb.pivot(r, j)
	}
}

// solveLP solves the continuous relaxation of p.
func solveLP(ctx context.Context, p *lp.Problem, maxIter int, wantDuals bool) (lpResult, error) {
	vars := p.Variables()
	cons := p.Constraints()

	offset := make([]float64, len(vars))
	var cols []column
	var upper []struct {
		col int
		ub  float64
	}
	fixed := make([]bool, len(vars))
	colsOf := make([][]int, len(vars))
	for i, v := range vars {
		lo, up := v.Lower, v.Upper
		if lo > up+feasTol {
			return lpResult{}, fmt.Errorf("variable %s: %w (lower bound %g > upper bound %g)", v.Name, errInfeasible, lo, up)
		}
		switch {
		case lo == up || math.Abs(up-lo) <= 1e-12:
			offset[i] = lo
			fixed[i] = true
		case !math.IsInf(lo, -1):
			offset[i] = lo
			colsOf[i] = []int{len(cols)}
			cols = append(cols, column{lp.Var(i), 1})
			if !math.IsInf(up, 1) {
				upper = append(upper, struct {
					col int
					ub  float64
				}{len(cols) - 1, up - lo})
			}
		case !math.IsInf(up, 1):
			offset[i] = up
			colsOf[i] = []int{len(cols)}
			cols = append(cols, column{lp.Var(i), -1})
		default:
			colsOf[i] = []int{len(cols), len(cols) + 1}
			cols = append(cols, column{lp.Var(i), 1}, column{lp.Var(i), -1})
		}
	}

	type srow struct {
		coef  map[int]float64
		sense lp.Sense
		rhs   float64
	}
	rows := make([]srow, 0, len(cons)+len(upper))
	for _, c := range cons {
		r := srow{coef: map[int]float64{}, sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Expr.Terms {
			r.rhs -= t.Coef * offset[t.Var]
			for _, col := range colsOf[t.Var] {
				r.coef[col] += t.Coef * cols[col].sign
			}
		}
		rows = append(rows, r)
	}
	for _, u := range upper {
		rows = append(rows, srow{coef: map[int]float64{u.col: 1}, sense: lp.LE, rhs: u.ub})
	}

	m := len(rows)
	nStruct := len(cols)
	nSlack := 0
	for _, r := range rows {
		if r.sense != lp.EQ {
			nSlack++
		}
	}
	// sign flips rows with a negative rhs; a row keeps its slack as the
	// initial basic variable when the slack coefficient ends up +1.
	sign := make([]float64, m)
	slackCol := make([]int, m)
	needArt := make([]bool, m)
	nArt := 0
	next := nStruct
	for i, r := range rows {
		sign[i] = 1
		if r.rhs < 0 {
			sign[i] = -1
		}
		slackCol[i] = -1
		if r.sense != lp.EQ {
			slackCol[i] = next
			next++
		}
		slackCoef := 0.0
		switch r.sense {
		case lp.LE:
			slackCoef = sign[i]
		case lp.GE:
			slackCoef = -sign[i]
		}
		if slackCoef <= 0 {
			needArt[i] = true
			nArt++
		}
	}
	ncols := nStruct + nSlack + nArt
	tb := &tableau{
		t:          mat.NewDense(max(m, 1), ncols+1, nil),
		rows:       m,
		cols:       ncols,
		basis:      make([]int, m),
		structCols: nStruct,
		artFrom:    nStruct + nSlack,
		banned:     make([]bool, ncols),
		maxIter:    maxIter,
		ctx:        ctx,
	}
	idCol := make([]int, m)
	art := tb.artFrom
	for i, r := range rows {
		row := tb.row(i)
		for col, a := range r.coef {
			row[col] = sign[i] * a
		}
		row[ncols] = sign[i] * r.rhs
		switch r.sense {
		case lp.LE:
			row[slackCol[i]] = sign[i]
		case lp.GE:
			row[slackCol[i]] = -sign[i]
		}
		if needArt[i] {
			row[art] = 1
			tb.basis[i] = art
			idCol[i] = art
			art++
		} else {
			tb.basis[i] = slackCol[i]
			idCol[i] = slackCol[i]
		}
	}

	if nArt > 0 {
		c1 := make([]float64, ncols+1)
		for j := tb.artFrom; j < ncols; j++ {
			c1[j] = 1
		}
		tb.setCosts(c1)
		if err := tb.run(); err != nil {
			if errors.Is(err, errUnbounded) {
				err = fmt.Errorf("phase 1: %w", errInfeasible)
			}
			return lpResult{}, err
		}
		scale := 1.0
		for i := 0; i < m; i++ {
			scale = math.Max(scale, math.Abs(tb.rhs(i)))
		}
		if -tb.d[ncols] > feasTol*scale {
			return lpResult{}, fmt.Errorf("%w (phase 1 residual %g)", errInfeasible, -tb.d[ncols])
		}
		for r := 0; r < m; r++ {
			if tb.basis[r] < tb.artFrom {
				continue
			}
			row := tb.row(r)
			for j := 0; j < tb.artFrom; j++ {
				if math.Abs(row[j]) > pivotTol {
					tb.pivot(r, j)
					break
				}
			}
		}
		for j := tb.artFrom; j < ncols; j++ {
			tb.banned[j] = true
		}
	}

	c2 := make([]float64, ncols+1)
	objConst := p.Objective().Constant
	for _, t := range p.Objective().Terms {
		objConst += t.Coef * offset[t.Var]
		for _, col := range colsOf[t.Var] {
			c2[col] += t.Coef * cols[col].sign
		}
	}
	tb.setCosts(c2)
	if err := tb.run(); err != nil {
		return lpResult{}, err
	}

	xs := make([]float64, ncols)
	for r, j := range tb.basis {
		xs[j] = tb.rhs(r)
	}
	x := append([]float64(nil), offset...)
	for col, c := range cols {
		x[c.v] += c.sign * math.Max(xs[col], 0)
	}
	for i, v := range vars {
		if fixed[i] {
			continue
		}
		x[i] = math.Min(math.Max(x[i], v.Lower), v.Upper)
	}

	res := lpResult{x: x, objective: p.Objective().Value(x), iterations: tb.iterations}
	if wantDuals {
		res.duals = make([]float64, len(cons))
		for i := range cons {
			// -d of the unit column is c_B' B^-1 e_i for the sign-adjusted row.
			res.duals[i] = -sign[i]*tb.d[idCol[i]] + 0
		}
	}
	return res, nil
}
