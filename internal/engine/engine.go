package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"energy-dispatch/internal/analysis"
	"energy-dispatch/internal/config"
	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/model"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/results"

	"go.uber.org/zap"
)

// ErrInvalidModel wraps errors from building the energy system or its
// algebraic model.
var ErrInvalidModel = errors.New("invalid model")

// DefaultTolerance is the relative tolerance of the post-solve checks.
const DefaultTolerance = 1e-6

type Engine struct {
	Logger    *zap.Logger
	Tolerance float64
}

func New(log *zap.Logger) *Engine {
	return &Engine{Logger: logging.Or(log), Tolerance: DefaultTolerance}
}

// Result is one solved energy system.
type Result struct {
	Model      *optimize.Model
	Results    *results.Results
	Violations []analysis.Violation
	// Ledgers holds one ledger per storage label.
	Ledgers map[string][]results.LedgerRow
	Elapsed time.Duration
}

// StorageValue sums the ledger values of all storages.
func (r *Result) StorageValue() float64 {
	total := 0.0
	for _, rows := range r.Ledgers {
		if len(rows) > 0 {
			total += rows[len(rows)-1].CumValue
		}
	}
	return total
}

// Run builds the energy system described by cfg and solves it.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	es, opts, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	return e.RunSystem(ctx, es, opts)
}

// RunSystem solves es and runs the post-solve checks. Violations are
// returned in the Result, not as an error.
func (e *Engine) RunSystem(ctx context.Context, es *model.EnergySystem, opts optimize.Options) (*Result, error) {
	if es == nil {
		return nil, fmt.Errorf("energy system is nil")
	}
	log := logging.Or(e.Logger)
	if opts.Logger == nil {
		opts.Logger = log
	}
	start := time.Now()

	m, err := optimize.Build(es, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: build model: %w", ErrInvalidModel, err)
	}
	if _, err := m.Solve(ctx); err != nil {
		return nil, err
	}
	res, err := results.Extract(m)
	if err != nil {
		return nil, err
	}

	tol := e.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	violations, err := analysis.Check(m, tol)
	if err != nil {
		return nil, fmt.Errorf("check solution: %w", err)
	}
	for _, v := range violations {
		log.Warn("solution check failed", zap.String("violation", v.String()))
	}

	ledgers := map[string][]results.LedgerRow{}
	for _, n := range es.Nodes() {
		s, ok := n.(*model.GenericStorage)
		if !ok {
			continue
		}
		rows, err := results.StorageLedger(res, s)
		if err != nil {
			return nil, fmt.Errorf("storage %s ledger: %w", s.Label(), err)
		}
		ledgers[s.Label()] = rows
	}

	out := &Result{
		Model:      m,
		Results:    res,
		Violations: violations,
		Ledgers:    ledgers,
		Elapsed:    time.Since(start),
	}
	log.Info("energy system solved",
		zap.String("status", string(res.Status)),
		zap.Float64("objective", res.Objective),
		zap.Int("steps", res.Steps()),
		zap.Int("violations", len(violations)),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}
