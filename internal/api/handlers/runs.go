package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"energy-dispatch/internal/analysis"
	"energy-dispatch/internal/api/models"
	"energy-dispatch/internal/config"
	"energy-dispatch/internal/data"
	"energy-dispatch/internal/engine"
	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/optimize"
	"energy-dispatch/internal/results"
	"energy-dispatch/internal/solver"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultSolveTimeout bounds a solve unless the request asks for less.
const DefaultSolveTimeout = 2 * time.Minute

// RunHandler solves posted energy systems and serves the cached runs
type RunHandler struct {
	runs    *data.RunCache
	engine  *engine.Engine
	log     *zap.Logger
	timeout time.Duration
}

// NewRunHandler creates a run handler storing its runs in runs
func NewRunHandler(runs *data.RunCache, log *zap.Logger) *RunHandler {
	log = logging.Or(log)
	return &RunHandler{
		runs:    runs,
		engine:  engine.New(log),
		log:     log,
		timeout: DefaultSolveTimeout,
	}
}

// SetTimeout changes the default solve timeout.
func (h *RunHandler) SetTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// Solve handles POST /api/v1/solve
func (h *RunHandler) Solve(c *gin.Context) {
	var q models.SolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	cfg, ok := h.parseBody(c)
	if !ok {
		return
	}
	if q.Solver != "" {
		if _, err := solver.New(q.Solver); err != nil {
			abortWithError(c, http.StatusBadRequest, "UNKNOWN_SOLVER", err)
			return
		}
		cfg.Model.Solver = q.Solver
	}
	if q.Duals != nil {
		cfg.Model.ReceiveDuals = *q.Duals
	}

	timeout := h.timeout
	if q.TimeoutSec > 0 && time.Duration(q.TimeoutSec)*time.Second < timeout {
		timeout = time.Duration(q.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	res, err := h.engine.Run(ctx, cfg)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidModel):
			abortWithError(c, http.StatusBadRequest, "INVALID_MODEL", err)
		case errors.Is(err, context.DeadlineExceeded):
			abortWithError(c, http.StatusGatewayTimeout, "SOLVE_TIMEOUT", err)
		default:
			abortWithSolveError(c, err)
		}
		return
	}

	run := &data.Run{
		Name:       cfg.Name,
		Results:    res.Results,
		Violations: res.Violations,
		Ledgers:    res.Ledgers,
		Elapsed:    res.Elapsed,
	}
	h.runs.Put(run)
	h.log.Info("run stored", zap.String("id", run.ID), zap.String("name", run.Name))

	c.JSON(http.StatusOK, buildResponse(run, q.IncludeFlows, q.IncludeLedger))
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var q models.SolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	c.JSON(http.StatusOK, buildResponse(run, q.IncludeFlows, q.IncludeLedger))
}

// GetFlowsCSV handles GET /api/v1/runs/:id/flows.csv
func (h *RunHandler) GetFlowsCSV(c *gin.Context) {
	h.writeCSV(c, "flows", results.FlowsCSV)
}

// GetScalarsCSV handles GET /api/v1/runs/:id/scalars.csv
func (h *RunHandler) GetScalarsCSV(c *gin.Context) {
	h.writeCSV(c, "scalars", results.ScalarsCSV)
}

func (h *RunHandler) writeCSV(c *gin.Context, name string, write func(io.Writer, *results.Results) error) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, run.Results); err != nil {
		abortWithError(c, http.StatusInternalServerError, "CSV_ERROR", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.csv"`, run.ID, name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// GetLedger handles GET /api/v1/runs/:id/ledger/:storage
func (h *RunHandler) GetLedger(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	label := c.Param("storage")
	rows, ok := run.Ledgers[label]
	if !ok {
		abortWithError(c, http.StatusNotFound, "STORAGE_NOT_FOUND", fmt.Errorf("run %s has no storage %q", run.ID, label))
		return
	}
	c.JSON(http.StatusOK, gin.H{"storage": label, "ledger": convertLedger(rows)})
}

// GetSummary handles GET /api/v1/runs/:id/summary
func (h *RunHandler) GetSummary(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var q models.SummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	ranked := analysis.RankByFullLoadHours(analysis.Summarize(run.Results))
	if q.Limit > 0 && q.Limit < len(ranked) {
		ranked = ranked[:q.Limit]
	}
	rankings := make([]models.Ranking, len(ranked))
	for i, s := range ranked {
		rankings[i] = models.Ranking{
			Rank:          i + 1,
			Flow:          s.Key.String(),
			Count:         s.Count,
			Min:           s.Min,
			Max:           s.Max,
			Mean:          s.Mean,
			P05:           s.P05,
			P95:           s.P95,
			Energy:        s.Energy,
			FullLoadHours: s.FullLoadHours,
		}
	}
	c.JSON(http.StatusOK, models.RankResponse{Rankings: rankings})
}

// ExportLP handles POST /api/v1/lp
func (h *RunHandler) ExportLP(c *gin.Context) {
	var q models.ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	cfg, ok := h.parseBody(c)
	if !ok {
		return
	}
	es, opts, err := cfg.Build()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_MODEL", err)
		return
	}
	opts.Logger = h.log
	m, err := optimize.Build(es, opts)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_MODEL", err)
		return
	}

	var buf bytes.Buffer
	if q.Format == "mps" {
		err = m.WriteMPS(&buf)
	} else {
		err = m.WriteLP(&buf)
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "EXPORT_ERROR", err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func (h *RunHandler) parseBody(c *gin.Context) (*config.Config, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", errors.New("request body is empty"))
		return nil, false
	}
	cfg, err := config.ParseInline(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_CONFIG", err)
		return nil, false
	}
	return cfg, true
}

func (h *RunHandler) lookup(c *gin.Context) (*data.Run, bool) {
	id := c.Param("id")
	run, ok := h.runs.Get(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, "RUN_NOT_FOUND", fmt.Errorf("run %q not found or expired", id))
		return nil, false
	}
	return run, true
}

func buildResponse(run *data.Run, includeFlows, includeLedger bool) models.SolveResponse {
	r := run.Results
	resp := models.SolveResponse{
		ID:        run.ID,
		Name:      run.Name,
		CreatedAt: run.CreatedAt,
		Status:    string(r.Status),
		Summary:   buildSummary(run),
	}
	if includeFlows {
		resp.Flows = make(map[string][]float64, len(r.FlowKeys))
		for _, k := range r.FlowKeys {
			resp.Flows[k.String()] = r.Flows[k]
		}
		if len(r.Duals) > 0 {
			resp.Duals = r.Duals
		}
	}
	if includeLedger && len(run.Ledgers) > 0 {
		resp.Ledgers = make(map[string][]models.LedgerRow, len(run.Ledgers))
		for label, rows := range run.Ledgers {
			resp.Ledgers[label] = convertLedger(rows)
		}
	}
	return resp
}

func buildSummary(run *data.Run) models.RunSummary {
	r := run.Results
	s := models.RunSummary{
		Objective:  r.Objective,
		Breakdown:  make([]models.CostItem, 0, len(r.Breakdown)),
		Steps:      r.Steps(),
		Violations: make([]models.ViolationInfo, 0, len(run.Violations)),
		ElapsedMS:  run.Elapsed.Milliseconds(),
	}
	for _, b := range r.Breakdown {
		s.Breakdown = append(s.Breakdown, models.CostItem{Block: b.Block, Value: b.Value})
	}
	for _, v := range run.Violations {
		s.Violations = append(s.Violations, models.ViolationInfo{
			Property: string(v.Property),
			Label:    v.Label,
			Step:     v.Step,
			Detail:   v.Detail,
		})
	}
	if n := len(r.Timestamps); n > 0 && n == len(r.Increments) {
		end := r.Timestamps[n-1].Add(time.Duration(r.Increments[n-1] * float64(time.Hour)))
		s.Window = &models.TimeWindow{Start: r.Timestamps[0], End: end}
	}
	for _, rows := range run.Ledgers {
		if len(rows) > 0 {
			s.StorageValue += rows[len(rows)-1].CumValue
		}
	}
	return s
}

func convertLedger(ledger []results.LedgerRow) []models.LedgerRow {
	out := make([]models.LedgerRow, len(ledger))
	for i, row := range ledger {
		out[i] = models.LedgerRow{
			Index:        row.Index,
			Bus:          row.Bus,
			Price:        row.Price,
			Action:       string(row.Action),
			Inflow:       row.Inflow,
			Outflow:      row.Outflow,
			EnergyIn:     row.EnergyIn,
			EnergyOut:    row.EnergyOut,
			ContentStart: row.ContentStart,
			ContentEnd:   row.ContentEnd,
			Value:        row.Value,
			CumValue:     row.CumValue,
		}
		if !row.IntervalStart.IsZero() {
			ts := row.IntervalStart.UTC()
			out[i].IntervalStartUTC = &ts
		}
	}
	return out
}
