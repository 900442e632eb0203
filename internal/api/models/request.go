package models

// SolveQuery holds the query parameters of POST /api/v1/solve. The request
// body is the energy system document itself, YAML or JSON.
type SolveQuery struct {
	Solver        string `form:"solver"`          // overrides model.solver
	Duals         *bool  `form:"duals"`           // overrides model.receive_duals
	IncludeFlows  bool   `form:"include_flows"`   // default: false
	IncludeLedger bool   `form:"include_ledger"`  // default: false
	TimeoutSec    int    `form:"timeout_seconds"` // 0 = server default
}

// ExportQuery holds the query parameters of POST /api/v1/lp.
type ExportQuery struct {
	Format string `form:"format,default=lp" binding:"oneof=lp mps"`
}

// SummaryQuery holds the query parameters of GET /api/v1/runs/:id/summary.
type SummaryQuery struct {
	Limit int `form:"limit"` // default: all flows
}
