package models

import "time"

// SolveResponse represents a solved energy system
type SolveResponse struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Status    string     `json:"status"`
	Summary   RunSummary `json:"summary"`

	Flows   map[string][]float64   `json:"flows,omitempty"`
	Duals   map[string][]float64   `json:"duals,omitempty"`
	Ledgers map[string][]LedgerRow `json:"ledgers,omitempty"`
}

// RunSummary contains the aggregated run results
type RunSummary struct {
	Objective    float64         `json:"objective"`
	Breakdown    []CostItem      `json:"breakdown"`
	Steps        int             `json:"steps"`
	Window       *TimeWindow     `json:"window,omitempty"` // nil for aggregated time indexes
	StorageValue float64         `json:"storage_value"`
	Violations   []ViolationInfo `json:"violations"`
	ElapsedMS    int64           `json:"elapsed_ms"`
}

// TimeWindow represents a time range
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CostItem is the objective contribution of one constraint block
type CostItem struct {
	Block string  `json:"block"`
	Value float64 `json:"value"`
}

// ViolationInfo is one failed post-solve check
type ViolationInfo struct {
	Property string `json:"property"`
	Label    string `json:"label"`
	Step     int    `json:"step"` // -1 when not tied to a timestep
	Detail   string `json:"detail"`
}

// LedgerRow represents one step of a storage's operation
type LedgerRow struct {
	Index            int        `json:"index"`
	IntervalStartUTC *time.Time `json:"interval_start_utc,omitempty"`
	Bus              string     `json:"bus"`
	Price            float64    `json:"price"`
	Action           string     `json:"action"` // "CHARGING", "DISCHARGING", "IDLE"
	Inflow           float64    `json:"inflow"`
	Outflow          float64    `json:"outflow"`
	EnergyIn         float64    `json:"energy_in"`
	EnergyOut        float64    `json:"energy_out"`
	ContentStart     float64    `json:"content_start"`
	ContentEnd       float64    `json:"content_end"`
	Value            float64    `json:"value"`
	CumValue         float64    `json:"cum_value"`
}

// RankResponse lists flows ranked by full-load hours
type RankResponse struct {
	Rankings []Ranking `json:"rankings"`
}

// Ranking represents one ranked flow
type Ranking struct {
	Rank          int     `json:"rank"`
	Flow          string  `json:"flow"`
	Count         int     `json:"count"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
	P05           float64 `json:"p05"`
	P95           float64 `json:"p95"`
	Energy        float64 `json:"energy"`
	FullLoadHours float64 `json:"full_load_hours"`
}

// PresetInfo represents a storage preset file
type PresetInfo struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	File    string      `json:"file"`
	Storage PresetSpecs `json:"storage"`
}

// PresetSpecs contains the headline storage parameters of a preset
type PresetSpecs struct {
	NominalCapacity float64 `json:"nominal_capacity"`
	Investment      bool    `json:"investment"`
}

// SolverInfo describes a registered solver
type SolverInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Options     []ParameterInfo `json:"options"`
}

// ParameterInfo describes a solver option
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "string"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
