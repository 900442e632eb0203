package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"energy-dispatch/internal/data"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk description of an energy system (YAML or JSON).
type Config struct {
	Name      string          `yaml:"name" json:"name"`
	TimeIndex TimeIndexConfig `yaml:"timeindex" json:"timeindex"`
	Model     ModelConfig     `yaml:"model" json:"model"`

	// SeriesFile is a CSV or JSON file of named columns referenced by
	// "@column" values. Series holds inline columns and overrides the file.
	SeriesFile string               `yaml:"series_file,omitempty" json:"series_file,omitempty"`
	Series     map[string][]float64 `yaml:"series,omitempty" json:"series,omitempty"`

	Buses      []BusConfig       `yaml:"buses" json:"buses"`
	Components []ComponentConfig `yaml:"components" json:"components"`

	// Constraints are global limits over flows and investments.
	Constraints []ConstraintConfig `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	series data.Series
}

type TimeIndexConfig struct {
	// Increments gives explicit step durations in hours. Otherwise Steps
	// steps of Freq (default 1h) are built, starting at Start when given.
	Increments        []float64 `yaml:"increments,omitempty" json:"increments,omitempty"`
	Steps             int       `yaml:"steps,omitempty" json:"steps,omitempty"`
	Freq              string    `yaml:"freq,omitempty" json:"freq,omitempty"`
	Start             string    `yaml:"start,omitempty" json:"start,omitempty"`
	InferLastInterval *bool     `yaml:"infer_last_interval,omitempty" json:"infer_last_interval,omitempty"`

	Periods       []PeriodConfig     `yaml:"periods,omitempty" json:"periods,omitempty"`
	PeriodsByYear bool               `yaml:"periods_by_year,omitempty" json:"periods_by_year,omitempty"`
	Aggregation   *AggregationConfig `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
}

type PeriodConfig struct {
	Year  int `yaml:"year" json:"year"`
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

type AggregationConfig struct {
	StepsPerPeriod int   `yaml:"steps_per_period" json:"steps_per_period"`
	Order          []int `yaml:"order" json:"order"`
	Occurrences    []int `yaml:"occurrences,omitempty" json:"occurrences,omitempty"`
}

type ModelConfig struct {
	Solver         string         `yaml:"solver,omitempty" json:"solver,omitempty"`
	SolveKwargs    SolveKwargs    `yaml:"solve_kwargs,omitempty" json:"solve_kwargs,omitempty"`
	CmdlineOptions map[string]any `yaml:"cmdline_options,omitempty" json:"cmdline_options,omitempty"`
	ReceiveDuals   bool           `yaml:"receive_duals,omitempty" json:"receive_duals,omitempty"`

	DiscountRate       *float64 `yaml:"discount_rate,omitempty" json:"discount_rate,omitempty"`
	ObjectiveWeighting Value    `yaml:"objective_weighting,omitempty" json:"objective_weighting,omitempty"`
	TSAMWeighting      Value    `yaml:"tsam_weighting,omitempty" json:"tsam_weighting,omitempty"`
}

type SolveKwargs struct {
	Tee       bool           `yaml:"tee,omitempty" json:"tee,omitempty"`
	KeepFiles bool           `yaml:"keep_files,omitempty" json:"keep_files,omitempty"`
	Options   map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

type BusConfig struct {
	Label string `yaml:"label" json:"label"`
	// Balanced defaults to true.
	Balanced *bool `yaml:"balanced,omitempty" json:"balanced,omitempty"`
}

// Component types.
const (
	TypeSource          = "source"
	TypeSink            = "sink"
	TypeConverter       = "converter"
	TypeStorage         = "storage"
	TypeLink            = "link"
	TypeCHP             = "chp"
	TypeOffsetConverter = "offset_converter"
)

type ComponentConfig struct {
	Type  string `yaml:"type" json:"type"`
	Label string `yaml:"label" json:"label"`

	Inputs  []PortConfig `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []PortConfig `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// ConversionFactors per bus label (converter, chp).
	ConversionFactors map[string]Value `yaml:"conversion_factors,omitempty" json:"conversion_factors,omitempty"`
	// FullCondensation names the main output of a chp and its efficiency
	// without heat extraction.
	FullCondensation map[string]Value `yaml:"full_condensation,omitempty" json:"full_condensation,omitempty"`
	// LinkFactors per direction (link).
	LinkFactors []LinkFactorConfig `yaml:"link_factors,omitempty" json:"link_factors,omitempty"`
	// Offset and Slope of an offset converter: out = slope·in + offset·status.
	Offset Value `yaml:"offset,omitempty" json:"offset,omitempty"`
	Slope  Value `yaml:"slope,omitempty" json:"slope,omitempty"`

	// PresetFile loads storage parameters from a separate YAML; Storage
	// overrides it.
	PresetFile string         `yaml:"preset_file,omitempty" json:"preset_file,omitempty"`
	Storage    *StorageConfig `yaml:"storage,omitempty" json:"storage,omitempty"`
}

type PortConfig struct {
	Bus        string `yaml:"bus" json:"bus"`
	FlowConfig `yaml:",inline"`
}

type LinkFactorConfig struct {
	From   string `yaml:"from" json:"from"`
	To     string `yaml:"to" json:"to"`
	Factor Value  `yaml:"factor" json:"factor"`
}

type FlowConfig struct {
	NominalCapacity float64 `yaml:"nominal_capacity,omitempty" json:"nominal_capacity,omitempty"`

	Min Value `yaml:"min,omitempty" json:"min,omitempty"`
	Max Value `yaml:"max,omitempty" json:"max,omitempty"`
	Fix Value `yaml:"fix,omitempty" json:"fix,omitempty"`

	FullLoadTimeMax Value `yaml:"full_load_time_max,omitempty" json:"full_load_time_max,omitempty"`
	FullLoadTimeMin Value `yaml:"full_load_time_min,omitempty" json:"full_load_time_min,omitempty"`

	VariableCosts Value `yaml:"variable_costs,omitempty" json:"variable_costs,omitempty"`
	FixedCosts    Value `yaml:"fixed_costs,omitempty" json:"fixed_costs,omitempty"`

	PositiveGradientLimit Value `yaml:"positive_gradient_limit,omitempty" json:"positive_gradient_limit,omitempty"`
	NegativeGradientLimit Value `yaml:"negative_gradient_limit,omitempty" json:"negative_gradient_limit,omitempty"`

	Integer       bool `yaml:"integer,omitempty" json:"integer,omitempty"`
	Bidirectional bool `yaml:"bidirectional,omitempty" json:"bidirectional,omitempty"`
	Lifetime      int  `yaml:"lifetime,omitempty" json:"lifetime,omitempty"`
	Age           int  `yaml:"age,omitempty" json:"age,omitempty"`

	Investment *InvestmentConfig `yaml:"investment,omitempty" json:"investment,omitempty"`
	NonConvex  *NonConvexConfig  `yaml:"nonconvex,omitempty" json:"nonconvex,omitempty"`

	Custom map[string]any `yaml:"custom,omitempty" json:"custom,omitempty"`
}

type InvestmentConfig struct {
	Minimum  Value   `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum  Value   `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	Existing float64 `yaml:"existing,omitempty" json:"existing,omitempty"`

	EPCosts Value `yaml:"ep_costs,omitempty" json:"ep_costs,omitempty"`
	Offset  Value `yaml:"offset,omitempty" json:"offset,omitempty"`

	NonConvex bool `yaml:"nonconvex,omitempty" json:"nonconvex,omitempty"`

	Lifetime int `yaml:"lifetime,omitempty" json:"lifetime,omitempty"`
	Age      int `yaml:"age,omitempty" json:"age,omitempty"`

	OverallMaximum Value `yaml:"overall_maximum,omitempty" json:"overall_maximum,omitempty"`
	OverallMinimum Value `yaml:"overall_minimum,omitempty" json:"overall_minimum,omitempty"`

	FixedCosts   Value   `yaml:"fixed_costs,omitempty" json:"fixed_costs,omitempty"`
	InterestRate float64 `yaml:"interest_rate,omitempty" json:"interest_rate,omitempty"`

	Custom map[string]any `yaml:"custom,omitempty" json:"custom,omitempty"`
}

type NonConvexConfig struct {
	MinimumUptime    int `yaml:"minimum_uptime,omitempty" json:"minimum_uptime,omitempty"`
	MinimumDowntime  int `yaml:"minimum_downtime,omitempty" json:"minimum_downtime,omitempty"`
	MaximumStartups  int `yaml:"maximum_startups,omitempty" json:"maximum_startups,omitempty"`
	MaximumShutdowns int `yaml:"maximum_shutdowns,omitempty" json:"maximum_shutdowns,omitempty"`
	InitialStatus    int `yaml:"initial_status,omitempty" json:"initial_status,omitempty"`

	StartupCosts    Value `yaml:"startup_costs,omitempty" json:"startup_costs,omitempty"`
	ShutdownCosts   Value `yaml:"shutdown_costs,omitempty" json:"shutdown_costs,omitempty"`
	ActivityCosts   Value `yaml:"activity_costs,omitempty" json:"activity_costs,omitempty"`
	InactivityCosts Value `yaml:"inactivity_costs,omitempty" json:"inactivity_costs,omitempty"`

	PositiveGradientLimit Value `yaml:"positive_gradient_limit,omitempty" json:"positive_gradient_limit,omitempty"`
	NegativeGradientLimit Value `yaml:"negative_gradient_limit,omitempty" json:"negative_gradient_limit,omitempty"`
	PositiveGradientCosts Value `yaml:"positive_gradient_costs,omitempty" json:"positive_gradient_costs,omitempty"`
	NegativeGradientCosts Value `yaml:"negative_gradient_costs,omitempty" json:"negative_gradient_costs,omitempty"`
}

// Constraint types.
const (
	ConstraintEmissionLimit       = "emission_limit"
	ConstraintIntegralLimit       = "integral_limit"
	ConstraintInvestmentLimit     = "investment_limit"
	ConstraintInvestmentFlowLimit = "investment_flow_limit"
)

// ConstraintConfig is one global limit. Keyword names the custom attribute
// weighting each flow (integral_limit) or investment
// (investment_flow_limit). Flows optionally restricts an integral or
// emission limit to flows given as "from->to".
type ConstraintConfig struct {
	Type    string   `yaml:"type" json:"type"`
	Keyword string   `yaml:"keyword,omitempty" json:"keyword,omitempty"`
	Limit   float64  `yaml:"limit" json:"limit"`
	Flows   []string `yaml:"flows,omitempty" json:"flows,omitempty"`
}

type StorageConfig struct {
	Name            string            `yaml:"name,omitempty" json:"name,omitempty"`
	NominalCapacity float64           `yaml:"nominal_capacity,omitempty" json:"nominal_capacity,omitempty"`
	Investment      *InvestmentConfig `yaml:"investment,omitempty" json:"investment,omitempty"`

	InitialStorageLevel Value `yaml:"initial_storage_level,omitempty" json:"initial_storage_level,omitempty"`
	// Balanced defaults to true.
	Balanced *bool `yaml:"balanced,omitempty" json:"balanced,omitempty"`

	LossRate            Value `yaml:"loss_rate,omitempty" json:"loss_rate,omitempty"`
	FixedLossesRelative Value `yaml:"fixed_losses_relative,omitempty" json:"fixed_losses_relative,omitempty"`
	FixedLossesAbsolute Value `yaml:"fixed_losses_absolute,omitempty" json:"fixed_losses_absolute,omitempty"`

	InflowConversionFactor  Value `yaml:"inflow_conversion_factor,omitempty" json:"inflow_conversion_factor,omitempty"`
	OutflowConversionFactor Value `yaml:"outflow_conversion_factor,omitempty" json:"outflow_conversion_factor,omitempty"`

	MinStorageLevel Value `yaml:"min_storage_level,omitempty" json:"min_storage_level,omitempty"`
	MaxStorageLevel Value `yaml:"max_storage_level,omitempty" json:"max_storage_level,omitempty"`

	StorageCosts Value `yaml:"storage_costs,omitempty" json:"storage_costs,omitempty"`

	InvestRelationInputCapacity  Value `yaml:"invest_relation_input_capacity,omitempty" json:"invest_relation_input_capacity,omitempty"`
	InvestRelationOutputCapacity Value `yaml:"invest_relation_output_capacity,omitempty" json:"invest_relation_output_capacity,omitempty"`
	InvestRelationInputOutput    Value `yaml:"invest_relation_input_output,omitempty" json:"invest_relation_input_output,omitempty"`
}

// DefaultSolver is used when the config names none.
const DefaultSolver = "builtin"

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the config with its presets and series, but does not
// validate it. Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, filepath.Dir(path))
}

// Parse decodes a YAML or JSON document. Relative preset and series paths
// resolve against baseDir first, then the working directory.
func Parse(raw []byte, baseDir string) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if err := c.loadReferenced(baseDir); err != nil {
		return nil, err
	}
	return &c, nil
}

// ErrFileReference is returned by ParseInline for documents that name
// preset or series files.
var ErrFileReference = errors.New("file references are not allowed; use inline series and storage parameters")

// ParseInline decodes, defaults and validates a self-contained document.
// It never touches the filesystem.
func ParseInline(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.SeriesFile != "" {
		return nil, fmt.Errorf("series_file %q: %w", c.SeriesFile, ErrFileReference)
	}
	for _, comp := range c.Components {
		if comp.PresetFile != "" {
			return nil, fmt.Errorf("component %s: preset_file %q: %w", comp.Label, comp.PresetFile, ErrFileReference)
		}
	}
	if err := c.loadReferenced(""); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) loadReferenced(baseDir string) error {
	for i := range c.Components {
		comp := &c.Components[i]
		if comp.PresetFile == "" {
			continue
		}
		preset, err := LoadPresetFile(resolvePath(baseDir, comp.PresetFile))
		if err != nil {
			return fmt.Errorf("component %s: %w", comp.Label, err)
		}
		override := StorageConfig{}
		if comp.Storage != nil {
			override = *comp.Storage
		}
		merged := MergeStorage(preset, override)
		comp.Storage = &merged
	}
	if c.SeriesFile != "" {
		s, err := data.LoadSeries(resolvePath(baseDir, c.SeriesFile))
		if err != nil {
			return err
		}
		c.series = s
	}
	if len(c.Series) > 0 {
		if c.series == nil {
			c.series = data.Series{}
		}
		for k, v := range c.Series {
			c.series[k] = v
		}
	}
	return nil
}

// Prefer interpreting relative paths as relative to the config file directory,
// but fall back to the provided path (relative to cwd) if that doesn't exist.
func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	cand := filepath.Join(baseDir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) applyDefaults() {
	if c.Model.Solver == "" {
		c.Model.Solver = DefaultSolver
	}
	if len(c.TimeIndex.Increments) == 0 && c.TimeIndex.Freq == "" {
		c.TimeIndex.Freq = "1h"
	}
}

// Validate checks the config by building its energy system.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.Buses) == 0 {
		return errors.New("at least one bus is required")
	}
	if _, _, err := c.Build(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}

// SeriesData returns the loaded series columns.
func (c *Config) SeriesData() data.Series { return c.series }

type presetFileWrapper struct {
	Storage StorageConfig `yaml:"storage"`
}

// LoadPresetFile reads a storage preset, a YAML document with a top-level
// "storage" key.
func LoadPresetFile(path string) (StorageConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StorageConfig{}, err
	}
	var w presetFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return StorageConfig{}, err
	}
	return w.Storage, nil
}

// MergeStorage overlays set fields from override onto base.
// This is used when loading a preset file and then applying overrides from
// the component.
func MergeStorage(base, override StorageConfig) StorageConfig {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.NominalCapacity != 0 {
		out.NominalCapacity = override.NominalCapacity
	}
	if override.Investment != nil {
		out.Investment = override.Investment
	}
	if override.Balanced != nil {
		out.Balanced = override.Balanced
	}
	values := []struct{ dst, src *Value }{
		{&out.InitialStorageLevel, &override.InitialStorageLevel},
		{&out.LossRate, &override.LossRate},
		{&out.FixedLossesRelative, &override.FixedLossesRelative},
		{&out.FixedLossesAbsolute, &override.FixedLossesAbsolute},
		{&out.InflowConversionFactor, &override.InflowConversionFactor},
		{&out.OutflowConversionFactor, &override.OutflowConversionFactor},
		{&out.MinStorageLevel, &override.MinStorageLevel},
		{&out.MaxStorageLevel, &override.MaxStorageLevel},
		{&out.StorageCosts, &override.StorageCosts},
		{&out.InvestRelationInputCapacity, &override.InvestRelationInputCapacity},
		{&out.InvestRelationOutputCapacity, &override.InvestRelationOutputCapacity},
		{&out.InvestRelationInputOutput, &override.InvestRelationInputOutput},
	}
	for _, v := range values {
		if v.src.IsSet() {
			*v.dst = *v.src
		}
	}
	return out
}
