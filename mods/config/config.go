// Package config loads the aptfit HCL configuration.
//
// A configuration file may hold any of the blocks model, batch, report and
// log. Attributes that are left out keep their default value, so an empty
// file is a valid configuration. Expressions can use the functions in
// Functions and the variables in Variables, e.g.
//
//	model {
//	  reference_temperature = kelvin(ideal_room_celsius)
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/airperm/aptfit/mods/logging"
	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/airperm/aptfit/mods/report"
	"github.com/airperm/aptfit/mods/specimen"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Model  *ModelConfig
	Batch  *BatchConfig
	Report *ReportConfig
	Log    *logging.Config
}

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "model"},
		{Type: "batch"},
		{Type: "report"},
		{Type: "log"},
	},
}

type ModelConfig struct {
	// ReferenceTemperature in Kelvin.
	ReferenceTemperature float64 `hcl:"reference_temperature,optional"`
	ConfidenceLevel      float64 `hcl:"confidence_level,optional"`
	BandSamples          int     `hcl:"band_samples,optional"`
	MaxIterations        int     `hcl:"max_iterations,optional"`
	FTol                 float64 `hcl:"ftol,optional"`
	XTol                 float64 `hcl:"xtol,optional"`
	GTol                 float64 `hcl:"gtol,optional"`
}

type BatchConfig struct {
	// Workers <= 0 uses every CPU.
	Workers    int    `hcl:"workers,optional"`
	TrimStart  int    `hcl:"trim_start,optional"`
	TrimEnd    int    `hcl:"trim_end,optional"`
	Delimiter  string `hcl:"delimiter,optional"`
	TimeLayout string `hcl:"time_layout,optional"`
	TimeZone   string `hcl:"time_zone,optional"`
}

type ReportConfig struct {
	Format        string  `hcl:"format,optional"`
	Style         string  `hcl:"style,optional"`
	Precision     int     `hcl:"precision,optional"`
	HorizonMonths float64 `hcl:"horizon_months,optional"`
	HorizonDays   float64 `hcl:"horizon_days,optional"`
	HorizonHours  float64 `hcl:"horizon_hours,optional"`
	// Database keeps the history of fit runs when not empty.
	Database string `hcl:"database,optional"`
}

func Default() *Config {
	fitter := decay.DefaultFitter()
	logCfg := logging.DefaultConfig()
	return &Config{
		Model: &ModelConfig{
			ReferenceTemperature: decay.DefaultReferenceTemperature,
			ConfidenceLevel:      decay.DefaultConfidenceLevel,
			BandSamples:          decay.DefaultBandSamples,
			MaxIterations:        fitter.MaxIterations,
			FTol:                 fitter.FTol,
			XTol:                 fitter.XTol,
			GTol:                 fitter.GTol,
		},
		Batch: &BatchConfig{
			Delimiter: ",",
			TimeZone:  "UTC",
		},
		Report: &ReportConfig{
			Format:    string(report.FormatBox),
			Style:     "default",
			Precision: 6,
		},
		Log: &logCfg,
	}
}

// Load reads and merges the given files on top of Default().
// A block may appear in only one of the files.
func Load(files ...string) (*Config, error) {
	hclFiles := make([]*hcl.File, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		hclFile, diags := hclsyntax.ParseConfig(content, file, hcl.Pos{Line: 1, Column: 1})
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, diags.Error())
		}
		hclFiles = append(hclFiles, hclFile)
	}
	return decode(hcl.MergeFiles(hclFiles))
}

// Parse reads one configuration from content, filename is used in messages.
func Parse(content []byte, filename string) (*Config, error) {
	hclFile, diags := hclsyntax.ParseConfig(content, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, diags.Error())
	}
	return decode(hclFile.Body)
}

// decode applies each block on top of its default so that omitted
// attributes keep their default value.
func decode(body hcl.Body) (*Config, error) {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, diags.Error())
	}
	cfg := Default()
	evalCtx := evalContext()
	seen := make(map[string]hcl.Range)
	for _, block := range content.Blocks {
		if prev, ok := seen[block.Type]; ok {
			return nil, fmt.Errorf("%w: %s: duplicate %s block, first defined at %s",
				ErrInvalid, block.DefRange, block.Type, prev)
		}
		seen[block.Type] = block.DefRange
		var target any
		switch block.Type {
		case "model":
			target = cfg.Model
		case "batch":
			target = cfg.Batch
		case "report":
			target = cfg.Report
		case "log":
			target = cfg.Log
		}
		if diags := gohcl.DecodeBody(block.Body, evalCtx, target); diags.HasErrors() {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, diags.Error())
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func evalContext() *hcl.EvalContext {
	ctx := &hcl.EvalContext{
		Functions: make(map[string]function.Function, len(Functions)),
		Variables: make(map[string]cty.Value, len(Variables)),
	}
	for k, v := range Functions {
		ctx.Functions[k] = v
	}
	for k, v := range Variables {
		ctx.Variables[k] = v
	}
	return ctx
}

// Validate checks every block, a nil block counts as the default.
func (c *Config) Validate() error {
	def := Default()
	if c.Model == nil {
		c.Model = def.Model
	}
	if c.Batch == nil {
		c.Batch = def.Batch
	}
	if c.Report == nil {
		c.Report = def.Report
	}
	if c.Log == nil {
		c.Log = def.Log
	}
	if _, err := c.Model.Decay(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalid, err)
	}
	if _, err := c.Batch.CSVOptions(); err != nil {
		return fmt.Errorf("%w: batch: %w", ErrInvalid, err)
	}
	if err := c.Batch.Trim().Validate(); err != nil {
		return fmt.Errorf("%w: batch: %w", ErrInvalid, err)
	}
	if _, err := c.Report.Encoder(); err != nil {
		return fmt.Errorf("%w: report: %w", ErrInvalid, err)
	}
	if c.Report.HorizonMonths < 0 || c.Report.HorizonDays < 0 || c.Report.HorizonHours < 0 {
		return fmt.Errorf("%w: report: negative horizon", ErrInvalid)
	}
	if _, ok := logging.ParseLogLevelP(c.Log.DefaultLevel); !ok {
		return fmt.Errorf("%w: log: unknown level %q", ErrInvalid, c.Log.DefaultLevel)
	}
	for _, o := range c.Log.Levels {
		if _, ok := logging.ParseLogLevelP(o.Level); !ok {
			return fmt.Errorf("%w: log: unknown level %q for %q", ErrInvalid, o.Level, o.Pattern)
		}
	}
	return nil
}

// Decay converts the model block to an immutable decay.Config.
func (mc *ModelConfig) Decay() (decay.Config, error) {
	cfg := decay.DefaultConfig()
	cfg.ReferenceTemperature = mc.ReferenceTemperature
	cfg.ConfidenceLevel = mc.ConfidenceLevel
	cfg.BandSamples = mc.BandSamples
	cfg.Fitter.MaxIterations = mc.MaxIterations
	cfg.Fitter.FTol = mc.FTol
	cfg.Fitter.XTol = mc.XTol
	cfg.Fitter.GTol = mc.GTol
	if mc.FTol < 0 || mc.XTol < 0 || mc.GTol < 0 {
		return cfg, fmt.Errorf("%w: negative tolerance", decay.ErrInvalidConfig)
	}
	return cfg, cfg.Validate()
}

func (bc *BatchConfig) Trim() specimen.Trim {
	return specimen.Trim{Start: bc.TrimStart, End: bc.TrimEnd}
}

func (bc *BatchConfig) CSVOptions() (specimen.CSVOptions, error) {
	opts := specimen.CSVOptions{TimeLayout: bc.TimeLayout}
	opts.SetDelimiter(bc.Delimiter)
	loc, err := time.LoadLocation(bc.TimeZone)
	if err != nil {
		return opts, err
	}
	opts.Location = loc
	return opts, nil
}

func (rc *ReportConfig) Horizon() report.Horizon {
	return report.Horizon{Months: rc.HorizonMonths, Days: rc.HorizonDays, Hours: rc.HorizonHours}
}

func (rc *ReportConfig) Encoder() (*report.Encoder, error) {
	format, err := report.ParseFormat(rc.Format)
	if err != nil {
		return nil, err
	}
	enc := report.NewEncoder(format)
	if rc.Style != "" {
		enc.Style = rc.Style
	}
	enc.Precision = rc.Precision
	return enc, nil
}
