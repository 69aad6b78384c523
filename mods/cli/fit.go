package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airperm/aptfit/mods/batch"
	"github.com/airperm/aptfit/mods/config"
	"github.com/airperm/aptfit/mods/logging"
	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/airperm/aptfit/mods/report"
	"github.com/airperm/aptfit/mods/specimen"
	"github.com/airperm/aptfit/mods/store"
	met "github.com/rcrowley/go-metrics"
)

var (
	ErrSpecimenNotFound = errors.New("specimen not found")
	errNoDatabase       = errors.New("no database, use --db or report.database")
)

// RigFlags are the flags shared by the commands that read rig exports.
// Zero values keep the configured value.
type RigFlags struct {
	Format     string  `name:"format" short:"f" help:"output format: box, json, yaml or csv"`
	Precision  int     `name:"precision" default:"-2" help:"fraction digits of box and csv output, -1 for shortest"`
	Level      float64 `name:"level" help:"confidence level of the bands, e.g. 0.95"`
	TrimStart  int     `name:"trim-start" help:"first sample to use"`
	TrimEnd    int     `name:"trim-end" help:"sample to stop before, 0 for all"`
	Delimiter  string  `name:"delimiter" short:"d" help:"CSV field delimiter"`
	TimeLayout string  `name:"time-layout" help:"Go time layout of the time column"`
}

func (rf *RigFlags) apply(cfg *config.Config) {
	if rf.Format != "" {
		cfg.Report.Format = rf.Format
	}
	if rf.Precision >= -1 {
		cfg.Report.Precision = rf.Precision
	}
	if rf.Level != 0 {
		cfg.Model.ConfidenceLevel = rf.Level
	}
	if rf.TrimStart != 0 {
		cfg.Batch.TrimStart = rf.TrimStart
	}
	if rf.TrimEnd != 0 {
		cfg.Batch.TrimEnd = rf.TrimEnd
	}
	if rf.Delimiter != "" {
		cfg.Batch.Delimiter = rf.Delimiter
	}
	if rf.TimeLayout != "" {
		cfg.Batch.TimeLayout = rf.TimeLayout
	}
}

// readSpecimens reads every file. With more than one file the specimen IDs
// are prefixed with the file name.
func readSpecimens(cfg *config.Config, files []string) ([]*specimen.Specimen, error) {
	opts, err := cfg.Batch.CSVOptions()
	if err != nil {
		return nil, err
	}
	var ret []*specimen.Specimen
	for _, file := range files {
		list, err := readFile(file, opts, cfg.Batch.Trim())
		if err != nil {
			return nil, err
		}
		if len(files) > 1 {
			prefix := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			for _, sp := range list {
				sp.ID = prefix + ":" + sp.ID
			}
		}
		ret = append(ret, list...)
	}
	return ret, nil
}

func readFile(file string, opts specimen.CSVOptions, trim specimen.Trim) ([]*specimen.Specimen, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rig, err := specimen.ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	list, err := rig.Specimens(trim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return list, nil
}

type FitCmd struct {
	RigFlags
	Files   []string `arg:"" name:"FILE" help:"rig export in CSV"`
	Workers int      `name:"workers" short:"w" help:"concurrent fits, 0 for the configured value"`
	Months  float64  `name:"months" help:"projection horizon, months of 30 days"`
	Days    float64  `name:"days" help:"projection horizon, days"`
	Hours   float64  `name:"hours" help:"projection horizon, hours"`
	DB      string   `name:"db" help:"SQLite file to record the run in"`
}

func (cmd *FitCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	cmd.apply(cfg)
	if cmd.Workers != 0 {
		cfg.Batch.Workers = cmd.Workers
	}
	if cmd.DB != "" {
		cfg.Report.Database = cmd.DB
	}
	if cmd.Months != 0 || cmd.Days != 0 || cmd.Hours != 0 {
		cfg.Report.HorizonMonths = cmd.Months
		cfg.Report.HorizonDays = cmd.Days
		cfg.Report.HorizonHours = cmd.Hours
	}
	if err := g.setup(cfg); err != nil {
		return err
	}
	log := logging.GetLog("fit")

	list, err := readSpecimens(cfg, cmd.Files)
	if err != nil {
		return err
	}
	log.Infof("%d specimens from %d files", len(list), len(cmd.Files))

	model, err := newModel(cfg)
	if err != nil {
		return err
	}
	runner := &batch.Runner{
		Model:   model,
		Workers: cfg.Batch.Workers,
		Log:     logging.GetLog("batch"),
		Metrics: batch.NewMetrics(met.DefaultRegistry),
	}
	ctx, cancel := signalContext()
	defer cancel()
	outcomes, err := runner.Run(ctx, list)
	if err != nil {
		return err
	}

	rows := report.Summarize(outcomes, cfg.Report.Horizon())
	if cfg.Report.Database != "" {
		if err := saveRun(ctx, cfg, cmd.Files, rows); err != nil {
			return err
		}
	}
	enc, err := cfg.Report.Encoder()
	if err != nil {
		return err
	}
	return enc.Summary(g.Stdout, rows)
}

func saveRun(ctx context.Context, cfg *config.Config, files []string, rows []report.Row) error {
	db, err := store.Open(cfg.Report.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.SaveRun(ctx, files, cfg.Model.ConfidenceLevel, cfg.Report.Horizon().InHours(), rows)
	if err != nil {
		return err
	}
	logging.GetLog("fit").Infof("run %s saved in %s", id, db.Path())
	return nil
}

type BandsCmd struct {
	RigFlags
	File     string `arg:"" name:"FILE" type:"existingfile" help:"rig export in CSV"`
	Specimen string `name:"specimen" short:"s" required:"" help:"specimen column, e.g. p1"`
	Samples  int    `name:"samples" short:"n" help:"evaluation points, 0 for the configured value"`
}

func (cmd *BandsCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	cmd.apply(cfg)
	if cmd.Samples != 0 {
		cfg.Model.BandSamples = cmd.Samples
	}
	if err := g.setup(cfg); err != nil {
		return err
	}

	list, err := readSpecimens(cfg, []string{cmd.File})
	if err != nil {
		return err
	}
	var sp *specimen.Specimen
	for _, s := range list {
		if strings.EqualFold(s.ID, cmd.Specimen) {
			sp = s
			break
		}
	}
	if sp == nil {
		return fmt.Errorf("%w: %q in %s", ErrSpecimenNotFound, cmd.Specimen, cmd.File)
	}
	ser, err := sp.Series()
	if err != nil {
		return err
	}
	model, err := newModel(cfg)
	if err != nil {
		return err
	}
	analysis, err := model.Analyze(ser)
	if err != nil {
		return err
	}
	if !analysis.Fit.Converged() {
		logging.GetLog("bands").Warnf("specimen %s: fit failed, %v", sp.ID, analysis.Fit.Reason)
	}
	enc, err := cfg.Report.Encoder()
	if err != nil {
		return err
	}
	return enc.Bands(g.Stdout, report.NewBandTable(sp.ID, analysis))
}

func newModel(cfg *config.Config) (*decay.Model, error) {
	dc, err := cfg.Model.Decay()
	if err != nil {
		return nil, err
	}
	return decay.New(dc)
}
