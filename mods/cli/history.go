package cli

import (
	"context"
	"strings"
	"time"

	"github.com/airperm/aptfit/mods/store"
)

type HistoryCmd struct {
	DB       string `name:"db" help:"SQLite file of the runs, default from the configuration"`
	Specimen string `name:"specimen" short:"s" help:"show every stored fit of this specimen"`
	Limit    int    `name:"limit" default:"20" help:"number of runs to list, 0 for all"`
	Format   string `name:"format" short:"f" help:"output format: box, json, yaml or csv"`
}

var runsHeader = []string{"RUN", "CREATED", "FILES", "LEVEL", "SPECIMENS", "CONVERGED"}

func (cmd *HistoryCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cmd.DB != "" {
		cfg.Report.Database = cmd.DB
	}
	if cmd.Format != "" {
		cfg.Report.Format = cmd.Format
	}
	if err := g.setup(cfg); err != nil {
		return err
	}
	if cfg.Report.Database == "" {
		return errNoDatabase
	}
	enc, err := cfg.Report.Encoder()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Report.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	if cmd.Specimen == "" {
		runs, err := db.Runs(ctx, cmd.Limit)
		if err != nil {
			return err
		}
		records := make([][]any, len(runs))
		for i, r := range runs {
			records[i] = []any{
				r.ID.String(), r.CreatedAt.Local().Format(time.DateTime), strings.Join(r.Files, " "),
				r.ConfidenceLevel, r.Specimens, r.Converged,
			}
		}
		return enc.Table(g.Stdout, "", runs, runsHeader, records)
	}

	hist, err := db.History(ctx, cmd.Specimen)
	if err != nil {
		return err
	}
	header := append([]string{"RUN", "CREATED"}, summaryColumns...)
	records := make([][]any, len(hist))
	for i, h := range hist {
		r := h.Row
		records[i] = []any{
			h.RunID.String(), h.CreatedAt.Local().Format(time.DateTime),
			r.Samples, r.Status, r.A, r.B, r.C, r.SigmaA, r.SigmaB, r.SigmaC,
			r.RSS, r.Correlation, r.Iterations, r.Horizon, r.Projected, r.Observed,
		}
	}
	return enc.Table(g.Stdout, cmd.Specimen, hist, header, records)
}

var summaryColumns = []string{
	"N", "STATUS", "A", "B", "C", "SIGMA_A", "SIGMA_B", "SIGMA_C",
	"RSS", "R", "ITER", "HORIZON", "PROJECTED", "OBSERVED",
}
