// Package batch fits many specimens concurrently.
package batch

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/airperm/aptfit/mods/logging"
	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/airperm/aptfit/mods/specimen"
	met "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoModel     = errors.New("batch runner has no model")
	ErrNilSpecimen = errors.New("nil specimen")
)

// Outcome is the result of one specimen.
// Err is set when the specimen could not be analyzed at all, e.g. invalid
// input or a cancelled context. A fit that did not converge is not an
// error, see Analysis.Fit.
type Outcome struct {
	Specimen *specimen.Specimen
	Analysis *decay.Analysis
	Err      error
	Elapsed  time.Duration
}

func (o *Outcome) Converged() bool {
	return o != nil && o.Err == nil && o.Analysis != nil && o.Analysis.Fit.Converged()
}

type Metrics struct {
	Converged met.Counter
	Failed    met.Counter
	Invalid   met.Counter
	Duration  met.Timer
}

// NewMetrics registers the batch metrics in r.
// A nil registry gives standalone metrics.
func NewMetrics(r met.Registry) *Metrics {
	if r == nil {
		return &Metrics{
			Converged: met.NewCounter(),
			Failed:    met.NewCounter(),
			Invalid:   met.NewCounter(),
			Duration:  met.NewTimer(),
		}
	}
	return &Metrics{
		Converged: met.GetOrRegisterCounter("fit.converged", r),
		Failed:    met.GetOrRegisterCounter("fit.failed", r),
		Invalid:   met.GetOrRegisterCounter("fit.invalid", r),
		Duration:  met.GetOrRegisterTimer("fit.duration", r),
	}
}

// Runner analyzes specimens with one decay model on a bounded number of
// goroutines.
type Runner struct {
	Model *decay.Model
	// Workers bounds the concurrent fits, the number of CPUs when <= 0.
	Workers int
	Log     logging.Log
	Metrics *Metrics
}

// Run analyzes every specimen and returns one Outcome per specimen in input
// order. The failure of one specimen never affects the others.
// When ctx is done the specimens not yet started get ctx.Err() as their
// outcome error, and Run returns ctx.Err() along with the outcomes.
func (r *Runner) Run(ctx context.Context, list []*specimen.Specimen) ([]*Outcome, error) {
	if r.Model == nil {
		return nil, ErrNoModel
	}
	w := &worker{model: r.Model, log: r.Log, metrics: r.Metrics}
	if w.log == nil {
		w.log = logging.GetLog("batch")
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ret := make([]*Outcome, len(list))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, sp := range list {
		i, sp := i, sp
		if err := ctx.Err(); err != nil {
			ret[i] = &Outcome{Specimen: sp, Err: err}
			continue
		}
		g.Go(func() error {
			ret[i] = w.analyze(ctx, sp)
			return nil
		})
	}
	g.Wait()

	if w.log.InfoEnabled() {
		converged := 0
		for _, o := range ret {
			if o.Converged() {
				converged++
			}
		}
		w.log.Infof("%d specimens, converged=%d", len(list), converged)
	}
	return ret, ctx.Err()
}

// worker holds the defaults resolved for one Run, the Runner itself is
// never written.
type worker struct {
	model   *decay.Model
	log     logging.Log
	metrics *Metrics
}

func (w *worker) analyze(ctx context.Context, sp *specimen.Specimen) *Outcome {
	ret := &Outcome{Specimen: sp}
	if err := ctx.Err(); err != nil {
		ret.Err = err
		return ret
	}
	if sp == nil {
		w.metrics.Invalid.Inc(1)
		ret.Err = ErrNilSpecimen
		return ret
	}
	start := time.Now()
	defer func() {
		ret.Elapsed = time.Since(start)
		w.metrics.Duration.Update(ret.Elapsed)
	}()

	ser, err := sp.Series()
	if err != nil {
		w.metrics.Invalid.Inc(1)
		w.log.Warn(err.Error())
		ret.Err = err
		return ret
	}
	analysis, err := w.model.Analyze(ser)
	if err != nil {
		w.metrics.Invalid.Inc(1)
		w.log.Warnf("specimen %s: %s", sp.ID, err.Error())
		ret.Err = err
		return ret
	}
	ret.Analysis = analysis
	if fit := analysis.Fit; fit.Converged() {
		w.metrics.Converged.Inc(1)
		w.log.Debugf("specimen %s: %v rss=%g iterations=%d", sp.ID, fit.Params, fit.RSS, fit.Iterations)
	} else {
		w.metrics.Failed.Inc(1)
		w.log.Warnf("specimen %s: fit failed after %d iterations, %v", sp.ID, fit.Iterations, fit.Reason)
	}
	return ret
}
