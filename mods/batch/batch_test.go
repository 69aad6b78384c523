package batch_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/airperm/aptfit/mods/batch"
	"github.com/airperm/aptfit/mods/logging"
	"github.com/airperm/aptfit/mods/nums"
	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/airperm/aptfit/mods/specimen"
	met "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
)

func decaying(id string, n int, p decay.Params) *specimen.Specimen {
	t := nums.Linspace(0, 4, n)
	k := make([]float64, n)
	for i := range k {
		k[i] = decay.DefaultReferenceTemperature
	}
	return &specimen.Specimen{ID: id, Time: t, Pressure: p.Curve(t), Temperature: k}
}

func newModel(t *testing.T, fitter decay.Fitter) *decay.Model {
	t.Helper()
	cfg := decay.DefaultConfig()
	cfg.Fitter = fitter
	m, err := decay.New(cfg)
	require.NoError(t, err)
	return m
}

func TestRunOrderAndIsolation(t *testing.T) {
	var list []*specimen.Specimen
	for i := 0; i < 12; i++ {
		list = append(list, decaying(fmt.Sprintf("p%d", i+1), 30, decay.Params{A: 2 + float64(i)/4, B: 1.3, C: 0.5}))
	}
	list[4] = decaying("p5", 3, decay.Params{A: 1, B: 1, C: 1})
	list[7] = nil

	registry := met.NewRegistry()
	buf := &bytes.Buffer{}
	runner := &batch.Runner{
		Model:   newModel(t, decay.DefaultFitter()),
		Workers: 3,
		Log:     logging.NewLog("batch", buf),
		Metrics: batch.NewMetrics(registry),
	}
	outcomes, err := runner.Run(context.Background(), list)
	require.NoError(t, err)
	require.Len(t, outcomes, len(list))

	for i, o := range outcomes {
		switch i {
		case 4:
			require.ErrorIs(t, o.Err, decay.ErrInvalidInput)
			require.False(t, o.Converged())
		case 7:
			require.ErrorIs(t, o.Err, batch.ErrNilSpecimen)
		default:
			require.NoError(t, o.Err)
			require.Equal(t, list[i].ID, o.Specimen.ID)
			require.True(t, o.Converged(), o.Specimen.ID)
			require.InDelta(t, 2+float64(i)/4, o.Analysis.Fit.Params.A, 1e-6)
		}
	}

	require.Equal(t, int64(10), registry.Get("fit.converged").(met.Counter).Count())
	require.Equal(t, int64(2), registry.Get("fit.invalid").(met.Counter).Count())
	require.Equal(t, int64(0), registry.Get("fit.failed").(met.Counter).Count())
	require.Equal(t, int64(11), registry.Get("fit.duration").(met.Timer).Count())
	require.Contains(t, buf.String(), "specimen p5")
}

func TestRunFailedFit(t *testing.T) {
	fitter := decay.DefaultFitter()
	fitter.MaxIterations = 1
	fitter.Seeds = []decay.Params{{A: 1, B: 1, C: 1}}

	metrics := batch.NewMetrics(nil)
	runner := &batch.Runner{
		Model:   newModel(t, fitter),
		Log:     logging.NewLog("batch", &bytes.Buffer{}),
		Metrics: metrics,
	}
	outcomes, err := runner.Run(context.Background(), []*specimen.Specimen{
		decaying("p1", 30, decay.Params{A: 2.5, B: 1.3, C: 0.5}),
	})
	require.NoError(t, err)
	require.NoError(t, outcomes[0].Err)
	require.False(t, outcomes[0].Converged())
	require.Equal(t, decay.StatusFailed, outcomes[0].Analysis.Fit.Status)
	require.True(t, outcomes[0].Analysis.Fit.Params.IsZero())
	require.Empty(t, outcomes[0].Analysis.Prediction.T)
	require.Equal(t, int64(1), metrics.Failed.Count())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &batch.Runner{
		Model: newModel(t, decay.DefaultFitter()),
		Log:   logging.NewLog("batch", &bytes.Buffer{}),
	}
	list := []*specimen.Specimen{
		decaying("p1", 10, decay.Params{A: 2.5, B: 1.3, C: 0.5}),
		decaying("p2", 10, decay.Params{A: 2.5, B: 1.3, C: 0.5}),
	}
	outcomes, err := runner.Run(ctx, list)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.ErrorIs(t, o.Err, context.Canceled)
		require.Nil(t, o.Analysis)
	}
}

func TestRunWithoutModel(t *testing.T) {
	_, err := (&batch.Runner{}).Run(context.Background(), nil)
	require.ErrorIs(t, err, batch.ErrNoModel)
}

func TestRunSharedRunner(t *testing.T) {
	runner := &batch.Runner{Model: newModel(t, decay.DefaultFitter()), Workers: 2}
	list := []*specimen.Specimen{
		decaying("p1", 20, decay.Params{A: 2, B: 1.3, C: 0.5}),
		decaying("p2", 20, decay.Params{A: 3, B: 0.7, C: 1}),
	}

	results := make(chan []*batch.Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			outcomes, err := runner.Run(context.Background(), list)
			if err != nil {
				outcomes = nil
			}
			results <- outcomes
		}()
	}
	for i := 0; i < 2; i++ {
		outcomes := <-results
		require.Len(t, outcomes, 2)
		require.True(t, outcomes[0].Converged())
		require.True(t, outcomes[1].Converged())
	}
	require.Nil(t, runner.Log)
	require.Nil(t, runner.Metrics)
}
