package decay_test

import (
	"testing"

	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/stretchr/testify/require"
)

func TestNewSeries(t *testing.T) {
	ts := []float64{0, 1, 2, 3}
	p := []float64{30, 29, 28.5, 28.2}
	temp := []float64{295, 295, 295, 295}

	s, err := decay.NewSeries(ts, p, temp)
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())

	// the series keeps its own copy
	ts[0] = 99
	require.Equal(t, 0.0, s.Time()[0])
	s.Pressure()[0] = -1
	require.Equal(t, 30.0, s.Pressure()[0])

	_, err = decay.NewSeries([]float64{0, 1, 1, 2}, p, temp)
	require.ErrorIs(t, err, decay.ErrInvalidInput)
	_, err = decay.NewSeries([]float64{0, 1, 2}, p[:3], temp[:3])
	require.ErrorIs(t, err, decay.ErrInvalidInput)
	_, err = decay.NewSeries([]float64{0, 1, 2, 3}, p, temp[:3])
	require.ErrorIs(t, err, decay.ErrInvalidInput)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, decay.DefaultConfig().Validate())
	require.InDelta(t, 295.3722222, decay.DefaultConfig().ReferenceTemperature, 1e-9)

	cfg := decay.DefaultConfig()
	cfg.ReferenceTemperature = 0
	_, err := decay.New(cfg)
	require.ErrorIs(t, err, decay.ErrInvalidConfig)

	cfg = decay.DefaultConfig()
	cfg.ConfidenceLevel = 1.5
	_, err = decay.New(cfg)
	require.ErrorIs(t, err, decay.ErrInvalidLevel)

	cfg = decay.DefaultConfig()
	cfg.BandSamples = 1
	_, err = decay.New(cfg)
	require.ErrorIs(t, err, decay.ErrInvalidConfig)

	cfg = decay.DefaultConfig()
	cfg.Fitter.MaxIterations = 0
	_, err = decay.New(cfg)
	require.ErrorIs(t, err, decay.ErrInvalidConfig)
}

func TestModelAnalyze(t *testing.T) {
	cfg := decay.DefaultConfig()
	cfg.ReferenceTemperature = 300
	cfg.BandSamples = 11
	model, err := decay.New(cfg)
	require.NoError(t, err)

	want := decay.Params{A: 10, B: 0.5, C: 2}
	ts := []float64{0, 1, 2, 3, 4, 5}
	normalized := want.Curve(ts)
	temp := []float64{290, 295, 300, 305, 310, 300}
	raw := make([]float64, len(ts))
	for i := range raw {
		// inverse of the normalization
		raw[i] = normalized[i] * temp[i] / 300
	}
	s, err := decay.NewSeries(ts, raw, temp)
	require.NoError(t, err)

	ret, err := model.Analyze(s)
	require.NoError(t, err)
	for i := range normalized {
		require.InDelta(t, normalized[i], ret.Normalized[i], 1e-12)
	}
	require.True(t, ret.Fit.Converged())
	require.InDelta(t, want.A, ret.Fit.Params.A, 1e-6)
	require.InDelta(t, want.B, ret.Fit.Params.B, 1e-6)
	require.InDelta(t, want.C, ret.Fit.Params.C, 1e-6)
	require.True(t, ret.StdErrors.Valid())
	require.Len(t, ret.Samples, 11)
	require.Equal(t, 0.0, ret.Samples[0])
	require.Equal(t, 5.0, ret.Samples[10])
	require.Equal(t, 11, ret.Confidence.Len())
	require.Equal(t, 11, ret.OneSigma.Len())
	require.Equal(t, 11, ret.Prediction.Len())
}

func TestModelAnalyzeFailedFit(t *testing.T) {
	cfg := decay.DefaultConfig()
	cfg.Fitter.MaxIterations = 1
	cfg.Fitter.Seeds = []decay.Params{{A: 1, B: 1, C: 1}}
	model, err := decay.New(cfg)
	require.NoError(t, err)

	ts := []float64{0, 1, 2, 3, 4, 5}
	s, err := decay.NewSeries(ts,
		[]float64{12, 8.07, 5.68, 4.23, 3.35, 2.82},
		[]float64{295, 295, 295, 295, 295, 295})
	require.NoError(t, err)

	ret, err := model.Analyze(s)
	require.NoError(t, err)
	require.False(t, ret.Fit.Converged())
	require.Equal(t, 0, ret.Prediction.Len())
	require.Equal(t, cfg.BandSamples, ret.Confidence.Len())
}
