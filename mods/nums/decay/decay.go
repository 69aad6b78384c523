// Package decay fits the pressure-decay model
//
//	p(t) = a * exp(-b * t) + c
//
// to a specimen's temperature-normalized pressure series and derives the
// uncertainty figures used for reporting: parameter covariance, standard
// errors, a parameter envelope around the fitted curve and a prediction band
// for new observations.
//
// Every function in this package is a pure computation over its arguments.
// A Model holds only immutable configuration and can be shared between
// goroutines.
package decay

import (
	"errors"
	"fmt"

	"github.com/airperm/aptfit/mods/nums"
)

const (
	// CelsiusToKelvin is the offset between the two temperature scales.
	CelsiusToKelvin = 273.15
	// IdealRoomCelsius is the room temperature all specimens are normalized to.
	IdealRoomCelsius = 22.2222222
	// DefaultReferenceTemperature is IdealRoomCelsius in Kelvin.
	DefaultReferenceTemperature = IdealRoomCelsius + CelsiusToKelvin
	// DefaultConfidenceLevel is used for bands when no level is configured.
	DefaultConfidenceLevel = 0.95
	// DefaultBandSamples is the number of evaluation points of a band.
	DefaultBandSamples = 100

	// NumParams is the number of free parameters of the model.
	NumParams = 3
	// MinSamples is the smallest series that leaves one degree of freedom.
	MinSamples = NumParams + 1
)

var (
	ErrInvalidInput    = errors.New("invalid input shape")
	ErrInsufficientDoF = errors.New("insufficient degrees of freedom")
	ErrInvalidLevel    = errors.New("confidence level must be in (0, 1)")
	ErrInvalidConfig   = errors.New("invalid model config")
)

// Config is the immutable configuration of a Model.
type Config struct {
	// ReferenceTemperature in Kelvin.
	ReferenceTemperature float64
	ConfidenceLevel      float64
	BandSamples          int
	Fitter               Fitter
}

func DefaultConfig() Config {
	return Config{
		ReferenceTemperature: DefaultReferenceTemperature,
		ConfidenceLevel:      DefaultConfidenceLevel,
		BandSamples:          DefaultBandSamples,
		Fitter:               DefaultFitter(),
	}
}

func (c Config) Validate() error {
	if !(c.ReferenceTemperature > 0) {
		return fmt.Errorf("%w: reference temperature %v K", ErrInvalidConfig, c.ReferenceTemperature)
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidLevel)
	}
	if c.BandSamples < 2 {
		return fmt.Errorf("%w: band samples %d, at least 2 required", ErrInvalidConfig, c.BandSamples)
	}
	if c.Fitter.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, c.Fitter.MaxIterations)
	}
	return nil
}

// Model applies one Config to any number of specimens.
type Model struct {
	cfg Config
}

func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

func (m *Model) Config() Config {
	return m.cfg
}

// Normalize returns the series pressure scaled to the reference temperature.
func (m *Model) Normalize(s *Series) []float64 {
	ret, _ := Normalize(s.Pressure(), s.Temperature(), m.cfg.ReferenceTemperature)
	return ret
}

// Fit normalizes the series and fits the decay model to it.
func (m *Model) Fit(s *Series) (*FitResult, error) {
	return m.cfg.Fitter.Fit(s.Time(), m.Normalize(s))
}

// Analysis bundles everything the reports need for one specimen.
type Analysis struct {
	Normalized []float64
	Fit        *FitResult
	StdErrors  StdErrors
	// Samples are the evaluation points of the bands,
	// evenly spaced between the first and the last sample time.
	Samples    []float64
	Confidence Band
	OneSigma   Band
	// Prediction is empty when the fit failed.
	Prediction Band
}

// Analyze runs the complete pipeline for one series.
// A failed fit is not an error; check Analysis.Fit.Converged().
func (m *Model) Analyze(s *Series) (*Analysis, error) {
	normalized := m.Normalize(s)
	fit, err := m.cfg.Fitter.Fit(s.Time(), normalized)
	if err != nil {
		return nil, err
	}
	t := s.Time()
	ret := &Analysis{
		Normalized: normalized,
		Fit:        fit,
		StdErrors:  StandardErrors(fit.Covariance),
		Samples:    nums.Linspace(t[0], t[len(t)-1], m.cfg.BandSamples),
	}
	ret.Confidence, err = ConfidenceBand(ret.Samples, fit.Params, fit.Covariance, m.cfg.ConfidenceLevel)
	if err != nil {
		return nil, err
	}
	ret.OneSigma = OneSigmaBand(ret.Samples, fit.Params, fit.Covariance)
	if fit.Converged() {
		ret.Prediction, err = PredictionBand(ret.Samples, t, normalized, fit.Params, m.cfg.ConfidenceLevel)
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}
