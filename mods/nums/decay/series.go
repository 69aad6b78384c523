package decay

import (
	"fmt"
	"math"
	"slices"
)

// Series is a validated specimen time series.
// The slices are copied on construction and never handed out for writing.
type Series struct {
	time        []float64
	pressure    []float64
	temperature []float64
}

// NewSeries validates and copies the three aligned sequences.
// time is in hours and must be strictly increasing,
// temperature is the specimen's absolute temperature for each sample.
func NewSeries(time, pressure, temperature []float64) (*Series, error) {
	if len(pressure) != len(time) || len(temperature) != len(time) {
		return nil, fmt.Errorf("%w: length mismatch time=%d pressure=%d temperature=%d",
			ErrInvalidInput, len(time), len(pressure), len(temperature))
	}
	if err := checkSamples(time, pressure); err != nil {
		return nil, err
	}
	if i := firstNonFinite(temperature); i >= 0 {
		return nil, fmt.Errorf("%w: temperature[%d] is %v", ErrInvalidInput, i, temperature[i])
	}
	return &Series{
		time:        slices.Clone(time),
		pressure:    slices.Clone(pressure),
		temperature: slices.Clone(temperature),
	}, nil
}

func (s *Series) Len() int { return len(s.time) }

func (s *Series) Time() []float64        { return slices.Clone(s.time) }
func (s *Series) Pressure() []float64    { return slices.Clone(s.pressure) }
func (s *Series) Temperature() []float64 { return slices.Clone(s.temperature) }

// Normalize scales raw pressure to the reference temperature, p * ref / T.
// Temperatures are not guarded; a zero or negative temperature produces
// Inf or sign-flipped values the same way the arithmetic does.
func Normalize(pressure, temperature []float64, reference float64) ([]float64, error) {
	if len(pressure) != len(temperature) {
		return nil, fmt.Errorf("%w: length mismatch pressure=%d temperature=%d",
			ErrInvalidInput, len(pressure), len(temperature))
	}
	ret := make([]float64, len(pressure))
	for i, p := range pressure {
		ret[i] = p * reference / temperature[i]
	}
	return ret, nil
}

// checkSamples is the shape check shared by NewSeries and Fit.
func checkSamples(t, y []float64) error {
	if len(t) != len(y) {
		return fmt.Errorf("%w: length mismatch time=%d values=%d", ErrInvalidInput, len(t), len(y))
	}
	if len(t) < MinSamples {
		return fmt.Errorf("%w: %d samples, at least %d required", ErrInvalidInput, len(t), MinSamples)
	}
	if i := firstNonFinite(t); i >= 0 {
		return fmt.Errorf("%w: time[%d] is %v", ErrInvalidInput, i, t[i])
	}
	if i := firstNonFinite(y); i >= 0 {
		return fmt.Errorf("%w: value[%d] is %v", ErrInvalidInput, i, y[i])
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("%w: time is not strictly increasing at index %d (%v after %v)",
				ErrInvalidInput, i, t[i], t[i-1])
		}
	}
	return nil
}

func firstNonFinite(arr []float64) int {
	for i, v := range arr {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}
