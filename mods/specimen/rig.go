package specimen

import (
	"fmt"
	"math"
	"time"

	"github.com/airperm/aptfit/mods/nums/decay"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Column is one named data column of a rig export.
// A column may be shorter than the time column when its data ended early.
type Column struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

// Rig is one export of the pressure-decay rig.
type Rig struct {
	// Hours is the sample time in hours since the first sample.
	Hours []float64
	// Thermocouples are the rig temperatures in degrees Celsius.
	Thermocouples []Column
	// Pressures are the specimen pressures in psi, one column per specimen.
	Pressures []Column
	// Ambient holds every other column, e.g. the barometer.
	Ambient []Column
}

// Trim selects the sample window [Start, End).
// End 0 means through the last sample.
type Trim struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

func (tr Trim) Validate() error {
	if tr.Start < 0 || tr.End < 0 || (tr.End > 0 && tr.End <= tr.Start) {
		return fmt.Errorf("%w: start=%d end=%d", ErrBadTrim, tr.Start, tr.End)
	}
	return nil
}

// bounds clips the window to n samples, the result may be empty.
func (tr Trim) bounds(n int) (int, int) {
	lo, hi := tr.Start, tr.End
	if hi == 0 || hi > n {
		hi = n
	}
	return min(lo, hi), hi
}

// Hours converts timestamps to elapsed hours since the first one.
func Hours(timestamps []time.Time) []float64 {
	ret := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		ret[i] = ts.Sub(timestamps[0]).Hours()
	}
	return ret
}

// AverageKelvin returns the mean thermocouple temperature of every sample
// in Kelvin. Thermocouples without a value at a sample are left out of
// that sample's mean; a sample no thermocouple covers is NaN.
func (r *Rig) AverageKelvin() []float64 {
	ret := make([]float64, len(r.Hours))
	row := make([]float64, 0, len(r.Thermocouples))
	for i := range ret {
		row = row[:0]
		for _, tc := range r.Thermocouples {
			if i < len(tc.Values) {
				row = append(row, tc.Values[i])
			}
		}
		if len(row) == 0 {
			ret[i] = math.NaN()
			continue
		}
		ret[i] = stat.Mean(row, nil)
	}
	floats.AddConst(decay.CelsiusToKelvin, ret)
	return ret
}

// Specimens builds one Specimen per pressure column, restricted to trim.
// Time restarts at zero on the first kept sample. The specimens are not
// validated here so that one broken or short column does not hide the
// others; Specimen.Series reports the problem.
func (r *Rig) Specimens(trim Trim) ([]*Specimen, error) {
	if err := trim.Validate(); err != nil {
		return nil, err
	}
	if len(r.Pressures) == 0 {
		return nil, ErrNoSpecimens
	}
	if len(r.Thermocouples) == 0 {
		return nil, ErrNoThermocouples
	}
	kelvin := r.AverageKelvin()
	ret := make([]*Specimen, 0, len(r.Pressures))
	for _, col := range r.Pressures {
		n := min(len(col.Values), len(r.Hours))
		lo, hi := trim.bounds(n)
		elapsed := make([]float64, hi-lo)
		copy(elapsed, r.Hours[lo:hi])
		if len(elapsed) > 0 {
			floats.AddConst(-elapsed[0], elapsed)
		}
		ret = append(ret, &Specimen{
			ID:          col.Name,
			Time:        elapsed,
			Pressure:    append([]float64(nil), col.Values[lo:hi]...),
			Temperature: append([]float64(nil), kelvin[lo:hi]...),
		})
	}
	return ret, nil
}
