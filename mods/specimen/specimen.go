// Package specimen turns air-permeation rig exports into per-specimen
// time series ready for the decay model.
package specimen

import (
	"errors"
	"fmt"
	"slices"

	"github.com/airperm/aptfit/mods/nums/decay"
)

var (
	ErrNoSpecimens     = errors.New("no specimen pressure columns")
	ErrNoThermocouples = errors.New("no thermocouple columns")
	ErrNoTime          = errors.New("no time column")
	ErrBadValue        = errors.New("unparsable value")
	ErrBadTrim         = errors.New("invalid trim window")
)

// Specimen is the series of one test specimen.
// Time is in hours, Pressure in psi and Temperature in Kelvin.
type Specimen struct {
	ID          string    `json:"id" yaml:"id"`
	Time        []float64 `json:"time" yaml:"time"`
	Pressure    []float64 `json:"pressure" yaml:"pressure"`
	Temperature []float64 `json:"temperature" yaml:"temperature"`
}

// New validates the three aligned sequences and returns a specimen
// holding copies of them.
func New(id string, time, pressure, temperature []float64) (*Specimen, error) {
	if _, err := decay.NewSeries(time, pressure, temperature); err != nil {
		return nil, fmt.Errorf("specimen %s: %w", id, err)
	}
	return &Specimen{
		ID:          id,
		Time:        slices.Clone(time),
		Pressure:    slices.Clone(pressure),
		Temperature: slices.Clone(temperature),
	}, nil
}

func (s *Specimen) Len() int {
	return len(s.Time)
}

// Series validates the specimen and converts it for the decay model.
func (s *Specimen) Series() (*decay.Series, error) {
	ser, err := decay.NewSeries(s.Time, s.Pressure, s.Temperature)
	if err != nil {
		return nil, fmt.Errorf("specimen %s: %w", s.ID, err)
	}
	return ser, nil
}
