// Package nums holds the sampling grids shared by the fitting and reporting code.
package nums

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Arrange returns start, start+step, ... up to and including stop.
// An empty slice is returned when step does not move start towards stop.
func Arrange(start float64, stop float64, step float64) []float64 {
	if start == stop || step == 0 {
		return []float64{}
	}
	if start <= stop && step < 0 {
		return []float64{}
	}
	if start > stop && step > 0 {
		return []float64{}
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = start + float64(i)*step
	}
	return ret
}

func Linspace50(start float64, stop float64) []float64 {
	return Linspace(start, stop, 50)
}

// Linspace returns num evenly spaced values over [start, stop].
// The last element is exactly stop.
func Linspace(start float64, stop float64, num int) []float64 {
	switch {
	case num <= 0:
		return []float64{}
	case num == 1:
		return []float64{start}
	}
	ret := floats.Span(make([]float64, num), start, stop)
	ret[num-1] = stop
	return ret
}

// Span returns the smallest and largest value of x, or NaNs when x is empty.
func Span(x []float64) (float64, float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(x), floats.Max(x)
}
