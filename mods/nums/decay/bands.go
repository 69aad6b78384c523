package decay

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Band is a pair of curves around the fitted model, sampled at T.
type Band struct {
	T     []float64 `json:"t" yaml:"t"`
	Fit   []float64 `json:"fit" yaml:"fit"`
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

func (b Band) Len() int { return len(b.T) }

// HalfWidth is the larger distance from the fitted curve to either edge at i.
func (b Band) HalfWidth(i int) float64 {
	return math.Max(b.Upper[i]-b.Fit[i], b.Fit[i]-b.Lower[i])
}

// ConfidenceBand returns the coordinate-wise parameter envelope of the
// fitted curve.
//
// Each parameter is moved by k standard errors independently, where k is the
// two-sided standard normal critical value of level, and the model is
// evaluated at the two extreme combinations (a+kσa, b-kσb, c+kσc) and
// (a-kσa, b+kσb, c-kσc). Parameter correlations are ignored, so this is a
// worst-case envelope and not a joint confidence region of the curve.
// The edges are the pointwise minimum and maximum of those two curves and
// the fitted curve itself, so the band always contains the fit.
// A covariance with a negative diagonal yields NaN edges.
func ConfidenceBand(ts []float64, p Params, cov Covariance, level float64) (Band, error) {
	k, err := normalCritical(level)
	if err != nil {
		return Band{}, err
	}
	return envelope(ts, p, StandardErrors(cov), k), nil
}

// OneSigmaBand is the envelope with every parameter moved by exactly one
// standard error, independent of any confidence level. It is the band
// printed in the legacy spreadsheet reports.
func OneSigmaBand(ts []float64, p Params, cov Covariance) Band {
	return envelope(ts, p, StandardErrors(cov), 1)
}

func envelope(ts []float64, p Params, se StdErrors, k float64) Band {
	hi := Params{A: p.A + k*se.A, B: p.B - k*se.B, C: p.C + k*se.C}
	lo := Params{A: p.A - k*se.A, B: p.B + k*se.B, C: p.C - k*se.C}
	ret := newBand(ts, p)
	for i, t := range ts {
		v1, v2 := hi.Eval(t), lo.Eval(t)
		ret.Lower[i] = min(v1, v2, ret.Fit[i])
		ret.Upper[i] = max(v1, v2, ret.Fit[i])
	}
	return ret
}

// PredictionBand bounds where new observations are expected to fall.
//
// The half-width at t is
//
//	q * se * sqrt(1 + 1/N + (t - mean(tData))² / Σ(tData_i - mean(tData))²)
//
// with se the residual standard error over N-3 degrees of freedom and q the
// two-sided Student-t critical value of level. This is the linear regression
// prediction interval applied around the nonlinear point estimate, an
// approximation that holds near the fitted curve.
func PredictionBand(ts, tData, yData []float64, p Params, level float64) (Band, error) {
	n := len(tData)
	if len(yData) != n {
		return Band{}, fmt.Errorf("%w: length mismatch time=%d values=%d", ErrInvalidInput, n, len(yData))
	}
	dof := n - NumParams
	if dof <= 0 {
		return Band{}, fmt.Errorf("%w: %d samples leave %d degrees of freedom", ErrInsufficientDoF, n, dof)
	}
	if !validLevel(level) {
		return Band{}, ErrInvalidLevel
	}

	rss := 0.0
	for i, t := range tData {
		r := yData[i] - p.Eval(t)
		rss += r * r
	}
	se := math.Sqrt(rss / float64(dof))

	student := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	q := student.Quantile(1 - (1-level)/2)

	mean := stat.Mean(tData, nil)
	sxd := 0.0
	for _, t := range tData {
		sxd += (t - mean) * (t - mean)
	}
	if sxd == 0 {
		return Band{}, fmt.Errorf("%w: time samples have no spread", ErrInvalidInput)
	}

	ret := newBand(ts, p)
	for i, t := range ts {
		h := (t - mean) * (t - mean) / sxd
		dy := q * se * math.Sqrt(1+1/float64(n)+h)
		ret.Lower[i] = ret.Fit[i] - dy
		ret.Upper[i] = ret.Fit[i] + dy
	}
	return ret, nil
}

func newBand(ts []float64, p Params) Band {
	return Band{
		T:     append([]float64(nil), ts...),
		Fit:   p.Curve(ts),
		Lower: make([]float64, len(ts)),
		Upper: make([]float64, len(ts)),
	}
}

func validLevel(level float64) bool {
	return level > 0 && level < 1
}

func normalCritical(level float64) (float64, error) {
	if !validLevel(level) {
		return 0, ErrInvalidLevel
	}
	return distuv.UnitNormal.Quantile(1 - (1-level)/2), nil
}
