package decay

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Params are the amplitude A, decay rate B and asymptote C of the model.
type Params struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
	C float64 `json:"c" yaml:"c"`
}

func (p Params) String() string {
	return fmt.Sprintf("a=%g b=%g c=%g", p.A, p.B, p.C)
}

// Eval returns the model value at t hours.
func (p Params) Eval(t float64) float64 {
	return p.A*math.Exp(-p.B*t) + p.C
}

// Curve evaluates the model at every point of ts.
func (p Params) Curve(ts []float64) []float64 {
	ret := make([]float64, len(ts))
	for i, t := range ts {
		ret[i] = p.Eval(t)
	}
	return ret
}

func (p Params) IsZero() bool {
	return p.A == 0 && p.B == 0 && p.C == 0
}

func (p Params) finite() bool {
	for _, v := range []float64{p.A, p.B, p.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func paramsOf(v mat.Vector) Params {
	return Params{A: v.AtVec(0), B: v.AtVec(1), C: v.AtVec(2)}
}

func (p Params) vec() *mat.VecDense {
	return mat.NewVecDense(NumParams, []float64{p.A, p.B, p.C})
}

// Covariance is the 3x3 parameter covariance in (A, B, C) order.
type Covariance [NumParams][NumParams]float64

func (c Covariance) At(i, j int) float64 { return c[i][j] }

func (c Covariance) Diag() [NumParams]float64 {
	return [NumParams]float64{c[0][0], c[1][1], c[2][2]}
}

func (c Covariance) IsZero() bool {
	return c == Covariance{}
}

// Matrix returns a copy as a gonum symmetric matrix.
func (c Covariance) Matrix() *mat.SymDense {
	ret := mat.NewSymDense(NumParams, nil)
	for i := 0; i < NumParams; i++ {
		for j := i; j < NumParams; j++ {
			ret.SetSym(i, j, c[i][j])
		}
	}
	return ret
}

func covarianceOf(m mat.Symmetric, scale float64) Covariance {
	var ret Covariance
	for i := 0; i < NumParams; i++ {
		for j := 0; j < NumParams; j++ {
			ret[i][j] = m.At(i, j) * scale
		}
	}
	return ret
}

// StdErrors are the one-sigma uncertainties of the parameters.
// An entry is NaN when the matching covariance diagonal is negative or NaN.
type StdErrors struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
	C float64 `json:"c" yaml:"c"`
}

// StandardErrors takes the square root of the covariance diagonal.
func StandardErrors(cov Covariance) StdErrors {
	d := cov.Diag()
	return StdErrors{A: safeSqrt(d[0]), B: safeSqrt(d[1]), C: safeSqrt(d[2])}
}

// Valid reports whether every entry is a usable non-negative number.
func (se StdErrors) Valid() bool {
	for _, v := range []float64{se.A, se.B, se.C} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

func safeSqrt(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return math.NaN()
	}
	return math.Sqrt(v)
}
