package decay

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotConverged = errors.New("fit did not converge")
	ErrSingular     = errors.New("singular normal matrix")
	ErrNonFinite    = errors.New("non-finite model value")
)

type Status int

const (
	StatusFailed Status = iota
	StatusConverged
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	default:
		return "failed"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FitResult is the outcome of fitting one series.
//
// A failed fit keeps Params and Covariance at zero, the sentinel older
// report consumers look for, but callers should test Converged() instead
// because a legitimate fit may come close to zero.
type FitResult struct {
	Status     Status
	Params     Params
	Covariance Covariance
	// Reason is set only for failed fits.
	Reason error
	// RSS is the residual sum of squares at the solution.
	RSS float64
	// DoF is N minus the number of parameters.
	DoF int
	// Iterations counts every iteration of every attempted seed.
	Iterations int
	// Seed is the initial guess that led to the solution.
	Seed Params
}

func (r *FitResult) Converged() bool {
	return r != nil && r.Status == StatusConverged
}

// ResidualStdError is sqrt(RSS/DoF), NaN for a failed fit.
func (r *FitResult) ResidualStdError() float64 {
	if !r.Converged() || r.DoF <= 0 {
		return math.NaN()
	}
	return math.Sqrt(r.RSS / float64(r.DoF))
}

// Fitter is a Levenberg-Marquardt least-squares solver for the decay model.
//
// Convergence is declared by the first of three tests, the same family
// MINPACK uses: the relative reduction of the residual sum of squares falls
// below FTol, the relative step length falls below XTol, or the cosine
// between the residual and every Jacobian column falls below GTol.
// MaxIterations bounds the work per seed.
type Fitter struct {
	MaxIterations int
	FTol          float64
	XTol          float64
	GTol          float64
	// Seeds overrides the initial guess policy when not empty.
	Seeds []Params
}

const (
	sqrtEpsilon = 1.4901161193847656e-08

	initialDamping    = 1e-3
	maxTrustedDamping = 1.0
)

func DefaultFitter() Fitter {
	return Fitter{
		MaxIterations: 400,
		FTol:          sqrtEpsilon,
		XTol:          sqrtEpsilon,
		GTol:          sqrtEpsilon,
	}
}

// Fit fits the default Fitter to t (hours) and y (normalized pressure).
func Fit(t, y []float64) (*FitResult, error) {
	return DefaultFitter().Fit(t, y)
}

// Fit returns an error only for invalid input. Optimizer failures are
// reported through a FitResult with StatusFailed.
//
// The seeds are tried in order and the first converged solution is kept.
// See InitialGuesses for the default seed sequence.
func (f Fitter) Fit(t, y []float64) (*FitResult, error) {
	if err := checkSamples(t, y); err != nil {
		return nil, err
	}
	if f.MaxIterations <= 0 {
		return nil, fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, f.MaxIterations)
	}
	seeds := f.Seeds
	if len(seeds) == 0 {
		seeds = InitialGuesses(t, y)
	}
	var lastErr error
	iterations := 0
	for _, seed := range seeds {
		sol, err := f.solve(t, y, seed)
		iterations += sol.iterations
		if err != nil {
			lastErr = fmt.Errorf("seed (%v): %w", seed, err)
			continue
		}
		return &FitResult{
			Status:     StatusConverged,
			Params:     sol.params,
			Covariance: sol.covariance,
			RSS:        sol.rss,
			DoF:        len(t) - NumParams,
			Iterations: iterations,
			Seed:       seed,
		}, nil
	}
	return &FitResult{
		Status:     StatusFailed,
		Reason:     lastErr,
		RSS:        math.NaN(),
		DoF:        len(t) - NumParams,
		Iterations: iterations,
	}, nil
}

// InitialGuesses is the deterministic seed sequence used when a Fitter has
// no explicit Seeds.
//
//  1. data informed: the asymptote is placed 10% of the total drop beyond
//     the last sample, amplitude and rate come from a log-linear regression
//     of the remaining distance to that asymptote.
//  2. (1, 1, 1), the classic curve fitting default.
//  3. (1, 1, 0).
//
// The first seed is omitted when the data gives it no support, e.g. a flat
// series.
func InitialGuesses(t, y []float64) []Params {
	ret := make([]Params, 0, 3)
	if p, ok := dataGuess(t, y); ok {
		ret = append(ret, p)
	}
	return append(ret, Params{A: 1, B: 1, C: 1}, Params{A: 1, B: 1, C: 0})
}

func dataGuess(t, y []float64) (Params, bool) {
	first, last := y[0], y[len(y)-1]
	drop := first - last
	if drop == 0 {
		return Params{}, false
	}
	sign := 1.0
	if drop < 0 {
		sign = -1
	}
	c := last - 0.1*drop
	xs := make([]float64, 0, len(t))
	ls := make([]float64, 0, len(t))
	for i := range t {
		if d := sign * (y[i] - c); d > 0 {
			xs = append(xs, t[i])
			ls = append(ls, math.Log(d))
		}
	}
	if len(xs) < 2 {
		return Params{}, false
	}
	// ln|y - c| = ln|a| - b*t
	alpha, beta := stat.LinearRegression(xs, ls, nil, false)
	ret := Params{A: sign * math.Exp(alpha), B: -beta, C: c}
	return ret, ret.finite()
}

type solution struct {
	params     Params
	covariance Covariance
	rss        float64
	iterations int
}

func (f Fitter) solve(t, y []float64, seed Params) (solution, error) {
	var sol solution
	if !seed.finite() {
		return sol, ErrNonFinite
	}
	n := len(t)
	p := seed.vec()
	res := mat.NewVecDense(n, nil)
	rss := residuals(t, y, p, res)
	if !isFinite(rss) {
		return sol, ErrNonFinite
	}

	var (
		jac      = mat.NewDense(n, NumParams, nil)
		jtj      = mat.NewSymDense(NumParams, nil)
		damped   = mat.NewSymDense(NumParams, nil)
		grad     = mat.NewVecDense(NumParams, nil)
		step     = mat.NewVecDense(NumParams, nil)
		trial    = mat.NewVecDense(NumParams, nil)
		trialRes = mat.NewVecDense(n, nil)
		scale    [NumParams]float64
		chol     mat.Cholesky
	)
	// λ is relative to diag(JᵀJ), so it does not depend on the units of
	// the data.
	lambda, nu := initialDamping, 2.0
	converged := false

	for sol.iterations < f.MaxIterations && !converged {
		sol.iterations++
		if rss == 0 {
			converged = true
			break
		}
		jacobian(t, p, jac)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), res)

		if gradientCosine(grad, jtj, rss) <= f.GTol {
			converged = true
			break
		}
		for i := range scale {
			scale[i] = math.Max(jtj.At(i, i), 1e-300)
		}

		// (JᵀJ + λ·diag(JᵀJ)) δ = Jᵀr
		factorized := false
		for !factorized {
			damped.CopySym(jtj)
			for i := range scale {
				damped.SetSym(i, i, jtj.At(i, i)+lambda*scale[i])
			}
			if factorized = chol.Factorize(damped); !factorized {
				lambda *= nu
				nu *= 2
				if !isFinite(lambda) {
					return sol, ErrSingular
				}
			}
		}
		if err := chol.SolveVecTo(step, grad); err != nil && !isFinite(mat.Norm(step, 2)) {
			return sol, ErrSingular
		}
		// A short step only means convergence while the damping does not
		// dominate the curvature.
		trusted := lambda <= maxTrustedDamping
		if trusted && mat.Norm(step, 2) <= f.XTol*(mat.Norm(p, 2)+f.XTol) {
			converged = true
			break
		}

		trial.AddVec(p, step)
		trialRSS := residuals(t, y, trial, trialRes)
		predicted := 0.0
		for i := range scale {
			d := step.AtVec(i)
			predicted += d * (lambda*scale[i]*d + grad.AtVec(i))
		}
		rho := (rss - trialRSS) / predicted
		if isFinite(trialRSS) && predicted > 0 && rho > 0 {
			reduction := rss - trialRSS
			p.CopyVec(trial)
			res.CopyVec(trialRes)
			rss = trialRSS
			lambda *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
			if trusted && reduction <= f.FTol*(rss+reduction) {
				converged = true
			}
		} else {
			lambda *= nu
			nu *= 2
			if !isFinite(lambda) {
				return sol, ErrNotConverged
			}
		}
	}
	if !converged {
		return sol, fmt.Errorf("%w after %d iterations", ErrNotConverged, sol.iterations)
	}

	sol.params = paramsOf(p)
	sol.rss = rss
	if !sol.params.finite() {
		return sol, ErrNonFinite
	}

	// covariance = (JᵀJ)⁻¹ · RSS/(N-3) at the solution
	jacobian(t, p, jac)
	jtj.SymOuterK(1, jac.T())
	if ok := chol.Factorize(jtj); !ok {
		return sol, ErrSingular
	}
	inv := mat.NewSymDense(NumParams, nil)
	if err := chol.InverseTo(inv); err != nil {
		return sol, fmt.Errorf("%w: %w", ErrSingular, err)
	}
	sol.covariance = covarianceOf(inv, rss/float64(n-NumParams))
	for _, v := range sol.covariance.Diag() {
		if !isFinite(v) {
			return sol, ErrSingular
		}
	}
	return sol, nil
}

// residuals fills res with y - model(t) and returns the sum of squares.
func residuals(t, y []float64, p mat.Vector, res *mat.VecDense) float64 {
	params := paramsOf(p)
	sum := 0.0
	for i := range t {
		r := y[i] - params.Eval(t[i])
		res.SetVec(i, r)
		sum += r * r
	}
	return sum
}

// jacobian fills jac with the partial derivatives of the model.
func jacobian(t []float64, p mat.Vector, jac *mat.Dense) {
	a, b := p.AtVec(0), p.AtVec(1)
	for i, ti := range t {
		e := math.Exp(-b * ti)
		jac.Set(i, 0, e)
		jac.Set(i, 1, -a*ti*e)
		jac.Set(i, 2, 1)
	}
}

// gradientCosine is the largest cosine between the residual vector and a
// Jacobian column.
func gradientCosine(grad mat.Vector, jtj mat.Symmetric, rss float64) float64 {
	rnorm := math.Sqrt(rss)
	ret := 0.0
	for i := 0; i < NumParams; i++ {
		cnorm := math.Sqrt(jtj.At(i, i))
		if cnorm == 0 {
			continue
		}
		ret = math.Max(ret, math.Abs(grad.AtVec(i))/(cnorm*rnorm))
	}
	return ret
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
