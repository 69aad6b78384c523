// Package report turns batch outcomes into summary and band tables and
// renders them as text boxes, JSON, YAML or CSV.
package report

import (
	"math"
	"strconv"

	"github.com/airperm/aptfit/mods/batch"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// Horizon is the elapsed test time a summary projects to.
// A month counts as 30 days.
type Horizon struct {
	Months float64 `json:"months" yaml:"months"`
	Days   float64 `json:"days" yaml:"days"`
	Hours  float64 `json:"hours" yaml:"hours"`
}

func (h Horizon) InHours() float64 {
	return 720*h.Months + 24*h.Days + h.Hours
}

// Number is a float64 that encodes non-finite values as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (n Number) Float64() float64 { return float64(n) }

const (
	StatusConverged = "converged"
	StatusFailed    = "failed"
	StatusInvalid   = "invalid"
)

// Row is the summary line of one specimen.
type Row struct {
	ID      string `json:"id" yaml:"id"`
	Samples int    `json:"samples" yaml:"samples"`
	Status  string `json:"status" yaml:"status"`
	A       Number `json:"a" yaml:"a"`
	B       Number `json:"b" yaml:"b"`
	C       Number `json:"c" yaml:"c"`
	SigmaA  Number `json:"sigma_a" yaml:"sigma_a"`
	SigmaB  Number `json:"sigma_b" yaml:"sigma_b"`
	SigmaC  Number `json:"sigma_c" yaml:"sigma_c"`
	RSS     Number `json:"rss" yaml:"rss"`
	// Correlation is Pearson's r between the normalized pressure and the
	// fitted curve at the sample times.
	Correlation Number `json:"correlation" yaml:"correlation"`
	Iterations  int    `json:"iterations" yaml:"iterations"`
	// Horizon is the projection time in hours.
	Horizon Number `json:"horizon" yaml:"horizon"`
	// Projected is the fitted pressure at Horizon.
	Projected Number `json:"projected" yaml:"projected"`
	// Observed is the normalized pressure interpolated at Horizon,
	// NaN when Horizon lies outside the data.
	Observed Number `json:"observed" yaml:"observed"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summarize builds one Row per outcome, in order.
// Failed fits keep their zero parameters in the row.
func Summarize(outcomes []*batch.Outcome, horizon Horizon) []Row {
	hours := horizon.InHours()
	nan := Number(math.NaN())
	ret := make([]Row, 0, len(outcomes))
	for _, o := range outcomes {
		row := Row{
			Status:      StatusInvalid,
			A:           nan,
			B:           nan,
			C:           nan,
			SigmaA:      nan,
			SigmaB:      nan,
			SigmaC:      nan,
			RSS:         nan,
			Correlation: nan,
			Horizon:     Number(hours),
			Projected:   nan,
			Observed:    nan,
		}
		if o == nil {
			ret = append(ret, row)
			continue
		}
		if o.Specimen != nil {
			row.ID = o.Specimen.ID
			row.Samples = o.Specimen.Len()
		}
		if o.Err != nil || o.Analysis == nil {
			if o.Err != nil {
				row.Error = o.Err.Error()
			}
			ret = append(ret, row)
			continue
		}
		fit := o.Analysis.Fit
		row.A, row.B, row.C = Number(fit.Params.A), Number(fit.Params.B), Number(fit.Params.C)
		row.SigmaA = Number(o.Analysis.StdErrors.A)
		row.SigmaB = Number(o.Analysis.StdErrors.B)
		row.SigmaC = Number(o.Analysis.StdErrors.C)
		row.RSS = Number(fit.RSS)
		row.Iterations = fit.Iterations
		row.Observed = Number(observedAt(o.Specimen.Time, o.Analysis.Normalized, hours))
		if fit.Converged() {
			row.Status = StatusConverged
			row.Projected = Number(fit.Params.Eval(hours))
			row.Correlation = Number(correlation(o.Analysis.Normalized, fit.Params.Curve(o.Specimen.Time)))
		} else {
			row.Status = StatusFailed
			if fit.Reason != nil {
				row.Error = fit.Reason.Error()
			}
		}
		ret = append(ret, row)
	}
	return ret
}

func correlation(y, fit []float64) float64 {
	if len(y) < 2 || len(y) != len(fit) {
		return math.NaN()
	}
	return stat.Correlation(y, fit, nil)
}

func observedAt(t, y []float64, x float64) float64 {
	if len(t) < 2 || len(t) != len(y) || x < t[0] || x > t[len(t)-1] {
		return math.NaN()
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(t, y); err != nil {
		return math.NaN()
	}
	return pl.Predict(x)
}
