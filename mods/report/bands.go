package report

import (
	"math"

	"github.com/airperm/aptfit/mods/nums/decay"
)

// BandRow is one evaluation point of the bands of a specimen.
type BandRow struct {
	T          Number `json:"t" yaml:"t"`
	Fit        Number `json:"fit" yaml:"fit"`
	ConfLower  Number `json:"conf_lower" yaml:"conf_lower"`
	ConfUpper  Number `json:"conf_upper" yaml:"conf_upper"`
	PredLower  Number `json:"pred_lower" yaml:"pred_lower"`
	PredUpper  Number `json:"pred_upper" yaml:"pred_upper"`
	SigmaLower Number `json:"sigma_lower" yaml:"sigma_lower"`
	SigmaUpper Number `json:"sigma_upper" yaml:"sigma_upper"`
}

type BandTable struct {
	ID   string    `json:"id" yaml:"id"`
	Rows []BandRow `json:"rows" yaml:"rows"`
}

// NewBandTable lays out the bands of an analysis side by side.
// The prediction columns are NaN when the fit failed.
func NewBandTable(id string, a *decay.Analysis) BandTable {
	ret := BandTable{ID: id, Rows: make([]BandRow, len(a.Samples))}
	for i, t := range a.Samples {
		row := BandRow{
			T:          Number(t),
			Fit:        Number(a.Confidence.Fit[i]),
			ConfLower:  Number(a.Confidence.Lower[i]),
			ConfUpper:  Number(a.Confidence.Upper[i]),
			PredLower:  Number(math.NaN()),
			PredUpper:  Number(math.NaN()),
			SigmaLower: Number(a.OneSigma.Lower[i]),
			SigmaUpper: Number(a.OneSigma.Upper[i]),
		}
		if i < a.Prediction.Len() {
			row.PredLower = Number(a.Prediction.Lower[i])
			row.PredUpper = Number(a.Prediction.Upper[i])
		}
		ret.Rows[i] = row
	}
	return ret
}
