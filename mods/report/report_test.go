package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/airperm/aptfit/mods/batch"
	"github.com/airperm/aptfit/mods/nums"
	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/airperm/aptfit/mods/report"
	"github.com/airperm/aptfit/mods/specimen"
	"github.com/stretchr/testify/require"
)

var truth = decay.Params{A: 2.5, B: 1.3, C: 0.5}

func analyzed(t *testing.T, id string, fitter decay.Fitter) *batch.Outcome {
	t.Helper()
	tm := nums.Linspace(0, 4, 30)
	k := make([]float64, len(tm))
	for i := range k {
		k[i] = decay.DefaultReferenceTemperature
	}
	sp, err := specimen.New(id, tm, truth.Curve(tm), k)
	require.NoError(t, err)
	ser, err := sp.Series()
	require.NoError(t, err)

	cfg := decay.DefaultConfig()
	cfg.Fitter = fitter
	model, err := decay.New(cfg)
	require.NoError(t, err)
	a, err := model.Analyze(ser)
	require.NoError(t, err)
	return &batch.Outcome{Specimen: sp, Analysis: a}
}

func failingFitter() decay.Fitter {
	f := decay.DefaultFitter()
	f.MaxIterations = 1
	f.Seeds = []decay.Params{{A: 1, B: 1, C: 1}}
	return f
}

func TestHorizon(t *testing.T) {
	require.Equal(t, 771.0, report.Horizon{Months: 1, Days: 2, Hours: 3}.InHours())
	require.Equal(t, 0.0, report.Horizon{}.InHours())
}

func TestSummarize(t *testing.T) {
	outcomes := []*batch.Outcome{
		analyzed(t, "p1", decay.DefaultFitter()),
		analyzed(t, "p2", failingFitter()),
		{Specimen: &specimen.Specimen{ID: "p3"}, Err: errors.New("broken column")},
		nil,
	}
	rows := report.Summarize(outcomes, report.Horizon{Hours: 2})
	require.Len(t, rows, 4)

	ok := rows[0]
	require.Equal(t, "p1", ok.ID)
	require.Equal(t, 30, ok.Samples)
	require.Equal(t, report.StatusConverged, ok.Status)
	require.InDelta(t, truth.A, ok.A.Float64(), 1e-6)
	require.InDelta(t, truth.Eval(2), ok.Projected.Float64(), 1e-6)
	require.InDelta(t, truth.Eval(2), ok.Observed.Float64(), 0.01)
	require.Equal(t, 2.0, ok.Horizon.Float64())
	require.InDelta(t, 1.0, ok.Correlation.Float64(), 1e-9)
	require.Empty(t, ok.Error)

	failed := rows[1]
	require.Equal(t, report.StatusFailed, failed.Status)
	require.Equal(t, 0.0, failed.A.Float64())
	require.True(t, math.IsNaN(failed.Projected.Float64()))
	require.True(t, math.IsNaN(failed.Correlation.Float64()))
	require.False(t, math.IsNaN(failed.Observed.Float64()))
	require.NotEmpty(t, failed.Error)

	require.Equal(t, report.StatusInvalid, rows[2].Status)
	require.Equal(t, "broken column", rows[2].Error)
	require.True(t, math.IsNaN(rows[2].A.Float64()))
	require.Equal(t, report.StatusInvalid, rows[3].Status)

	rows = report.Summarize(outcomes[:1], report.Horizon{Days: 1})
	require.True(t, math.IsNaN(rows[0].Observed.Float64()))
	require.InDelta(t, truth.Eval(24), rows[0].Projected.Float64(), 1e-6)
}

func TestNumberJSON(t *testing.T) {
	b, err := json.Marshal([]report.Number{1.5, report.Number(math.NaN()), report.Number(math.Inf(-1))})
	require.NoError(t, err)
	require.Equal(t, "[1.5,null,null]", string(b))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]report.Format{
		"":     report.FormatBox,
		"BOX":  report.FormatBox,
		"json": report.FormatJSON,
		"yml":  report.FormatYAML,
		"csv":  report.FormatCSV,
	} {
		f, err := report.ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, f, in)
	}
	_, err := report.ParseFormat("xlsx")
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestEncodeSummary(t *testing.T) {
	outcomes := []*batch.Outcome{
		analyzed(t, "p1", decay.DefaultFitter()),
		analyzed(t, "p2", failingFitter()),
	}
	rows := report.Summarize(outcomes, report.Horizon{Hours: 1})

	buf := &bytes.Buffer{}
	require.NoError(t, report.NewEncoder(report.FormatJSON).Summary(buf, rows))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "converged", decoded[0]["status"])
	require.Nil(t, decoded[1]["projected"])

	buf.Reset()
	require.NoError(t, report.NewEncoder(report.FormatYAML).Summary(buf, rows))
	require.Contains(t, buf.String(), "status: converged")
	require.Contains(t, buf.String(), "projected: .nan")

	buf.Reset()
	enc := report.NewEncoder(report.FormatCSV)
	enc.Precision = 3
	require.NoError(t, enc.Summary(buf, rows))
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "ID", records[0][0])
	require.Len(t, records[1], 15)
	require.Equal(t, "2.500", records[1][3])
	require.Equal(t, "1.000", records[1][10])
	require.Equal(t, "NaN", records[2][10])
	require.Equal(t, "NaN", records[2][13])

	buf.Reset()
	enc = report.NewEncoder(report.FormatBox)
	enc.Style = "light"
	require.NoError(t, enc.Summary(buf, rows))
	require.Contains(t, buf.String(), "p1")
	require.Contains(t, buf.String(), "PROJECTED")

	buf.Reset()
	enc = report.NewEncoder(report.FormatCSV)
	enc.Heading = false
	require.NoError(t, enc.Summary(buf, rows))
	require.Equal(t, 2, strings.Count(buf.String(), "\n"))

	err = report.NewEncoder(report.Format("xlsx")).Summary(buf, rows)
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestBandTable(t *testing.T) {
	o := analyzed(t, "p1", decay.DefaultFitter())
	tbl := report.NewBandTable("p1", o.Analysis)
	require.Len(t, tbl.Rows, decay.DefaultBandSamples)
	require.Equal(t, 0.0, tbl.Rows[0].T.Float64())
	require.Equal(t, 4.0, tbl.Rows[len(tbl.Rows)-1].T.Float64())
	for _, r := range tbl.Rows {
		require.LessOrEqual(t, r.ConfLower.Float64(), r.Fit.Float64())
		require.GreaterOrEqual(t, r.ConfUpper.Float64(), r.Fit.Float64())
		require.LessOrEqual(t, r.PredLower.Float64(), r.Fit.Float64())
		require.GreaterOrEqual(t, r.PredUpper.Float64(), r.Fit.Float64())
	}

	failed := report.NewBandTable("p2", analyzed(t, "p2", failingFitter()).Analysis)
	require.True(t, math.IsNaN(failed.Rows[0].PredLower.Float64()))

	buf := &bytes.Buffer{}
	enc := report.NewEncoder(report.FormatCSV)
	require.NoError(t, enc.Bands(buf, tbl))
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, decay.DefaultBandSamples+1)
	require.Equal(t, "SIGMA_UPPER", records[0][7])

	buf.Reset()
	require.NoError(t, report.NewEncoder(report.FormatBox).Bands(buf, tbl))
	require.Contains(t, buf.String(), "p1")
}
