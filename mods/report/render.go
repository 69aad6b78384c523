package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatBox  Format = "box"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

var ErrUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBox, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "":
		return FormatBox, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

type Encoder struct {
	Format Format
	// Style of the box format: default, bold, double, light or round.
	Style     string
	Heading   bool
	Precision int
}

func NewEncoder(format Format) *Encoder {
	return &Encoder{
		Format:    format,
		Style:     "default",
		Heading:   true,
		Precision: 6,
	}
}

var summaryHeader = []string{
	"ID", "N", "STATUS", "A", "B", "C", "SIGMA_A", "SIGMA_B", "SIGMA_C",
	"RSS", "R", "ITER", "HORIZON", "PROJECTED", "OBSERVED",
}

func (enc *Encoder) Summary(w io.Writer, rows []Row) error {
	records := make([][]any, len(rows))
	for i, r := range rows {
		records[i] = []any{
			r.ID, r.Samples, r.Status, r.A, r.B, r.C, r.SigmaA, r.SigmaB, r.SigmaC,
			r.RSS, r.Correlation, r.Iterations, r.Horizon, r.Projected, r.Observed,
		}
	}
	return enc.encode(w, "", rows, summaryHeader, records)
}

var bandHeader = []string{
	"T", "FIT", "CONF_LOWER", "CONF_UPPER", "PRED_LOWER", "PRED_UPPER", "SIGMA_LOWER", "SIGMA_UPPER",
}

func (enc *Encoder) Bands(w io.Writer, tbl BandTable) error {
	records := make([][]any, len(tbl.Rows))
	for i, r := range tbl.Rows {
		records[i] = []any{r.T, r.Fit, r.ConfLower, r.ConfUpper, r.PredLower, r.PredUpper, r.SigmaLower, r.SigmaUpper}
	}
	return enc.encode(w, tbl.ID, tbl, bandHeader, records)
}

// Table renders arbitrary records. The json and yaml formats encode value
// instead of the records.
func (enc *Encoder) Table(w io.Writer, title string, value any, header []string, records [][]any) error {
	return enc.encode(w, title, value, header, records)
}

func (enc *Encoder) encode(w io.Writer, title string, value any, header []string, records [][]any) error {
	switch enc.Format {
	case FormatJSON:
		je := json.NewEncoder(w)
		je.SetIndent("", "  ")
		return je.Encode(value)
	case FormatYAML:
		ye := yaml.NewEncoder(w)
		ye.SetIndent(2)
		if err := ye.Encode(value); err != nil {
			return err
		}
		return ye.Close()
	case FormatCSV:
		cw := csv.NewWriter(w)
		if enc.Heading {
			cw.Write(header)
		}
		for _, rec := range records {
			fields := make([]string, len(rec))
			for i, v := range rec {
				fields[i] = enc.text(v)
			}
			cw.Write(fields)
		}
		cw.Flush()
		return cw.Error()
	case FormatBox, "":
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(enc.boxStyle())
		if title != "" {
			tw.SetTitle(title)
		}
		if enc.Heading {
			row := make(table.Row, len(header))
			for i, h := range header {
				row[i] = h
			}
			tw.AppendHeader(row)
		}
		for _, rec := range records {
			row := make(table.Row, len(rec))
			for i, v := range rec {
				row[i] = enc.text(v)
			}
			tw.AppendRow(row)
		}
		tw.Render()
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, enc.Format)
	}
}

func (enc *Encoder) boxStyle() table.Style {
	style := table.StyleDefault
	switch enc.Style {
	case "bold":
		style = table.StyleBold
	case "double":
		style = table.StyleDouble
	case "light":
		style = table.StyleLight
	case "round":
		style = table.StyleRounded
	}
	return style
}

func (enc *Encoder) text(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case Number:
		if enc.Precision < 0 {
			return strconv.FormatFloat(float64(val), 'g', -1, 64)
		}
		return strconv.FormatFloat(float64(val), 'f', enc.Precision, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
