package specimen

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// Comma is the field delimiter, ',' when zero.
	Comma rune
	// TimeLayout parses the time column as timestamps with this layout.
	// When empty the first value decides: a number means elapsed hours,
	// anything else is tried against the layouts in TimeLayouts.
	TimeLayout string
	// Location of timestamps without a zone, UTC when nil.
	Location *time.Location
}

// SetDelimiter sets Comma from the first rune of delimiter.
func (opts *CSVOptions) SetDelimiter(delimiter string) {
	if delimiter == `\t` {
		delimiter = "\t"
	}
	opts.Comma, _ = utf8.DecodeRuneInString(delimiter)
}

// TimeLayouts are the timestamp layouts recognized without a TimeLayout.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

type columnKind int

const (
	kindAmbient columnKind = iota
	kindThermocouple
	kindPressure
)

// classify sorts a header name: "t<n>" is a thermocouple, a name starting
// with "p" is a specimen pressure, everything else is ambient.
func classify(name string) columnKind {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) > 1 && name[0] == 't' {
		if _, err := strconv.Atoi(name[1:]); err == nil {
			return kindThermocouple
		}
	}
	if strings.HasPrefix(name, "p") {
		return kindPressure
	}
	return kindAmbient
}

type columnReader struct {
	col   *Column
	ended bool
}

// ReadCSV reads a rig export. The first row is the header and the first
// column is the sample time. A blank time cell ends the data; a blank cell
// in any other column ends that column.
func ReadCSV(r io.Reader, opts CSVOptions) (*Rig, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTime
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header has %d columns", ErrNoSpecimens, len(header))
	}

	rig := &Rig{}
	columns := make([]columnReader, len(header))
	kinds := make([]columnKind, len(header))
	for i, name := range header[1:] {
		kinds[i+1] = classify(name)
		columns[i+1].col = &Column{Name: strings.TrimSpace(name)}
	}

	tp := &timeParser{layout: opts.TimeLayout, loc: opts.Location}
	if tp.loc == nil {
		tp.loc = time.UTC
	}
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
			break
		}
		if err := tp.add(fields[0]); err != nil {
			return nil, fmt.Errorf("line %d, %s: %w", line, header[0], err)
		}
		for i := 1; i < len(columns); i++ {
			cr := &columns[i]
			if cr.ended {
				continue
			}
			if i >= len(fields) || strings.TrimSpace(fields[i]) == "" {
				cr.ended = true
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, %s: %w %q", line, cr.col.Name, ErrBadValue, fields[i])
			}
			cr.col.Values = append(cr.col.Values, v)
		}
	}
	rig.Hours = tp.hours()
	if len(rig.Hours) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrNoTime)
	}

	for i := 1; i < len(columns); i++ {
		col := *columns[i].col
		switch kinds[i] {
		case kindThermocouple:
			rig.Thermocouples = append(rig.Thermocouples, col)
		case kindPressure:
			rig.Pressures = append(rig.Pressures, col)
		default:
			rig.Ambient = append(rig.Ambient, col)
		}
	}
	return rig, nil
}

type timeParser struct {
	layout string
	loc    *time.Location
	// numeric is decided by the first value when no layout is given.
	decided bool
	numeric bool
	elapsed []float64
	stamps  []time.Time
}

func (tp *timeParser) add(s string) error {
	s = strings.TrimSpace(s)
	if !tp.decided {
		tp.decided = true
		if tp.layout == "" {
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				tp.numeric = true
			}
		}
	}
	if tp.numeric {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: elapsed hours %q", ErrBadValue, s)
		}
		tp.elapsed = append(tp.elapsed, v)
		return nil
	}
	ts, err := tp.parse(s)
	if err != nil {
		return err
	}
	tp.stamps = append(tp.stamps, ts)
	return nil
}

func (tp *timeParser) parse(s string) (time.Time, error) {
	if tp.layout != "" {
		ts, err := time.ParseInLocation(tp.layout, s, tp.loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadValue, s)
		}
		return ts, nil
	}
	for _, layout := range TimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, tp.loc); err == nil {
			// stick to the first layout that works
			tp.layout = layout
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadValue, s)
}

func (tp *timeParser) hours() []float64 {
	if tp.numeric {
		ret := make([]float64, len(tp.elapsed))
		for i, v := range tp.elapsed {
			ret[i] = v - tp.elapsed[0]
		}
		return ret
	}
	return Hours(tp.stamps)
}
