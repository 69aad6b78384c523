package cli_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airperm/aptfit/mods/cli"
	"github.com/airperm/aptfit/mods/config"
	"github.com/stretchr/testify/require"
)

// writeRig writes an export with two decaying specimens and one
// specimen that has too few samples.
func writeRig(t *testing.T, dir string, name string) string {
	t.Helper()
	sb := &strings.Builder{}
	sb.WriteString("hours,t1,t2,baro,p1,p2,p3\n")
	for i := 0; i < 25; i++ {
		h := float64(i) * 0.25
		p1 := 2.5*math.Exp(-1.3*h) + 0.5
		p2 := 4.0*math.Exp(-0.4*h) + 1.0
		p3 := ""
		if i < 3 {
			p3 = "9.0"
		}
		fmt.Fprintf(sb, "%.2f,22.2222222,22.2222222,14.7,%.12f,%.12f,%s\n", h, p1, p2, p3)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestFitJSON(t *testing.T) {
	file := writeRig(t, t.TempDir(), "rig.csv")
	out := &bytes.Buffer{}
	err := cli.Run([]string{"--log-level", "NONE", "fit", "--format", "json", "--hours", "2", file}, out)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "p1", rows[0]["id"])
	require.Equal(t, "converged", rows[0]["status"])
	require.InDelta(t, 2.5, rows[0]["a"], 1e-6)
	require.InDelta(t, 1.3, rows[0]["b"], 1e-6)
	require.InDelta(t, 0.5, rows[0]["c"], 1e-6)
	require.InDelta(t, 2.5*math.Exp(-2.6)+0.5, rows[0]["projected"], 1e-6)
	require.InDelta(t, 1.0, rows[0]["correlation"], 1e-9)
	require.Equal(t, "converged", rows[1]["status"])
	require.InDelta(t, 0.4, rows[1]["b"], 1e-6)
	require.Equal(t, "invalid", rows[2]["status"])
	require.Contains(t, rows[2]["error"], "specimen p3")
}

func TestFitMultipleFilesCSV(t *testing.T) {
	dir := t.TempDir()
	first := writeRig(t, dir, "first.csv")
	second := writeRig(t, dir, "second.csv")
	out := &bytes.Buffer{}
	err := cli.Run([]string{"--log-level", "NONE", "fit", "-f", "csv", "--workers", "2", first, second}, out)
	require.NoError(t, err)

	records, err := csv.NewReader(out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	require.Equal(t, "first:p1", records[1][0])
	require.Equal(t, "second:p3", records[6][0])
}

func TestFitWithConfig(t *testing.T) {
	dir := t.TempDir()
	file := writeRig(t, dir, "rig.csv")
	conf := filepath.Join(dir, "aptfit.hcl")
	require.NoError(t, os.WriteFile(conf, []byte(`
report {
    format = "yaml"
}
batch {
    trim_start = 4
}
log {
    level = "NONE"
}
`), 0o644))
	out := &bytes.Buffer{}
	require.NoError(t, cli.Run([]string{"-c", conf, "fit", file}, out))
	require.Contains(t, out.String(), "samples: 21")
	require.Contains(t, out.String(), "status: converged")
}

func TestBands(t *testing.T) {
	file := writeRig(t, t.TempDir(), "rig.csv")
	out := &bytes.Buffer{}
	err := cli.Run([]string{"--log-level", "NONE", "bands", "-s", "P2", "-n", "20", "-f", "csv", file}, out)
	require.NoError(t, err)
	records, err := csv.NewReader(out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 21)
	require.Equal(t, "T", records[0][0])
	require.Equal(t, "0.000000", records[1][0])
	require.Equal(t, "6.000000", records[20][0])

	err = cli.Run([]string{"--log-level", "NONE", "bands", "-s", "p9", file}, out)
	require.ErrorIs(t, err, cli.ErrSpecimenNotFound)
}

func TestGenConfig(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, cli.Run([]string{"gen-config"}, out))
	require.Equal(t, config.DefaultText, out.String())

	path := filepath.Join(t.TempDir(), "aptfit.hcl")
	require.NoError(t, cli.Run([]string{"gen-config", "-o", path}, out))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "box", cfg.Report.Format)
}

func TestVersion(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, cli.Run([]string{"version"}, out))
	require.True(t, strings.HasPrefix(out.String(), "aptfit DEVEL"))

	require.Error(t, cli.Run([]string{"version", "--check", ">= 1"}, out))
}

func TestInvalidFlags(t *testing.T) {
	file := writeRig(t, t.TempDir(), "rig.csv")
	out := &bytes.Buffer{}
	require.ErrorIs(t, cli.Run([]string{"--log-level", "NONE", "fit", "--level", "2", file}, out), config.ErrInvalid)
	require.ErrorIs(t, cli.Run([]string{"--log-level", "NONE", "fit", "-f", "xlsx", file}, out), config.ErrInvalid)
	require.Error(t, cli.Run([]string{"fit", filepath.Join(t.TempDir(), "missing.csv")}, out))
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	file := writeRig(t, dir, "rig.csv")
	db := filepath.Join(dir, "aptfit.db")
	for i := 0; i < 2; i++ {
		out := &bytes.Buffer{}
		require.NoError(t, cli.Run([]string{"--log-level", "NONE", "fit", "--db", db, file}, out))
	}

	out := &bytes.Buffer{}
	require.NoError(t, cli.Run([]string{"--log-level", "NONE", "history", "--db", db, "-f", "json"}, out))
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs))
	require.Len(t, runs, 2)
	require.EqualValues(t, 3, runs[0]["specimens"])
	require.EqualValues(t, 2, runs[0]["converged"])

	out.Reset()
	require.NoError(t, cli.Run([]string{"--log-level", "NONE", "history", "--db", db, "-s", "p1", "-f", "json"}, out))
	var hist []struct {
		RunID string         `json:"run_id"`
		Row   map[string]any `json:"row"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &hist))
	require.Len(t, hist, 2)
	require.Equal(t, "converged", hist[0].Row["status"])
	require.InDelta(t, 1.3, hist[0].Row["b"], 1e-6)

	out.Reset()
	require.NoError(t, cli.Run([]string{"--log-level", "NONE", "history", "--db", db}, out))
	require.Contains(t, out.String(), "CONVERGED")

	require.Error(t, cli.Run([]string{"--log-level", "NONE", "history"}, out))
}
