package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		known bool
	}{
		{"trace", LevelTrace, true},
		{"DEBUG", LevelDebug, true},
		{" Info ", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"ERROR", LevelError, true},
		{"none", LevelError + 1, true},
		{"verbose", LevelAll, false},
	}
	for _, tt := range tests {
		lvl, ok := ParseLogLevelP(tt.name)
		require.Equal(t, tt.level, lvl, tt.name)
		require.Equal(t, tt.known, ok, tt.name)
	}
	require.Equal(t, "WARN", LogLevelName(LevelWarn))
	require.Equal(t, "UNKNOWN", LogLevelName(Level(42)))
}

func TestLevelPatterns(t *testing.T) {
	defer resetLevels()
	defer SetDefaultLevel(DefaultLevel())

	SetDefaultLevel(LevelInfo)
	SetLevel("batch*", LevelWarn)
	SetLevel("batch/worker", LevelDebug)

	require.Equal(t, LevelInfo, GetLevel("report"))
	require.Equal(t, LevelWarn, GetLevel("batch"))
	require.Equal(t, LevelDebug, GetLevel("batch/worker"))
}

func TestNewLogWritesLines(t *testing.T) {
	defer resetLevels()
	SetLevel("capture", LevelInfo)

	buf := &bytes.Buffer{}
	log := NewLog("capture", buf)
	require.False(t, log.DebugEnabled())
	require.True(t, log.InfoEnabled())

	total, warns, errs := Counts()
	log.Debug("hidden")
	log.Info("fit", "P1", 3)
	log.Warnf("rss=%.2f", 1.5)
	log.Error("boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "INFO")
	require.Contains(t, lines[0], "capture")
	require.True(t, strings.HasSuffix(lines[0], "fit P1 3"))
	require.Contains(t, lines[1], "WARN")
	require.True(t, strings.HasSuffix(lines[1], "rss=1.50"))
	require.Contains(t, lines[2], "ERROR")

	total2, warns2, errs2 := Counts()
	require.Equal(t, int64(3), total2-total)
	require.Equal(t, int64(1), warns2-warns)
	require.Equal(t, int64(1), errs2-errs)
}

func TestWrapSlog(t *testing.T) {
	defer resetLevels()
	SetLevel("slog", LevelDebug)

	buf := &bytes.Buffer{}
	logger := Wrap(NewLog("slog", buf), func(_ string, r slog.Record) bool {
		return !strings.HasPrefix(r.Message, "skip")
	})
	logger.Debug("seed", "a", 1.0)
	logger.Info("skip me")
	logger.With("specimen", "P2").Warn("retry")

	out := buf.String()
	require.Contains(t, out, "seed a=1")
	require.NotContains(t, out, "skip me")
	require.Contains(t, out, "retry specimen=P2")
}
