package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/robfig/cron/v3"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
	Log rotation schedule

	"0 30 * * * *"             Every hour on the half hour
	"@hourly"                  Every hour
	"@every 1h30m"             Every hour thirty
	"@daily", "@midnight"      Once a day
*/

type Config struct {
	// Filename "-" writes to stderr, "." or "" discards.
	Filename       string        `hcl:"filename,optional" json:"filename" yaml:"filename"`
	Console        bool          `hcl:"console,optional" json:"console" yaml:"console"`
	Append         bool          `hcl:"append,optional" json:"append" yaml:"append"`
	RotateSchedule string        `hcl:"rotate_schedule,optional" json:"rotateSchedule" yaml:"rotateSchedule"`
	MaxSize        int           `hcl:"max_size,optional" json:"maxSize" yaml:"maxSize"`
	MaxBackups     int           `hcl:"max_backups,optional" json:"maxBackups" yaml:"maxBackups"`
	MaxAge         int           `hcl:"max_age,optional" json:"maxAge" yaml:"maxAge"`
	Compress       bool          `hcl:"compress,optional" json:"compress" yaml:"compress"`
	UTC            bool          `hcl:"utc,optional" json:"utc" yaml:"utc"`
	PrefixWidth    int           `hcl:"prefix_width,optional" json:"prefixWidth" yaml:"prefixWidth"`
	SourceLocation bool          `hcl:"source_location,optional" json:"sourceLocation" yaml:"sourceLocation"`
	DefaultLevel   string        `hcl:"level,optional" json:"level" yaml:"level"`
	Levels         []LevelConfig `hcl:"override,block" json:"overrides" yaml:"overrides"`
}

// LevelConfig overrides the level of every logger whose name matches Pattern.
type LevelConfig struct {
	Pattern string `hcl:"pattern,label" json:"pattern" yaml:"pattern"`
	Level   string `hcl:"level" json:"level" yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Filename:       "-",
		Append:         true,
		RotateSchedule: "@midnight",
		MaxSize:        10,
		MaxBackups:     1,
		MaxAge:         7,
		PrefixWidth:    12,
		DefaultLevel:   "INFO",
	}
}

var (
	rotateCron    = cron.New()
	rotateStarted bool

	writerLock    sync.RWMutex
	defaultWriter = []*logWriter{stderrWriter()}
)

// stderrWriter colors the level names only when stderr is a terminal.
func stderrWriter() *logWriter {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return &logWriter{Writer: colorable.NewColorableStderr(), isTerm: true}
	}
	return &logWriter{Writer: os.Stderr}
}

// Configure replaces the process wide log destinations and levels.
// Loggers obtained before the call keep their old destination.
func Configure(cfg *Config) error {
	resetLevels()
	for _, c := range cfg.Levels {
		SetLevel(c.Pattern, ParseLogLevel(c.Level))
	}
	SetDefaultPrefixWidth(cfg.PrefixWidth)
	SetDefaultLevel(ParseLogLevel(cfg.DefaultLevel))
	SetDefaultEnableSourceLocation(cfg.SourceLocation)

	var writers []*logWriter
	switch cfg.Filename {
	case "", ".":
		writers = []*logWriter{}
	case "-":
		writers = []*logWriter{stderrWriter()}
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  !cfg.UTC,
		}
		if !cfg.Append {
			if err := lj.Rotate(); err != nil {
				return fmt.Errorf("log file %q: %w", cfg.Filename, err)
			}
		}
		if cfg.RotateSchedule != "" {
			if _, err := rotateCron.AddFunc(cfg.RotateSchedule, func() { lj.Rotate() }); err != nil {
				return fmt.Errorf("log rotate schedule %q: %w", cfg.RotateSchedule, err)
			}
			if !rotateStarted {
				rotateStarted = true
				rotateCron.Start()
			}
		}
		writers = []*logWriter{{Writer: lj, isTerm: false}}
		if cfg.Console {
			writers = append(writers, stderrWriter())
		}
	}
	writerLock.Lock()
	defaultWriter = writers
	writerLock.Unlock()
	return nil
}

func GetLog(name string) Log {
	writerLock.RLock()
	underlying := defaultWriter
	writerLock.RUnlock()
	return &levelLogger{
		name:         name,
		level:        GetLevel(name),
		underlying:   underlying,
		prefixWidth:  DefaultPrefixWidth(),
		enableSrcLoc: enableSourceLocationDefault,
	}
}

// NewLog returns a logger that writes only to w, used by tests and tools
// that capture output.
func NewLog(name string, w io.Writer) Log {
	return &levelLogger{
		name:         name,
		level:        GetLevel(name),
		underlying:   []*logWriter{{Writer: w, isTerm: false}},
		prefixWidth:  DefaultPrefixWidth(),
		enableSrcLoc: enableSourceLocationDefault,
	}
}

type logWriter struct {
	io.Writer
	isTerm bool
}
