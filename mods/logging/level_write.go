package logging

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const timestampFormat = "2006/01/02 15:04:05.000"

const (
	yellow = "\033[90;43m"
	red    = "\033[97;41m"
	reset  = "\033[0m"
)

func (l *levelLogger) _log(lvl Level, callstackOffset int, args []any) {
	l._logf(lvl, callstackOffset, "", args)
}

func (l *levelLogger) _logf(lvl Level, callstackOffset int, format string, args []any) {
	if lvl < l.level || int(lvl) >= len(logLevelNames) {
		return
	}

	totalCounter.Inc(1)
	switch lvl {
	case LevelWarn:
		warnCounter.Inc(1)
	case LevelError:
		errorCounter.Inc(1)
	}

	var name string
	if l.enableSrcLoc {
		_, srcFileName, srcFileLine, _ := runtime.Caller(2 + callstackOffset)
		srcFileName = filepath.Base(srcFileName)
		width := l.prefixWidth - len(srcFileName) - 5
		if width <= 0 {
			width = 1
		}
		name = fmt.Sprintf("%-*s %s %3d", width, l.name, srcFileName, srcFileLine)
	} else {
		name = fmt.Sprintf("%-*s", l.prefixWidth, l.name)
	}

	var msg string
	if format == "" {
		toks := make([]string, 0, len(args)+len(l.attrs))
		for _, a := range args {
			if s, ok := a.(string); ok {
				toks = append(toks, s)
			} else {
				toks = append(toks, fmt.Sprintf("%v", a))
			}
		}
		for _, a := range l.attrs {
			toks = append(toks, fmt.Sprintf("%s=%v", a.Key, a.Value))
		}
		msg = strings.Join(toks, " ")
	} else {
		msg = fmt.Sprintf(format, args...)
	}

	colorBegin, colorEnd := "", ""
	switch lvl {
	case LevelWarn:
		colorBegin, colorEnd = yellow, reset
	case LevelError:
		colorBegin, colorEnd = red, reset
	}
	timestamp := time.Now().Format(timestampFormat)
	levelName := fmt.Sprintf("%-5s", logLevelNames[lvl])

	for _, w := range l.underlying {
		if w.isTerm {
			fmt.Fprintf(w, "%s %s%s%s %s %s\n", timestamp, colorBegin, levelName, colorEnd, name, msg)
		} else {
			fmt.Fprintf(w, "%s %s %s %s\n", timestamp, levelName, name, msg)
		}
	}
}
