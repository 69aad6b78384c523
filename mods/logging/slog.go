package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// Wrap exposes a Log as a *slog.Logger for libraries that expect one.
// filter, when not nil, drops the records it returns false for.
func Wrap(l Log, filter func(name string, r slog.Record) bool) *slog.Logger {
	h, ok := l.(*levelLogger)
	if !ok {
		return slog.Default()
	}
	clone := *h
	clone.filter = filter
	return slog.New(&clone)
}

// Enabled reports whether the handler handles records at the given level.
func (l *levelLogger) Enabled(_ context.Context, level slog.Level) bool {
	return l.LogEnabled(fromSlogLevel(level))
}

// Handle writes the record with its attributes appended as key=value pairs.
func (l *levelLogger) Handle(_ context.Context, r slog.Record) error {
	if l.filter != nil && !l.filter(l.name, r) {
		return nil
	}
	args := []any{r.Message}
	r.Attrs(func(a slog.Attr) bool {
		args = append(args, fmt.Sprintf("%v=%v", a.Key, a.Value))
		return true
	})
	l._log(fromSlogLevel(r.Level), 0, args)
	return nil
}

func (l *levelLogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *l
	clone.attrs = append(append([]slog.Attr(nil), l.attrs...), attrs...)
	return &clone
}

// WithGroup switches to the logger named after the group,
// so slog groups map onto per-component log levels.
func (l *levelLogger) WithGroup(name string) slog.Handler {
	if name == "" {
		return l
	}
	if r, ok := GetLog(name).(*levelLogger); ok {
		r.filter = l.filter
		return r
	}
	return l
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelDebug:
		return LevelTrace
	case level < slog.LevelInfo:
		return LevelDebug
	case level < slog.LevelWarn:
		return LevelInfo
	case level < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}
