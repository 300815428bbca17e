// Package slog adapts a *slog.Logger to reqrs.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/internal/util"
)

var _ reqrs.Logger = Logger{}

type Logger struct{ l *stdslog.Logger }

// New wraps l; nil uses slog.Default().
func New(l *stdslog.Logger) Logger {
	if l == nil {
		l = stdslog.Default()
	}
	return Logger{l: l}
}

func (s Logger) log(level stdslog.Level, msg string, f reqrs.Fields) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.LogAttrs(ctx, level, msg, attrs(f)...)
}

func (s Logger) Debug(msg string, f reqrs.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f reqrs.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f reqrs.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f reqrs.Fields) { s.log(stdslog.LevelError, msg, f) }

func attrs(f reqrs.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range util.SortedKeys(f) {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
