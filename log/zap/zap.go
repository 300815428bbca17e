// Package zap adapts a *zap.Logger to reqrs.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/internal/util"
)

var _ reqrs.Logger = Logger{}

type Logger struct{ l *zap.Logger }

// New wraps l. A nil l logs nothing.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{l: l.WithOptions(zap.AddCallerSkip(1))}
}

// Named scopes the logger, e.g. per slice.
func (z Logger) Named(name string) Logger { return Logger{l: z.l.Named(name)} }

func (z Logger) Debug(msg string, f reqrs.Fields) { z.l.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f reqrs.Fields)  { z.l.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f reqrs.Fields)  { z.l.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f reqrs.Fields) { z.l.Error(msg, fields(f)...) }

func fields(f reqrs.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range util.SortedKeys(f) {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
