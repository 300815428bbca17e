// Package zerolog adapts a zerolog.Logger to reqrs.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/internal/util"
)

var _ reqrs.Logger = Logger{}

type Logger struct{ l zerolog.Logger }

func New(l zerolog.Logger) Logger { return Logger{l: l} }

func (z Logger) Debug(msg string, f reqrs.Fields) { send(z.l.Debug(), msg, f) }
func (z Logger) Info(msg string, f reqrs.Fields)  { send(z.l.Info(), msg, f) }
func (z Logger) Warn(msg string, f reqrs.Fields)  { send(z.l.Warn(), msg, f) }
func (z Logger) Error(msg string, f reqrs.Fields) { send(z.l.Error(), msg, f) }

// send is a no-op when the level is disabled; e is nil then.
func send(e *zerolog.Event, msg string, f reqrs.Fields) {
	if e == nil {
		return
	}
	for _, k := range util.SortedKeys(f) {
		v := f[k]
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
