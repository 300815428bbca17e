// Package logrus adapts a *logrus.Entry to reqrs.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/reqrs"
)

var _ reqrs.Logger = Logger{}

type Logger struct{ e *logrus.Entry }

// New wraps e. Pass logrus.NewEntry(l) to use a bare *logrus.Logger.
func New(e *logrus.Entry) Logger { return Logger{e: e} }

func (l Logger) with(f reqrs.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.e
	}
	return l.e.WithFields(logrus.Fields(f))
}

func (l Logger) Debug(msg string, f reqrs.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f reqrs.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f reqrs.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f reqrs.Fields) { l.with(f).Error(msg) }
