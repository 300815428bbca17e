// Package glog writes reqrs logs through github.com/golang/glog. Debug goes to
// glog.V(Verbosity).
package glog

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/internal/util"
)

var _ reqrs.Logger = Logger{}

type Logger struct {
	Verbosity glog.Level // 0 => 2
	Prefix    string     // e.g. "[todos]"
}

func (g Logger) Debug(msg string, f reqrs.Fields) {
	if glog.V(util.Coalesce(g.Verbosity, 2)) {
		glog.InfoDepth(1, g.line(msg, f))
	}
}
func (g Logger) Info(msg string, f reqrs.Fields)  { glog.InfoDepth(1, g.line(msg, f)) }
func (g Logger) Warn(msg string, f reqrs.Fields)  { glog.WarningDepth(1, g.line(msg, f)) }
func (g Logger) Error(msg string, f reqrs.Fields) { glog.ErrorDepth(1, g.line(msg, f)) }

func (g Logger) line(msg string, f reqrs.Fields) string {
	var b strings.Builder
	if g.Prefix != "" {
		b.WriteString(g.Prefix)
	}
	b.WriteString(msg)
	for _, k := range util.SortedKeys(f) {
		fmt.Fprintf(&b, " %s=%v", k, f[k])
	}
	return b.String()
}
