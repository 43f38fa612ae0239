// Package logrus adapts a *logrus.Entry to docsync.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/docsync"
)

var _ docsync.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=docsync.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "docsync")}
}

func (l Logger) Debug(msg string, f docsync.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f docsync.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f docsync.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f docsync.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f docsync.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
