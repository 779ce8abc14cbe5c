// Package txlog is the structured-logging wrapper every other package
// logs through, so log shape (fields, levels) stays consistent without
// each package importing logrus directly.
package txlog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// CoreError is the panic payload Fatalf raises, carrying the formatted
// message so a deferred recover can report it without re-parsing logs.
type CoreError struct {
	Message string
}

func (e *CoreError) Error() string { return e.Message }

// Level mirrors the subset of logrus levels the engine's debug-subsumption
// verbosity knob maps onto.
type Level = logrus.Level

const (
	LevelError = logrus.ErrorLevel
	LevelWarn  = logrus.WarnLevel
	LevelInfo  = logrus.InfoLevel
	LevelDebug = logrus.DebugLevel
	LevelTrace = logrus.TraceLevel
)

// SetLevel adjusts the package-wide log verbosity.
func SetLevel(l Level) { std.SetLevel(l) }

// SubsumptionLevel maps engine.Config's 0-4 DebugSubsumption knob onto a
// logrus level: 0 is silent (errors only), higher numbers get progressively
// chattier, topping out at trace-level per-candidate dumps.
func SubsumptionLevel(n int) Level {
	switch {
	case n <= 0:
		return LevelError
	case n == 1:
		return LevelWarn
	case n == 2:
		return LevelInfo
	case n == 3:
		return LevelDebug
	default:
		return LevelTrace
	}
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Tracef(format string, args ...interface{}) { std.Tracef(format, args...) }

// Fatalf logs at error level and panics with a *CoreError, rather than
// calling os.Exit — this is a library, so it must leave unwinding to the
// caller instead of killing the host process.
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	std.Error(msg)
	panic(&CoreError{Message: msg})
}
