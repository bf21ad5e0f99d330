// Package common provides structured-logging helpers built on top of the
// package-wide logrus instance: a constructor for a configured *logrus.Logger
// plus a small field-carrying wrapper used by every component that logs with
// the {source, phase, error_kind, message} shape spec.md §7 calls for.
package common

import (
	"github.com/sirupsen/logrus"

	"eve.evalgo.org/otelscrape/errs"
)

// LogLevel is one of the standard logrus severities, expressed as a
// configuration-friendly string.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LoggerConfig configures a logger built by NewLogger.
type LoggerConfig struct {
	Level   LogLevel // minimum level to emit
	Format  string   // "json" or "text"
	Service string   // service name, attached by callers via WithField
}

// NewLogger builds a logrus.Logger routed through OutputSplitter, with the
// level and formatter given by config.
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()

	switch config.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetOutput(&OutputSplitter{})
	return logger
}

// ContextLogger carries a fixed set of structured fields (service name,
// component, source) across a chain of WithField/WithFields calls, so
// call sites don't have to repeat them on every log line.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger (or the package Logger if nil) with a base
// field set.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	baseFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		baseFields[k] = v
	}
	return &ContextLogger{logger: logger, fields: baseFields}
}

// WithField returns a copy of cl with key=value added to its field set.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of cl with fields merged into its field set.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

// ErrorFields returns the standard field set attached to error-kind log
// lines: the error's kind (empty when err is not, and does not wrap, an
// *errs.Error), its message, and the phase in which it occurred (e.g.
// "plan", "gc_expired", "tick").
func ErrorFields(err error, phase string) map[string]interface{} {
	kind, _ := errs.KindOf(err)
	return map[string]interface{}{
		"error_kind": string(kind),
		"message":    err.Error(),
		"phase":      phase,
	}
}
