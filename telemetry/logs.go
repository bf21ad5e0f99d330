package telemetry

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/pipeline"
	"eve.evalgo.org/otelscrape/record"
)

// LogEmitter emits one OTel log record per surviving record when a
// source has emitLogs enabled (spec.md §4.8).
type LogEmitter struct {
	logger otellog.Logger
}

func NewLogEmitter(logger otellog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// EmitLog writes one log record for rec, carrying attrs as its
// attributes and the record's canonical JSON as its body. No-op if
// the source does not emit logs.
func (l *LogEmitter) EmitLog(ctx context.Context, src config.Source, rec record.Value, attrs resolvedAttrs) {
	if !src.EmitLogs {
		return
	}

	var r otellog.Record
	r.SetTimestamp(time.Now())
	r.SetObservedTimestamp(time.Now())
	r.SetSeverity(resolveSeverity(rec, src.LogStatusField, src.LogSeverities))
	r.SetBody(otellog.StringValue(record.CanonicalJSON(rec)))

	for name, val := range attrs.raw {
		r.AddAttributes(otellog.String(name, val))
	}

	l.logger.Emit(ctx, r)
}

// resolveSeverity walks logSeverities in literal declared order; the
// first rule whose predicate matches the status field wins. No match
// (or no rules configured) defaults to INFO (spec.md §4.8).
func resolveSeverity(rec record.Value, statusField string, rules []config.LogSeverityRule) otellog.Severity {
	if statusField != "" {
		for _, rule := range rules {
			field := rule.Field
			if field == "" {
				field = statusField
			}
			pred := config.Predicate{Field: field, MatchType: rule.MatchType, Value: rule.Value}
			match, err := pipeline.MatchPredicate(rec, pred)
			if err != nil {
				continue
			}
			if match {
				return severityFromName(rule.Severity)
			}
		}
	}
	return otellog.SeverityInfo
}

func severityFromName(name string) otellog.Severity {
	switch name {
	case "debug":
		return otellog.SeverityDebug
	case "info":
		return otellog.SeverityInfo
	case "warning", "warn":
		return otellog.SeverityWarn
	case "error":
		return otellog.SeverityError
	case "fatal":
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}
