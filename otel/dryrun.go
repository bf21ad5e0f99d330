package otel

import (
	"context"
	"encoding/json"
	"os"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// stderrMetricExporter writes each collected metric, with its data
// points, as one JSON line to standard error instead of exporting over
// the network.
type stderrMetricExporter struct {
	service string
}

func (e *stderrMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *stderrMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *stderrMetricExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			line, err := json.Marshal(map[string]any{
				"dryRun":  true,
				"service": e.service,
				"metric":  m.Name,
				"unit":    m.Unit,
				"data":    m.Data,
			})
			if err != nil {
				return err
			}
			os.Stderr.Write(append(line, '\n'))
		}
	}
	return nil
}

func (e *stderrMetricExporter) ForceFlush(context.Context) error { return nil }
func (e *stderrMetricExporter) Shutdown(context.Context) error   { return nil }

// stderrLogExporter does the same for log records.
type stderrLogExporter struct {
	service string
}

func (e *stderrLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	for _, r := range records {
		line, err := json.Marshal(map[string]any{
			"dryRun":   true,
			"service":  e.service,
			"severity": r.Severity().String(),
			"body":     r.Body().AsString(),
			"time":     r.Timestamp().Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
		os.Stderr.Write(append(line, '\n'))
	}
	return nil
}

func (e *stderrLogExporter) ForceFlush(context.Context) error { return nil }
func (e *stderrLogExporter) Shutdown(context.Context) error   { return nil }
