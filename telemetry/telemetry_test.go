package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/record"
)

func decode(t *testing.T, doc string) record.Value {
	t.Helper()
	v, err := record.FromJSON([]byte(doc))
	require.NoError(t, err)
	return v
}

func collect(t *testing.T, reader sdkmetric.Reader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestEmitGaugeFromDataKey(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := NewEmitter(mp.Meter("test"))

	src := config.Source{
		Gauges: []config.GaugeSpec{{Name: "queue_depth", DataKey: "depth"}},
	}
	rec := decode(t, `{"depth": 42}`)

	_, err := e.Emit(context.Background(), src, rec)
	require.NoError(t, err)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "queue_depth")
	require.True(t, ok)
	gauge, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, float64(42), gauge.DataPoints[0].Value)
}

func TestEmitCounterDefaultsToOneWhenUnset(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := NewEmitter(mp.Meter("test"))

	src := config.Source{
		Counters:   []config.CounterSpec{{Name: "posts"}},
		Attributes: []config.AttributeSpec{{Name: "user_id", DataKey: "userId"}},
	}

	ctx := context.Background()
	_, err := e.Emit(ctx, src, decode(t, `{"id":1,"userId":7}`))
	require.NoError(t, err)
	_, err = e.Emit(ctx, src, decode(t, `{"id":2,"userId":7}`))
	require.NoError(t, err)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "posts")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[float64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	var total float64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, float64(2), total)
}

func TestEmitHistogramWithExplicitBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := NewEmitter(mp.Meter("test"))

	src := config.Source{
		Histograms: []config.HistogramSpec{{Name: "latency", DataKey: "ms", Buckets: []float64{10, 50, 100}}},
	}

	_, err := e.Emit(context.Background(), src, decode(t, `{"ms": 25}`))
	require.NoError(t, err)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "latency")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.EqualValues(t, 1, hist.DataPoints[0].Count)
}

func TestEmitAttributesOmitAbsentFields(t *testing.T) {
	src := config.Source{
		Attributes: []config.AttributeSpec{
			{Name: "present", DataKey: "a"},
			{Name: "missing", DataKey: "b"},
		},
	}
	attrs, err := resolveAttributes(decode(t, `{"a":"x"}`), src.Attributes)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"present": "x"}, attrs.raw)
}

func TestEmitAsMetricConvertsValueMapping(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := NewEmitter(mp.Meter("test"))

	src := config.Source{
		Attributes: []config.AttributeSpec{
			{
				Name:    "status",
				DataKey: "status",
				AsMetric: &config.AsMetricSpec{
					MetricName:   "status_weight",
					ValueMapping: map[string]float64{"ok": 1, "fail": 0},
				},
			},
		},
	}

	_, err := e.Emit(context.Background(), src, decode(t, `{"status":"fail"}`))
	require.NoError(t, err)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "status_weight")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, float64(0), sum.DataPoints[0].Value)
}

// captureLogExporter collects emitted sdklog.Record values for
// assertions, mirroring otel/dryrun.go's stderrLogExporter shape but
// keeping the records in memory instead of printing them.
type captureLogExporter struct {
	records []sdklog.Record
}

func (c *captureLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	c.records = append(c.records, records...)
	return nil
}
func (c *captureLogExporter) ForceFlush(context.Context) error { return nil }
func (c *captureLogExporter) Shutdown(context.Context) error   { return nil }

func TestEmitLogSeverityFirstMatchWins(t *testing.T) {
	exp := &captureLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer lp.Shutdown(context.Background())

	le := NewLogEmitter(lp.Logger("test"))
	src := config.Source{
		EmitLogs:       true,
		LogStatusField: "status",
		LogSeverities: []config.LogSeverityRule{
			{MatchType: "equals", Value: "ok", Severity: "info"},
			{MatchType: "equals", Value: "fail", Severity: "error"},
			{MatchType: "regex", Value: ".*", Severity: "warning"},
		},
	}

	le.EmitLog(context.Background(), src, decode(t, `{"status":"fail"}`), resolvedAttrs{raw: map[string]string{"status": "fail"}})

	require.Len(t, exp.records, 1)
	assert.Equal(t, otellog.SeverityError, exp.records[0].Severity())
}

func TestEmitLogDefaultsToInfoWhenNoRuleMatches(t *testing.T) {
	exp := &captureLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer lp.Shutdown(context.Background())

	le := NewLogEmitter(lp.Logger("test"))
	src := config.Source{EmitLogs: true, LogStatusField: "status"}

	le.EmitLog(context.Background(), src, decode(t, `{"status":"weird"}`), resolvedAttrs{})

	require.Len(t, exp.records, 1)
	assert.Equal(t, otellog.SeverityInfo, exp.records[0].Severity())
}

func TestEmitLogNoopWhenEmitLogsDisabled(t *testing.T) {
	exp := &captureLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	defer lp.Shutdown(context.Background())

	le := NewLogEmitter(lp.Logger("test"))
	le.EmitLog(context.Background(), config.Source{EmitLogs: false}, decode(t, `{}`), resolvedAttrs{})

	assert.Empty(t, exp.records)
}
