// Package telemetry maps surviving records onto OTLP gauges, counters,
// histograms, log records, and attributes (spec.md §4.8). The fixed
// self-telemetry metric set lives in package selftelemetry.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/record"
)

// Emitter maps one source's record stream onto its configured
// instruments. Instruments are created once and cached by name, since
// the OTel SDK requires stable identity across calls.
type Emitter struct {
	meter metric.Meter

	mu         sync.Mutex
	gauges     map[string]metric.Float64Gauge
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func NewEmitter(meter metric.Meter) *Emitter {
	return &Emitter{
		meter:      meter,
		gauges:     make(map[string]metric.Float64Gauge),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Emit applies gauges, counters, histograms, and the asMetric
// attribute conversions for one surviving record, in the order
// spec.md §4.8 lists them. Returns the resolved attribute set so the
// caller can pass it to EmitLog without re-resolving.
func (e *Emitter) Emit(ctx context.Context, src config.Source, rec record.Value) (resolvedAttrs, error) {
	attrs, err := resolveAttributes(rec, src.Attributes)
	if err != nil {
		return attrs, err
	}

	opt := metric.WithAttributes(attrs.kv...)

	for _, g := range src.Gauges {
		val, ok, err := resolveNumeric(rec, g.DataKey, g.FixedValue)
		if err != nil {
			return attrs, err
		}
		if !ok {
			continue
		}
		inst, err := e.gauge(g.Name, g.Unit)
		if err != nil {
			return attrs, err
		}
		inst.Record(ctx, val, opt)
	}

	for _, c := range src.Counters {
		val, ok, err := counterValue(rec, c)
		if err != nil {
			return attrs, err
		}
		if !ok {
			continue
		}
		inst, err := e.counter(c.Name, c.Unit)
		if err != nil {
			return attrs, err
		}
		inst.Add(ctx, val, opt)
	}

	for _, h := range src.Histograms {
		val, ok, err := resolveNumeric(rec, h.DataKey, h.FixedValue)
		if err != nil {
			return attrs, err
		}
		if !ok {
			continue
		}
		inst, err := e.histogram(h.Name, h.Unit, h.Buckets)
		if err != nil {
			return attrs, err
		}
		inst.Record(ctx, val, opt)
	}

	if err := e.emitAsMetrics(ctx, src.Attributes, attrs, opt); err != nil {
		return attrs, err
	}

	return attrs, nil
}

// counterValue resolves the increment for a counter spec: fixedValue,
// then valueKey, then dataKey, defaulting to 1 when none is set
// (spec.md §4.8).
func counterValue(rec record.Value, c config.CounterSpec) (float64, bool, error) {
	switch {
	case c.FixedValue != nil:
		return *c.FixedValue, true, nil
	case c.ValueKey != "":
		return resolveNumeric(rec, c.ValueKey, nil)
	case c.DataKey != "":
		return resolveNumeric(rec, c.DataKey, nil)
	default:
		return 1, true, nil
	}
}

// emitAsMetrics emits the per-value counter for every attribute spec
// carrying an asMetric conversion (spec.md §4.8).
func (e *Emitter) emitAsMetrics(ctx context.Context, specs []config.AttributeSpec, attrs resolvedAttrs, opt metric.MeasurementOption) error {
	for _, spec := range specs {
		if spec.AsMetric == nil {
			continue
		}
		raw, ok := attrs.raw[spec.Name]
		if !ok {
			continue
		}
		val, ok := spec.AsMetric.ValueMapping[raw]
		if !ok {
			n, numOK := resolveMappedNumeric(raw)
			if !numOK {
				continue
			}
			val = n
		}
		name := spec.AsMetric.MetricName
		if name == "" {
			name = spec.Name
		}
		inst, err := e.counter(name, "")
		if err != nil {
			return err
		}
		inst.Add(ctx, val, opt)
	}
	return nil
}

func (e *Emitter) gauge(name, unit string) (metric.Float64Gauge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.gauges[name]; ok {
		return g, nil
	}
	g, err := e.meter.Float64Gauge(name, metric.WithUnit(unit))
	if err != nil {
		return metric.Float64Gauge{}, fmt.Errorf("telemetry: create gauge %q: %w", name, err)
	}
	e.gauges[name] = g
	return g, nil
}

func (e *Emitter) counter(name, unit string) (metric.Float64Counter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.counters[name]; ok {
		return c, nil
	}
	c, err := e.meter.Float64Counter(name, metric.WithUnit(unit))
	if err != nil {
		return metric.Float64Counter{}, fmt.Errorf("telemetry: create counter %q: %w", name, err)
	}
	e.counters[name] = c
	return c, nil
}

func (e *Emitter) histogram(name, unit string, buckets []float64) (metric.Float64Histogram, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.histograms[name]; ok {
		return h, nil
	}
	opts := []metric.Float64HistogramOption{metric.WithUnit(unit)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := e.meter.Float64Histogram(name, opts...)
	if err != nil {
		return metric.Float64Histogram{}, fmt.Errorf("telemetry: create histogram %q: %w", name, err)
	}
	e.histograms[name] = h
	return h, nil
}
