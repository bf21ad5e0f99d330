// Package selftelemetry emits the fixed metric set spec.md §4.8/§6
// names for observing the scraper itself: per-source scrape outcomes
// and durations, dedup hit rate, and the cleanup job's own counters.
// Names and labels are fixed, unlike telemetry.Emitter's
// configuration-driven mapping, so this registry is a flat set of
// pre-declared instruments rather than a cache keyed by config name.
package selftelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var scrapeDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
var cleanupDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

// Registry holds the pre-created self-telemetry instruments for one
// meter (spec.md §4.8's scraper_* metric family).
type Registry struct {
	scrapeTotal     metric.Int64Counter
	scrapeDuration  metric.Float64Histogram
	lastSuccessTime metric.Float64Gauge
	lastScrapeOK    metric.Float64Gauge

	dedupeHits    metric.Int64Counter
	dedupeMisses  metric.Int64Counter
	dedupeTotal   metric.Int64Counter
	dedupeHitRate metric.Float64Gauge

	cleanupDuration  metric.Float64Histogram
	cleanupItems     metric.Int64Counter
	cleanupLastTime  metric.Float64Gauge
	cleanupLastOK    metric.Float64Gauge
}

// New declares every self-telemetry instrument against meter. Returns
// an error if any instrument fails to register, which only happens on
// a malformed name or duplicate registration.
func New(meter metric.Meter) (*Registry, error) {
	r := &Registry{}
	var err error

	if r.scrapeTotal, err = meter.Int64Counter("scraper_scrape_total"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.scrapeDuration, err = meter.Float64Histogram("scraper_scrape_duration_seconds",
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(scrapeDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.lastSuccessTime, err = meter.Float64Gauge("scraper_last_success_timestamp_seconds"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.lastScrapeOK, err = meter.Float64Gauge("scraper_last_scrape_status"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.dedupeHits, err = meter.Int64Counter("scraper_dedupe_hits_total"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.dedupeMisses, err = meter.Int64Counter("scraper_dedupe_misses_total"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.dedupeTotal, err = meter.Int64Counter("scraper_dedupe_total"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.dedupeHitRate, err = meter.Float64Gauge("scraper_dedupe_hit_rate"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.cleanupDuration, err = meter.Float64Histogram("scraper_cleanup_duration_seconds",
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(cleanupDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.cleanupItems, err = meter.Int64Counter("scraper_cleanup_items_total"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.cleanupLastTime, err = meter.Float64Gauge("scraper_cleanup_last_success_timestamp_seconds"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}
	if r.cleanupLastOK, err = meter.Float64Gauge("scraper_cleanup_last_status"); err != nil {
		return nil, fmt.Errorf("selftelemetry: %w", err)
	}

	return r, nil
}

// RecordScrape reports one completed tick for source: ok/error/skipped
// status, api type (instant/range), and wall-clock duration.
func (r *Registry) RecordScrape(ctx context.Context, source, status, apiType string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
		attribute.String("api_type", apiType),
	)
	r.scrapeTotal.Add(ctx, 1, attrs)
	r.scrapeDuration.Record(ctx, d.Seconds(), attrs)

	statusAttrs := metric.WithAttributes(attribute.String("source", source))
	ok := 0.0
	if status == "ok" {
		ok = 1.0
		r.lastSuccessTime.Record(ctx, float64(time.Now().Unix()), statusAttrs)
	}
	r.lastScrapeOK.Record(ctx, ok, statusAttrs)
}

// RecordDedupe reports one tick's dedup outcome for source.
func (r *Registry) RecordDedupe(ctx context.Context, source string, hits, misses int) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	if hits > 0 {
		r.dedupeHits.Add(ctx, int64(hits), attrs)
	}
	if misses > 0 {
		r.dedupeMisses.Add(ctx, int64(misses), attrs)
	}
	total := hits + misses
	r.dedupeTotal.Add(ctx, int64(total), attrs)
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	r.dedupeHitRate.Record(ctx, rate, attrs)
}

// RecordCleanup reports one cleanup job run for a (job, backend) pair,
// e.g. job="gc_expired", backend="sqlite".
func (r *Registry) RecordCleanup(ctx context.Context, job, backend string, d time.Duration, items int, ok bool) {
	attrs := metric.WithAttributes(attribute.String("job", job), attribute.String("backend", backend))
	r.cleanupDuration.Record(ctx, d.Seconds(), attrs)
	r.cleanupItems.Add(ctx, int64(items), attrs)

	status := 0.0
	if ok {
		status = 1.0
		r.cleanupLastTime.Record(ctx, float64(time.Now().Unix()), attrs)
	}
	r.cleanupLastOK.Record(ctx, status, attrs)
}
