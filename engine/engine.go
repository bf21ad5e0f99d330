// Package engine wires the window planner, HTTP client, record
// pipeline, and telemetry mapper together into the per-source scrape
// loop of spec.md §4.6. It owns the one pieces of runtime state no
// other package tracks: whether a source tick is currently in flight,
// and the in-memory fallback for last-success when the store briefly
// can't persist it.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/errs"
	"eve.evalgo.org/otelscrape/httpclient"
	otelpkg "eve.evalgo.org/otelscrape/otel"
	"eve.evalgo.org/otelscrape/pipeline"
	"eve.evalgo.org/otelscrape/record"
	"eve.evalgo.org/otelscrape/selftelemetry"
	"eve.evalgo.org/otelscrape/sourceauth"
	"eve.evalgo.org/otelscrape/store"
	"eve.evalgo.org/otelscrape/telemetry"
	"eve.evalgo.org/otelscrape/windowplan"
)

// sourceRuntime bundles one source's configuration with the wiring it
// needs to scrape: an HTTP client bound to its auth strategy and
// concurrency semaphore, a dedicated OTel provider (so every source's
// metrics/logs carry their own service.name resource attribute), and
// the in-flight/last-success bookkeeping the window planner consumes.
type sourceRuntime struct {
	cfg config.Source

	client     *httpclient.Client
	provider   *otelpkg.Provider
	emitter    *telemetry.Emitter
	logEmitter *telemetry.LogEmitter

	mu             sync.Mutex
	inFlight       bool
	lastSuccess    time.Time
	hasLastSuccess bool

	lastRunAt  time.Time
	lastStatus string // "ok"|"error"|"skipped"
	lastErr    string
}

// Engine runs scrape ticks for every configured source.
type Engine struct {
	root    config.Root
	store   store.Store
	logger  *common.ContextLogger
	selfTel *selftelemetry.Registry

	global chan struct{}

	mu      sync.RWMutex
	sources map[string]*sourceRuntime
	order   []string
}

// New builds an Engine and all of its per-source wiring: auth
// strategies, HTTP clients, OTel providers, emitters, and the
// persisted last-success watermark loaded from st. Any construction
// failure is a ConfigError, fatal at startup (spec.md §7).
func New(ctx context.Context, root config.Root, st store.Store, logger *logrus.Logger, selfTel *selftelemetry.Registry) (*Engine, error) {
	e := &Engine{
		root:    root,
		store:   st,
		logger:  common.NewContextLogger(logger, map[string]interface{}{"component": "engine"}),
		selfTel: selfTel,
		global:  make(chan struct{}, max(root.Scraper.MaxGlobalConcurrency, 1)),
		sources: make(map[string]*sourceRuntime, len(root.Sources)),
	}

	for _, src := range root.Sources {
		rt, err := e.buildSourceRuntime(ctx, src)
		if err != nil {
			return nil, errs.Wrap(errs.Config, "build_source", fmt.Sprintf("source %q", src.Name), err)
		}

		last, ok, err := st.LoadLastSuccess(ctx, src.Name)
		if err != nil {
			return nil, errs.Wrap(errs.Store, "load_last_success", fmt.Sprintf("source %q", src.Name), err)
		}
		rt.lastSuccess = last
		rt.hasLastSuccess = ok

		e.sources[src.Name] = rt
		e.order = append(e.order, src.Name)
	}

	return e, nil
}

func (e *Engine) buildSourceRuntime(ctx context.Context, src config.Source) (*sourceRuntime, error) {
	auth, err := sourceauth.FromConfig(src.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	perSource := make(chan struct{}, max(src.Concurrency, 1))
	client := httpclient.NewClient(auth, e.global, perSource, e.root.Scraper.EnforceTLS)

	provider, err := otelpkg.New(ctx, otelpkg.Config{
		CollectorEndpoint: e.root.Scraper.OtelCollectorEndpoint,
		Transport:         e.root.Scraper.OtelTransport,
		DryRun:            e.root.Scraper.DryRun,
		ServiceName:       src.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("otel provider: %w", err)
	}

	emitter := telemetry.NewEmitter(provider.Meter.Meter(src.Name))
	logEmitter := telemetry.NewLogEmitter(provider.Logger.Logger(src.Name))

	return &sourceRuntime{
		cfg:        src,
		client:     client,
		provider:   provider,
		emitter:    emitter,
		logEmitter: logEmitter,
	}, nil
}

// Sources returns the configured source names in declaration order.
func (e *Engine) Sources() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Tick runs one scrape cycle for the named source: plans the work
// units, fires them concurrently, and folds their outcomes into
// last-success advancement and self telemetry (spec.md §4.6).
func (e *Engine) Tick(ctx context.Context, name string) error {
	e.mu.RLock()
	rt, ok := e.sources[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("engine: unknown source %q", name)
	}

	tracer := rt.provider.Tracer.Tracer("engine")
	ctx, span := tracer.Start(ctx, "scraper.tick")
	defer span.End()

	started := time.Now()

	allowOverlap := rt.cfg.OverlapPolicy == "allow" || (rt.cfg.OverlapPolicy == "" && e.root.Scraper.AllowOverlapScans)

	rt.mu.Lock()
	wasInFlight := rt.inFlight
	if wasInFlight && !allowOverlap {
		rt.mu.Unlock()
		e.recordOutcome(ctx, rt, "skipped", started)
		return nil
	}
	rt.inFlight = true
	lastSuccess := rt.lastSuccess
	hasLastSuccess := rt.hasLastSuccess
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.inFlight = false
		rt.mu.Unlock()
	}()

	plan, err := windowplan.Plan(rt.cfg, time.Now(), lastSuccess, hasLastSuccess, allowOverlap, wasInFlight, e.root.Scraper.DefaultTimeFormat)
	if err != nil {
		wrapped := errs.Wrap(errs.Config, "plan", "window planning failed", err)
		e.logger.WithFields(common.ErrorFields(err, "plan")).WithField("source", name).Error("window planning failed")
		rt.mu.Lock()
		rt.lastErr = wrapped.Error()
		rt.mu.Unlock()
		e.recordOutcome(ctx, rt, "error", started)
		return wrapped
	}
	if plan.Skip {
		e.recordOutcome(ctx, rt, "skipped", started)
		return nil
	}

	var wg sync.WaitGroup
	results := make([]unitResult, len(plan.Units))
	for i, unit := range plan.Units {
		wg.Add(1)
		go func(i int, unit windowplan.Unit) {
			defer wg.Done()
			dedupeHits, dedupeMisses, err := e.runUnit(ctx, rt, unit)
			results[i] = unitResult{err: err, dedupeHits: dedupeHits, dedupeMisses: dedupeMisses}
		}(i, unit)
	}
	wg.Wait()

	allOK := true
	var totalHits, totalMisses int
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			allOK = false
			if firstErr == nil {
				firstErr = r.err
			}
		}
		totalHits += r.dedupeHits
		totalMisses += r.dedupeMisses
	}
	if e.selfTel != nil {
		e.selfTel.RecordDedupe(ctx, name, totalHits, totalMisses)
	}

	if allOK && plan.AdvancesLastSuccess && !plan.OuterEnd.IsZero() {
		if err := e.store.SaveLastSuccess(ctx, name, plan.OuterEnd); err != nil {
			e.logger.WithFields(common.ErrorFields(err, "save_last_success")).WithField("source", name).
				Warn("store unavailable, keeping new last-success watermark in memory only")
		}
		rt.mu.Lock()
		rt.lastSuccess = plan.OuterEnd
		rt.hasLastSuccess = true
		rt.mu.Unlock()
	}

	if !allOK {
		rt.mu.Lock()
		rt.lastErr = firstErr.Error()
		rt.mu.Unlock()
		e.recordOutcome(ctx, rt, "error", started)
		return firstErr
	}
	rt.mu.Lock()
	rt.lastErr = ""
	rt.mu.Unlock()
	e.recordOutcome(ctx, rt, "ok", started)
	return nil
}

type unitResult struct {
	err                      error
	dedupeHits, dedupeMisses int
}

// runUnit executes one plan unit end to end: request, parse,
// extract, pipeline, emit.
func (e *Engine) runUnit(ctx context.Context, rt *sourceRuntime, unit windowplan.Unit) (hits, misses int, err error) {
	req, err := buildRequest(rt.cfg, unit, e.root.Scraper.EnforceTLS)
	if err != nil {
		return 0, 0, err
	}

	resp, err := rt.client.Execute(ctx, req)
	if err != nil {
		return 0, 0, err
	}

	root, err := record.FromJSON(resp.Body)
	if err != nil {
		return 0, 0, errs.Wrap(errs.Response, "parse_json", "decode response body", err)
	}

	records, err := ExtractRecords(root, rt.cfg.DataKey)
	if err != nil {
		return 0, 0, errs.Wrap(errs.Response, "extract_records", "resolve dataKey", err)
	}

	survivors, stats, err := pipeline.Run(ctx, e.store, rt.cfg.Name, rt.cfg.Filters, rt.cfg.MaxRecordsPerScrape, rt.cfg.Dedup, e.root.Scraper.FingerprintStore.MaxEntriesPerSource, records)
	if err != nil {
		return stats.DedupeHits, stats.DedupeMisses, err
	}

	for _, rec := range survivors {
		attrs, err := rt.emitter.Emit(ctx, rt.cfg, rec)
		if err != nil {
			return stats.DedupeHits, stats.DedupeMisses, errs.Wrap(errs.Emission, "emit_metrics", "emit record", err)
		}
		rt.logEmitter.EmitLog(ctx, rt.cfg, rec, attrs)
	}

	return stats.DedupeHits, stats.DedupeMisses, nil
}

func (e *Engine) recordOutcome(ctx context.Context, rt *sourceRuntime, status string, started time.Time) {
	d := time.Since(started)

	rt.mu.Lock()
	rt.lastRunAt = started
	rt.lastStatus = status
	rt.mu.Unlock()

	apiType := rt.cfg.Mode
	if apiType == "" {
		apiType = "instant"
	}
	if e.selfTel != nil {
		e.selfTel.RecordScrape(ctx, rt.cfg.Name, status, apiType, d)
	}
}

// Status reports the current bookkeeping for one source, for the
// admin HTTP surface's GET /sources/{name}/status (spec.md's
// supplemented admin API).
type Status struct {
	Name           string    `json:"name"`
	InFlight       bool      `json:"inFlight"`
	HasLastSuccess bool      `json:"hasLastSuccess"`
	LastSuccess    time.Time `json:"lastSuccess,omitempty"`
	LastRunAt      time.Time `json:"lastRunAt,omitempty"`
	LastStatus     string    `json:"lastStatus,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
}

func (e *Engine) Status(name string) (Status, bool) {
	e.mu.RLock()
	rt, ok := e.sources[name]
	e.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return Status{
		Name:           name,
		InFlight:       rt.inFlight,
		HasLastSuccess: rt.hasLastSuccess,
		LastSuccess:    rt.lastSuccess,
		LastRunAt:      rt.lastRunAt,
		LastStatus:     rt.lastStatus,
		LastError:      rt.lastErr,
	}, true
}

// Shutdown flushes every source's OTel provider. Callers should stop
// the scheduler and await in-flight ticks before calling this.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var firstErr error
	for _, rt := range e.sources {
		if err := rt.provider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
