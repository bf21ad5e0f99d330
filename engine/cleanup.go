package engine

import (
	"context"
	"sync"
	"time"

	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/selftelemetry"
	"eve.evalgo.org/otelscrape/store"
)

// CleanupJob periodically runs GCExpired and GCOrphans against the
// fingerprint store, per spec.md §4.3's retention policy, following
// the same ticker/stop-channel worker-loop idiom as Scheduler.
type CleanupJob struct {
	store    store.Store
	backend  string
	interval time.Duration
	sources  func() []string
	selfTel  *selftelemetry.Registry
	logger   *common.ContextLogger

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func NewCleanupJob(st store.Store, backend string, interval time.Duration, sources func() []string, selfTel *selftelemetry.Registry, logger *common.ContextLogger) *CleanupJob {
	return &CleanupJob{
		store:    st,
		backend:  backend,
		interval: interval,
		sources:  sources,
		selfTel:  selfTel,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (c *CleanupJob) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *CleanupJob) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *CleanupJob) runOnce(ctx context.Context) {
	start := time.Now()
	removed, err := c.store.GCExpired(ctx)
	ok := err == nil
	if err != nil {
		c.logger.WithFields(common.ErrorFields(err, "gc_expired")).Error("cleanup: gc_expired failed")
	}
	if c.selfTel != nil {
		c.selfTel.RecordCleanup(ctx, "gc_expired", c.backend, time.Since(start), removed, ok)
	}

	start = time.Now()
	removed, err = c.store.GCOrphans(ctx, c.sources())
	ok = err == nil
	if err != nil {
		c.logger.WithFields(common.ErrorFields(err, "gc_orphans")).Error("cleanup: gc_orphans failed")
	}
	if c.selfTel != nil {
		c.selfTel.RecordCleanup(ctx, "gc_orphans", c.backend, time.Since(start), removed, ok)
	}
}

func (c *CleanupJob) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
