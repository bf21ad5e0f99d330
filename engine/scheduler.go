package engine

import (
	"context"
	"sync"
	"time"

	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/timeutil"
)

// Scheduler drives one ticker per configured source, using a select
// over a stop channel and a ticker channel per source. Each source's
// frequency is parsed once at Start; a source with runFirstScrape
// fires an immediate tick before settling into its ticker interval.
type Scheduler struct {
	engine *Engine
	logger *common.ContextLogger

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func NewScheduler(e *Engine, logger *common.ContextLogger) *Scheduler {
	return &Scheduler{engine: e, logger: logger, stop: make(chan struct{})}
}

// Start launches one goroutine per source and returns immediately.
// Call Stop (or cancel ctx) to wind them down.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, name := range s.engine.Sources() {
		rt, ok := s.engine.sources[name]
		if !ok {
			continue
		}
		freq, err := timeutil.ParseFrequency(rt.cfg.Frequency)
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go s.run(ctx, name, freq, rt.cfg.RunFirstScrape)
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, freq time.Duration, runFirst bool) {
	defer s.wg.Done()

	if runFirst {
		s.tick(ctx, name)
	}

	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx, name)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name string) {
	if err := s.engine.Tick(ctx, name); err != nil {
		s.logger.WithFields(common.ErrorFields(err, "tick")).WithField("source", name).Error("scrape tick failed")
	}
}

// Stop signals every source goroutine to exit and waits for them.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}
