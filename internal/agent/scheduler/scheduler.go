// Package scheduler runs one probe loop per target (spec.md §4.4): each
// target gets its own ticker, fires an immediate first check, and skips
// a tick entirely if the previous check for that target is still
// running. This departs from the teacher's scheduler.Scheduler, which
// scans one shared ticker over a map of entries and drops jobs onto a
// worker-pool channel — that model fits a fixed cadence resolution
// well but has no natural per-target overlap guard, so here each
// target is adapted into its own goroutine carrying an atomic busy
// flag instead.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

// CheckFunc performs one probe of a target and returns its result.
type CheckFunc func(ctx context.Context, target stormapi.Target) stormapi.CheckResult

// ResultFunc receives every completed check result.
type ResultFunc func(result stormapi.CheckResult)

// Scheduler owns one goroutine per target.
type Scheduler struct {
	logger *log.Logger
	check  CheckFunc
	onResult ResultFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(logger *log.Logger, check CheckFunc, onResult ResultFunc) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{logger: logger, check: check, onResult: onResult}
}

// Reload replaces the active target set: every running loop is
// stopped, then a fresh loop is started per target in targets. Per
// spec.md §4.4, a hot-reload of the target list means "stop all
// schedulers then restart" rather than diffing the set in place.
func (s *Scheduler) Reload(ctx context.Context, targets []stormapi.Target) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, t := range targets {
		s.wg.Add(1)
		go s.runTarget(loopCtx, t)
	}
}

// Stop cancels every running per-target loop and waits for them to
// exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runTarget(ctx context.Context, target stormapi.Target) {
	defer s.wg.Done()

	interval := time.Duration(target.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 60 * time.Second
	}

	var busy atomic.Bool

	fire := func() {
		if !busy.CompareAndSwap(false, true) {
			// previous check for this target is still in flight; skip this tick.
			return
		}
		go func() {
			defer busy.Store(false)
			result := s.check(ctx, target)
			if s.onResult != nil {
				s.onResult(result)
			}
		}()
	}

	fire() // immediate first check, per spec.md §4.4

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}
