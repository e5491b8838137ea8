// Package runtime wires the agent's moving parts together: the
// per-target scheduler, the uplink client, the optional spill/backfill
// pair, and the periodic heartbeat/target-poll loops. Adapted from the
// teacher's runtime.Runtime, which assembles a job channel, scheduler,
// and worker pool behind an Options list — Storm collapses the
// job-channel/worker-pool pair into the scheduler's own per-target
// goroutines (see internal/agent/scheduler) since there is no shared
// worker pool to feed, but keeps the teacher's functional-options
// construction and Start()-returns-a-wait-function shape.
package runtime

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/iRazvan2745/Storm/internal/agent/backfill"
	"github.com/iRazvan2745/Storm/internal/agent/events"
	"github.com/iRazvan2745/Storm/internal/agent/probe"
	"github.com/iRazvan2745/Storm/internal/agent/scheduler"
	"github.com/iRazvan2745/Storm/internal/agent/uplink"
	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

type Option func(*config)

type config struct {
	logger         *log.Logger
	heartbeatEvery time.Duration
	pollEvery      time.Duration
	recorder       events.Recorder
	backfillCtrl   *backfill.Controller
	spill          spillFunc
}

type spillFunc func(stormapi.CheckResult)

func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.heartbeatEvery = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollEvery = d
		}
	}
}

func WithRecorder(rec events.Recorder) Option {
	return func(c *config) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

func WithBackfillController(ctrl *backfill.Controller) Option {
	return func(c *config) {
		c.backfillCtrl = ctrl
	}
}

// WithSpill registers a callback invoked for every result the uplink
// client fails to submit after exhausting its retries, so the caller
// can append it to the on-disk spill buffer (spec.md §9's documented
// optional behaviour).
func WithSpill(fn func(stormapi.CheckResult)) Option {
	return func(c *config) {
		c.spill = fn
	}
}

// Runtime is the agent's running process: scheduler plus uplink
// client plus the heartbeat/poll background loops.
type Runtime struct {
	cfg       config
	client    *uplink.Client
	scheduler *scheduler.Scheduler
	agentName string
	location  string

	resultsMu sync.Mutex
	pending   []stormapi.CheckResult
}

func New(client *uplink.Client, agentName, location string, opts ...Option) *Runtime {
	cfg := config{
		logger:         log.New(os.Stdout, "storm-agent ", log.LstdFlags|log.LUTC),
		heartbeatEvery: 30 * time.Second,
		pollEvery:      120 * time.Second,
		recorder:       events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Runtime{cfg: cfg, client: client, agentName: agentName, location: location}
	r.scheduler = scheduler.New(cfg.logger, r.runCheck, r.collectResult)
	return r
}

func (r *Runtime) runCheck(ctx context.Context, target stormapi.Target) stormapi.CheckResult {
	return probe.Run(ctx, target, r.client.AgentID(), r.agentName)
}

func (r *Runtime) collectResult(result stormapi.CheckResult) {
	r.resultsMu.Lock()
	r.pending = append(r.pending, result)
	r.resultsMu.Unlock()
}

// Start registers with the coordinator, loads the initial target set,
// and starts the scheduler plus the heartbeat/poll/flush loops. It
// returns a function that blocks until every background goroutine has
// exited, to be called after ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) (func(), error) {
	resp, err := r.client.Register(ctx, r.agentName, r.location)
	if err != nil {
		return nil, err
	}
	r.client.SetAgentID(resp.AgentID)
	r.cfg.recorder.Record(events.New("registered", "agent registered as "+resp.AgentID))

	targetsResp, err := r.client.FetchTargets(ctx)
	if err != nil {
		return nil, err
	}
	lastChecked := targetsResp.LastUpdated
	r.scheduler.Reload(ctx, targetsResp.Targets)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		r.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.pollLoop(ctx, lastChecked)
	}()
	go func() {
		defer wg.Done()
		r.flushLoop(ctx)
	}()

	return func() {
		r.scheduler.Stop()
		wg.Wait()
	}, nil
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.client.Heartbeat(ctx); err != nil {
				r.cfg.logger.Printf("heartbeat failed: %v", err)
			}
		}
	}
}

func (r *Runtime) pollLoop(ctx context.Context, lastChecked time.Time) {
	ticker := time.NewTicker(r.cfg.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := r.client.CheckUpdates(ctx, lastChecked)
			if err != nil {
				r.cfg.logger.Printf("check-updates failed: %v", err)
				continue
			}
			if !resp.HasUpdates {
				continue
			}
			targetsResp, err := r.client.FetchTargets(ctx)
			if err != nil {
				r.cfg.logger.Printf("fetch-targets failed after reload signal: %v", err)
				continue
			}
			lastChecked = targetsResp.LastUpdated
			r.scheduler.Reload(ctx, targetsResp.Targets)
			r.cfg.recorder.Record(events.New("targets-reloaded", "target set updated"))
		}
	}
}

// flushPeriod is how often queued results are batched and submitted.
const flushPeriod = 5 * time.Second

func (r *Runtime) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.flush(ctx)
			return
		case <-ticker.C:
			r.flush(ctx)
			r.replayBackfill(ctx)
		}
	}
}

func (r *Runtime) flush(ctx context.Context) {
	r.resultsMu.Lock()
	batch := r.pending
	r.pending = nil
	r.resultsMu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := r.client.SubmitResults(ctx, batch); err != nil {
		r.cfg.logger.Printf("submit-results failed, dropping %d result(s): %v", len(batch), err)
		if r.cfg.spill != nil {
			for _, res := range batch {
				r.cfg.spill(res)
			}
		}
	}
}

func (r *Runtime) replayBackfill(ctx context.Context) {
	if r.cfg.backfillCtrl == nil {
		return
	}
	b, err := r.cfg.backfillCtrl.Next(ctx, 0)
	if err != nil || len(b.Results) == 0 {
		return
	}
	if err := r.client.SubmitResults(ctx, b.Results); err != nil {
		r.cfg.logger.Printf("backfill replay submit failed: %v", err)
		return
	}
	if err := r.cfg.backfillCtrl.Ack(b); err != nil {
		r.cfg.logger.Printf("backfill ack failed: %v", err)
	}
}
