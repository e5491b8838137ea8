// Package backfill replays results spilled to the persist.Store,
// rate-limited so catching up after an outage doesn't burst the
// coordinator. Adapted from the teacher's backfill.Controller: same
// Next/Ack pairing and golang.org/x/time/rate limiter, generalized to
// stormapi.CheckResult and stripped of the teacher's metrics-recorder
// hook (Storm's ambient metrics live coordinator-side only).
package backfill

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/iRazvan2745/Storm/internal/agent/queue/persist"
	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

type Controller struct {
	store    *persist.Store
	limiter  *rate.Limiter
	maxBatch int
}

type Option func(*Controller)

func WithRate(opsPerSecond float64, burst int) Option {
	return func(c *Controller) {
		if opsPerSecond > 0 {
			if burst <= 0 {
				burst = int(opsPerSecond)
			}
			c.limiter = rate.NewLimiter(rate.Limit(opsPerSecond), burst)
		}
	}
}

func WithMaxBatch(size int) Option {
	return func(c *Controller) {
		if size > 0 {
			c.maxBatch = size
		}
	}
}

func New(store *persist.Store, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
		maxBatch: 128,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Batch is a FIFO-ordered replay batch; call Ack after the batch has
// been successfully resubmitted to the coordinator.
type Batch struct {
	Results []stormapi.CheckResult
	ack     func() error
}

// Next pulls up to max spilled results, blocking on the rate limiter
// before returning them so replay never exceeds the configured rate.
func (c *Controller) Next(ctx context.Context, max int) (Batch, error) {
	if c.store == nil {
		return Batch{}, nil
	}
	if max <= 0 || max > c.maxBatch {
		max = c.maxBatch
	}

	storeBatch, err := c.store.ReadBatch(max)
	if err != nil {
		return Batch{}, err
	}
	if len(storeBatch.Results) == 0 {
		return Batch{}, nil
	}
	if err := c.limiter.WaitN(ctx, len(storeBatch.Results)); err != nil {
		return Batch{}, err
	}

	return Batch{
		Results: storeBatch.Results,
		ack:     func() error { return c.store.Ack(storeBatch) },
	}, nil
}

func (c *Controller) Ack(batch Batch) error {
	if batch.ack == nil {
		return nil
	}
	return batch.ack()
}

func (c *Controller) PendingBytes() int64 {
	if c.store == nil {
		return 0
	}
	return c.store.SizeBytes()
}

func (c *Controller) AllowAt(t time.Time, n int) bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.AllowN(t, n)
}
