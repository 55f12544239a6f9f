// Package pacer spaces out platform calls so bulk operations stay under the
// platform's rate limits.
package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between consecutive steps.
type Pacer struct {
	limiter *rate.Limiter
}

// New returns a pacer allowing one step per delay. A zero delay never waits.
func New(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next step may run.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Step waits for the pacer, then runs fn.
func (p *Pacer) Step(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
