// Package netgate provides the shared gate that all outbound network
// operations pass through: a counting semaphore bounding concurrency plus
// a token-bucket limiter respecting the source's implicit rate limits.
package netgate

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate bounds concurrent network operations and paces them. One Gate is
// shared by list scraping, URL resolution, and document downloads so bulk
// work cannot overwhelm the disclosure source.
type Gate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// New creates a Gate admitting at most maxConcurrent operations at once
// and at most perSecond operation starts per second. Non-positive
// arguments fall back to 3 concurrent and an unpaced limiter.
func New(maxConcurrent int, perSecond float64) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), maxConcurrent)
	}
	return &Gate{
		sem:     make(chan struct{}, maxConcurrent),
		limiter: lim,
	}
}

// Acquire blocks until a slot and a rate token are available, or ctx is
// done. Every successful Acquire must be paired with Release.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.sem
		return err
	}
	return nil
}

// Release frees the slot taken by Acquire.
func (g *Gate) Release() { <-g.sem }

// Do runs f inside the gate.
func (g *Gate) Do(ctx context.Context, f func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return f(ctx)
}
