package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes outbound calls to one provider and spaces them by a fixed minimum delay.
type Pacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewPacer creates a pacer with the given minimum delay between calls. A zero delay only serializes.
func NewPacer(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Acquire blocks until the caller holds the provider slot and the delay has elapsed.
// The returned release func must be called once the call completes.
func (p *Pacer) Acquire(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if err := p.limiter.Wait(ctx); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	return p.mu.Unlock, nil
}
