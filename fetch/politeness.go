package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Politeness spaces out requests to the same host: a per-host token bucket
// enforces a minimum interval, and a randomized jitter on top keeps the
// cadence from looking mechanical. Distinct hosts don't delay each other.
type Politeness struct {
	mu        sync.Mutex
	perHost   map[string]*rate.Limiter
	interval  time.Duration
	maxJitter time.Duration
}

// NewPoliteness creates a limiter with the given minimum interval between
// requests to one host, plus up to maxJitter of random extra delay.
func NewPoliteness(interval, maxJitter time.Duration) *Politeness {
	return &Politeness{
		perHost:   make(map[string]*rate.Limiter),
		interval:  interval,
		maxJitter: maxJitter,
	}
}

// Wait blocks until a request to host is allowed, or ctx is cancelled.
func (p *Politeness) Wait(ctx context.Context, host string) error {
	p.mu.Lock()
	limiter, ok := p.perHost[host]
	if !ok {
		// Burst of one: the first request goes straight through, later
		// ones pace at the configured interval.
		limiter = rate.NewLimiter(rate.Every(p.interval), 1)
		p.perHost[host] = limiter
	}
	p.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if p.maxJitter > 0 {
		jitter := time.Duration(rand.Int63n(int64(p.maxJitter)))
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
