package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces the per-exchange inter-request delay (default 200ms, see
// SPEC_FULL.md §4.1) using one token-bucket limiter per exchange tag.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to the named exchange may proceed, given that
// exchange's configured inter-request delay.
func (p *Pacer) Wait(ctx context.Context, exchange string, delay time.Duration) error {
	p.mu.Lock()
	l, ok := p.limiters[exchange]
	if !ok {
		if delay <= 0 {
			delay = 200 * time.Millisecond
		}
		l = rate.NewLimiter(rate.Every(delay), 1)
		p.limiters[exchange] = l
	}
	p.mu.Unlock()

	return l.Wait(ctx)
}
