// Package resilience wraps exchange HTTP calls with a per-connection circuit
// breaker, a per-exchange request-pacing limiter, and bounded
// exponential-backoff retry.
package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Breakers manages one gobreaker.CircuitBreaker per connection, keyed by a
// caller-chosen name (typically "<exchange>:<connection_id>").
type Breakers struct {
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	settings gobreaker.Settings
}

// BreakerConfig configures the shared settings for every breaker this
// Breakers instance creates.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
	Interval         time.Duration
}

func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	settings := gobreaker.Settings{
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: settings,
	}
}

func (b *Breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok = b.breakers[name]; ok {
		return cb
	}
	settings := b.settings
	settings.Name = name
	cb = gobreaker.NewCircuitBreaker(settings)
	b.breakers[name] = cb
	return cb
}

// Execute runs fn through the named breaker.
func (b *Breakers) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	return b.get(name).Execute(fn)
}

// State returns the current state of the named breaker (closed if it has
// never been created).
func (b *Breakers) State(name string) gobreaker.State {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
