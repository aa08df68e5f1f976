// Package resilience provides the failover primitives used to keep the
// assistant responsive when a backend degrades: a circuit breaker and a
// provider chain with per-entry breakers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker rejects
// calls after repeated failures.
var ErrBreakerOpen = errors.New("resilience: breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateProbing
)

// BreakerConfig holds the tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before allowing a
	// single probe call. Default: 20s.
	Cooldown time.Duration
}

// Breaker is a circuit breaker with a single-probe recovery policy:
// after the cooldown one call is let through; its outcome decides
// whether the breaker closes or re-opens.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a [Breaker], filling zero-value config fields with
// defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Do runs fn if the breaker allows it, recording the outcome. While
// open and inside the cooldown it returns [ErrBreakerOpen] without
// calling fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = stateProbing
		slog.Info("breaker probing after cooldown", "name", b.name)
	case stateProbing:
		// A probe is conceptually in flight; reject concurrent calls.
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	probing := b.state == stateProbing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if probing || b.failures >= b.threshold {
			if b.state != stateOpen {
				slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
			}
			b.state = stateOpen
			b.openedAt = time.Now()
		}
		return err
	}
	if b.state != stateClosed {
		slog.Info("breaker closed", "name", b.name)
	}
	b.state = stateClosed
	b.failures = 0
	return nil
}

// Healthy reports whether the breaker would currently admit a call.
func (b *Breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen {
		return time.Since(b.openedAt) >= b.cooldown
	}
	return b.state == stateClosed
}

// Reset forces the breaker closed and clears failure accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
}
