package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every entry in a [Chain] failed or
// had an open breaker.
var ErrChainExhausted = errors.New("resilience: all backends failed")

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries a sequence of same-typed backends in order, each guarded
// by its own [Breaker]. Entries with open breakers are skipped.
type Chain[T any] struct {
	entries []chainEntry[T]
	breaker BreakerConfig

	// Terminal, when non-nil, marks errors that must surface immediately
	// instead of triggering the next entry (e.g. auth failures that need
	// user action on every backend alike).
	Terminal func(error) bool
}

// NewChain creates a [Chain] with primary as the first entry. breaker
// is the template config for every entry's breaker.
func NewChain[T any](name string, primary T, breaker BreakerConfig) *Chain[T] {
	c := &Chain[T]{breaker: breaker}
	c.Add(name, primary)
	return c
}

// Add appends a backend. Backends are tried in registration order.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names lists the registered backends in order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// Run tries fn against each backend until one succeeds. Package-level
// because Go has no method-level type parameters.
func Run[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if c.Terminal != nil && c.Terminal(err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}
