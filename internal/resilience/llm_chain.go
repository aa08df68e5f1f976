package resilience

import (
	"context"
	"errors"

	"github.com/serin-ai/serin/pkg/provider/llm"
)

// LLMChain implements [llm.Provider] with automatic failover across
// multiple completion backends. Auth and rate-limit failures are
// terminal: switching backends cannot fix a revoked key and would hide
// the reauthentication prompt from the user.
type LLMChain struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates an [LLMChain] with primary as the preferred
// backend.
func NewLLMChain(name string, primary llm.Provider, breaker BreakerConfig) *LLMChain {
	c := NewChain(name, primary, breaker)
	c.Terminal = func(err error) bool {
		return errors.Is(err, llm.ErrAuth) || errors.Is(err, llm.ErrRateLimited)
	}
	return &LLMChain{chain: c}
}

// Add registers an additional backend tried after the earlier ones.
func (l *LLMChain) Add(name string, provider llm.Provider) {
	l.chain.Add(name, provider)
}

// StreamCompletion opens a stream on the first healthy backend. Only
// the initial connection participates in failover; mid-stream errors
// belong to the caller.
func (l *LLMChain) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Run(l.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete returns the full response from the first healthy backend.
func (l *LLMChain) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	return Run(l.chain, func(p llm.Provider) (string, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens delegates to the primary; token heuristics do not differ
// enough between backends to justify failover.
func (l *LLMChain) CountTokens(messages []llm.Message) (int, error) {
	return l.chain.entries[0].value.CountTokens(messages)
}

// Capabilities reports the primary backend's capabilities.
func (l *LLMChain) Capabilities() llm.Capabilities {
	return l.chain.entries[0].value.Capabilities()
}
