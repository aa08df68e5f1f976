// Package mock provides an in-memory llm.Provider test double.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/serin-ai/serin/pkg/provider/llm"
)

// Provider is a mock llm.Provider. Chunks are replayed in order on each
// StreamCompletion call; StartErrs are consumed one per call so tests can
// script fail-then-succeed sequences (e.g. credential refresh retries).
type Provider struct {
	Chunks    []llm.Chunk
	StartErrs []error // popped per call; nil entry = success
	Caps      llm.Capabilities

	mu    sync.Mutex
	calls int
	Reqs  []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Calls returns how many StreamCompletion calls were made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Provider) StreamCompletion(_ context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.Reqs = append(p.Reqs, req)
	p.mu.Unlock()

	if idx < len(p.StartErrs) && p.StartErrs[idx] != nil {
		return nil, p.StartErrs[idx]
	}

	ch := make(chan llm.Chunk, len(p.Chunks)+1)
	for _, c := range p.Chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			return "", c.Err
		}
		sb.WriteString(c.Text)
	}
	return sb.String(), nil
}

func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

func (p *Provider) Capabilities() llm.Capabilities { return p.Caps }
