// Package mock provides a tts.Provider test double.
package mock

import (
	"context"
	"sync"

	"github.com/serin-ai/serin/pkg/provider/tts"
)

// Provider is a mock tts.Provider recording spoken texts.
type Provider struct {
	AvailableVal bool
	SpeakErr     error

	mu        sync.Mutex
	Spoken    []string
	StopCalls int
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) Available() bool { return p.AvailableVal }

func (p *Provider) Speak(_ context.Context, text string) error {
	p.mu.Lock()
	p.Spoken = append(p.Spoken, text)
	p.mu.Unlock()
	return p.SpeakErr
}

func (p *Provider) Stop() {
	p.mu.Lock()
	p.StopCalls++
	p.mu.Unlock()
}
