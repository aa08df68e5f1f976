// Package mock provides an in-memory audio.Capture test double.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/serin-ai/serin/pkg/audio"
)

// Capture is a mock audio.Capture. Buffer is what Stop returns.
type Capture struct {
	Buffer   []byte
	StartErr error
	StopErr  error

	mu          sync.Mutex
	running     bool
	StartCalls  int
	StopCalls   int
	CancelCalls int
}

var _ audio.Capture = (*Capture)(nil)

func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.running {
		return errors.New("mock capture: already recording")
	}
	c.running = true
	return nil
}

func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCalls++
	c.running = false
	if c.StopErr != nil {
		return nil, c.StopErr
	}
	return c.Buffer, nil
}

func (c *Capture) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CancelCalls++
	c.running = false
}

func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
