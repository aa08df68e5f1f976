// Package mock provides in-memory recognizer test doubles for the stt package.
package mock

import (
	"context"
	"sync"

	"github.com/serin-ai/serin/pkg/provider/stt"
)

// Offline is a mock stt.OfflineRecognizer.
type Offline struct {
	ReadyVal      bool
	NeedsDownload bool
	Text          string
	Err           error

	mu              sync.Mutex
	TranscribeCalls [][]byte
}

var _ stt.OfflineRecognizer = (*Offline)(nil)

func (o *Offline) Ready() bool                        { return o.ReadyVal }
func (o *Offline) NeedsModelDownload(lang string) bool { return o.NeedsDownload }

func (o *Offline) Transcribe(_ context.Context, audio []byte) (string, error) {
	o.mu.Lock()
	o.TranscribeCalls = append(o.TranscribeCalls, audio)
	o.mu.Unlock()
	return o.Text, o.Err
}

// Cloud is a mock stt.CloudRecognizer.
type Cloud struct {
	Text string
	Err  error

	mu    sync.Mutex
	Calls []string // language hints, one per Transcribe call
}

var _ stt.CloudRecognizer = (*Cloud)(nil)

func (c *Cloud) Transcribe(_ context.Context, audio []byte, languageHint string) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, languageHint)
	c.mu.Unlock()
	return c.Text, c.Err
}

// System is a mock stt.SystemRecognizer. Events are replayed in order on each
// StartListening call.
type System struct {
	AvailableVal bool
	Events       []stt.Event
	StartErr     error

	mu          sync.Mutex
	StartCalls  int
	CancelCalls int
}

var _ stt.SystemRecognizer = (*System)(nil)

func (s *System) Available() bool { return s.AvailableVal }

func (s *System) StartListening(ctx context.Context, _ string) (<-chan stt.Event, error) {
	s.mu.Lock()
	s.StartCalls++
	s.mu.Unlock()
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	ch := make(chan stt.Event, len(s.Events))
	for _, ev := range s.Events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *System) Cancel() {
	s.mu.Lock()
	s.CancelCalls++
	s.mu.Unlock()
}
