// Package piper provides a local Piper-backed TTS provider. It targets the
// piper HTTP server's batch API: one POST per utterance returning a WAV body.
//
// Playback happens through an injected [Sink] so the provider stays decoupled
// from the device audio output. Because the server is batch (one HTTP call
// per utterance rather than a streaming socket), long replies are split into
// sentences and synthesised sequentially so Stop can cut in between
// sentences rather than only at the end.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/serin-ai/serin/pkg/provider/tts"
)

const (
	defaultTimeout = 15 * time.Second
	ttsEndpoint    = "/api/tts"
	healthEndpoint = "/health"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Sink plays one WAV buffer to the device audio output, blocking until
// playback completes or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, wav []byte) error
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithVoice selects a voice model on the server (e.g. "en_US-amy-medium").
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider against a piper HTTP server.
type Provider struct {
	baseURL    string
	voice      string
	httpClient *http.Client
	sink       Sink

	mu     sync.Mutex
	cancel context.CancelFunc // active Speak, nil when idle
}

// New creates a Provider for the piper server at baseURL, playing through sink.
func New(baseURL string, sink Sink, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("piper: baseURL must not be empty")
	}
	if sink == nil {
		return nil, errors.New("piper: sink must not be nil")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sink:       sink,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Available implements tts.Provider by probing the server's health endpoint.
func (p *Provider) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Speak implements tts.Provider: sentence-by-sentence synthesis and playback.
func (p *Provider) Speak(ctx context.Context, text string) error {
	speakCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	for _, sentence := range splitSentences(text) {
		if err := speakCtx.Err(); err != nil {
			return err
		}
		wav, err := p.synthesize(speakCtx, sentence)
		if err != nil {
			return err
		}
		if err := p.sink.Play(speakCtx, wav); err != nil {
			return fmt.Errorf("piper: playback: %w", err)
		}
	}
	return nil
}

// Stop implements tts.Provider.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text, "voice": p.voice})
	if err != nil {
		return nil, fmt.Errorf("piper: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("piper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: synthesis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: server returned %s", resp.Status)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read audio: %w", err)
	}
	return wav, nil
}

// splitSentences breaks text on sentence terminators, keeping the terminator
// attached. Whitespace-only fragments are dropped.
func splitSentences(text string) []string {
	var (
		out []string
		sb  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
		sb.Reset()
	}
	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			flush()
		}
	}
	flush()
	if len(out) == 0 && strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0 {
		out = append(out, strings.TrimSpace(text))
	}
	return out
}
