// Package completion drives streaming chat completions against the
// configured LLM backend and commits the final response to the session.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/serin-ai/serin/internal/chat"
	"github.com/serin-ai/serin/pkg/credential"
	"github.com/serin-ai/serin/pkg/provider/llm"
)

// Failure classes surfaced to the orchestrator. Retrying any of them is
// a user action; the streamer itself never retries except for the
// single credential-refresh case.
var (
	// ErrEmptyResponse means the stream ended without producing any text.
	ErrEmptyResponse = errors.New("completion: backend returned an empty response")

	// ErrCredentialMissing means no API credential is configured at all,
	// as opposed to a configured one being rejected.
	ErrCredentialMissing = errors.New("completion: no API credential configured")

	// ErrNetwork wraps transient transport failures (timeout, DNS).
	ErrNetwork = errors.New("completion: network failure")
)

// defaultStreamTimeout bounds one completion call so a stalled stream
// cannot wedge the orchestrator.
const defaultStreamTimeout = 90 * time.Second

// Turn describes what to send for one completion request.
type Turn struct {
	// PromptOverride, when non-empty, replaces the final user turn for
	// this request only. The session keeps the original message.
	PromptOverride string
}

// Result is the outcome of a successful completion turn.
type Result struct {
	// Text is the full accumulated response, already committed to the
	// session.
	Text string

	// Pending holds URL candidates extracted from the response. They are
	// proposals only; nothing is navigated automatically.
	Pending PendingAction
}

// Streamer runs one completion at a time against a provider.
type Streamer struct {
	provider     llm.Provider
	session      *chat.Session
	systemPrompt string
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	credentials  credential.Store
	credName     string
	refresher    *credential.Refresher
	languages    []string
	log          *slog.Logger
}

// StreamerConfig configures a [Streamer].
type StreamerConfig struct {
	Provider     llm.Provider
	Session      *chat.Session
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// Timeout bounds one streaming call. Defaults to 90s.
	Timeout time.Duration

	// Credentials is checked before each call so a missing key is
	// reported as ErrCredentialMissing rather than a backend rejection.
	// Optional; leave nil for backends that need no key.
	Credentials credential.Store

	// CredentialName is the store entry the precheck looks for. Defaults
	// to [credential.NameLLMAPIKey].
	CredentialName string

	// Refresher enables the single transparent refresh-and-retry on an
	// authentication failure. Optional.
	Refresher *credential.Refresher

	// ActionLanguages selects the natural-language "opening <url>"
	// phrasings to detect. Defaults to English and German.
	ActionLanguages []string

	Logger *slog.Logger
}

// NewStreamer creates a [Streamer].
func NewStreamer(cfg StreamerConfig) *Streamer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStreamTimeout
	}
	if len(cfg.ActionLanguages) == 0 {
		cfg.ActionLanguages = []string{"en", "de"}
	}
	if cfg.CredentialName == "" {
		cfg.CredentialName = credential.NameLLMAPIKey
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{
		provider:     cfg.Provider,
		session:      cfg.Session,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		credentials:  cfg.Credentials,
		credName:     cfg.CredentialName,
		refresher:    cfg.Refresher,
		languages:    cfg.ActionLanguages,
		log:          log,
	}
}

// Stream runs one completion turn. The session must already contain the
// user message for this turn. Each increment is forwarded to onDelta as
// soon as it arrives; on success the accumulated text is appended to
// the session as an assistant message exactly once.
//
// On failure nothing is committed and the error is one of the failure
// classes above, llm.ErrAuth, or llm.ErrRateLimited.
func (s *Streamer) Stream(ctx context.Context, turn Turn, onDelta func(string)) (Result, error) {
	if s.credentials != nil && s.refresher == nil && !s.credentials.Has(s.credName) {
		return Result{}, ErrCredentialMissing
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Messages:    s.buildMessages(turn),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	text, err := s.streamOnce(ctx, req, onDelta)
	if errors.Is(err, llm.ErrAuth) && s.refresher != nil {
		// One transparent refresh, one retry, then surface.
		if _, rerr := s.refresher.ForceRefresh(ctx); rerr != nil {
			s.log.Warn("credential refresh failed", "error", rerr)
			return Result{}, err
		}
		s.log.Info("credential refreshed, retrying completion once")
		text, err = s.streamOnce(ctx, req, onDelta)
	}
	if err != nil {
		return Result{}, s.classify(ctx, err)
	}

	s.session.Append(chat.Message{Role: "assistant", Content: text})
	return Result{
		Text:    text,
		Pending: ExtractActions(text, s.languages...),
	}, nil
}

// streamOnce runs a single streaming call and accumulates the response
// append-only.
func (s *Streamer) streamOnce(ctx context.Context, req llm.CompletionRequest, onDelta func(string)) (string, error) {
	chunks, err := s.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var acc []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		acc = append(acc, chunk.Text...)
		if onDelta != nil {
			onDelta(chunk.Text)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(acc) == 0 {
		return "", ErrEmptyResponse
	}
	return string(acc), nil
}

// buildMessages converts the session to provider messages, applying the
// one-shot prompt override to the final user turn when present. Image
// parts are only included when the backend supports vision input.
func (s *Streamer) buildMessages(turn Turn) []llm.Message {
	msgs := s.session.ToAPIMessages(s.systemPrompt, s.provider.Capabilities().SupportsVision)
	if turn.PromptOverride == "" {
		return msgs
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			msgs[i] = llm.Message{Role: "user", Content: turn.PromptOverride}
			break
		}
	}
	return msgs
}

// classify maps transport-level failures onto the package sentinels.
// Provider sentinels (llm.ErrAuth, llm.ErrRateLimited) and
// ErrEmptyResponse pass through unchanged.
func (s *Streamer) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, llm.ErrAuth),
		errors.Is(err, llm.ErrRateLimited),
		errors.Is(err, ErrEmptyResponse):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: stream timed out: %v", ErrNetwork, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return err
}
