// Package cloud provides the whisper-compatible cloud recognizer backed by
// the OpenAI audio transcription API. Any server implementing the same
// endpoint shape (e.g. a self-hosted faster-whisper gateway) can be targeted
// via WithBaseURL.
package cloud

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/serin-ai/serin/pkg/provider/stt"
)

const defaultModel = "whisper-1"

// Compile-time assertion that Recognizer satisfies stt.CloudRecognizer.
var _ stt.CloudRecognizer = (*Recognizer)(nil)

// Recognizer implements stt.CloudRecognizer over the OpenAI transcription API.
type Recognizer struct {
	client oai.Client
	model  string
}

// config holds optional construction settings.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL points the recognizer at a whisper-compatible server other than
// the OpenAI API.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a cloud Recognizer. apiKey must be non-empty — the router
// surfaces a missing key as a user-actionable configuration error before
// ever constructing the recognizer.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cloud: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Recognizer{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Transcribe implements stt.CloudRecognizer. The audio buffer must be
// WAV-framed; languageHint may be empty for auto-detection.
func (r *Recognizer) Transcribe(ctx context.Context, wav []byte, languageHint string) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("cloud: empty audio buffer")
	}

	params := oai.AudioTranscriptionNewParams{
		Model: r.model,
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
	}
	if languageHint != "" {
		params.Language = oai.String(languageHint)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("cloud: transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
