// Package llm defines the Provider interface for the chat completion backends.
//
// Serin talks to two REST backends with different auth-header shapes and
// model-ID namespaces (the OpenAI API and an any-llm-go multi-provider
// backend); both are consumed through the same streaming-completion contract
// so the completion streamer never couples to an SDK.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
)

// Failure classes the completion streamer keys on. Providers wrap transport
// errors with the matching sentinel so callers can errors.Is across backends.
var (
	// ErrAuth means the credential was rejected (expired or invalid).
	ErrAuth = errors.New("llm: authentication failed")

	// ErrRateLimited means the backend refused the request due to quota.
	ErrRateLimited = errors.New("llm: rate limited")
)

// CompletionRequest carries everything a backend needs to produce a response.
type CompletionRequest struct {
	// Messages is the ordered conversation history, system message first.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental content of this chunk. May be empty on the
	// final chunk.
	Text string

	// FinishReason is set on the final chunk ("stop", "length") and empty
	// otherwise.
	FinishReason string

	// Err carries a mid-stream failure. When set, it is the last chunk
	// before the channel closes.
	Err error
}

// Capabilities describes what a backend's model supports.
type Capabilities struct {
	ContextWindow   int
	MaxOutputTokens int
	SupportsVision  bool
}

// Provider is the abstraction over any chat completion backend.
type Provider interface {
	// StreamCompletion sends req and returns a read-only channel emitting
	// Chunk values as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled; callers must drain it. The initial error
	// is non-nil only for failures that prevent the stream from starting
	// (invalid credential, malformed request).
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete waits for the full response. Convenience wrapper for callers
	// that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CountTokens estimates the token footprint of messages. Approximations
	// are fine but should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata for the configured model.
	Capabilities() Capabilities
}
