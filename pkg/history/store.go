// Package history defines the conversation persistence contract.
//
// The orchestrator flushes a session here on clear (when at least two
// messages exist) and reads one back on resume. The record format is
// deliberately flat — role, content, timestamp, optional image payload — so a
// session round-trips through save→load with identical content and roles.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load/Update/Delete for unknown conversation IDs.
var ErrNotFound = errors.New("history: conversation not found")

// Record is one persisted message.
type Record struct {
	// Role is "user", "assistant", or "system".
	Role string

	// Content is the message text.
	Content string

	// Timestamp is when the message was created.
	Timestamp time.Time

	// ImageBase64 is the base64-encoded image attachment, empty when none.
	ImageBase64 string
}

// Summary is the listing metadata for one persisted conversation.
type Summary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Messages  int
}

// Store persists conversations.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists messages as a new conversation and returns its ID.
	// An empty title is replaced by a derived one (first user message).
	Save(ctx context.Context, messages []Record, title string) (string, error)

	// Update replaces the messages of an existing conversation.
	Update(ctx context.Context, id string, messages []Record) error

	// Load returns the messages of a conversation in insertion order.
	Load(ctx context.Context, id string) ([]Record, error)

	// List returns summaries of all conversations, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a conversation.
	Delete(ctx context.Context, id string) error
}
