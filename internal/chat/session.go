// Package chat maintains the bounded conversation state for a single
// assistant session.
package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/serin-ai/serin/pkg/provider/llm"
)

// Bounds applied when callers leave the zero value.
const (
	defaultMaxMessages = 20
	defaultMaxTokens   = 8000

	// minRetained messages survive eviction so the model always sees the
	// latest exchange in full.
	minRetained = 2
)

// Message is one chat turn as stored by the session.
type Message struct {
	Role        string
	Content     string
	Timestamp   time.Time
	ImageBase64 string
	ImageMIME   string
}

// Session holds the in-memory conversation, evicting oldest messages
// when either the message count or the estimated token budget is
// exceeded. All methods are safe for concurrent use.
type Session struct {
	maxMessages int
	maxTokens   int

	mu       sync.Mutex
	messages []Message
	tokens   int
}

// Config configures a [Session].
type Config struct {
	// MaxMessages bounds the number of retained messages. Defaults to 20.
	MaxMessages int

	// MaxTokens bounds the estimated token count of retained messages.
	// Defaults to 8000.
	MaxTokens int
}

// NewSession creates a new bounded [Session].
func NewSession(cfg Config) *Session {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Session{
		maxMessages: cfg.MaxMessages,
		maxTokens:   cfg.MaxTokens,
	}
}

// Append adds a message and evicts from the front until both bounds hold
// again. At least minRetained messages are always kept, even if the last
// exchange alone exceeds the token budget.
func (s *Session) Append(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, m)
	s.tokens += estimateTokens(m)
	s.evictLocked()
}

// Messages returns a snapshot of the current conversation. The returned
// slice is a copy; mutating it does not affect the session.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of retained messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// TokenEstimate returns the estimated token count of retained messages.
func (s *Session) TokenEstimate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// TruncateTo drops messages from the tail until at most n remain. It is
// how an aborted turn rolls back messages it had already committed. A
// no-op when the session already holds n or fewer messages.
func (s *Session) TruncateTo(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.messages) > n {
		last := len(s.messages) - 1
		s.tokens -= estimateTokens(s.messages[last])
		s.messages = s.messages[:last]
	}
}

// Clear empties the session and returns the messages it held, so the
// caller can persist the finished conversation.
func (s *Session) Clear() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	s.tokens = 0
	return out
}

// ToAPIMessages converts the conversation into provider messages. The
// system prompt, if non-empty, is always first. Image attachments become
// data-URI content parts; a message carrying only an image gets a
// placeholder text part because providers reject empty content. When
// includeImages is false (backend without vision support) image messages
// degrade to their text part only.
func (s *Session) ToAPIMessages(systemPrompt string, includeImages bool) []llm.Message {
	s.mu.Lock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	s.mu.Unlock()

	out := make([]llm.Message, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range msgs {
		out = append(out, toAPIMessage(m, includeImages))
	}
	return out
}

func toAPIMessage(m Message, includeImages bool) llm.Message {
	if m.ImageBase64 == "" || !includeImages {
		content := m.Content
		if content == "" {
			// Keep the turn visible even when its only payload was an
			// image the backend cannot accept.
			content = "..."
			if m.ImageBase64 != "" {
				content = "[image attached]"
			}
		}
		return llm.Message{Role: m.Role, Content: content}
	}

	text := m.Content
	if text == "" {
		text = "Describe this image."
	}
	mime := m.ImageMIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return llm.Message{
		Role: m.Role,
		Parts: []llm.ContentPart{
			{Text: text},
			{ImageDataURI: fmt.Sprintf("data:%s;base64,%s", mime, m.ImageBase64)},
		},
	}
}

// evictLocked drops oldest messages until both bounds hold. Must be
// called with s.mu held.
func (s *Session) evictLocked() {
	for len(s.messages) > minRetained &&
		(len(s.messages) > s.maxMessages || s.tokens > s.maxTokens) {
		s.tokens -= estimateTokens(s.messages[0])
		s.messages = s.messages[1:]
	}
}

// estimateTokens uses the 1-token-per-4-characters heuristic plus a flat
// cost per image attachment.
func estimateTokens(m Message) int {
	const (
		charsPerToken = 4
		imageCost     = 800
	)
	tokens := (len(m.Content) + len(m.Role)) / charsPerToken
	if m.ImageBase64 != "" {
		tokens += imageCost
	}
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
