package completion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/serin-ai/serin/internal/chat"
	"github.com/serin-ai/serin/pkg/credential"
	"github.com/serin-ai/serin/pkg/provider/llm"
	"github.com/serin-ai/serin/pkg/provider/llm/mock"
)

func newSessionWithUser(content string) *chat.Session {
	s := chat.NewSession(chat.Config{})
	s.Append(chat.Message{Role: "user", Content: content})
	return s
}

func TestStreamAccumulatesAndForwards(t *testing.T) {
	provider := &mock.Provider{Chunks: []llm.Chunk{
		{Text: "The answer "},
		{Text: "is "},
		{Text: "42."},
		{FinishReason: "stop"},
	}}
	session := newSessionWithUser("what is the answer?")
	s := NewStreamer(StreamerConfig{Provider: provider, Session: session})

	var deltas []string
	res, err := s.Stream(context.Background(), Turn{}, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if res.Text != "The answer is 42." {
		t.Errorf("text = %q", res.Text)
	}
	if strings.Join(deltas, "") != res.Text {
		t.Errorf("forwarded deltas %v do not rebuild the response", deltas)
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("session has %d messages, want 2", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != res.Text {
		t.Errorf("committed message = %+v", msgs[1])
	}
}

func TestStreamEmptyResponseIsError(t *testing.T) {
	provider := &mock.Provider{Chunks: []llm.Chunk{{FinishReason: "stop"}}}
	session := newSessionWithUser("q")
	s := NewStreamer(StreamerConfig{Provider: provider, Session: session})

	_, err := s.Stream(context.Background(), Turn{}, nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Stream = %v, want ErrEmptyResponse", err)
	}
	if session.Len() != 1 {
		t.Error("failed turn committed a message")
	}
}

func TestStreamPromptOverrideKeepsHistoryIntact(t *testing.T) {
	provider := &mock.Provider{Chunks: []llm.Chunk{{Text: "answer"}}}
	session := newSessionWithUser("original question")
	s := NewStreamer(StreamerConfig{Provider: provider, Session: session, SystemPrompt: "sys"})

	_, err := s.Stream(context.Background(), Turn{PromptOverride: "augmented prompt"}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	sent := provider.Reqs[0].Messages
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (system + overridden user)", len(sent))
	}
	if sent[1].Content != "augmented prompt" {
		t.Errorf("final user turn = %q, want the override", sent[1].Content)
	}
	if session.Messages()[0].Content != "original question" {
		t.Error("override leaked into stored history")
	}
}

func TestStreamMissingCredential(t *testing.T) {
	store := credential.NewMemory()
	s := NewStreamer(StreamerConfig{
		Provider:    &mock.Provider{Chunks: []llm.Chunk{{Text: "x"}}},
		Session:     newSessionWithUser("q"),
		Credentials: store,
	})
	if _, err := s.Stream(context.Background(), Turn{}, nil); !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("Stream = %v, want ErrCredentialMissing", err)
	}

	store.Set(credential.NameLLMAPIKey, "sk-test")
	if _, err := s.Stream(context.Background(), Turn{}, nil); err != nil {
		t.Fatalf("Stream with credential: %v", err)
	}
}

func TestStreamCredentialNamePerBackend(t *testing.T) {
	store := credential.NewMemory()
	store.Set("groq_api_key", "gsk-test")
	s := NewStreamer(StreamerConfig{
		Provider:       &mock.Provider{Chunks: []llm.Chunk{{Text: "x"}}},
		Session:        newSessionWithUser("q"),
		Credentials:    store,
		CredentialName: "groq_api_key",
	})
	// The default LLM key entry is absent; only the named entry counts.
	if _, err := s.Stream(context.Background(), Turn{}, nil); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	missing := NewStreamer(StreamerConfig{
		Provider:       &mock.Provider{Chunks: []llm.Chunk{{Text: "x"}}},
		Session:        newSessionWithUser("q"),
		Credentials:    store,
		CredentialName: "anthropic_api_key",
	})
	if _, err := missing.Stream(context.Background(), Turn{}, nil); !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("Stream = %v, want ErrCredentialMissing for absent named key", err)
	}
}

func TestStreamRefreshesOnceOnAuthFailure(t *testing.T) {
	provider := &mock.Provider{
		Chunks:    []llm.Chunk{{Text: "after refresh"}},
		StartErrs: []error{llm.ErrAuth, nil},
	}
	store := credential.NewMemory()
	store.Set(credential.NameRefreshToken, "rt-1")
	refreshes := 0
	refresher := credential.NewRefresher(store, func(ctx context.Context, rt string) (string, time.Time, error) {
		refreshes++
		return "fresh-token", time.Now().Add(time.Hour), nil
	})

	session := newSessionWithUser("q")
	s := NewStreamer(StreamerConfig{Provider: provider, Session: session, Refresher: refresher})

	res, err := s.Stream(context.Background(), Turn{}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if res.Text != "after refresh" {
		t.Errorf("text = %q", res.Text)
	}
	if refreshes != 1 {
		t.Errorf("refreshed %d times, want 1", refreshes)
	}
	if provider.Calls() != 2 {
		t.Errorf("provider called %d times, want 2", provider.Calls())
	}
}

func TestStreamAuthFailureAfterRetrySurfaces(t *testing.T) {
	provider := &mock.Provider{StartErrs: []error{llm.ErrAuth, llm.ErrAuth}}
	store := credential.NewMemory()
	store.Set(credential.NameRefreshToken, "rt-1")
	refresher := credential.NewRefresher(store, func(ctx context.Context, rt string) (string, time.Time, error) {
		return "still-bad", time.Now().Add(time.Hour), nil
	})

	s := NewStreamer(StreamerConfig{
		Provider:  provider,
		Session:   newSessionWithUser("q"),
		Refresher: refresher,
	})
	if _, err := s.Stream(context.Background(), Turn{}, nil); !errors.Is(err, llm.ErrAuth) {
		t.Fatalf("Stream = %v, want ErrAuth after single retry", err)
	}
	if provider.Calls() != 2 {
		t.Errorf("provider called %d times, want exactly 2", provider.Calls())
	}
}

func TestStreamRateLimitNotRetried(t *testing.T) {
	provider := &mock.Provider{StartErrs: []error{llm.ErrRateLimited}}
	s := NewStreamer(StreamerConfig{Provider: provider, Session: newSessionWithUser("q")})

	if _, err := s.Stream(context.Background(), Turn{}, nil); !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("Stream = %v, want ErrRateLimited", err)
	}
	if provider.Calls() != 1 {
		t.Errorf("provider called %d times, want 1", provider.Calls())
	}
}

func TestStreamMidStreamErrorDiscardsPartial(t *testing.T) {
	provider := &mock.Provider{Chunks: []llm.Chunk{
		{Text: "partial "},
		{Err: errors.New("connection reset")},
	}}
	session := newSessionWithUser("q")
	s := NewStreamer(StreamerConfig{Provider: provider, Session: session})

	if _, err := s.Stream(context.Background(), Turn{}, nil); err == nil {
		t.Fatal("expected mid-stream error")
	}
	if session.Len() != 1 {
		t.Error("partial output was committed")
	}
}

func TestStreamExtractsPendingActions(t *testing.T) {
	provider := &mock.Provider{Chunks: []llm.Chunk{
		{Text: "Sure, opening https://go.dev now. [OPEN_URL: https://go.dev]"},
	}}
	s := NewStreamer(StreamerConfig{Provider: provider, Session: newSessionWithUser("open the go site")})

	res, err := s.Stream(context.Background(), Turn{}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(res.Pending.URLs) != 1 || res.Pending.URLs[0] != "https://go.dev" {
		t.Errorf("pending = %v, want single deduped url", res.Pending.URLs)
	}
}
