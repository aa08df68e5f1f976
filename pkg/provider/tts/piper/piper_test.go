package piper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
)

type recordingSink struct {
	mu     sync.Mutex
	played [][]byte
}

func (s *recordingSink) Play(_ context.Context, wav []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, wav)
	return nil
}

func ttsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(healthEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(ttsEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("RIFFfake"))
	})
	return httptest.NewServer(mux)
}

func TestSpeakPlaysPerSentence(t *testing.T) {
	srv := ttsServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	p, err := New(srv.URL, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Speak(context.Background(), "Hello there. How are you?"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(sink.played) != 2 {
		t.Fatalf("played %d buffers, want 2 (one per sentence)", len(sink.played))
	}
}

func TestAvailable(t *testing.T) {
	srv := ttsServer(t)
	defer srv.Close()

	p, err := New(srv.URL, &recordingSink{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Available() {
		t.Fatal("server up, Available must be true")
	}
	srv.Close()
	if p.Available() {
		t.Fatal("server down, Available must be false")
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Hello world", []string{"Hello world"}},
		{"terminators", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"newlines", "line one\nline two", []string{"line one", "line two"}},
		{"whitespace only", "   \n  ", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := splitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("splitSentences(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}
