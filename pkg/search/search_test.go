package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", req.URL.Path)
		}
		if q := req.URL.Query().Get("q"); q != "weather berlin" {
			t.Errorf("q = %q, want %q", q, "weather berlin")
		}
		if f := req.URL.Query().Get("format"); f != "json" {
			t.Errorf("format = %q, want json", f)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Berlin Weather","url":"https://example.org/w","content":"Sunny, 21C"},
			{"title":"Forecast","url":"https://example.org/f","content":"Rain tomorrow"},
			{"title":"Extra","url":"https://example.org/x","content":"ignored"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	results, err := c.Search(context.Background(), "weather berlin", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (capped)", len(results))
	}
	if results[0].Title != "Berlin Weather" || results[0].Snippet != "Sunny, 21C" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Search(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
