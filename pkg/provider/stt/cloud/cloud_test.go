package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribeRejectsEmptyBuffer(t *testing.T) {
	r, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error for empty audio buffer")
	}
}

func TestTranscribeAgainstCompatibleServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if lang := req.FormValue("language"); lang != "de" {
			t.Errorf("language = %q, want %q", lang, "de")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  hallo welt "})
	}))
	defer srv.Close()

	r, err := New("test-key", WithBaseURL(srv.URL+"/v1"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := r.Transcribe(context.Background(), []byte("RIFFfakewavdata"), "de")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hallo welt" {
		t.Fatalf("text = %q, want trimmed %q", text, "hallo welt")
	}
	if gotPath != "/v1/audio/transcriptions" {
		t.Fatalf("path = %q, want /v1/audio/transcriptions", gotPath)
	}
}
