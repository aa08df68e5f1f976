package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/serin-ai/serin/pkg/history"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := []history.Record{
		{Role: "user", Content: "what is the weather in Berlin?", Timestamp: time.Now(), ImageBase64: ""},
		{Role: "assistant", Content: "It is sunny, 23 degrees.", Timestamp: time.Now()},
		{Role: "user", Content: "and tomorrow?", Timestamp: time.Now(), ImageBase64: "aGVsbG8="},
	}
	id, err := s.Save(ctx, in, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Role != in[i].Role || out[i].Content != in[i].Content {
			t.Errorf("record %d: got {%s, %q}, want {%s, %q}", i, out[i].Role, out[i].Content, in[i].Role, in[i].Content)
		}
		if out[i].ImageBase64 != in[i].ImageBase64 {
			t.Errorf("record %d: image payload changed: got %q, want %q", i, out[i].ImageBase64, in[i].ImageBase64)
		}
	}
}

func TestDerivedTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, []history.Record{
		{Role: "assistant", Content: "Hi there", Timestamp: time.Now()},
		{Role: "user", Content: "  remind me to water the plants  ", Timestamp: time.Now()},
	}, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d summaries, want 1", len(list))
	}
	if list[0].ID != id {
		t.Errorf("summary id = %q, want %q", list[0].ID, id)
	}
	if list[0].Title != "remind me to water the plants" {
		t.Errorf("title = %q", list[0].Title)
	}
	if list[0].Messages != 2 {
		t.Errorf("messages = %d, want 2", list[0].Messages)
	}
}

func TestDerivedTitleTruncatesOnRuneBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("ü", titleMaxLen+10)
	if _, err := s.Save(ctx, []history.Record{
		{Role: "user", Content: long, Timestamp: time.Now()},
		{Role: "assistant", Content: "ok", Timestamp: time.Now()},
	}, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	title := list[0].Title
	if !utf8.ValidString(title) {
		t.Errorf("title %q is not valid UTF-8", title)
	}
	if got := utf8.RuneCountInString(title); got != titleMaxLen {
		t.Errorf("title has %d runes, want %d", got, titleMaxLen)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, _ := s.Save(ctx, []history.Record{{Role: "user", Content: "first", Timestamp: time.Now()}}, "first")
	time.Sleep(5 * time.Millisecond)
	second, _ := s.Save(ctx, []history.Record{{Role: "user", Content: "second", Timestamp: time.Now()}}, "second")

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d summaries, want 2", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, second, first)
	}
}

func TestUpdateReplacesMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, []history.Record{{Role: "user", Content: "draft", Timestamp: time.Now()}}, "t")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	replacement := []history.Record{
		{Role: "user", Content: "final question", Timestamp: time.Now()},
		{Role: "assistant", Content: "final answer", Timestamp: time.Now()},
	}
	if err := s.Update(ctx, id, replacement); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 || out[0].Content != "final question" || out[1].Content != "final answer" {
		t.Errorf("unexpected records after update: %+v", out)
	}

	if err := s.Update(ctx, "no-such-id", replacement); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Update unknown id = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, []history.Record{{Role: "user", Content: "x", Timestamp: time.Now()}}, "t")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}
