package completion

import (
	"reflect"
	"testing"
)

func TestExtractActionsMarker(t *testing.T) {
	p := ExtractActions("Here you go. [OPEN_URL: https://example.com/docs]", "en")
	if !reflect.DeepEqual(p.URLs, []string{"https://example.com/docs"}) {
		t.Errorf("URLs = %v", p.URLs)
	}
}

func TestExtractActionsNaturalLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"english opening", "Sure, opening https://news.ycombinator.com for you.", []string{"https://news.ycombinator.com"}},
		{"english future", "I'll open https://go.dev/doc in your browser.", []string{"https://go.dev/doc"}},
		{"german", "Klar, ich öffne https://tagesschau.de jetzt.", []string{"https://tagesschau.de"}},
		{"german bare verb", "Öffne https://heise.de/news.", []string{"https://heise.de/news"}},
		{"no urls", "There is nothing to open here.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ExtractActions(tt.text, "en", "de")
			if !reflect.DeepEqual(p.URLs, tt.want) {
				t.Errorf("URLs = %v, want %v", p.URLs, tt.want)
			}
		})
	}
}

func TestExtractActionsDedupPreservesOrder(t *testing.T) {
	text := "Opening https://b.example first. [OPEN_URL: https://a.example] " +
		"Also opening https://b.example again. [OPEN_URL: https://a.example]"
	p := ExtractActions(text, "en")
	want := []string{"https://b.example", "https://a.example"}
	if !reflect.DeepEqual(p.URLs, want) {
		t.Errorf("URLs = %v, want %v", p.URLs, want)
	}
}

func TestExtractActionsTrimsPunctuationNotURL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"trailing period", "opening https://go.dev/doc.", "https://go.dev/doc"},
		{"trailing slash kept", "opening https://go.dev/doc/", "https://go.dev/doc/"},
		{"balanced parens kept", "opening https://en.wikipedia.org/wiki/Go_(programming_language)", "https://en.wikipedia.org/wiki/Go_(programming_language)"},
		{"balanced parens then period", "opening https://en.wikipedia.org/wiki/Go_(programming_language).", "https://en.wikipedia.org/wiki/Go_(programming_language)"},
		{"unbalanced close paren", "(opening https://go.dev/doc)", "https://go.dev/doc"},
		{"stacked punctuation", "opening https://go.dev/doc)?!", "https://go.dev/doc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ExtractActions(tt.text, "en")
			if len(p.URLs) != 1 || p.URLs[0] != tt.want {
				t.Errorf("URLs = %v, want [%s]", p.URLs, tt.want)
			}
		})
	}
}

func TestExtractActionsUnknownLanguageIgnored(t *testing.T) {
	p := ExtractActions("opening https://example.com", "fr")
	if !p.Empty() {
		t.Errorf("URLs = %v, want none for unsupported language", p.URLs)
	}
}

func TestStripMarkers(t *testing.T) {
	got := StripMarkers("Done. [OPEN_URL: https://example.com]")
	if got != "Done." {
		t.Errorf("StripMarkers = %q", got)
	}
}
