package completion

import (
	"regexp"
	"strings"
)

// PendingAction holds URL candidates extracted from a completed
// response. The URLs require explicit user confirmation before any
// navigation happens.
type PendingAction struct {
	URLs []string
}

// Empty reports whether no actions were extracted.
func (p PendingAction) Empty() bool { return len(p.URLs) == 0 }

// markerRe matches the explicit machine-readable syntax the system
// prompt asks the model to emit, e.g. "[OPEN_URL: https://example.com]".
var markerRe = regexp.MustCompile(`\[OPEN_URL:\s*(https?://[^\s\]]+)\s*\]`)

// naturalRes holds per-language "opening <url>" phrasings. Models often
// narrate the action instead of (or in addition to) emitting the marker.
var naturalRes = map[string][]*regexp.Regexp{
	"en": {
		regexp.MustCompile(`(?i)\bopening\s+(https?://\S+)`),
		regexp.MustCompile(`(?i)\bI(?:'ll| will) open\s+(https?://\S+)`),
	},
	"de": {
		regexp.MustCompile(`(?i)(?:^|\s)(?:ich\s+)?öffne\s+(https?://\S+)`),
	},
}

// ExtractActions scans text for open-URL intents: the explicit marker
// syntax plus natural-language phrasings in the given languages. The
// result preserves first-occurrence order with duplicates removed.
func ExtractActions(text string, languages ...string) PendingAction {
	type hit struct {
		pos int
		url string
	}
	var hits []hit

	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, hit{pos: m[0], url: text[m[2]:m[3]]})
		}
	}

	collect(markerRe)
	for _, lang := range languages {
		for _, re := range naturalRes[strings.ToLower(lang)] {
			collect(re)
		}
	}

	// Order by position in the text, then dedup.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	var p PendingAction
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		url := trimURL(h.url)
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		p.URLs = append(p.URLs, url)
	}
	return p
}

// trimURL strips sentence punctuation glued to the end of a URL. A
// closing paren is stripped only while unbalanced, so wiki-style paths
// like .../Go_(programming_language) survive intact.
func trimURL(u string) string {
	for len(u) > 0 {
		switch u[len(u)-1] {
		case '.', ',', ';', '!', '?', ':':
			u = u[:len(u)-1]
		case ')':
			if strings.Count(u, ")") <= strings.Count(u, "(") {
				return u
			}
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}

// StripMarkers removes the machine-readable markers from text so they
// are never spoken or displayed.
func StripMarkers(text string) string {
	return strings.TrimSpace(markerRe.ReplaceAllString(text, ""))
}
