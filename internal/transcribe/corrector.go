package transcribe

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	correctorPhoneticThreshold = 0.70
	correctorFuzzyThreshold    = 0.88
)

// Corrector replaces misrecognized words with entries from a known
// vocabulary (contact names, app names, domain terms) that speech
// engines reliably mangle. Matching combines Double Metaphone phonetic
// codes with Jaro-Winkler ranking.
//
// A Corrector is read-only after construction and safe for concurrent
// use.
type Corrector struct {
	vocabulary []vocabEntry
}

type vocabEntry struct {
	word    string
	lower   string
	primary string
	alt     string
}

// NewCorrector builds a [Corrector] over the given vocabulary. Empty
// and duplicate entries are dropped.
func NewCorrector(vocabulary []string) *Corrector {
	c := &Corrector{}
	seen := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		primary, alt := matchr.DoubleMetaphone(lower)
		c.vocabulary = append(c.vocabulary, vocabEntry{
			word:    v,
			lower:   lower,
			primary: primary,
			alt:     alt,
		})
	}
	return c
}

// Correct rewrites tokens of text that phonetically match a vocabulary
// entry. Tokens that already match an entry exactly (case-insensitive)
// are left untouched.
func (c *Corrector) Correct(text string) string {
	if len(c.vocabulary) == 0 {
		return text
	}
	tokens := strings.Fields(text)
	changed := false
	for i, tok := range tokens {
		word, trailing := splitTrailingPunct(tok)
		if word == "" {
			continue
		}
		if replacement, ok := c.match(word); ok {
			tokens[i] = replacement + trailing
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}

// match returns the best vocabulary replacement for word, if any.
func (c *Corrector) match(word string) (string, bool) {
	lower := strings.ToLower(word)
	wp, wa := matchr.DoubleMetaphone(lower)

	var (
		best      string
		bestScore float64
	)
	for _, e := range c.vocabulary {
		if e.lower == lower {
			return "", false
		}
		score := matchr.JaroWinkler(lower, e.lower, true)
		threshold := correctorFuzzyThreshold
		if codesOverlap(wp, wa, e.primary, e.alt) {
			threshold = correctorPhoneticThreshold
		}
		if score >= threshold && score > bestScore {
			best = e.word
			bestScore = score
		}
	}
	return best, best != ""
}

func codesOverlap(p1, a1, p2, a2 string) bool {
	if p1 == "" || p2 == "" {
		return false
	}
	return p1 == p2 || p1 == a2 || (a1 != "" && (a1 == p2 || a1 == a2))
}

// splitTrailingPunct separates final punctuation so "Serin?" can match
// the vocabulary entry "Serin".
func splitTrailingPunct(tok string) (word, trailing string) {
	end := len(tok)
	for end > 0 {
		switch tok[end-1] {
		case '.', ',', '!', '?', ';', ':':
			end--
		default:
			return tok[:end], tok[end:]
		}
	}
	return tok[:end], tok[end:]
}
