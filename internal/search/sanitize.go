package search

import "regexp"

// Queries go to a third-party search backend, so obvious personal
// identifiers are stripped before leaving the device. The LLM still
// receives the original query.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

// Sanitize replaces email addresses and phone numbers in q with neutral
// placeholders.
func Sanitize(q string) string {
	q = emailRe.ReplaceAllString(q, "[email]")
	q = phoneRe.ReplaceAllString(q, "[phone]")
	return q
}
