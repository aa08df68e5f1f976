package llm

// charsPerToken is the heuristic ratio used for token estimation. English
// text averages roughly 4 characters per token across common tokenizers,
// which avoids pulling in a tokenizer dependency.
const charsPerToken = 4

// Message represents a single message in a completion request.
//
// Content and Parts are mutually exclusive: plain text messages set Content,
// vision messages set Parts (a text part plus one or more inline images).
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the plain text content.
	Content string

	// Parts is the multi-part content for vision requests. When non-empty it
	// takes precedence over Content.
	Parts []ContentPart
}

// ContentPart is one block of a multi-part message.
type ContentPart struct {
	// Text is set for text parts.
	Text string

	// ImageDataURI is set for inline image parts: a base64 data URI
	// ("data:image/jpeg;base64,...").
	ImageDataURI string
}

// EstimateTokens returns a rough token count for msgs using the
// 1-token-per-4-characters heuristic. Image parts are charged a flat cost
// because inline images are billed per tile, not per character.
func EstimateTokens(msgs []Message) int {
	const imagePartCost = 800

	total := 0
	for _, m := range msgs {
		chars := len(m.Role) + len(m.Content)
		for _, p := range m.Parts {
			chars += len(p.Text)
			if p.ImageDataURI != "" {
				total += imagePartCost
			}
		}
		tokens := chars / charsPerToken
		if tokens == 0 && chars > 0 {
			tokens = 1
		}
		total += tokens
	}
	return total
}
