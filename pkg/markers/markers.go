// Package markers parses the inline control tokens the LLM is instructed
// to embed in character replies. [LEAD] signals a guidance offer and
// [CLUE: ...] carries free-text clue content. These two tokens are the
// only structured channel from the backend; parsing tolerates absence
// and malformed input.
package markers

import (
	"regexp"
	"strings"
)

var (
	leadRe = regexp.MustCompile(`(?i)\[LEAD\]`)
	clueRe = regexp.MustCompile(`(?i)\[CLUE:\s*([^\]]+)\]`)
)

// HasLeadOffer reports whether the reply contains a [LEAD] token.
func HasLeadOffer(text string) bool {
	return leadRe.MatchString(text)
}

// ExtractClue returns the content of the first [CLUE: ...] token.
// An empty or whitespace-only clue body is treated as absent.
func ExtractClue(text string) (string, bool) {
	m := clueRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	clue := strings.TrimSpace(m[1])
	if clue == "" {
		return "", false
	}
	return clue, true
}

// Strip removes all control tokens from the reply for display.
func Strip(text string) string {
	out := leadRe.ReplaceAllString(text, "")
	out = clueRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
