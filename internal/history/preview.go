package history

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PreviewChars bounds the stored request text.
const PreviewChars = 120

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// Preview returns a short, single-line copy of text with emails, card
// numbers and phone numbers masked. Stores never see the raw request.
func Preview(text string) string {
	out := strings.Join(strings.Fields(text), " ")
	out = emailPattern.ReplaceAllString(out, "[email]")
	// Cards first: a long digit run would otherwise match the phone pattern.
	out = cardPattern.ReplaceAllString(out, "[card]")
	out = phonePattern.ReplaceAllString(out, "[phone]")
	if utf8.RuneCountInString(out) <= PreviewChars {
		return out
	}
	runes := []rune(out)
	return strings.TrimSpace(string(runes[:PreviewChars])) + "…"
}
