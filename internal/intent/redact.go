package intent

import "regexp"

// Identifier patterns masked before text leaves the process. Dates survive
// because their digit runs are short and broken by separators.
var (
	emailPattern = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
	// Phone numbers and documents: 7+ digits, optionally spaced or
	// dashed in pairs, with an optional leading +.
	phonePattern = regexp.MustCompile(`\+?\d[\d\- ]{6,}\d`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
)

// Redact masks routable identifiers in guest text. Only the redacted form
// may cross the classifier boundary or land in conversation context.
func Redact(text string) string {
	out := emailPattern.ReplaceAllString(text, "[email]")
	out = urlPattern.ReplaceAllString(out, "[link]")
	out = phonePattern.ReplaceAllStringFunc(out, func(m string) string {
		if looksLikeDate(m) {
			return m
		}
		return "[number]"
	})
	return out
}

var datePattern = regexp.MustCompile(`^\d{1,4}[-/ ]\d{1,2}[-/ ]\d{1,4}$`)

func looksLikeDate(s string) bool {
	return datePattern.MatchString(s)
}
