package policy

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	queryKeyPattern  = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey)=)[^&\s"]+`)
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-]+`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets masks API keys and bearer tokens, e.g. in provider error messages.
func RedactSecrets(input string) string {
	out := googleKeyPattern.ReplaceAllString(input, "[REDACTED_KEY]")
	out = queryKeyPattern.ReplaceAllString(out, "${1}[REDACTED_KEY]")
	out = bearerPattern.ReplaceAllString(out, "${1}[REDACTED_TOKEN]")
	return out
}

// LogPreview returns a PII-redacted prefix of user text that is safe to put in logs.
func LogPreview(text string, maxRunes int) string {
	redacted, _ := RedactPII(text)
	if maxRunes <= 0 || utf8.RuneCountInString(redacted) <= maxRunes {
		return redacted
	}
	runes := []rune(redacted)
	return string(runes[:maxRunes]) + "…"
}
