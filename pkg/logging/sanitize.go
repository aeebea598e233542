package logging

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSanitizedLength = 200

// SanitizeForLog escapes control characters in values that come from remote
// listings or user input so they cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\t':
			result.WriteString("\\t")
		case r == '\\':
			result.WriteString("\\\\")
		case unicode.IsControl(r), !unicode.IsPrint(r):
			result.WriteString("?")
		default:
			result.WriteRune(r)
		}
	}

	out := result.String()
	if len(out) <= maxSanitizedLength {
		return out
	}
	cut := maxSanitizedLength
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut] + "...[truncated]"
}
