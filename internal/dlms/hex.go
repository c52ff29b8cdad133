package dlms

import (
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize strips every whitespace character from s and upper-cases the
// remainder. It never fails.
func Normalize(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// Validate reports whether s, after Normalize, is an even-length string of
// hexadecimal digits. The empty string is valid.
func Validate(s string) bool {
	n := Normalize(s)
	if len(n)%2 != 0 {
		return false
	}
	for i := 0; i < len(n); i++ {
		c := n[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeHex normalizes s and returns the bytes it encodes.
//
// Returns:
//   - []byte: decoded frame
//   - error: *ValidationError if s is not valid hex
func DecodeHex(s string) ([]byte, error) {
	n := Normalize(s)
	if !Validate(n) {
		return nil, &ValidationError{Input: s, Reason: "invalid hex format"}
	}
	b, err := hex.DecodeString(n)
	if err != nil {
		return nil, &ValidationError{Input: s, Reason: "invalid hex format"}
	}
	return b, nil
}

// SplitLines splits multi-line input into trimmed, non-blank lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
