// Package obis formats OBIS object identifiers.
package obis

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatInstanceID renders a 12-hex-digit instance id as A-B:C.D.E*F with
// decimal groups. Input of any other length, or that is not hex, is
// returned unchanged.
func FormatInstanceID(s string) string {
	b, ok := decode(s)
	if !ok {
		return s
	}
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", b[0], b[1], b[2], b[3], b[4], b[5])
}

func decode(s string) ([]byte, bool) {
	if len(s) != 12 {
		return nil, false
	}
	b, err := hex.DecodeString(strings.ToUpper(s))
	if err != nil {
		return nil, false
	}
	return b, true
}
