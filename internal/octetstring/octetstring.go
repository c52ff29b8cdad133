// Package octetstring guesses what an opaque octet string holds.
//
// Classify runs a fixed sequence of hypotheses over the bytes: ISO-8859-1
// text, a DLMS date-time, an OBIS-like logical name and finally the A-XDR
// type tag of the first byte. Every hypothesis that applies records its
// finding; the first one to apply also claims PrimaryDisplay.
package octetstring

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// Analysis is the outcome of Classify. Empty string fields mean the
// corresponding hypothesis did not apply.
type Analysis struct {
	RawHex                    string `json:"rawHex"`
	ASCIIDecoding             string `json:"asciiDecoding,omitempty"`
	PossibleTimestamp         string `json:"possibleTimestamp,omitempty"`
	PossibleObisCode          string `json:"possibleObisCode,omitempty"`
	StructureInfo             string `json:"structureInfo,omitempty"`
	HasReadableInterpretation bool   `json:"hasReadableInterpretation"`
	PrimaryDisplay            string `json:"primaryDisplay,omitempty"`
}

// Display returns PrimaryDisplay, or the raw hex when nothing readable was
// found.
func (a Analysis) Display() string {
	if a.PrimaryDisplay != "" {
		return a.PrimaryDisplay
	}
	return a.RawHex
}

// claim sets the primary display unless an earlier hypothesis already did.
func (a *Analysis) claim(label string) {
	if a.PrimaryDisplay != "" {
		return
	}
	a.PrimaryDisplay = label
	a.HasReadableInterpretation = true
}

// Classify analyses hexStr. It never fails: a hypothesis whose input cannot
// be decoded simply does not apply.
func Classify(hexStr string) Analysis {
	a := Analysis{RawHex: hexStr}
	if len(hexStr) < 4 {
		return a
	}

	b, err := hex.DecodeString(hexStr)
	if err == nil {
		classifyText(&a, b)
		classifyTimestamp(&a, hexStr, b)
		classifyLogicalName(&a, hexStr, b)
	}
	classifyTypeTag(&a, hexStr)

	return a
}

func classifyText(a *Analysis, b []byte) {
	if len(b) < 3 {
		return
	}
	text, ok := decodeLatin1(b, " _-.")
	if !ok {
		return
	}
	a.ASCIIDecoding = text
	a.claim("Text: " + a.ASCIIDecoding)
}

func classifyTimestamp(a *Analysis, hexStr string, b []byte) {
	if len(hexStr) < 24 || !strings.HasPrefix(hexStr, "07") || len(b) < 12 {
		return
	}
	year := int(b[0])<<8 | int(b[1])
	month, day := int(b[2]), int(b[3])
	hour, minute, second := int(b[5]), int(b[6]), int(b[7])

	if year < 2000 || year > 2100 ||
		month < 1 || month > 12 ||
		day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return
	}

	a.PossibleTimestamp = fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	a.claim("Timestamp: " + a.PossibleTimestamp)
}

func classifyLogicalName(a *Analysis, hexStr string, b []byte) {
	if len(hexStr) < 12 || len(b) < 6 || b[5] != 0xFF {
		return
	}
	a.PossibleObisCode = fmt.Sprintf("%d.%d.%d.%d.%d", b[0], b[1], b[2], b[3], b[4])
	a.claim("OBIS Code: " + a.PossibleObisCode)
}

func classifyTypeTag(a *Analysis, hexStr string) {
	tag, err := strconv.ParseUint(hexStr[:2], 16, 8)
	if err != nil {
		return
	}

	switch tag {
	case 0x09:
		a.StructureInfo = "OctetString type"
		a.claim(fmt.Sprintf("OctetString (%d bytes of binary data)", (len(hexStr)-2)/2))
	case 0x0A:
		a.StructureInfo = "VisibleString type"
		if text, ok := decodeIdentifier(hexStr); ok {
			a.claim("Text: " + text)
		}
	case 0x0C:
		a.StructureInfo = "UTF8String type"
		if text, ok := decodeIdentifier(hexStr); ok {
			a.claim("Text: " + text)
		}
	case 0x0F:
		a.StructureInfo = "Integer type"
	case 0x10:
		a.StructureInfo = "Long type"
	case 0x12:
		a.StructureInfo = "Unsigned type"
	case 0x16:
		a.StructureInfo = "Enum type"
	case 0x01:
		a.StructureInfo = "Array type"
		a.claim("Array of data elements")
	case 0x02:
		a.StructureInfo = "Structure type"
		a.claim("Structured data container")
	}
}

// decodeIdentifier decodes the content following a tag and length octet.
// Only letters, digits and underscores are accepted.
func decodeIdentifier(hexStr string) (string, bool) {
	if len(hexStr) <= 4 {
		return "", false
	}
	b, err := hex.DecodeString(hexStr[4:])
	if err != nil {
		return "", false
	}
	return decodeLatin1(b, "_")
}

// decodeLatin1 reads b as ISO-8859-1 text. It fails unless every
// character is a letter, a digit or one of extra.
func decodeLatin1(b []byte, extra string) (string, bool) {
	text, err := charmap.ISO8859_1.NewDecoder().String(string(b))
	if err != nil {
		return "", false
	}
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(extra, r) {
			return "", false
		}
	}
	return text, true
}
