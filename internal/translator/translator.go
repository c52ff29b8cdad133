// Package translator renders DLMS APDUs as XML.
//
// The output follows the element naming of the Gurux DLMS XML translator:
// protocol field names become elements and leaf values are carried in a
// Value attribute, hex-encoded unless the field is text. AARQ, AARE and the
// LN (Get, Set, Action) and SN (Read, Write) services are decoded. Ciphered
// user-information is passed through as hex.
//
// Translator satisfies dlms.Decoder and can be replaced by any other
// implementation producing the same shape.
package translator

import "fmt"

// Translator converts PDUs to XML. The zero value is ready to use and is
// safe for concurrent use.
type Translator struct{}

// New returns a Translator.
func New() *Translator {
	return &Translator{}
}

var decoders = map[byte]func([]byte) (string, error){
	0x60: decodeAARQ,
	0x61: decodeAARE,
	0xC0: decodeGetRequest,
	0xC4: decodeGetResponse,
	0xC1: decodeSetRequest,
	0xC5: decodeSetResponse,
	0xC3: decodeActionRequest,
	0xC7: decodeActionResponse,
	0x05: decodeReadRequest,
	0x0C: decodeReadResponse,
	0x06: decodeWriteRequest,
	0x0D: decodeWriteResponse,
}

// PDUToXML renders pdu as XML.
//
// Returns:
//   - string: XML description of the PDU
//   - error: wrapping ErrTruncated, ErrMalformed or ErrUnsupported
func (t *Translator) PDUToXML(pdu []byte) (string, error) {
	if len(pdu) == 0 {
		return "", fmt.Errorf("%w: empty pdu", ErrTruncated)
	}
	decode, ok := decoders[pdu[0]]
	if !ok {
		return "", fmt.Errorf("%w: command 0x%02X", ErrUnsupported, pdu[0])
	}
	return decode(pdu)
}
