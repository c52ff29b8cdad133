package translator

import "errors"

// Domain errors for the translator package.
var (
	// ErrTruncated is returned when a PDU ends before a field is complete.
	ErrTruncated = errors.New("translator: truncated pdu")

	// ErrMalformed is returned when a PDU violates its encoding rules.
	ErrMalformed = errors.New("translator: malformed pdu")

	// ErrUnsupported is returned for a command or choice the translator does not decode.
	ErrUnsupported = errors.New("translator: unsupported pdu")
)
