package dlms

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the dlms package.
//
// The typed errors below match these sentinels with errors.Is:
//
//	if errors.Is(err, dlms.ErrValidation) {
//	    // reject the input before decoding
//	}
var (
	// ErrValidation is returned when input is not even-length hex.
	ErrValidation = errors.New("dlms: invalid input")

	// ErrUnsupportedCommand is returned when the leading octet is not in the command table.
	ErrUnsupportedCommand = errors.New("dlms: unsupported command")

	// ErrDecode is returned when a builder or the decoder fails.
	ErrDecode = errors.New("dlms: decode failed")

	// ErrBatch is returned when any item of a batch fails.
	ErrBatch = errors.New("dlms: batch failed")
)

// ValidationError reports input rejected before decoding.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Input)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedCommandError reports a leading octet with no message kind.
type UnsupportedCommandError struct {
	Command byte
}

func (e *UnsupportedCommandError) Error() string {
	return "unsupported DLMS command: " + formatCommand(e.Command)
}

// Is matches ErrUnsupportedCommand.
func (e *UnsupportedCommandError) Is(target error) bool {
	return target == ErrUnsupportedCommand
}

// DecodeError wraps a failure raised while building a message of Type.
type DecodeError struct {
	Type MessageType
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// BatchFailure is a single failed item of a batch.
type BatchFailure struct {
	Index int
	Err   error
}

// BatchError aggregates every failed item of a batch. A batch that returns
// a BatchError returns no messages.
type BatchError struct {
	Failures []BatchFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("Index %d: %v", f.Index, f.Err)
	}
	return strings.Join(parts, "; ")
}

// Is matches ErrBatch.
func (e *BatchError) Is(target error) bool {
	return target == ErrBatch
}

// Unwrap exposes the per-item errors so errors.Is can see through a batch.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Problem is the structured error form returned to callers outside Go, such
// as API clients and MQTT subscribers.
type Problem struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ProblemFrom converts err into a Problem. The message is a stable category
// and the detail carries the underlying error text.
func ProblemFrom(err error) Problem {
	if err == nil {
		return Problem{}
	}
	var (
		verr *ValidationError
		uerr *UnsupportedCommandError
		derr *DecodeError
		berr *BatchError
	)
	switch {
	case errors.As(err, &berr):
		return Problem{Message: "Batch parsing failed", Detail: berr.Error()}
	case errors.As(err, &verr):
		return Problem{Message: "Invalid hex data", Detail: verr.Error()}
	case errors.As(err, &uerr):
		return Problem{Message: "Unsupported command", Detail: uerr.Error()}
	case errors.As(err, &derr):
		return Problem{Message: "Failed to parse " + string(derr.Type), Detail: derr.Err.Error()}
	default:
		return Problem{Message: "Parsing failed", Detail: err.Error()}
	}
}
