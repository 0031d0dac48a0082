// Package errs defines the error taxonomy shared by the handshake, stream and
// session layers. Every error is scoped to a single play session; none of them
// is fatal to the process.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that branch on the kind of failure.
type Code string

const (
	CodeValidation     Code = "validation"
	CodeHandshake      Code = "handshake"
	CodeStream         Code = "stream"
	CodeMalformedFrame Code = "malformed_frame"
)

// Op names the step that failed.
type Op string

const (
	OpInit    Op = "init"
	OpToken   Op = "token"
	OpDial    Op = "dial"
	OpAuth    Op = "auth"
	OpTimeout Op = "timeout"
	OpRead    Op = "read"
	OpClose   Op = "close"
)

// Error is the domain error type.
type Error struct {
	Code    Code
	Op      Op
	Message string
	Status  int    // HTTP status, when the failure came from a response
	Body    string // raw response body, when available
	Cause   error
}

// Sentinels for errors.Is matching by code.
var (
	ErrValidation     = &Error{Code: CodeValidation}
	ErrHandshake      = &Error{Code: CodeHandshake}
	ErrStream         = &Error{Code: CodeStream}
	ErrMalformedFrame = &Error{Code: CodeMalformedFrame}
)

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg += " " + string(e.Op)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func Handshake(op Op, message string, cause error) *Error {
	return &Error{Code: CodeHandshake, Op: op, Message: message, Cause: cause}
}

// HandshakeStatus reports a non-success HTTP response.
func HandshakeStatus(op Op, status int, body string) *Error {
	return &Error{
		Code:    CodeHandshake,
		Op:      op,
		Message: "unexpected response",
		Status:  status,
		Body:    body,
	}
}

func Stream(op Op, cause error) *Error {
	return &Error{Code: CodeStream, Op: op, Cause: cause}
}

func MalformedFrame(text string) *Error {
	return &Error{Code: CodeMalformedFrame, Message: fmt.Sprintf("%q", text)}
}

// OpOf returns the Op of the first *Error in err's chain.
func OpOf(err error) Op {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}
