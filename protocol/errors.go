package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when an input line is not a valid envelope.
var ErrMalformed = errors.New("malformed message")

// ErrorCode is the numeric code carried by an error body.
type ErrorCode int

const (
	Timeout                ErrorCode = 0
	NodeNotFound           ErrorCode = 1
	NotSupported           ErrorCode = 10
	TemporarilyUnavailable ErrorCode = 11
	MalformedRequest       ErrorCode = 12
	Crash                  ErrorCode = 13
	Abort                  ErrorCode = 14
	KeyDoesNotExist        ErrorCode = 20
	KeyAlreadyExists       ErrorCode = 21
	PreconditionFailed     ErrorCode = 22
	TxnConflict            ErrorCode = 30
)

// String returns the protocol name of the code.
func (c ErrorCode) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case NodeNotFound:
		return "node-not-found"
	case NotSupported:
		return "not-supported"
	case TemporarilyUnavailable:
		return "temporarily-unavailable"
	case MalformedRequest:
		return "malformed-request"
	case Crash:
		return "crash"
	case Abort:
		return "abort"
	case KeyDoesNotExist:
		return "key-does-not-exist"
	case KeyAlreadyExists:
		return "key-already-exists"
	case PreconditionFailed:
		return "precondition-failed"
	case TxnConflict:
		return "txn-conflict"
	default:
		return fmt.Sprintf("code-%d", int(c))
	}
}

// RPCError is an error that is reported to the requester as an error body.
type RPCError struct {
	Code ErrorCode
	Text string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, int(e.Code), e.Text)
}

// NewError returns an RPCError with the given code and text.
func NewError(code ErrorCode, text string) *RPCError {
	return &RPCError{Code: code, Text: text}
}

// ErrNotSupported builds the error answered for a request type the node does not handle.
func ErrNotSupported(t Type) *RPCError {
	return NewError(NotSupported, fmt.Sprintf("operation %q not supported", string(t)))
}

// AsPayload converts an RPCError into the error body sent over the wire.
func (e *RPCError) AsPayload() Error {
	return Error{Code: e.Code, Text: e.Text}
}
