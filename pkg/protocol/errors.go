package protocol

import (
	"errors"
	"fmt"
)

// Error messages sent back in error envelopes.
const (
	MessageInvalidFormat = "Invalid message format"
	MessageUnknownAction = "Unknown action"
)

// ErrNotConnected is returned locally when a request is attempted while
// the connection is not open. Nothing is queued.
var ErrNotConnected = errors.New("not connected")

// DecodeError reports a frame that is not well-formed or has no type.
type DecodeError struct {
	Reason string
	ID     *int64
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownTypeError reports a well-formed frame whose type is outside the
// closed set of message types.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// ProtocolMismatchError reports a response whose type differs from the
// request it resolved.
type ProtocolMismatchError struct {
	ID       int64
	Expected string
	Got      string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("response %d: expected type %q, got %q", e.ID, e.Expected, e.Got)
}

// RemoteError is an error envelope received in answer to a request.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}
