package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session-layer failures. The manager's retry loop keys
// off ErrNeedsReconnect; every other kind surfaces to the caller unchanged.
type ErrorKind int

const (
	// ErrIO covers network and protocol failures not otherwise classified.
	ErrIO ErrorKind = iota
	// ErrNeedsReconnect marks a pooled connection as dead; the session
	// manager discards it and retries with a fresh connection.
	ErrNeedsReconnect
	// ErrAuthorization is an explicit credential refusal by the peer.
	ErrAuthorization
	// ErrNegativeReply is a channel request the peer rejected.
	ErrNegativeReply
	// ErrNotFound is a lookup of an unknown shell token.
	ErrNotFound
	// ErrDisconnected is a send on a channel whose pump has stopped.
	ErrDisconnected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNeedsReconnect:
		return "needs-reconnect"
	case ErrAuthorization:
		return "authorization"
	case ErrNegativeReply:
		return "negative-reply"
	case ErrNotFound:
		return "not-found"
	case ErrDisconnected:
		return "disconnected"
	default:
		return "io"
	}
}

// Error is a classified session error wrapping an optional transport cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err carries the given session error kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func errDisconnected() *Error {
	return NewError(ErrDisconnected, "channel pump has stopped", nil)
}
