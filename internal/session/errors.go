package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session failed.
type Kind string

const (
	KindConnection  Kind = "ConnectionError"
	KindSend        Kind = "SendError"
	KindReceive     Kind = "ReceiveError"
	KindDecode      Kind = "DecodeError"
	KindExpectation Kind = "ExpectationError"
	KindInternal    Kind = "InternalError"
)

var (
	// ErrPeerClosed is reported when a read returns zero bytes.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrInvalidUTF8 is reported when a response is not valid UTF-8 text.
	ErrInvalidUTF8 = errors.New("response is not valid UTF-8")
)

// Error is the failure carried by an Outcome.
type Error struct {
	Kind Kind
	// Request is the request index that failed, or -1 for the connect step.
	Request int
	Err     error
}

func (e *Error) Error() string {
	if e.Request < 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (request %d): %v", e.Kind, e.Request, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind lets the metrics collector group failures by kind.
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

// KindOf returns the Kind of err, or "" when err is not a session error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
