package session

import (
	"errors"
	"fmt"
)

// Session package errors.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")

	// ErrBusy is returned when starting while a session is active, or when
	// connecting while a peer is already bound.
	ErrBusy = errors.New("session: busy")

	// ErrNotJoining is returned by ConnectToPeer outside the Joining state.
	ErrNotJoining = errors.New("session: not joining")

	// ErrPeerNotFound is returned when the peer is not in the available list.
	ErrPeerNotFound = errors.New("session: peer not found")

	// ErrDisconnected is returned by a pending start interrupted by Disconnect.
	ErrDisconnected = errors.New("session: disconnected")

	// ErrMediaFailed reports that the media path failed.
	ErrMediaFailed = errors.New("session: media path failed")

	// ErrMediaStalled reports that no frames arrived within the media timeout.
	ErrMediaStalled = errors.New("session: no media received")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Error is a classified session error. Fatal errors are recorded as the
// session's last error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a session error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
