package negotiation

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrClosed is returned after Close or after a fatal error.
	ErrClosed = errors.New("negotiation: closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("negotiation: already started")

	// ErrInvalidRole is returned when the configured role is unknown.
	ErrInvalidRole = errors.New("negotiation: invalid role")

	// ErrNoConnection is returned when Config.Conn is nil.
	ErrNoConnection = errors.New("negotiation: no connection")

	// ErrNoSender is returned when Config.Send is nil.
	ErrNoSender = errors.New("negotiation: no send function")

	// ErrDuplicateDescription is returned when a second remote description
	// arrives. It is not fatal; the description is ignored.
	ErrDuplicateDescription = errors.New("negotiation: duplicate remote description")

	// ErrUnexpectedDescription is returned for an offer at the host or an
	// answer at the joiner, and for an answer before any offer was made.
	// It is not fatal.
	ErrUnexpectedDescription = errors.New("negotiation: unexpected description")

	// ErrCandidateRejected is returned when the connection refuses a remote
	// candidate. It is not fatal.
	ErrCandidateRejected = errors.New("negotiation: candidate rejected")

	// ErrSendFailed marks fatal errors caused by the signaling channel.
	ErrSendFailed = errors.New("negotiation: send failed")
)

// Error is a fatal negotiation failure. After it is returned the Negotiator
// is closed.
type Error struct {
	// Op is the step that failed, e.g. "create offer".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("negotiation: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err ended the negotiation.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
