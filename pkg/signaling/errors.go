package signaling

import "errors"

// Codec errors.
var (
	// ErrMalformed is returned when a message is not valid JSON or is missing
	// required fields.
	ErrMalformed = errors.New("signaling: malformed message")

	// ErrUnknownMessageType is returned for a well-formed envelope whose
	// messageType is not recognised.
	ErrUnknownMessageType = errors.New("signaling: unknown message type")

	// ErrInvalidSDPType is returned when a session description type is neither
	// offer nor answer.
	ErrInvalidSDPType = errors.New("signaling: invalid session description type")
)
