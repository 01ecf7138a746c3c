package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrAlreadyListening is returned when Listen is called twice.
	ErrAlreadyListening = errors.New("transport: already listening")

	// ErrNotConnected is returned by Send when the peer is not the bound,
	// connected peer.
	ErrNotConnected = errors.New("transport: peer not connected")

	// ErrBusy is returned by Connect when a peer is already bound or dialing.
	ErrBusy = errors.New("transport: already bound to a peer")

	// ErrInvalidAddress is returned when an invalid peer address is provided.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrInvalidPeerID is returned when an empty peer ID is provided.
	ErrInvalidPeerID = errors.New("transport: invalid peer ID")

	// ErrMessageTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrInvalidFrame is returned when a frame has a bad length or type.
	ErrInvalidFrame = errors.New("transport: invalid frame")

	// ErrHandshakeFailed is returned when the hello exchange fails.
	ErrHandshakeFailed = errors.New("transport: handshake failed")

	// ErrPeerMismatch is returned when the dialed host identifies as a
	// different peer than the one requested.
	ErrPeerMismatch = errors.New("transport: peer identity mismatch")

	// ErrConnectionRefused is returned by PipeNetwork when nothing listens
	// on the dialed address.
	ErrConnectionRefused = errors.New("transport: connection refused")

	// ErrAddressInUse is returned by PipeNetwork when the address is taken.
	ErrAddressInUse = errors.New("transport: address already in use")
)
