// Package transport carries signaling messages between two peers over a
// reliable byte stream.
//
// Every frame on the wire is a 4-byte little-endian length followed by a
// one-byte frame type and the payload. The length covers the type byte and
// the payload. A connection starts with both sides sending a hello frame
// carrying their identity; after that only data frames are exchanged.
//
// A Transport is bound to at most one peer at a time. Hosts listen and bind
// the first peer that completes the handshake; joiners dial a single host.
package transport

// ConnState is the connection state reported for a peer.
type ConnState int

// ConnState constants.
const (
	// StateNotConnected means there is no usable link to the peer.
	StateNotConnected ConnState = iota

	// StateConnecting means a link to the peer is being established.
	StateConnecting

	// StateConnected means the link is up and Send will deliver.
	StateConnected
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// FrameType identifies the content of a frame.
type FrameType uint8

// FrameType constants.
const (
	// FrameTypeHello carries the sender's identity. Sent once per connection.
	FrameTypeHello FrameType = 0x01

	// FrameTypeData carries an opaque signaling payload.
	FrameTypeData FrameType = 0x02
)

// String returns the string representation of the frame type.
func (f FrameType) String() string {
	switch f {
	case FrameTypeHello:
		return "Hello"
	case FrameTypeData:
		return "Data"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the frame type is known.
func (f FrameType) IsValid() bool {
	return f == FrameTypeHello || f == FrameTypeData
}
