// Package session manages the connection lifecycle between two nearby
// peers.
//
// A Session owns discovery, the signaling transport, negotiation and the
// media connection for one local device. Every state change happens on a
// single event-loop goroutine: API calls and asynchronous callbacks are
// queued to it and applied in order.
//
// Lifecycle:
//
//	Idle/Failed --StartHosting--> Starting --> Hosting --media--> Connected
//	Idle/Failed --StartJoining--> Starting --> Joining --media--> Connected
//
// Losing the bound peer returns to the previous role while other peers are
// still available, otherwise to Idle. Fatal errors lead to Failed, from
// which only StartHosting or StartJoining recover. Disconnect returns to
// Idle from every state.
package session

import (
	"fmt"

	"github.com/backkem/peerlink/pkg/negotiation"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle holds no resources.
	StateIdle State = iota

	// StateStarting means discovery and the transport are being started.
	StateStarting

	// StateHosting means the session is advertised and waits for a joiner.
	StateHosting

	// StateJoining means the session browses for hosts.
	StateJoining

	// StateConnected means media flows between the two peers.
	StateConnected

	// StateFailed means an unrecoverable error ended the session.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateHosting:
		return "Hosting"
	case StateJoining:
		return "Joining"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// CanStart returns true if StartHosting or StartJoining may be called.
func (s State) CanStart() bool {
	return s == StateIdle || s == StateFailed
}

// IsActive returns true while resources are held.
func (s State) IsActive() bool {
	switch s {
	case StateStarting, StateHosting, StateJoining, StateConnected:
		return true
	default:
		return false
	}
}

// Role is the part the local device plays in a session.
type Role int

const (
	// RoleNone means no session is running.
	RoleNone Role = iota

	// RoleHost advertises and sends media.
	RoleHost

	// RoleJoiner browses, connects and receives media.
	RoleJoiner
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "Host"
	case RoleJoiner:
		return "Joiner"
	default:
		return "None"
	}
}

// MarshalText encodes the role as its name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	for role := RoleNone; role <= RoleJoiner; role++ {
		if role.String() == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("session: unknown role %q", text)
}

// activeState is the state a running session rests in for the role.
func (r Role) activeState() State {
	if r == RoleHost {
		return StateHosting
	}
	return StateJoining
}

func (r Role) negotiationRole() negotiation.Role {
	if r == RoleHost {
		return negotiation.RoleHost
	}
	return negotiation.RoleJoiner
}

// ErrorKind classifies session errors.
type ErrorKind int

const (
	// KindDiscovery covers advertising or browsing failing to start.
	KindDiscovery ErrorKind = iota + 1

	// KindTransport covers signaling send failures and dropped connections.
	KindTransport

	// KindNegotiation covers malformed or duplicate descriptions and local
	// description failures.
	KindNegotiation

	// KindMedia covers missing tracks and media path failures.
	KindMedia
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindDiscovery:
		return "DiscoveryError"
	case KindTransport:
		return "TransportError"
	case KindNegotiation:
		return "NegotiationError"
	case KindMedia:
		return "MediaError"
	default:
		return "Unknown"
	}
}
