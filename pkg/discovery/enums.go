// Package discovery finds nearby peers over mDNS/DNS-SD.
//
// A host advertises a service instance carrying its peer ID and display name
// in TXT records; a joiner browses the same service and maintains a
// deduplicated set of available hosts. Only one of advertising or browsing is
// active at a time.
//
// The service type for a service ID "peerlink" is "_peerlink._tcp".
package discovery

import "time"

// DNS-SD constants.
const (
	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."

	// DefaultBrowseInterval is how long each browse round lasts before a fresh
	// query is issued.
	DefaultBrowseInterval = 5 * time.Second

	// DefaultPeerTTL is how long a peer stays in the available set without
	// being seen again.
	DefaultPeerTTL = 15 * time.Second
)

// Mode is the discovery activity currently running.
type Mode int

// Mode constants.
const (
	// ModeIdle means neither advertising nor browsing.
	ModeIdle Mode = iota

	// ModeAdvertising means the local peer is announced as a host.
	ModeAdvertising

	// ModeBrowsing means hosts are being scanned for.
	ModeBrowsing
)

// String returns a human-readable string for the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeAdvertising:
		return "Advertising"
	case ModeBrowsing:
		return "Browsing"
	default:
		return "Unknown"
	}
}

// EventType identifies a change in the available-peer set.
type EventType int

// EventType constants.
const (
	// EventFound is emitted the first time a peer is seen.
	EventFound EventType = iota + 1

	// EventLost is emitted when a known peer goes away or expires.
	EventLost
)

// String returns a human-readable string for the event type.
func (e EventType) String() string {
	switch e {
	case EventFound:
		return "Found"
	case EventLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// Event reports a peer appearing or disappearing.
type Event struct {
	Type EventType
	Peer Peer
}

// ServiceType returns the DNS-SD service type for a service ID,
// e.g. "peerlink" becomes "_peerlink._tcp".
func ServiceType(serviceID string) string {
	return "_" + serviceID + "._tcp"
}
