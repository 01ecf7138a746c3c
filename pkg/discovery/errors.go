package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting a mode that is already active.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrInvalidServiceID is returned when the service ID is not a valid
	// DNS-SD service label (1-15 characters, letters, digits and hyphens).
	ErrInvalidServiceID = errors.New("discovery: invalid service ID")

	// ErrInvalidPort is returned when the port number is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrInvalidPeerID is returned when the local peer ID is empty.
	ErrInvalidPeerID = errors.New("discovery: invalid peer ID")

	// ErrAdvertiseFailed wraps failures of the underlying mDNS registration.
	ErrAdvertiseFailed = errors.New("discovery: advertise failed")

	// ErrBrowseFailed wraps failures of the underlying mDNS resolver.
	ErrBrowseFailed = errors.New("discovery: browse failed")

	// ErrInvalidTXTRecord is returned when a TXT record set lacks required keys.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")
)
