package discovery

import (
	"fmt"
	"strings"
)

// TXT record keys.
const (
	TXTKeyID      = "id"
	TXTKeyName    = "name"
	TXTKeyRole    = "role"
	TXTKeyVersion = "v"
)

// RoleHost is the only role value advertised.
const RoleHost = "host"

// ProtocolVersion is the signaling protocol version carried in TXT records.
const ProtocolVersion = "1"

// maxTXTValueLen bounds a single TXT string (key=value) per RFC 6763.
const maxTXTValueLen = 255

// HostTXT holds the TXT record fields of a host advertisement.
type HostTXT struct {
	// PeerID is the stable identifier of the advertising peer.
	PeerID string

	// Name is the display name.
	Name string

	// Role is the advertised role. Always RoleHost when encoded.
	Role string

	// Version is the signaling protocol version.
	Version string
}

// Encode returns the TXT strings for the advertisement.
func (h *HostTXT) Encode() []string {
	name := h.Name
	if max := maxTXTValueLen - len(TXTKeyName) - 1; len(name) > max {
		name = name[:max]
	}
	return []string{
		TXTKeyID + "=" + h.PeerID,
		TXTKeyName + "=" + name,
		TXTKeyRole + "=" + RoleHost,
		TXTKeyVersion + "=" + ProtocolVersion,
	}
}

// Validate checks that the required fields are set.
func (h *HostTXT) Validate() error {
	if h.PeerID == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyID)
	}
	return nil
}

// ParseTXT parses TXT record strings into a key-value map.
// Keys are lowercased; records without "=" map to an empty value.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string, len(records))
	for _, rec := range records {
		key, value, _ := strings.Cut(rec, "=")
		if key == "" {
			continue
		}
		result[strings.ToLower(key)] = value
	}
	return result
}

// ParseHostTXT parses the TXT records of a host advertisement.
func ParseHostTXT(records []string) (*HostTXT, error) {
	kv := ParseTXT(records)

	h := &HostTXT{
		PeerID:  kv[TXTKeyID],
		Name:    kv[TXTKeyName],
		Role:    kv[TXTKeyRole],
		Version: kv[TXTKeyVersion],
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if h.Role != RoleHost {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidTXTRecord, h.Role)
	}
	return h, nil
}
