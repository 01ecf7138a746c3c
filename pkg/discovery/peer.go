package discovery

import (
	"net"
	"strconv"
	"sync"
)

// Peer is a host discovered on the local network.
type Peer struct {
	// ID is the stable peer identifier taken from the "id" TXT record.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Instance is the DNS-SD instance name the peer registered.
	Instance string `json:"instance"`

	// HostName is the mDNS target host.
	HostName string `json:"hostName"`

	// Port is the signaling port.
	Port int `json:"port"`

	// IPs contains the resolved addresses, sorted by preference.
	IPs []net.IP `json:"ips"`
}

// PreferredIP returns the most preferred IP address, or nil if none.
func (p Peer) PreferredIP() net.IP {
	if len(p.IPs) > 0 {
		return p.IPs[0]
	}
	return nil
}

// Address returns the "host:port" used to dial the peer's signaling
// transport. The preferred IP is used when known, the host name otherwise.
func (p Peer) Address() string {
	host := p.HostName
	if ip := p.PreferredIP(); ip != nil {
		host = ip.String()
	}
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// PeerSet is an insertion-ordered set of peers keyed by ID.
// It is safe for concurrent use.
type PeerSet struct {
	mu    sync.RWMutex
	order []string
	peers map[string]Peer
}

// NewPeerSet creates an empty peer set.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[string]Peer)}
}

// Add inserts the peer if no peer with the same ID is present.
// Returns true if the peer was added.
func (s *PeerSet) Add(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[p.ID]; exists {
		return false
	}
	s.peers[p.ID] = p
	s.order = append(s.order, p.ID)
	return true
}

// Update replaces the stored record of an existing peer, keeping its
// position. Returns false if the peer is unknown.
func (s *PeerSet) Update(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[p.ID]; !exists {
		return false
	}
	s.peers[p.ID] = p
	return true
}

// Remove deletes the peer with the given ID.
// Returns the removed peer and true if it was present.
func (s *PeerSet) Remove(id string) (Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.peers[id]
	if !exists {
		return Peer{}, false
	}
	delete(s.peers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, true
}

// Get returns the peer with the given ID.
func (s *PeerSet) Get(id string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[id]
	return p, ok
}

// Len returns the number of peers.
func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// List returns the peers in insertion order.
func (s *PeerSet) List() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Peer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.peers[id])
	}
	return out
}

// Clear removes all peers and returns them in insertion order.
func (s *PeerSet) Clear() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Peer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.peers[id])
	}
	s.order = nil
	s.peers = make(map[string]Peer)
	return out
}
