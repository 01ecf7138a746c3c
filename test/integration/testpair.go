// Package integration provides test infrastructure for peerlink E2E tests.
//
// Sessions run real pion peer connections on loopback. Discovery and
// signaling go through the in-memory mDNS mock and pipe network so tests do
// not depend on multicast or free ports.
package integration

import (
	"net"
	"testing"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/media"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/backkem/peerlink/pkg/transport"
	"github.com/pion/logging"
)

// DefaultTimeout bounds every wait in the E2E tests.
const DefaultTimeout = 20 * time.Second

// Network links sessions created by NewNode.
type Network struct {
	Resolver *discovery.MockMDNSResolver
	Servers  *discovery.MockMDNSServerFactory
	Pipes    *transport.PipeNetwork

	loggerFactory logging.LoggerFactory
}

// NewNetwork creates an empty in-memory network.
func NewNetwork() *Network {
	resolver := discovery.NewMockMDNSResolver()
	return &Network{
		Resolver:      resolver,
		Servers:       &discovery.MockMDNSServerFactory{Resolver: resolver, IP: net.IPv4(127, 0, 0, 1)},
		Pipes:         transport.NewPipeNetwork(),
		loggerFactory: logging.NewDefaultLoggerFactory(),
	}
}

// Node is one device under test.
type Node struct {
	Session  *session.Session
	Pipeline *media.SamplePipeline
}

// NewNode creates a session with a real pion factory and a sample pipeline.
// The session is closed when the test ends.
func (n *Network) NewNode(t *testing.T, id string, opts ...func(*session.Config)) *Node {
	t.Helper()

	pipeline := media.NewSamplePipeline(media.SampleConfig{
		FrameRate:     50,
		FrameSize:     800,
		LoggerFactory: n.loggerFactory,
	})
	config := session.Config{
		PeerID:          id,
		Name:            "device-" + id,
		BrowseInterval:  50 * time.Millisecond,
		PeerTTL:         2 * time.Second,
		ServerFactory:   n.Servers,
		MDNSResolver:    n.Resolver,
		ListenAddr:      "127.0.0.1:0",
		Listen:          n.Pipes.Listen,
		Dialer:          n.Pipes,
		IncludeLoopback: true,
		Pipeline:        pipeline,
		LoggerFactory:   n.loggerFactory,
	}
	for _, opt := range opts {
		opt(&config)
	}

	s, err := session.New(config)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &Node{Session: s, Pipeline: pipeline}
}

// Connect starts host and joiner and links them.
func Connect(t *testing.T, host, joiner *Node) {
	t.Helper()
	if err := host.Session.StartHosting(); err != nil {
		t.Fatalf("StartHosting() error = %v", err)
	}
	if err := joiner.Session.StartJoining(); err != nil {
		t.Fatalf("StartJoining() error = %v", err)
	}
	JoinHost(t, host, joiner)
}

// JoinHost connects an already joining node to host.
func JoinHost(t *testing.T, host, joiner *Node) {
	t.Helper()
	WaitFor(t, "host discovered", func() bool {
		for _, p := range joiner.Session.Peers() {
			if p.ID == host.Session.PeerID() {
				return true
			}
		}
		return false
	})
	if err := joiner.Session.ConnectToPeer(host.Session.PeerID()); err != nil {
		t.Fatalf("ConnectToPeer() error = %v", err)
	}
	WaitState(t, host.Session, session.StateConnected)
	WaitState(t, joiner.Session, session.StateConnected)
}

// WaitFor polls cond until it holds or DefaultTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// WaitState waits until s reaches state.
func WaitState(t *testing.T, s *session.Session, state session.State) {
	t.Helper()
	WaitFor(t, "state "+state.String(), func() bool { return s.State() == state })
}
