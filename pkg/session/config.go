package session

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/media"
	"github.com/backkem/peerlink/pkg/transport"
	"github.com/backkem/peerlink/pkg/webrtcpeer"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultServiceID is the DNS-SD service advertised and browsed.
const DefaultServiceID = "peerlink"

// Config configures a Session.
type Config struct {
	// PeerID identifies the local device. Defaults to a random UUID.
	PeerID string

	// Name is the display name advertised to peers. Defaults to the host
	// name.
	Name string

	// ServiceID selects the service type _<ServiceID>._tcp.
	// Default: DefaultServiceID.
	ServiceID string

	// Interfaces restricts mDNS to these interfaces. Nil means all.
	Interfaces []net.Interface

	// BrowseInterval and PeerTTL tune discovery. Zero uses discovery defaults.
	BrowseInterval time.Duration
	PeerTTL        time.Duration

	// ServerFactory and MDNSResolver replace the mDNS implementation.
	ServerFactory discovery.MDNSServerFactory
	MDNSResolver  discovery.MDNSResolver

	// ListenAddr is the signaling listen address when hosting (default ":0").
	ListenAddr string

	// Listen and Dialer replace the signaling network.
	Listen transport.ListenFunc
	Dialer transport.Dialer

	// ICEServers are STUN/TURN URLs for the default peer factory.
	ICEServers []string

	// IncludeLoopback gathers loopback candidates with the default factory.
	IncludeLoopback bool

	// Peers creates media connections. Defaults to a pion API.
	Peers webrtcpeer.Factory

	// Pipeline supplies the local track and consumes the remote one.
	// Defaults to a synthetic media.SamplePipeline.
	Pipeline media.Pipeline

	// MediaTimeout fails a connected joiner whose pipeline stops receiving
	// frames for this long. Zero disables the check.
	MediaTimeout time.Duration

	// OnStateChanged is called from the event loop on every transition.
	// It must not block or call back into the Session synchronously.
	OnStateChanged func(State)

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() error {
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.PeerID == "" {
		c.PeerID = uuid.NewString()
	}
	if c.Name == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Name = host
		} else {
			c.Name = c.PeerID
		}
	}
	if c.ServiceID == "" {
		c.ServiceID = DefaultServiceID
	}
	if err := discovery.ValidateServiceID(c.ServiceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MediaTimeout < 0 {
		return fmt.Errorf("%w: negative media timeout", ErrInvalidConfig)
	}
	if c.Peers == nil {
		api, err := webrtcpeer.NewAPI(webrtcpeer.Config{
			ICEServers:      c.ICEServers,
			IncludeLoopback: c.IncludeLoopback,
			LoggerFactory:   c.LoggerFactory,
		})
		if err != nil {
			return err
		}
		c.Peers = api
	}
	if c.Pipeline == nil {
		c.Pipeline = media.NewSamplePipeline(media.SampleConfig{LoggerFactory: c.LoggerFactory})
	}
	return nil
}
