package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Config holds configuration for Discovery.
type Config struct {
	// PeerID is the local peer identifier. Required.
	PeerID string

	// Name is the local display name. Defaults to PeerID.
	Name string

	// Interfaces specifies which network interfaces to use.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// BrowseInterval is the length of one browse round.
	// If zero, DefaultBrowseInterval is used.
	BrowseInterval time.Duration

	// PeerTTL is how long a peer is kept without being seen again.
	// If zero, DefaultPeerTTL is used.
	PeerTTL time.Duration

	// ServerFactory is the factory for creating mDNS servers (for testing).
	ServerFactory MDNSServerFactory

	// MDNSResolver is the mDNS resolver implementation (for testing).
	MDNSResolver MDNSResolver

	// OnEvent is called from the browse goroutine whenever a peer is found
	// or lost. It must not call back into Discovery.
	OnEvent func(Event)

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Discovery advertises the local peer as a host or browses for hosts.
// The two modes are exclusive: starting one stops the other.
type Discovery struct {
	config     Config
	log        logging.LeveledLogger
	advertiser *Advertiser
	resolver   MDNSResolver

	mu      sync.Mutex
	mode    Mode
	browser *browser
	closed  bool
}

// New creates a Discovery with the given configuration.
func New(config Config) (*Discovery, error) {
	if config.PeerID == "" {
		return nil, ErrInvalidPeerID
	}
	if config.Name == "" {
		config.Name = config.PeerID
	}
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = DefaultBrowseInterval
	}
	if config.PeerTTL <= 0 {
		config.PeerTTL = DefaultPeerTTL
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	resolver := config.MDNSResolver
	if resolver == nil {
		resolver = &zeroconfResolver{ifaces: config.Interfaces}
	}

	return &Discovery{
		config: config,
		log:    config.LoggerFactory.NewLogger("discovery"),
		advertiser: NewAdvertiser(AdvertiserConfig{
			Interfaces:    config.Interfaces,
			ServerFactory: config.ServerFactory,
			LoggerFactory: config.LoggerFactory,
		}),
		resolver: resolver,
	}, nil
}

// StartAdvertising announces the local peer as a host of serviceID whose
// signaling transport listens on port.
func (d *Discovery) StartAdvertising(serviceID string, port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.mode == ModeAdvertising {
		return ErrAlreadyStarted
	}
	d.stopLocked()

	txt := HostTXT{PeerID: d.config.PeerID, Name: d.config.Name}
	if err := d.advertiser.Start(d.instanceName(), serviceID, port, txt); err != nil {
		return err
	}
	d.mode = ModeAdvertising
	return nil
}

// StartBrowsing scans for hosts of serviceID until ctx is done or Stop is
// called. Found and lost peers are reported through Config.OnEvent.
func (d *Discovery) StartBrowsing(ctx context.Context, serviceID string) error {
	if err := ValidateServiceID(serviceID); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.mode == ModeBrowsing {
		return ErrAlreadyStarted
	}
	d.stopLocked()

	b := newBrowser(browserConfig{
		service:  ServiceType(serviceID),
		selfID:   d.config.PeerID,
		interval: d.config.BrowseInterval,
		peerTTL:  d.config.PeerTTL,
		resolver: d.resolver,
		onEvent:  d.config.OnEvent,
		log:      d.log,
	})
	b.start(ctx)
	d.log.Infof("Browsing for %s", ServiceType(serviceID))

	d.browser = b
	d.mode = ModeBrowsing
	return nil
}

// Stop ends advertising or browsing. It is idempotent and returns only after
// the browse goroutine has exited.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Discovery) stopLocked() {
	switch d.mode {
	case ModeAdvertising:
		d.advertiser.Stop()
	case ModeBrowsing:
		d.browser.stop()
		d.browser = nil
		d.log.Debug("Browsing stopped")
	}
	d.mode = ModeIdle
}

// Mode returns the active mode.
func (d *Discovery) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Peers returns the currently available peers while browsing.
func (d *Discovery) Peers() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	return d.browser.peers.List()
}

// Close stops all activity. Further starts return ErrClosed.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.stopLocked()
	d.closed = true
	return nil
}

// instanceName derives the DNS-SD instance label from the display name and
// a short prefix of the peer ID, keeping instances unique on the link.
func (d *Discovery) instanceName() string {
	id := d.config.PeerID
	if len(id) > 8 {
		id = id[:8]
	}
	name := d.config.Name
	if max := 63 - len(id) - 1; len(name) > max {
		name = name[:max]
	}
	return name + "-" + id
}
