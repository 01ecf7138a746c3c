package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for an mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown withdraws the registration.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register announces a service instance.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser announces the local peer as a host. At most one registration is
// active at a time.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.Mutex
	server   MDNSServer
	instance string
	service  string
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}
	lf := config.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}

	return &Advertiser{
		config:  config,
		factory: factory,
		log:     lf.NewLogger("discovery"),
	}
}

// Start registers the host service. instance is the DNS-SD instance label.
func (a *Advertiser) Start(instance, serviceID string, port int, txt HostTXT) error {
	if err := ValidateServiceID(serviceID); err != nil {
		return err
	}
	if port <= 0 || port > 65535 {
		return ErrInvalidPort
	}
	if err := txt.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return ErrAlreadyStarted
	}

	service := ServiceType(serviceID)
	records := txt.Encode()
	a.log.Debugf("Registering mDNS service: instance=%s service=%s port=%d", instance, service, port)
	a.log.Tracef("TXT records: %v", records)

	server, err := a.factory.Register(instance, service, DefaultDomain, port, records, a.config.Interfaces)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAdvertiseFailed, service, err)
	}

	a.log.Infof("Advertising %s as %q on port %d", service, instance, port)
	a.server = server
	a.instance = instance
	a.service = service
	return nil
}

// Stop withdraws the registration. Safe to call when not advertising.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.log.Debugf("Withdrew %s instance %q", a.service, a.instance)
	a.server = nil
	a.instance = ""
	a.service = ""
}

// IsAdvertising returns true while a registration is active.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// InstanceName returns the active instance name, or "" if not advertising.
func (a *Advertiser) InstanceName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instance
}

// ValidateServiceID checks that id is usable as a DNS-SD service label:
// 1-15 characters of letters, digits and hyphens, starting with a letter.
func ValidateServiceID(id string) error {
	if len(id) == 0 || len(id) > 15 {
		return ErrInvalidServiceID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case (c >= '0' && c <= '9') || c == '-':
			if i == 0 {
				return ErrInvalidServiceID
			}
		default:
			return ErrInvalidServiceID
		}
	}
	if id[len(id)-1] == '-' {
		return ErrInvalidServiceID
	}
	return nil
}
