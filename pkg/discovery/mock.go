package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver provides a mock mDNS resolver for testing without real network I/O.
// Registered entries are replayed at the start of every browse round; entries
// announced or withdrawn while a round is running are delivered live.
type MockMDNSResolver struct {
	mu       sync.Mutex
	services map[string][]*zeroconf.ServiceEntry
	watchers map[chan *zeroconf.ServiceEntry]string
	browses  int
	err      error
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
		watchers: make(map[chan *zeroconf.ServiceEntry]string),
	}
}

// RegisterService registers a service that will be returned by Browse.
// Running browse rounds receive it immediately.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services[service] = append(m.services[service], entry)
	m.notifyLocked(service, entry)
}

// UnregisterService removes an instance and sends a goodbye (TTL 0) to
// running browse rounds.
func (m *MockMDNSResolver) UnregisterService(service, instance string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.services[service]
	for i, e := range list {
		if e.Instance != instance {
			continue
		}
		m.services[service] = append(list[:i:i], list[i+1:]...)
		bye := *e
		bye.TTL = 0
		m.notifyLocked(service, &bye)
		return
	}
}

// ClearServices removes all registered services without sending goodbyes.
func (m *MockMDNSResolver) ClearServices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string][]*zeroconf.ServiceEntry)
}

// SetBrowseError makes subsequent Browse calls fail with err. Pass nil to clear.
func (m *MockMDNSResolver) SetBrowseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// BrowseCount returns how many browse rounds have started.
func (m *MockMDNSResolver) BrowseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browses
}

// ActiveBrowses returns the number of browse rounds currently running.
func (m *MockMDNSResolver) ActiveBrowses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *MockMDNSResolver) notifyLocked(service string, entry *zeroconf.ServiceEntry) {
	for ch, svc := range m.watchers {
		if svc != service {
			continue
		}
		select {
		case ch <- entry:
		default:
		}
	}
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.Lock()
	m.browses++
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	initial := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(initial, m.services[service])
	live := make(chan *zeroconf.ServiceEntry, 64)
	m.watchers[live] = service
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.watchers, live)
		m.mu.Unlock()
	}()

	for _, entry := range initial {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return nil
		}
	}

	for {
		select {
		case entry := <-live:
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// MockMDNSServerFactory records registrations instead of touching the network.
// When Resolver is set, registrations are visible to it, which links an
// advertising Discovery to a browsing one in the same process.
type MockMDNSServerFactory struct {
	// Resolver receives registered services, if set.
	Resolver *MockMDNSResolver

	// IP is the address reported for registered services. Defaults to 127.0.0.1.
	IP net.IP

	mu          sync.Mutex
	registered  int
	active      int
	registerErr error
}

// SetRegisterError makes subsequent Register calls fail with err.
func (f *MockMDNSServerFactory) SetRegisterError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerErr = err
}

// Registrations returns the total number of successful Register calls.
func (f *MockMDNSServerFactory) Registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

// Active returns the number of registrations not yet shut down.
func (f *MockMDNSServerFactory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Register implements MDNSServerFactory.
func (f *MockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	if f.registerErr != nil {
		err := f.registerErr
		f.mu.Unlock()
		return nil, err
	}
	f.registered++
	f.active++
	ip := f.IP
	f.mu.Unlock()

	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1)
	}
	entry := MockHostService(instance, service, port, ip, txt)
	if f.Resolver != nil {
		f.Resolver.RegisterService(service, entry)
	}
	return &mockServer{factory: f, service: service, instance: instance}, nil
}

type mockServer struct {
	factory  *MockMDNSServerFactory
	service  string
	instance string
	once     sync.Once
}

func (s *mockServer) Shutdown() {
	s.once.Do(func() {
		s.factory.mu.Lock()
		s.factory.active--
		s.factory.mu.Unlock()
		if s.factory.Resolver != nil {
			s.factory.Resolver.UnregisterService(s.service, s.instance)
		}
	})
}

// MockHostService creates a host service entry for testing.
func MockHostService(instance, service string, port int, ip net.IP, txt []string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  service,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local.",
		Port:     port,
		Text:     txt,
		TTL:      120,
	}
	if ip.To4() != nil {
		entry.AddrIPv4 = []net.IP{ip}
	} else {
		entry.AddrIPv6 = []net.IP{ip}
	}
	return entry
}

// MockPeerService creates a host service entry advertising peerID and name.
func MockPeerService(serviceID, peerID, name string, port int, ip net.IP) *zeroconf.ServiceEntry {
	txt := HostTXT{PeerID: peerID, Name: name}
	return MockHostService(name+"-"+peerID, ServiceType(serviceID), port, ip, txt.Encode())
}
