package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic packet delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers queued packets.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory communication between two endpoints.
// It wraps pion's test.Bridge. Each Write is delivered as one packet, which
// matches how frames are written.
//
// By default, Pipe delivers packets in a background goroutine. Use
// SetAutoProcess(false) for deterministic, manually pumped tests.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.Mutex
	closed          bool
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	stopCh := p.stopCh
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				p.Process()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic packet delivery.
// When disabled, call Tick or Process manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	if p.closed || p.autoProcess == enabled {
		p.mu.Unlock()
		return
	}
	p.autoProcess = enabled
	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoProcess
}

// Conn0 returns the raw connection for endpoint 0.
func (p *Pipe) Conn0() net.Conn {
	return p.bridge.GetConn0()
}

// Conn1 returns the raw connection for endpoint 1.
func (p *Pipe) Conn1() net.Conn {
	return p.bridge.GetConn1()
}

// Tick delivers one packet in each direction, if available.
// Returns the number of packets delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// closeLinger bounds how long Close keeps handing queued packets to readers
// before discarding them.
const closeLinger = 20 * time.Millisecond

// Close stops auto-processing and closes both endpoints. Packets a reader
// takes within closeLinger are delivered; the rest are discarded. Blocked
// readers on either end then return io.EOF.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()

	// The bridge closes a read channel only during a Tick, and only once
	// nothing is queued toward that end.
	deadline := time.Now().Add(closeLinger)
	for p.bridge.Len(0)+p.bridge.Len(1) > 0 && time.Now().Before(deadline) {
		if p.bridge.Tick() == 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
	p.bridge.Drop(0, 0, p.bridge.Len(0))
	p.bridge.Drop(1, 0, p.bridge.Len(1))
	p.bridge.Tick()

	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	Host string
	Port int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns "host:port".
func (a PipeAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// PipeConn is one end of a Pipe with stream addresses. Closing either end
// closes the whole pipe, so the other side's Read fails.
type PipeConn struct {
	net.Conn
	pipe       *Pipe
	localAddr  PipeAddr
	remoteAddr PipeAddr
}

// Close closes the pipe.
func (c *PipeConn) Close() error {
	return c.pipe.Close()
}

// LocalAddr returns the local network address.
func (c *PipeConn) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr returns the remote network address.
func (c *PipeConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Pipe returns the underlying pipe for manual packet control.
func (c *PipeConn) Pipe() *Pipe {
	return c.pipe
}

// Verify PipeConn implements net.Conn.
var _ net.Conn = (*PipeConn)(nil)

// PipeListener implements net.Listener on a PipeNetwork.
type PipeListener struct {
	network  *PipeNetwork
	addr     PipeAddr
	acceptCh chan *PipeConn
	closeCh  chan struct{}
	once     sync.Once
}

// Accept waits for the next dialed connection.
func (l *PipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.acceptCh:
		return c, nil
	case <-l.closeCh:
		return nil, &net.OpError{Op: "accept", Net: "pipe", Addr: l.addr, Err: net.ErrClosed}
	}
}

// Close stops the listener and frees its address.
func (l *PipeListener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)
		l.network.remove(l.addr.String(), l)
	})
	return nil
}

// Addr returns the listener's network address.
func (l *PipeListener) Addr() net.Addr {
	return l.addr
}

// Verify PipeListener implements net.Listener.
var _ net.Listener = (*PipeListener)(nil)

// PipeNetwork is an in-memory stream network. Listen registers an address;
// DialContext connects to it through a fresh Pipe. It implements Dialer and
// its Listen method matches ListenFunc.
type PipeNetwork struct {
	config PipeConfig

	mu        sync.Mutex
	listeners map[string]*PipeListener
	nextPort  int
	dials     int
}

// NewPipeNetwork creates an empty in-memory network using the default pipe
// configuration.
func NewPipeNetwork() *PipeNetwork {
	return NewPipeNetworkWithConfig(DefaultPipeConfig())
}

// NewPipeNetworkWithConfig creates an in-memory network whose pipes use config.
func NewPipeNetworkWithConfig(config PipeConfig) *PipeNetwork {
	return &PipeNetwork{
		config:    config,
		listeners: make(map[string]*PipeListener),
		nextPort:  40000,
	}
}

// Listen registers a listener on address ("host:port"). Port 0 picks a free
// port.
func (n *PipeNetwork) Listen(network, address string) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if port == 0 {
		for {
			n.nextPort++
			if _, used := n.listeners[PipeAddr{Host: host, Port: n.nextPort}.String()]; !used {
				break
			}
		}
		port = n.nextPort
	}
	addr := PipeAddr{Host: host, Port: port}
	if _, used := n.listeners[addr.String()]; used {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}

	l := &PipeListener{
		network:  n,
		addr:     addr,
		acceptCh: make(chan *PipeConn),
		closeCh:  make(chan struct{}),
	}
	n.listeners[addr.String()] = l
	return l, nil
}

// DialContext connects to a listener on address.
func (n *PipeNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[address]
	if !ok {
		if host, port, err := net.SplitHostPort(address); err == nil {
			if p, err := strconv.Atoi(port); err == nil {
				l, ok = n.listeners[PipeAddr{Host: host, Port: p}.String()]
			}
		}
	}
	n.dials++
	id := n.dials
	n.mu.Unlock()

	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "pipe", Err: ErrConnectionRefused}
	}

	pipe := NewPipeWithConfig(n.config)
	client := PipeAddr{Host: "pipe-client", Port: id}
	local := &PipeConn{Conn: pipe.Conn0(), pipe: pipe, localAddr: client, remoteAddr: l.addr}
	remote := &PipeConn{Conn: pipe.Conn1(), pipe: pipe, localAddr: l.addr, remoteAddr: client}

	select {
	case l.acceptCh <- remote:
		return local, nil
	case <-l.closeCh:
		pipe.Close()
		return nil, &net.OpError{Op: "dial", Net: "pipe", Err: ErrConnectionRefused}
	case <-ctx.Done():
		pipe.Close()
		return nil, ctx.Err()
	}
}

// Dials returns the number of dial attempts made on the network.
func (n *PipeNetwork) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

// Listeners returns the number of open listeners.
func (n *PipeNetwork) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

func (n *PipeNetwork) remove(key string, l *PipeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners[key] == l {
		delete(n.listeners, key)
	}
}

// Verify PipeNetwork implements Dialer.
var _ Dialer = (*PipeNetwork)(nil)
