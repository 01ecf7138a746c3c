package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Default timeouts.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
)

// Dialer opens outbound stream connections. *net.Dialer and *PipeNetwork
// implement it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ListenFunc opens a listener. net.Listen and PipeNetwork.Listen match it.
type ListenFunc func(network, address string) (net.Listener, error)

// Config configures a Transport.
type Config struct {
	// PeerID is the local identity sent in the hello frame. Required.
	PeerID string

	// Name is the local display name sent in the hello frame.
	Name string

	// ListenAddr is the address Listen binds (default ":0").
	ListenAddr string

	// Listen creates the listener. If nil, net.Listen is used.
	Listen ListenFunc

	// Dialer opens outbound connections. If nil, a net.Dialer is used.
	Dialer Dialer

	// DialTimeout bounds Connect's dial (default DefaultDialTimeout).
	DialTimeout time.Duration

	// HandshakeTimeout bounds the hello exchange (default DefaultHandshakeTimeout).
	HandshakeTimeout time.Duration

	// OnStateChange is called when a peer's link changes state.
	OnStateChange func(peerID string, state ConnState)

	// OnReceive is called for every data frame from the bound peer, in order.
	OnReceive func(data []byte, peerID string)

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// link is the single peer connection a Transport is dialing or bound to.
type link struct {
	peer   Hello
	conn   net.Conn
	writer *StreamWriter
	wmu    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	bound  bool

	// dropping is set once the link has failed and its loss is being
	// reported. A new outbound attempt may replace it.
	dropping bool
}

// Transport is a framed, single-peer signaling channel.
type Transport struct {
	config Config
	log    logging.LeveledLogger

	mu       sync.Mutex
	listener net.Listener
	active   *link
	pending  map[net.Conn]struct{}
	closed   bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Transport with the given configuration.
func New(config Config) (*Transport, error) {
	if config.PeerID == "" {
		return nil, ErrInvalidPeerID
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":0"
	}
	if config.Listen == nil {
		config.Listen = net.Listen
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Transport{
		config:  config,
		log:     config.LoggerFactory.NewLogger("transport"),
		pending: make(map[net.Conn]struct{}),
		closeCh: make(chan struct{}),
	}, nil
}

// Listen starts accepting inbound peers. The first peer to complete the
// handshake is bound; others are rejected while it stays bound.
func (t *Transport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.listener != nil {
		return ErrAlreadyListening
	}

	l, err := t.config.Listen("tcp", t.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", t.config.ListenAddr, err)
	}
	t.listener = l
	t.log.Infof("Listening on %s", l.Addr())

	t.wg.Add(1)
	go t.acceptLoop(l)
	return nil
}

// Addr returns the listening address, or nil if not listening.
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Port returns the listening port, or 0 if unknown.
func (t *Transport) Port() int {
	addr := t.Addr()
	switch a := addr.(type) {
	case nil:
		return 0
	case *net.TCPAddr:
		return a.Port
	case PipeAddr:
		return a.Port
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// Connect dials the host peerID at addr. It returns once the attempt has
// started; progress is reported through Config.OnStateChange.
func (t *Transport) Connect(ctx context.Context, peerID, addr string) error {
	if peerID == "" {
		return ErrInvalidPeerID
	}
	if addr == "" {
		return ErrInvalidAddress
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.active != nil && !t.active.dropping {
		t.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &link{
		peer:   Hello{PeerID: peerID},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.active = l
	t.wg.Add(1)
	t.mu.Unlock()

	t.log.Debugf("Connecting to %s at %s", peerID, addr)
	t.notify(peerID, StateConnecting)

	go t.dial(ctx, l, addr)
	return nil
}

func (t *Transport) dial(ctx context.Context, l *link, addr string) {
	defer t.wg.Done()
	defer close(l.done)
	defer l.cancel()

	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	conn, err := t.config.Dialer.DialContext(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		t.log.Warnf("Dial %s (%s) failed: %v", l.peer.PeerID, addr, err)
		t.dropLink(l, nil)
		return
	}

	// Abort the handshake if the attempt is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	reader := NewStreamReader(conn)
	remote, err := t.handshake(conn, reader)
	stopped := stop()
	if err == nil && !stopped {
		err = ctx.Err()
	}
	if err == nil && remote.PeerID != l.peer.PeerID {
		err = fmt.Errorf("%w: want %s, got %s", ErrPeerMismatch, l.peer.PeerID, remote.PeerID)
	}
	if err != nil {
		t.log.Warnf("Handshake with %s failed: %v", l.peer.PeerID, err)
		t.dropLink(l, conn)
		return
	}

	t.mu.Lock()
	if t.active != l || t.closed {
		t.mu.Unlock()
		t.dropLink(l, conn)
		return
	}
	l.peer = remote
	l.conn = conn
	l.writer = NewStreamWriter(conn)
	l.bound = true
	t.mu.Unlock()

	t.log.Infof("Connected to %s (%q)", remote.PeerID, remote.Name)
	t.notify(remote.PeerID, StateConnected)
	t.readLoop(l, reader)
}

// dropLink clears l if it is still active, closes conn and reports the peer
// as not connected.
func (t *Transport) dropLink(l *link, conn net.Conn) {
	if conn != nil {
		conn.Close()
	}
	t.mu.Lock()
	l.dropping = true
	closed := t.closed
	t.mu.Unlock()

	// The loss is reported before the slot is freed, so a new peer is never
	// announced ahead of it.
	if !closed {
		t.notify(l.peer.PeerID, StateNotConnected)
	}

	t.mu.Lock()
	if t.active == l {
		t.active = nil
	}
	t.mu.Unlock()
}

func (t *Transport) acceptLoop(l net.Listener) {
	defer t.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warnf("Accept failed: %v", err)
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		if t.active != nil {
			t.mu.Unlock()
			t.log.Infof("Rejecting connection from %s: already bound", conn.RemoteAddr())
			conn.Close()
			continue
		}
		t.pending[conn] = struct{}{}
		t.wg.Add(1)
		t.mu.Unlock()

		go t.handleInbound(conn)
	}
}

func (t *Transport) handleInbound(conn net.Conn) {
	defer t.wg.Done()

	reader := NewStreamReader(conn)
	remote, err := t.handshake(conn, reader)

	t.mu.Lock()
	delete(t.pending, conn)
	if err != nil || t.closed || t.active != nil {
		t.mu.Unlock()
		if err != nil {
			t.log.Warnf("Handshake from %s failed: %v", conn.RemoteAddr(), err)
		} else {
			t.log.Infof("Rejecting %s: already bound", remote.PeerID)
		}
		conn.Close()
		return
	}
	l := &link{
		peer:   remote,
		conn:   conn,
		writer: NewStreamWriter(conn),
		cancel: func() {},
		done:   make(chan struct{}),
		bound:  true,
	}
	t.active = l
	t.mu.Unlock()

	defer close(l.done)

	t.log.Infof("Accepted %s (%q) from %s", remote.PeerID, remote.Name, conn.RemoteAddr())
	t.notify(remote.PeerID, StateConnected)
	t.readLoop(l, reader)
}

// handshake sends the local hello and reads the remote one.
func (t *Transport) handshake(conn net.Conn, reader *StreamReader) (Hello, error) {
	hello, err := encodeHello(Hello{PeerID: t.config.PeerID, Name: t.config.Name})
	if err != nil {
		return Hello{}, err
	}

	deadline := time.Now().Add(t.config.HandshakeTimeout)
	_ = conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if err := NewStreamWriter(conn).WriteFrame(hello); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	f, err := reader.ReadFrame()
	if err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return decodeHello(f)
}

// readLoop delivers data frames until the connection fails or is closed.
func (t *Transport) readLoop(l *link, reader *StreamReader) {
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				t.log.Debugf("Read from %s ended: %v", l.peer.PeerID, err)
			}
			break
		}
		if f.Type != FrameTypeData {
			t.log.Debugf("Ignoring %s frame from %s", f.Type, l.peer.PeerID)
			continue
		}
		if t.config.OnReceive != nil {
			t.config.OnReceive(f.Payload, l.peer.PeerID)
		}
	}

	t.log.Infof("Link to %s closed", l.peer.PeerID)
	t.dropLink(l, l.conn)
}

// Send writes data to peerID. It fails with ErrNotConnected unless peerID
// is the bound, connected peer.
func (t *Transport) Send(peerID string, data []byte) error {
	if len(data) > MaxPayloadSize {
		return ErrMessageTooLarge
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	l := t.active
	if l == nil || !l.bound || l.peer.PeerID != peerID {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.writer.WriteFrame(&Frame{Type: FrameTypeData, Payload: data}); err != nil {
		return fmt.Errorf("transport: send to %s: %w", peerID, err)
	}
	return nil
}

// BoundPeer returns the identity of the bound peer.
func (t *Transport) BoundPeer() (Hello, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || !t.active.bound {
		return Hello{}, false
	}
	return t.active.peer, true
}

// Disconnect drops the bound or dialing peer and waits for its goroutine to
// finish. Listening continues. Safe to call when no peer is bound.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	l := t.active
	t.active = nil
	var conn net.Conn
	if l != nil {
		conn = l.conn
	}
	t.mu.Unlock()

	if l == nil {
		return
	}
	t.log.Debugf("Disconnecting %s", l.peer.PeerID)
	l.cancel()
	if conn != nil {
		conn.Close()
	}
	<-l.done
}

// Close stops listening, drops every connection and waits for all
// goroutines. No callbacks are made after Close returns. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closeCh)

	listener := t.listener
	l := t.active
	t.active = nil
	var conn net.Conn
	if l != nil {
		conn = l.conn
	}
	pending := make([]net.Conn, 0, len(t.pending))
	for c := range t.pending {
		pending = append(pending, c)
	}
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	if l != nil {
		l.cancel()
	}
	if conn != nil {
		conn.Close()
	}
	for _, c := range pending {
		c.Close()
	}

	t.wg.Wait()
	t.log.Debug("Transport closed")
	return nil
}

func (t *Transport) notify(peerID string, state ConnState) {
	if t.config.OnStateChange != nil {
		t.config.OnStateChange(peerID, state)
	}
}
