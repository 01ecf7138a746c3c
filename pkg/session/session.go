package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/transport"
	"github.com/pion/logging"
)

// Session is the connection lifecycle manager for the local device.
// All methods are safe for concurrent use.
type Session struct {
	config Config
	log    logging.LeveledLogger

	queue     *eventQueue
	obs       observers
	stopCh    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// Owned by the event loop.
	state   State
	lastErr error
	peers   *discovery.PeerSet
	run     *run
	link    *link
	runSeq  uint64
	linkSeq uint64
}

// run holds the discovery and transport of one StartHosting or StartJoining
// call. Callbacks carry the run ID so events from earlier runs are dropped.
type run struct {
	id     uint64
	role   Role
	ctx    context.Context
	cancel context.CancelFunc
	disc   *discovery.Discovery
	tr     *transport.Transport
	wg     sync.WaitGroup

	// result receives the outcome of the start. Nil once delivered.
	result chan error
}

func (r *run) resolve(err error) {
	if r.result != nil {
		r.result <- err
		r.result = nil
	}
}

// New creates a Session in the Idle state.
func New(config Config) (*Session, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	s := &Session{
		config:   config,
		log:      config.LoggerFactory.NewLogger("session"),
		queue:    newEventQueue(),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
		peers:    discovery.NewPeerSet(),
	}
	s.publish()

	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.queue.wake:
		}
		for _, fn := range s.queue.take() {
			fn()
		}
	}
}

// post queues fn on the event loop.
func (s *Session) post(fn func()) {
	s.queue.push(fn)
}

// do runs fn on the event loop and waits for its result.
func (s *Session) do(fn func() error) error {
	result := make(chan error, 1)
	if !s.queue.push(func() { result <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.loopDone:
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// PeerID returns the local peer identifier.
func (s *Session) PeerID() string {
	return s.config.PeerID
}

// Name returns the local display name.
func (s *Session) Name() string {
	return s.config.Name
}

// StartHosting advertises the local device and waits for a joiner.
// It returns ErrBusy unless the session is Idle or Failed, and otherwise
// blocks until the session is Hosting or the start failed.
func (s *Session) StartHosting() error {
	return s.start(RoleHost)
}

// StartJoining browses for hosts. It returns ErrBusy unless the session is
// Idle or Failed, and otherwise blocks until the session is Joining or the
// start failed.
func (s *Session) StartJoining() error {
	return s.start(RoleJoiner)
}

func (s *Session) start(role Role) error {
	var result <-chan error
	err := s.do(func() error {
		if !s.state.CanStart() {
			s.log.Debugf("Start %s ignored in state %s", role, s.state)
			return ErrBusy
		}
		r, err := s.beginRun(role)
		if err != nil {
			s.fail(err)
			return err
		}
		result = r.result
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-s.loopDone:
		return ErrClosed
	}
}

// beginRun creates the run's components, enters Starting and launches the
// start in the background.
func (s *Session) beginRun(role Role) (*run, error) {
	s.lastErr = nil
	s.peers.Clear()
	s.runSeq++
	id := s.runSeq

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     id,
		role:   role,
		ctx:    ctx,
		cancel: cancel,
		result: make(chan error, 1),
	}

	disc, err := discovery.New(discovery.Config{
		PeerID:         s.config.PeerID,
		Name:           s.config.Name,
		Interfaces:     s.config.Interfaces,
		BrowseInterval: s.config.BrowseInterval,
		PeerTTL:        s.config.PeerTTL,
		ServerFactory:  s.config.ServerFactory,
		MDNSResolver:   s.config.MDNSResolver,
		OnEvent: func(ev discovery.Event) {
			s.post(func() { s.handleDiscoveryEvent(id, ev) })
		},
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		cancel()
		return nil, newError(KindDiscovery, "create discovery", err)
	}

	tr, err := transport.New(transport.Config{
		PeerID:     s.config.PeerID,
		Name:       s.config.Name,
		ListenAddr: s.config.ListenAddr,
		Listen:     s.config.Listen,
		Dialer:     s.config.Dialer,
		OnStateChange: func(peerID string, state transport.ConnState) {
			s.post(func() { s.handleTransportState(id, peerID, state) })
		},
		OnReceive: func(data []byte, peerID string) {
			s.post(func() { s.handleTransportData(id, peerID, data) })
		},
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		disc.Close()
		cancel()
		return nil, newError(KindTransport, "create transport", err)
	}

	r.disc = disc
	r.tr = tr
	s.run = r
	s.setState(StateStarting)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := s.startRun(r)
		s.post(func() { s.handleStarted(r, err) })
	}()
	return r, nil
}

// startRun performs the blocking part of a start off the event loop.
func (s *Session) startRun(r *run) error {
	switch r.role {
	case RoleHost:
		if err := r.tr.Listen(); err != nil {
			return newError(KindTransport, "listen", err)
		}
		if err := r.disc.StartAdvertising(s.config.ServiceID, r.tr.Port()); err != nil {
			return newError(KindDiscovery, "advertise", err)
		}
	case RoleJoiner:
		if err := r.disc.StartBrowsing(r.ctx, s.config.ServiceID); err != nil {
			return newError(KindDiscovery, "browse", err)
		}
	}
	return nil
}

func (s *Session) handleStarted(r *run, err error) {
	if s.run != r {
		return
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.setState(r.role.activeState())
	r.resolve(nil)
}

// ConnectToPeer dials an available host. It returns once the attempt has
// started; the outcome shows in the session state.
func (s *Session) ConnectToPeer(peerID string) error {
	return s.do(func() error {
		if s.link != nil || s.state == StateConnected {
			return ErrBusy
		}
		if s.state != StateJoining || s.run == nil || s.run.role != RoleJoiner {
			return ErrNotJoining
		}
		peer, ok := s.peers.Get(peerID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
		}
		addr := peer.Address()
		if addr == "" {
			return newError(KindTransport, "connect",
				fmt.Errorf("%w: no address for %s", transport.ErrInvalidAddress, peerID))
		}

		l := s.newLink(peer.ID, peer.Name)
		if err := s.run.tr.Connect(s.run.ctx, peer.ID, addr); err != nil {
			return newError(KindTransport, "connect", err)
		}
		s.link = l
		s.log.Infof("Connecting to %s (%q) at %s", peer.ID, peer.Name, addr)
		s.publish()
		return nil
	})
}

// Disconnect stops discovery, closes the transport, discards negotiation
// state and releases media. The session ends Idle. Safe from every state
// and after Close.
func (s *Session) Disconnect() error {
	err := s.do(func() error {
		s.teardown(ErrDisconnected)
		s.setState(StateIdle)
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close disconnects and stops the event loop. Subscriptions are closed.
// Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.do(func() error {
			s.teardown(ErrClosed)
			s.setState(StateIdle)
			return nil
		})
		s.queue.close()
		close(s.stopCh)
		<-s.loopDone
		s.obs.closeAll()
		s.log.Debug("Session closed")
	})
	return nil
}

// fail records err, releases everything and enters Failed.
func (s *Session) fail(err error) {
	s.log.Errorf("Session failed: %v", err)
	s.lastErr = err
	s.teardown(err)
	s.setState(StateFailed)
}

// teardown releases the link and the run. reason is handed to a start
// still waiting for its result.
func (s *Session) teardown(reason error) {
	s.teardownLink()

	r := s.run
	if r == nil {
		return
	}
	s.run = nil
	r.cancel()
	if err := r.disc.Close(); err != nil {
		s.log.Warnf("Closing discovery: %v", err)
	}
	if err := r.tr.Close(); err != nil {
		s.log.Warnf("Closing transport: %v", err)
	}
	r.wg.Wait()
	r.resolve(reason)
	s.peers.Clear()
	s.log.Debugf("Released %s run %d", r.role, r.id)
}

func (s *Session) setState(state State) {
	prev := s.state
	s.state = state
	s.publish()
	if prev == state {
		return
	}
	s.log.Infof("State %s -> %s", prev, state)
	if s.config.OnStateChanged != nil {
		s.config.OnStateChanged(state)
	}
}

// publish makes the loop's state visible to readers and subscribers.
func (s *Session) publish() {
	snap := Snapshot{
		State: s.state,
		Peers: s.peers.List(),
	}
	if s.run != nil {
		snap.Role = s.run.role
	}
	if s.state == StateConnected && s.link != nil {
		snap.ConnectedPeer = s.link.peerID
		snap.ConnectedPeerCount = 1
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	s.obs.publish(snap, s.lastErr)
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	snap, _ := s.obs.get()
	return snap
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Role returns the role of the running session.
func (s *Session) Role() Role {
	return s.Snapshot().Role
}

// Peers returns the available hosts, in discovery order.
func (s *Session) Peers() []discovery.Peer {
	return s.Snapshot().Peers
}

// LastError returns the error that caused the last Failed transition.
// It is cleared by the next start.
func (s *Session) LastError() error {
	_, err := s.obs.get()
	return err
}

// ConnectedPeerCount returns 1 while Connected and 0 otherwise.
func (s *Session) ConnectedPeerCount() int {
	return s.Snapshot().ConnectedPeerCount
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current one. A slow reader skips intermediate
// snapshots. Call cancel to unsubscribe.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	return s.obs.subscribe()
}
