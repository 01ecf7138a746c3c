package session

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/signaling"
	"github.com/backkem/peerlink/pkg/transport"
	"github.com/backkem/peerlink/pkg/webrtcpeer"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

const testServiceID = "peerlink"

// fakeFactory creates fakePeers and counts the ones still open.
type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	live  int

	// autoMedia makes the host report a connected path once the answer
	// is applied and the joiner receive a track once it answers.
	autoMedia bool

	// mediaState, if set, is reported by the host instead of Connected.
	mediaState webrtc.PeerConnectionState

	newErr    error
	remoteErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{autoMedia: true}
}

func (f *fakeFactory) NewPeer(h webrtcpeer.Handlers) (webrtcpeer.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	p := &fakePeer{factory: f, handlers: h}
	f.peers = append(f.peers, p)
	f.live++
	return p, nil
}

func (f *fakeFactory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) Last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

type fakePeer struct {
	factory  *fakeFactory
	handlers webrtcpeer.Handlers

	mu         sync.Mutex
	remote     []signaling.SessionDescription
	candidates []signaling.Candidate
	tracks     int
	closed     bool
}

func (p *fakePeer) CreateOffer() (signaling.SessionDescription, error) {
	p.emitCandidate("candidate:1 1 udp 1 10.0.0.1 5000 typ host")
	return signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer() (signaling.SessionDescription, error) {
	p.emitCandidate("candidate:2 1 udp 1 10.0.0.2 5002 typ host")
	if p.factory.autoMedia && p.handlers.OnTrack != nil {
		go p.handlers.OnTrack(nil)
	}
	return signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetRemoteDescription(desc signaling.SessionDescription) error {
	p.factory.mu.Lock()
	err := p.factory.remoteErr
	state := p.factory.mediaState
	auto := p.factory.autoMedia
	p.factory.mu.Unlock()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.remote = append(p.remote, desc)
	p.mu.Unlock()

	if desc.Type == signaling.SDPTypeAnswer && p.handlers.OnConnectionStateChange != nil {
		if state == webrtc.PeerConnectionStateUnknown && auto {
			state = webrtc.PeerConnectionStateConnected
		}
		if state != webrtc.PeerConnectionStateUnknown {
			go p.handlers.OnConnectionStateChange(state)
		}
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c signaling.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.factory.mu.Lock()
	p.factory.live--
	p.factory.mu.Unlock()
	return nil
}

func (p *fakePeer) emitCandidate(c string) {
	if p.handlers.OnICECandidate != nil {
		go p.handlers.OnICECandidate(signaling.Candidate{SDPMid: "0", Candidate: c})
	}
}

func (p *fakePeer) Remote() []signaling.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]signaling.SessionDescription(nil), p.remote...)
}

func (p *fakePeer) Candidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

func (p *fakePeer) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracks
}

// fakePipeline records track handoffs and exposes a settable frame counter.
type fakePipeline struct {
	mu           sync.Mutex
	localCalls   int
	remoteTracks int
	releases     int
	active       bool
	localErr     error

	frames atomic.Uint64
}

func (m *fakePipeline) LocalTrack() (webrtc.TrackLocal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localCalls++
	if m.localErr != nil {
		return nil, m.localErr
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	if err != nil {
		return nil, err
	}
	m.active = true
	return track, nil
}

func (m *fakePipeline) RemoteTrack(*webrtc.TrackRemote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteTracks++
	m.active = true
}

func (m *fakePipeline) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	m.active = false
	return nil
}

func (m *fakePipeline) FramesReceived() uint64 {
	return m.frames.Load()
}

func (m *fakePipeline) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *fakePipeline) Counts() (local, remote, releases int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localCalls, m.remoteTracks, m.releases
}

// gatedServerFactory blocks Register until release is closed.
type gatedServerFactory struct {
	inner   discovery.MDNSServerFactory
	entered chan struct{}
	release chan struct{}
}

func newGatedServerFactory(inner discovery.MDNSServerFactory) *gatedServerFactory {
	return &gatedServerFactory{
		inner:   inner,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *gatedServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (discovery.MDNSServer, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.inner.Register(instance, service, domain, port, txt, ifaces)
}

// testNet links sessions through in-memory mDNS and signaling networks.
type testNet struct {
	resolver *discovery.MockMDNSResolver
	servers  *discovery.MockMDNSServerFactory
	pipes    *transport.PipeNetwork
}

func newTestNet() *testNet {
	resolver := discovery.NewMockMDNSResolver()
	return &testNet{
		resolver: resolver,
		servers:  &discovery.MockMDNSServerFactory{Resolver: resolver, IP: net.IPv4(127, 0, 0, 1)},
		pipes:    transport.NewPipeNetwork(),
	}
}

// assertReleased fails unless no discovery or transport resources remain.
func (n *testNet) assertReleased(t *testing.T) {
	t.Helper()
	if got := n.servers.Active(); got != 0 {
		t.Errorf("active advertisements = %d, want 0", got)
	}
	if got := n.resolver.ActiveBrowses(); got != 0 {
		t.Errorf("active browses = %d, want 0", got)
	}
	if got := n.pipes.Listeners(); got != 0 {
		t.Errorf("open listeners = %d, want 0", got)
	}
}

type testPeer struct {
	s      *Session
	peers  *fakeFactory
	media  *fakePipeline
	states *stateRecorder
}

func (n *testNet) newSession(t *testing.T, id string, opts ...func(*Config)) *testPeer {
	t.Helper()

	tp := &testPeer{
		peers:  newFakeFactory(),
		media:  &fakePipeline{},
		states: &stateRecorder{},
	}
	config := Config{
		PeerID:         id,
		Name:           "name-" + id,
		ServiceID:      testServiceID,
		BrowseInterval: 50 * time.Millisecond,
		PeerTTL:        2 * time.Second,
		ServerFactory:  n.servers,
		MDNSResolver:   n.resolver,
		ListenAddr:     "127.0.0.1:0",
		Listen:         n.pipes.Listen,
		Dialer:         n.pipes,
		Peers:          tp.peers,
		Pipeline:       tp.media,
		OnStateChanged: tp.states.record,
		LoggerFactory:  logging.NewDefaultLoggerFactory(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	s, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	tp.s = s
	return tp
}

// assertReleased fails unless the peer holds no media resources.
func (tp *testPeer) assertReleased(t *testing.T) {
	t.Helper()
	if got := tp.peers.Live(); got != 0 {
		t.Errorf("open peer connections = %d, want 0", got)
	}
	if tp.media.Active() {
		t.Error("media pipeline still active")
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) list() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}

// connectPair starts a host and a joiner and connects them.
func connectPair(t *testing.T, n *testNet, host, joiner *testPeer) {
	t.Helper()
	if err := host.s.StartHosting(); err != nil {
		t.Fatalf("StartHosting() error = %v", err)
	}
	if err := joiner.s.StartJoining(); err != nil {
		t.Fatalf("StartJoining() error = %v", err)
	}
	waitFor(t, "joiner to discover host", func() bool { return len(joiner.s.Peers()) == 1 })
	if err := joiner.s.ConnectToPeer(host.s.PeerID()); err != nil {
		t.Fatalf("ConnectToPeer() error = %v", err)
	}
	waitState(t, host.s, StateConnected)
	waitState(t, joiner.s, StateConnected)
}

var errBoom = errors.New("boom")
