package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/gorilla/websocket"
)

type fakeSession struct {
	mu        sync.Mutex
	snap      session.Snapshot
	err       error
	calls     []string
	subs      []chan session.Snapshot
	cancelled int
}

func (f *fakeSession) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSession) StartHosting() error { return f.record("host") }
func (f *fakeSession) StartJoining() error { return f.record("join") }
func (f *fakeSession) Disconnect() error   { return f.record("disconnect") }

func (f *fakeSession) ConnectToPeer(id string) error {
	return f.record("connect:" + id)
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Subscribe() (<-chan session.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.Snapshot, 4)
	ch <- f.snap
	f.subs = append(f.subs, ch)
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
	}
}

func (f *fakeSession) push(snap session.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	for _, ch := range f.subs {
		ch <- snap
	}
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestServer(t *testing.T, fs *fakeSession) *Server {
	t.Helper()
	s, err := New(Config{Session: fs, PingInterval: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresSession(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("New() error = %v, want ErrNoSession", err)
	}
}

func TestServer_State(t *testing.T) {
	fs := &fakeSession{snap: session.Snapshot{
		State: session.StateJoining,
		Role:  session.RoleJoiner,
		Peers: []discovery.Peer{{ID: "host-1", Name: "Desk", Port: 7000, IPs: []net.IP{net.IPv4(192, 168, 1, 5)}}},
	}}
	s := newTestServer(t, fs)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/state = %d, want 200", rec.Code)
	}

	var body struct {
		State string `json:"state"`
		Role  string `json:"role"`
		Peers []struct {
			ID  string   `json:"id"`
			IPs []string `json:"ips"`
		} `json:"peers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "Joining" || body.Role != "Joiner" {
		t.Errorf("state/role = %s/%s, want Joining/Joiner", body.State, body.Role)
	}
	if len(body.Peers) != 1 || body.Peers[0].ID != "host-1" || body.Peers[0].IPs[0] != "192.168.1.5" {
		t.Errorf("peers = %+v", body.Peers)
	}
}

func TestServer_Peers(t *testing.T) {
	s := newTestServer(t, &fakeSession{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/peers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/peers = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"peers":[]}` {
		t.Errorf("body = %s", got)
	}
}

func TestServer_Actions(t *testing.T) {
	tests := []struct {
		path     string
		err      error
		wantCode int
		wantCall string
	}{
		{"/v1/host", nil, http.StatusOK, "host"},
		{"/v1/join", nil, http.StatusOK, "join"},
		{"/v1/disconnect", nil, http.StatusOK, "disconnect"},
		{"/v1/peers/abc/connect", nil, http.StatusAccepted, "connect:abc"},
		{"/v1/host", session.ErrBusy, http.StatusConflict, "host"},
		{"/v1/peers/abc/connect", session.ErrNotJoining, http.StatusConflict, "connect:abc"},
		{"/v1/peers/zzz/connect", fmt.Errorf("%w: zzz", session.ErrPeerNotFound), http.StatusNotFound, "connect:zzz"},
		{"/v1/host", &session.Error{Kind: session.KindDiscovery, Op: "advertise", Err: errors.New("boom")}, http.StatusBadGateway, "host"},
		{"/v1/join", session.ErrClosed, http.StatusServiceUnavailable, "join"},
		{"/v1/join", errors.New("other"), http.StatusInternalServerError, "join"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.path, tt.wantCode), func(t *testing.T) {
			fs := &fakeSession{err: tt.err}
			s := newTestServer(t, fs)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("POST %s = %d, want %d (%s)", tt.path, rec.Code, tt.wantCode, rec.Body)
			}
			if calls := fs.Calls(); len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", calls, tt.wantCall)
			}
			if tt.err != nil && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s, want error field", rec.Body)
			}
		})
	}
}

func TestServer_ErrorKind(t *testing.T) {
	fs := &fakeSession{err: &session.Error{Kind: session.KindMedia, Op: "local track", Err: errors.New("no camera")}}
	s := newTestServer(t, fs)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/host", nil))

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["kind"] != "MediaError" {
		t.Errorf("kind = %q, want MediaError", body["kind"])
	}
}

func TestServer_Events(t *testing.T) {
	fs := &fakeSession{snap: session.Snapshot{State: session.StateIdle}}
	s := newTestServer(t, fs)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var raw map[string]any
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if raw["state"] != "Idle" {
		t.Errorf("first state = %v, want Idle", raw["state"])
	}

	fs.push(session.Snapshot{State: session.StateConnected, ConnectedPeer: "host-1", ConnectedPeerCount: 1})
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if raw["state"] != "Connected" || raw["connectedPeer"] != "host-1" {
		t.Errorf("snapshot = %v", raw)
	}
}

func TestServer_Serve(t *testing.T) {
	s := newTestServer(t, &fakeSession{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}
	if s.Addr() == nil {
		t.Error("Addr() should be set while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
