package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/pion/logging"
)

// fakeRunner is a joining session whose dials always fail.
type fakeRunner struct {
	snaps chan session.Snapshot
	peers []discovery.Peer

	mu    sync.Mutex
	dials []time.Time
}

func newFakeRunner(peers ...discovery.Peer) *fakeRunner {
	return &fakeRunner{snaps: make(chan session.Snapshot, 64), peers: peers}
}

func (f *fakeRunner) StartHosting() error { return nil }
func (f *fakeRunner) StartJoining() error { return nil }
func (f *fakeRunner) Disconnect() error   { return nil }
func (f *fakeRunner) Close() error        { return nil }
func (f *fakeRunner) Name() string        { return "joiner" }
func (f *fakeRunner) PeerID() string      { return "joiner-id" }

func (f *fakeRunner) ConnectToPeer(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, time.Now())
	return errors.New("connection refused")
}

func (f *fakeRunner) Snapshot() session.Snapshot {
	return session.Snapshot{State: session.StateJoining, Role: session.RoleJoiner, Peers: f.peers}
}

func (f *fakeRunner) Subscribe() (<-chan session.Snapshot, func()) {
	return f.snaps, func() {}
}

func (f *fakeRunner) dialTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.dials...)
}

func TestRunSession_PacesRedial(t *testing.T) {
	const interval = 150 * time.Millisecond

	f := newFakeRunner(discovery.Peer{ID: "host-1", Name: "host"})
	a := &App{
		opts:    Options{Command: CommandJoin},
		log:     logging.NewDefaultLoggerFactory().NewLogger("test"),
		session: f,
		redial:  interval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.runSession(ctx) }()

	for i := 0; i < 20; i++ {
		f.snaps <- f.Snapshot()
	}
	time.Sleep(interval / 3)
	if n := len(f.dialTimes()); n != 1 {
		t.Fatalf("dials after burst = %d, want 1", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.dialTimes()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no redial after the interval")
		}
		time.Sleep(10 * time.Millisecond)
	}
	dials := f.dialTimes()
	if gap := dials[1].Sub(dials[0]); gap < interval {
		t.Errorf("redial gap = %v, want >= %v", gap, interval)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runSession() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runSession did not return")
	}
}

func TestConnect_SelectedPeer(t *testing.T) {
	f := newFakeRunner()
	a := &App{
		opts:    Options{Command: CommandJoin, PeerID: "host-2"},
		log:     logging.NewDefaultLoggerFactory().NewLogger("test"),
		session: f,
		redial:  time.Hour,
	}

	peers := []discovery.Peer{{ID: "host-1"}}
	if wait := a.connect(peers); wait != 0 {
		t.Errorf("connect() wait = %v, want 0", wait)
	}
	if n := len(f.dialTimes()); n != 0 {
		t.Fatalf("dials = %d, want 0 for an unselected peer", n)
	}

	peers = append(peers, discovery.Peer{ID: "host-2"})
	if wait := a.connect(peers); wait != 0 {
		t.Errorf("connect() wait = %v, want 0", wait)
	}
	if wait := a.connect(peers); wait <= 0 {
		t.Errorf("second connect() wait = %v, want > 0", wait)
	}
	if n := len(f.dialTimes()); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}
