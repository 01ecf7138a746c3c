package session

import (
	"reflect"
	"sync"

	"github.com/backkem/peerlink/pkg/discovery"
)

// Snapshot is the observable state of a Session.
type Snapshot struct {
	State              State            `json:"state"`
	Role               Role             `json:"role"`
	Peers              []discovery.Peer `json:"peers"`
	ConnectedPeer      string           `json:"connectedPeer,omitempty"`
	ConnectedPeerCount int              `json:"connectedPeerCount"`
	LastError          string           `json:"lastError,omitempty"`
}

// subscriberBuffer is the number of snapshots a slow subscriber may lag.
const subscriberBuffer = 16

// observers holds the published snapshot and its subscribers.
type observers struct {
	mu      sync.RWMutex
	current Snapshot
	lastErr error
	subs    map[int]chan Snapshot
	nextID  int
	closed  bool
}

func (o *observers) get() (Snapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := o.current
	snap.Peers = append([]discovery.Peer(nil), o.current.Peers...)
	return snap, o.lastErr
}

// publish stores snap and offers it to every subscriber. A snapshot equal to
// the current one is not offered again. A full subscriber loses its oldest
// snapshot, so the latest one is always delivered.
func (o *observers) publish(snap Snapshot, lastErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastErr = lastErr
	if reflect.DeepEqual(o.current, snap) {
		return
	}
	o.current = snap
	for _, ch := range o.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (o *observers) subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		ch := make(chan Snapshot, 1)
		ch <- o.current
		close(ch)
		return ch, func() {}
	}
	if o.subs == nil {
		o.subs = make(map[int]chan Snapshot)
	}
	id := o.nextID
	o.nextID++
	ch := make(chan Snapshot, subscriberBuffer)
	ch <- o.current
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

func (o *observers) closeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
