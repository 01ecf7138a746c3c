package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSResolver is the interface for mDNS service browsing.
// This allows for dependency injection in tests.
//
// Browse blocks until ctx is done, sending every resolved entry to entries.
// It never closes entries.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
// A zeroconf.Resolver only survives one query, so each Browse builds a new one.
type zeroconfResolver struct {
	ifaces []net.Interface
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	var opts []zeroconf.ClientOption
	if len(z.ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(z.ifaces))
	}
	r, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return err
	}

	// zeroconf closes its channel when ctx is done.
	found := make(chan *zeroconf.ServiceEntry)
	if err := r.Browse(ctx, service, domain, found); err != nil {
		return err
	}
	for {
		select {
		case entry, ok := <-found:
			if !ok {
				<-ctx.Done()
				return nil
			}
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

// browserConfig holds configuration for a browser.
type browserConfig struct {
	service  string
	selfID   string
	interval time.Duration
	peerTTL  time.Duration
	resolver MDNSResolver
	onEvent  func(Event)
	log      logging.LeveledLogger
}

// browser scans for hosts in rounds of browserConfig.interval and maintains
// the set of available peers. A peer is lost when it sends a goodbye (TTL 0)
// or is not seen again within browserConfig.peerTTL.
type browser struct {
	config browserConfig
	peers  *PeerSet

	seenMu   sync.Mutex
	lastSeen map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newBrowser(config browserConfig) *browser {
	return &browser{
		config:   config,
		peers:    NewPeerSet(),
		lastSeen: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
}

// start launches the browse loop. The loop runs until ctx is done or stop is called.
func (b *browser) start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
}

// stop cancels the browse loop and waits for it to exit.
func (b *browser) stop() {
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
}

func (b *browser) run(ctx context.Context) {
	defer close(b.done)

	entries := make(chan *zeroconf.ServiceEntry, 16)
	roundDone := make(chan error, 1)

	startRound := func() context.CancelFunc {
		roundCtx, cancel := context.WithTimeout(ctx, b.config.interval)
		go func() {
			err := b.config.resolver.Browse(roundCtx, b.config.service, DefaultDomain, entries)
			// Pace failed rounds to the browse interval.
			<-roundCtx.Done()
			roundDone <- err
		}()
		return cancel
	}

	cancelRound := startRound()
	sweep := time.NewTicker(b.sweepInterval())
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelRound()
			b.drain(entries, roundDone)
			return

		case entry := <-entries:
			b.handleEntry(entry)

		case err := <-roundDone:
			cancelRound()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				b.config.log.Warnf("Browse round for %s failed: %v", b.config.service, err)
			}
			cancelRound = startRound()

		case now := <-sweep.C:
			b.expire(now)
		}
	}
}

// drain consumes entries until the current round has finished so the
// resolver goroutine never blocks on a send.
func (b *browser) drain(entries <-chan *zeroconf.ServiceEntry, roundDone <-chan error) {
	for {
		select {
		case <-entries:
		case <-roundDone:
			return
		}
	}
}

func (b *browser) sweepInterval() time.Duration {
	iv := b.config.peerTTL / 4
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	return iv
}

func (b *browser) handleEntry(entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}

	txt, err := ParseHostTXT(entry.Text)
	if err != nil {
		b.config.log.Debugf("Ignoring %q: %v", entry.Instance, err)
		return
	}
	if txt.PeerID == b.config.selfID {
		return
	}

	if entry.TTL == 0 {
		b.lose(txt.PeerID)
		return
	}

	peer := entryToPeer(entry, txt)

	b.seenMu.Lock()
	b.lastSeen[peer.ID] = time.Now()
	b.seenMu.Unlock()

	if b.peers.Add(peer) {
		b.config.log.Infof("Found peer %s (%q) at %s", peer.ID, peer.Name, peer.Address())
		b.emit(Event{Type: EventFound, Peer: peer})
		return
	}
	b.peers.Update(peer)
}

func (b *browser) lose(id string) {
	b.seenMu.Lock()
	delete(b.lastSeen, id)
	b.seenMu.Unlock()

	if peer, ok := b.peers.Remove(id); ok {
		b.config.log.Infof("Lost peer %s (%q)", peer.ID, peer.Name)
		b.emit(Event{Type: EventLost, Peer: peer})
	}
}

func (b *browser) expire(now time.Time) {
	var stale []string
	b.seenMu.Lock()
	for id, seen := range b.lastSeen {
		if now.Sub(seen) > b.config.peerTTL {
			stale = append(stale, id)
		}
	}
	b.seenMu.Unlock()

	for _, id := range stale {
		b.lose(id)
	}
}

func (b *browser) emit(ev Event) {
	if b.config.onEvent != nil {
		b.config.onEvent(ev)
	}
}

// entryToPeer converts a zeroconf entry into a Peer.
func entryToPeer(entry *zeroconf.ServiceEntry, txt *HostTXT) Peer {
	var ips []net.IP
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	name := txt.Name
	if name == "" {
		name = entry.Instance
	}

	return Peer{
		ID:       txt.PeerID,
		Name:     name,
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		IPs:      SortIPsByPreference(ips),
	}
}
