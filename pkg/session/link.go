package session

import (
	"errors"
	"fmt"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/media"
	"github.com/backkem/peerlink/pkg/negotiation"
	"github.com/backkem/peerlink/pkg/signaling"
	"github.com/backkem/peerlink/pkg/transport"
	"github.com/backkem/peerlink/pkg/webrtcpeer"
	"github.com/pion/webrtc/v4"
)

// link is the connection to the single active peer, from dial or accept
// until teardown. Media callbacks carry the link ID so events from an
// earlier connection are dropped.
type link struct {
	id     uint64
	peerID string
	name   string

	// bound is set once the signaling transport is connected.
	bound     bool
	connected bool

	conn    webrtcpeer.Conn
	neg     *negotiation.Negotiator
	monitor *healthMonitor
}

func (s *Session) newLink(peerID, name string) *link {
	s.linkSeq++
	return &link{id: s.linkSeq, peerID: peerID, name: name}
}

// currentLink returns the active link if it has the given ID.
func (s *Session) currentLink(id uint64) *link {
	if s.link == nil || s.link.id != id {
		return nil
	}
	return s.link
}

func (s *Session) handleDiscoveryEvent(runID uint64, ev discovery.Event) {
	if s.run == nil || s.run.id != runID {
		return
	}

	l := s.link
	switch ev.Type {
	case discovery.EventFound:
		// The bound host stays off the available list.
		if l != nil && l.bound && l.peerID == ev.Peer.ID {
			return
		}
		if s.peers.Add(ev.Peer) {
			s.log.Infof("Found host %s (%q) at %s", ev.Peer.ID, ev.Peer.Name, ev.Peer.Address())
		} else {
			s.peers.Update(ev.Peer)
		}
	case discovery.EventLost:
		_, listed := s.peers.Remove(ev.Peer.ID)
		if l != nil && l.peerID == ev.Peer.ID {
			s.log.Infof("Lost connected host %s", ev.Peer.ID)
			s.handleLinkLost()
			return
		}
		if !listed {
			return
		}
		s.log.Infof("Lost host %s", ev.Peer.ID)
	}
	s.publish()
}

func (s *Session) handleTransportState(runID uint64, peerID string, state transport.ConnState) {
	r := s.run
	if r == nil || r.id != runID {
		return
	}

	switch state {
	case transport.StateConnecting:
		s.log.Debugf("Dialing %s", peerID)
	case transport.StateConnected:
		s.handleLinkUp(r, peerID)
	case transport.StateNotConnected:
		if s.link == nil || s.link.peerID != peerID {
			s.log.Debugf("Ignoring loss of unbound peer %s", peerID)
			return
		}
		s.log.Infof("Signaling link to %s lost", peerID)
		s.handleLinkLost()
	}
}

func (s *Session) handleLinkUp(r *run, peerID string) {
	switch r.role {
	case RoleHost:
		if s.link != nil {
			s.log.Warnf("Ignoring %s: already bound to %s", peerID, s.link.peerID)
			return
		}
		var name string
		if hello, ok := r.tr.BoundPeer(); ok && hello.PeerID == peerID {
			name = hello.Name
		}
		s.link = s.newLink(peerID, name)
	case RoleJoiner:
		if s.link == nil || s.link.peerID != peerID || s.link.bound {
			return
		}
		// The connected host leaves the available list.
		s.peers.Remove(peerID)
	}

	s.link.bound = true
	s.log.Infof("Signaling connected to %s, negotiating as %s", peerID, r.role)
	if err := s.negotiate(r, s.link); err != nil {
		s.negotiationFailed(err)
		return
	}
	s.publish()
}

// negotiate creates the media connection for l and starts the exchange.
func (s *Session) negotiate(r *run, l *link) error {
	id := l.id
	conn, err := s.config.Peers.NewPeer(webrtcpeer.Handlers{
		OnICECandidate: func(c signaling.Candidate) {
			s.post(func() { s.handleLocalCandidate(id, c) })
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			s.post(func() { s.handleRemoteTrack(id, track) })
		},
		OnConnectionStateChange: func(state webrtc.PeerConnectionState) {
			s.post(func() { s.handleMediaState(id, state) })
		},
	})
	if err != nil {
		return newError(KindMedia, "create peer connection", err)
	}
	l.conn = conn

	if r.role == RoleHost {
		track, err := s.config.Pipeline.LocalTrack()
		if err != nil {
			return newError(KindMedia, "local track", err)
		}
		if err := conn.AddTrack(track); err != nil {
			return newError(KindMedia, "add track", err)
		}
	}

	tr, peerID := r.tr, l.peerID
	neg, err := negotiation.New(negotiation.Config{
		Role: r.role.negotiationRole(),
		Conn: conn,
		Send: func(msg signaling.Message) error {
			data, err := signaling.Encode(msg)
			if err != nil {
				return err
			}
			return tr.Send(peerID, data)
		},
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		return newError(KindNegotiation, "create negotiator", err)
	}
	l.neg = neg

	if err := neg.Start(); err != nil {
		return newError(KindNegotiation, "start", err)
	}
	return nil
}

// negotiationFailed handles a fatal error from negotiate or the
// negotiator. A failed send means the signaling link is gone and is handled
// as link loss; anything else fails the session.
func (s *Session) negotiationFailed(err error) {
	if errors.Is(err, negotiation.ErrSendFailed) {
		s.log.Warnf("Signaling send failed: %v", err)
		s.handleLinkLost()
		return
	}
	s.fail(err)
}

func (s *Session) handleTransportData(runID uint64, peerID string, data []byte) {
	if s.run == nil || s.run.id != runID {
		return
	}
	l := s.link
	if l == nil || l.peerID != peerID || l.neg == nil {
		s.log.Debugf("Dropping message from unbound peer %s", peerID)
		return
	}

	// Non-fatal errors were logged by the negotiator and change nothing.
	if err := l.neg.HandleData(data); negotiation.IsFatal(err) {
		s.negotiationFailed(newError(KindNegotiation, "handle message", err))
	}
}

func (s *Session) handleLocalCandidate(linkID uint64, c signaling.Candidate) {
	l := s.currentLink(linkID)
	if l == nil || l.neg == nil {
		return
	}
	if err := l.neg.SendLocalCandidate(c); err != nil {
		s.log.Warnf("Sending local candidate: %v", err)
	}
}

func (s *Session) handleRemoteTrack(linkID uint64, track *webrtc.TrackRemote) {
	l := s.currentLink(linkID)
	if l == nil {
		return
	}
	s.config.Pipeline.RemoteTrack(track)
	s.markConnected(l)
}

func (s *Session) handleMediaState(linkID uint64, state webrtc.PeerConnectionState) {
	l := s.currentLink(linkID)
	if l == nil {
		return
	}

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.markConnected(l)
	case webrtc.PeerConnectionStateDisconnected:
		s.log.Warnf("Media path to %s interrupted", l.peerID)
	case webrtc.PeerConnectionStateFailed:
		s.fail(newError(KindMedia, "media path", ErrMediaFailed))
	}
}

// markConnected enters Connected on the first media signal of a link.
func (s *Session) markConnected(l *link) {
	if l.connected {
		return
	}
	l.connected = true
	s.setState(StateConnected)
	s.startHealthMonitor(l)
}

func (s *Session) startHealthMonitor(l *link) {
	if s.config.MediaTimeout <= 0 || s.run == nil || s.run.role != RoleJoiner {
		return
	}
	counter, ok := s.config.Pipeline.(media.FrameCounter)
	if !ok {
		return
	}

	id := l.id
	l.monitor = newHealthMonitor(counter, s.config.MediaTimeout, func(frames uint64) {
		s.post(func() { s.handleMediaStall(id, frames) })
	})
	l.monitor.start()
}

func (s *Session) handleMediaStall(linkID uint64, frames uint64) {
	if s.currentLink(linkID) == nil {
		return
	}
	s.fail(newError(KindMedia, "health check",
		fmt.Errorf("%w within %s (%d frames total)", ErrMediaStalled, s.config.MediaTimeout, frames)))
}

// handleLinkLost drops the active link. A joiner that still sees other
// hosts keeps joining; otherwise the session returns to Idle. A host that
// was bound and is still advertised is listed again.
func (s *Session) handleLinkLost() {
	r := s.run
	l := s.link
	s.teardownLink()
	if r == nil {
		return
	}
	if r.role == RoleJoiner && s.peers.Len() > 0 {
		if l != nil && l.bound {
			s.relist(r, l.peerID)
		}
		s.setState(StateJoining)
		return
	}
	s.teardown(ErrDisconnected)
	s.setState(StateIdle)
}

// relist adds peerID back to the available list if discovery still sees it.
func (s *Session) relist(r *run, peerID string) {
	for _, p := range r.disc.Peers() {
		if p.ID == peerID {
			s.peers.Add(p)
			return
		}
	}
}

// teardownLink closes the negotiation, media connection and signaling link.
func (s *Session) teardownLink() {
	l := s.link
	if l == nil {
		return
	}
	s.link = nil

	if l.monitor != nil {
		l.monitor.stop()
	}
	if l.neg != nil {
		l.neg.Close()
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			s.log.Warnf("Closing media connection: %v", err)
		}
	}
	if err := s.config.Pipeline.Release(); err != nil {
		s.log.Warnf("Releasing media: %v", err)
	}
	if s.run != nil {
		s.run.tr.Disconnect()
	}
	s.log.Debugf("Released link %d to %s", l.id, l.peerID)
}
