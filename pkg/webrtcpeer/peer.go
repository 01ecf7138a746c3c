// Package webrtcpeer adapts pion PeerConnections to the negotiation
// Connection contract.
//
// A Factory creates one Conn per negotiation. Conn exchanges descriptions
// and candidates in the signaling package's types, so callers never touch
// pion's SDP structures directly.
package webrtcpeer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/peerlink/pkg/negotiation"
	"github.com/backkem/peerlink/pkg/signaling"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Errors.
var (
	// ErrClosed is returned when using a closed peer.
	ErrClosed = errors.New("webrtcpeer: closed")

	// ErrNilTrack is returned by AddTrack for a nil track.
	ErrNilTrack = errors.New("webrtcpeer: nil track")
)

// Handlers receive asynchronous peer events. Any field may be nil.
// Handlers are invoked from pion goroutines.
type Handlers struct {
	// OnICECandidate is called for every locally gathered candidate.
	OnICECandidate func(c signaling.Candidate)

	// OnTrack is called when the remote side starts sending a track.
	OnTrack func(track *webrtc.TrackRemote)

	// OnConnectionStateChange reports the aggregate connection state.
	OnConnectionStateChange func(state webrtc.PeerConnectionState)
}

// Conn is a negotiable media connection.
type Conn interface {
	negotiation.Connection

	// AddTrack attaches a local track to be sent.
	AddTrack(track webrtc.TrackLocal) error

	// Close releases the connection. Idempotent.
	Close() error
}

// Factory creates media connections.
type Factory interface {
	NewPeer(handlers Handlers) (Conn, error)
}

// Config configures the pion API.
type Config struct {
	// ICEServers are STUN/TURN URLs. Empty means host candidates only,
	// which is enough on a shared local network.
	ICEServers []string

	// IncludeLoopback gathers loopback candidates, for same-host setups.
	IncludeLoopback bool

	// LoggerFactory is also handed to pion's SettingEngine.
	LoggerFactory logging.LoggerFactory
}

// API creates pion-backed peers sharing one media and setting engine.
type API struct {
	api           *webrtc.API
	configuration webrtc.Configuration
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// NewAPI builds a pion API with the default codecs registered.
func NewAPI(config Config) (*API, error) {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("webrtcpeer: register codecs: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: config.LoggerFactory}
	se.SetIncludeLoopbackCandidate(config.IncludeLoopback)

	var servers []webrtc.ICEServer
	if len(config.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: append([]string(nil), config.ICEServers...)})
	}

	return &API{
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		configuration: webrtc.Configuration{ICEServers: servers},
		loggerFactory: config.LoggerFactory,
		log:           config.LoggerFactory.NewLogger("webrtcpeer"),
	}, nil
}

// NewPeer creates a PeerConnection and wires handlers to it.
func (a *API) NewPeer(handlers Handlers) (Conn, error) {
	pc, err := a.api.NewPeerConnection(a.configuration)
	if err != nil {
		return nil, fmt.Errorf("webrtcpeer: new peer connection: %w", err)
	}

	p := &Peer{pc: pc, log: a.log}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.log.Debug("ICE gathering complete")
			return
		}
		if handlers.OnICECandidate != nil {
			handlers.OnICECandidate(signaling.CandidateFromWebRTC(c.ToJSON()))
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Infof("Remote track %s (%s)", track.ID(), track.Codec().MimeType)
		if handlers.OnTrack != nil {
			handlers.OnTrack(track)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debugf("Connection state: %s", state)
		if handlers.OnConnectionStateChange != nil {
			handlers.OnConnectionStateChange(state)
		}
	})

	return p, nil
}

// Peer wraps a pion PeerConnection.
type Peer struct {
	pc  *webrtc.PeerConnection
	log logging.LeveledLogger

	closeOnce sync.Once
	closeErr  error
}

// CreateOffer creates an offer and installs it as the local description.
func (p *Peer) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return signaling.DescriptionFromWebRTC(offer)
}

// CreateAnswer creates an answer and installs it as the local description.
func (p *Peer) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return signaling.DescriptionFromWebRTC(answer)
}

// SetRemoteDescription applies the remote offer or answer.
func (p *Peer) SetRemoteDescription(desc signaling.SessionDescription) error {
	sd, err := desc.ToWebRTC()
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(sd)
}

// AddICECandidate applies a remote candidate.
func (p *Peer) AddICECandidate(c signaling.Candidate) error {
	return p.pc.AddICECandidate(c.ToWebRTC())
}

// AddTrack attaches a local track and drains its RTCP feedback.
func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	if track == nil {
		return ErrNilTrack
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ConnectionState returns the aggregate connection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Close closes the PeerConnection. Idempotent.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

// Verify interface compliance.
var (
	_ Factory = (*API)(nil)
	_ Conn    = (*Peer)(nil)
)
