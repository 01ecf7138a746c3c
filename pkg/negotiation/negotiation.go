package negotiation

import (
	"fmt"
	"sync"

	"github.com/backkem/peerlink/pkg/signaling"
	"github.com/pion/logging"
)

// Role selects which side of the exchange a Negotiator plays.
type Role int

// Role constants.
const (
	// RoleHost creates the offer.
	RoleHost Role = iota + 1

	// RoleJoiner answers.
	RoleJoiner
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "Host"
	case RoleJoiner:
		return "Joiner"
	default:
		return "Unknown"
	}
}

// IsValid returns true for a known role.
func (r Role) IsValid() bool {
	return r == RoleHost || r == RoleJoiner
}

// Connection is the media transport being negotiated.
// CreateOffer and CreateAnswer also install the result as the local
// description.
type Connection interface {
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)
	SetRemoteDescription(desc signaling.SessionDescription) error
	AddICECandidate(c signaling.Candidate) error
}

// Config configures a Negotiator.
type Config struct {
	// Role is the local role. Required.
	Role Role

	// Conn is the connection being negotiated. Required.
	Conn Connection

	// Send delivers a signaling message to the remote peer. Required.
	Send func(msg signaling.Message) error

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// State is a snapshot of a negotiation.
type State struct {
	LocalDescription     *signaling.SessionDescription
	RemoteDescriptionSet bool
	PendingCandidates    []signaling.Candidate
}

// Negotiator runs one offer/answer exchange. It is safe for concurrent use.
type Negotiator struct {
	config Config
	log    logging.LeveledLogger

	mu             sync.Mutex
	started        bool
	local          *signaling.SessionDescription
	remoteApplying bool
	remoteSet      bool
	pending        []signaling.Candidate
	closed         bool
}

// New creates a Negotiator.
func New(config Config) (*Negotiator, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if config.Conn == nil {
		return nil, ErrNoConnection
	}
	if config.Send == nil {
		return nil, ErrNoSender
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Negotiator{
		config: config,
		log:    config.LoggerFactory.NewLogger("negotiation"),
	}, nil
}

// Role returns the configured role.
func (n *Negotiator) Role() Role {
	return n.config.Role
}

// Start begins the exchange. The host creates, stores and sends its offer.
// For the joiner Start only marks the negotiation as started.
func (n *Negotiator) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true

	if n.config.Role != RoleHost {
		n.log.Debug("Waiting for offer")
		return nil
	}

	offer, err := n.config.Conn.CreateOffer()
	if err != nil {
		return n.failLocked("create offer", err)
	}
	n.local = &offer

	if err := n.config.Send(signaling.NewDescriptionMessage(offer)); err != nil {
		return n.failLocked("send offer", fmt.Errorf("%w: %w", ErrSendFailed, err))
	}
	n.log.Debug("Sent offer")
	return nil
}

// HandleData decodes a wire message and handles it. Malformed and unknown
// messages return a non-fatal error and change nothing.
func (n *Negotiator) HandleData(data []byte) error {
	msg, err := signaling.Decode(data)
	if err != nil {
		n.log.Warnf("Dropping inbound message: %v", err)
		return err
	}
	return n.HandleMessage(msg)
}

// HandleMessage routes an inbound signaling message.
func (n *Negotiator) HandleMessage(msg signaling.Message) error {
	switch msg.Kind {
	case signaling.KindSessionDescription:
		if msg.Description == nil {
			return signaling.ErrMalformed
		}
		return n.handleDescription(*msg.Description)
	case signaling.KindCandidate:
		if msg.Candidate == nil {
			return signaling.ErrMalformed
		}
		return n.handleCandidate(*msg.Candidate)
	default:
		n.log.Warnf("Ignoring message of kind %s", msg.Kind)
		return signaling.ErrUnknownMessageType
	}
}

func (n *Negotiator) handleDescription(desc signaling.SessionDescription) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if err := n.checkDescriptionLocked(desc); err != nil {
		n.mu.Unlock()
		n.log.Warnf("Rejected %s: %v", desc.Type, err)
		return err
	}
	n.started = true
	n.remoteApplying = true
	n.mu.Unlock()

	// Candidates arriving while the description is applied are queued.
	err := n.config.Conn.SetRemoteDescription(desc)

	n.mu.Lock()
	defer n.mu.Unlock()

	n.remoteApplying = false
	if n.closed {
		return ErrClosed
	}
	if err != nil {
		return n.failLocked("set remote description", err)
	}
	n.remoteSet = true
	n.log.Debugf("Applied remote %s", desc.Type)
	n.drainLocked()

	if n.config.Role != RoleJoiner {
		return nil
	}

	answer, err := n.config.Conn.CreateAnswer()
	if err != nil {
		return n.failLocked("create answer", err)
	}
	n.local = &answer

	if err := n.config.Send(signaling.NewDescriptionMessage(answer)); err != nil {
		return n.failLocked("send answer", fmt.Errorf("%w: %w", ErrSendFailed, err))
	}
	n.log.Debug("Sent answer")
	return nil
}

func (n *Negotiator) checkDescriptionLocked(desc signaling.SessionDescription) error {
	if n.remoteApplying || n.remoteSet {
		return ErrDuplicateDescription
	}
	switch n.config.Role {
	case RoleHost:
		if desc.Type != signaling.SDPTypeAnswer {
			return fmt.Errorf("%w: host received %s", ErrUnexpectedDescription, desc.Type)
		}
		if n.local == nil {
			return fmt.Errorf("%w: answer before offer", ErrUnexpectedDescription)
		}
	case RoleJoiner:
		if desc.Type != signaling.SDPTypeOffer {
			return fmt.Errorf("%w: joiner received %s", ErrUnexpectedDescription, desc.Type)
		}
	}
	return nil
}

func (n *Negotiator) handleCandidate(c signaling.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if !n.remoteSet {
		n.pending = append(n.pending, c)
		n.log.Tracef("Buffered remote candidate (%d pending)", len(n.pending))
		return nil
	}
	return n.applyLocked(c)
}

// drainLocked applies buffered candidates in arrival order and clears the
// buffer.
func (n *Negotiator) drainLocked() {
	pending := n.pending
	n.pending = nil
	if len(pending) > 0 {
		n.log.Debugf("Applying %d buffered candidates", len(pending))
	}
	for _, c := range pending {
		_ = n.applyLocked(c)
	}
}

func (n *Negotiator) applyLocked(c signaling.Candidate) error {
	if err := n.config.Conn.AddICECandidate(c); err != nil {
		n.log.Warnf("Remote candidate %q rejected: %v", c.Candidate, err)
		return fmt.Errorf("%w: %v", ErrCandidateRejected, err)
	}
	return nil
}

// SendLocalCandidate sends a locally gathered candidate right away.
func (n *Negotiator) SendLocalCandidate(c signaling.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if err := n.config.Send(signaling.NewCandidateMessage(c)); err != nil {
		return fmt.Errorf("%w: candidate: %w", ErrSendFailed, err)
	}
	return nil
}

// State returns a copy of the negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := State{RemoteDescriptionSet: n.remoteSet}
	if n.local != nil {
		local := *n.local
		s.LocalDescription = &local
	}
	if len(n.pending) > 0 {
		s.PendingCandidates = append([]signaling.Candidate(nil), n.pending...)
	}
	return s
}

// Close discards the negotiation state. Later calls return ErrClosed.
// Idempotent.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	n.pending = nil
	n.local = nil
	n.remoteSet = false
}

func (n *Negotiator) failLocked(op string, err error) error {
	n.closed = true
	n.pending = nil
	n.log.Errorf("%s failed: %v", op, err)
	return &Error{Op: op, Err: err}
}
