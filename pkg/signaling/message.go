package signaling

import (
	"encoding/json"
	"fmt"
)

// Wire values for the messageType field.
const (
	MessageTypeSDP       = "sdp"
	MessageTypeCandidate = "candidate"
)

// SDPType is the role of a session description in the offer/answer exchange.
type SDPType string

// SDPType values.
const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// IsValid returns true for offer and answer.
func (t SDPType) IsValid() bool {
	return t == SDPTypeOffer || t == SDPTypeAnswer
}

// Kind discriminates the Message union.
type Kind int

// Kind values.
const (
	KindUnknown Kind = iota
	KindSessionDescription
	KindCandidate
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSessionDescription:
		return "SessionDescription"
	case KindCandidate:
		return "Candidate"
	default:
		return "Unknown"
	}
}

// SessionDescription is an offer or answer.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Candidate is a single network-reachability candidate.
type Candidate struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"sdp"`
}

// Message is a tagged union of SessionDescription and Candidate.
// Exactly one of Description or Candidate is set, matching Kind.
type Message struct {
	Kind        Kind
	Description *SessionDescription
	Candidate   *Candidate
}

// NewDescriptionMessage wraps a session description.
func NewDescriptionMessage(desc SessionDescription) Message {
	return Message{Kind: KindSessionDescription, Description: &desc}
}

// NewCandidateMessage wraps a candidate.
func NewCandidateMessage(c Candidate) Message {
	return Message{Kind: KindCandidate, Candidate: &c}
}

// envelope is the on-the-wire shape of every message.
type envelope struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// Encode serialises the message to its JSON wire form.
func Encode(msg Message) ([]byte, error) {
	var (
		messageType string
		data        any
	)

	switch msg.Kind {
	case KindSessionDescription:
		if msg.Description == nil {
			return nil, fmt.Errorf("%w: missing session description", ErrMalformed)
		}
		if !msg.Description.Type.IsValid() {
			return nil, ErrInvalidSDPType
		}
		messageType = MessageTypeSDP
		data = msg.Description
	case KindCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("%w: missing candidate", ErrMalformed)
		}
		messageType = MessageTypeCandidate
		data = msg.Candidate
	default:
		return nil, ErrUnknownMessageType
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("signaling: encode %s: %w", messageType, err)
	}

	return json.Marshal(envelope{MessageType: messageType, Data: raw})
}

// Decode parses a JSON wire message.
//
// A well-formed envelope with an unrecognised messageType yields
// ErrUnknownMessageType; anything structurally invalid yields ErrMalformed.
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.MessageType {
	case MessageTypeSDP:
		var desc SessionDescription
		if err := decodeData(env.Data, &desc); err != nil {
			return Message{}, err
		}
		if !desc.Type.IsValid() {
			return Message{}, fmt.Errorf("%w: %w %q", ErrMalformed, ErrInvalidSDPType, desc.Type)
		}
		if desc.SDP == "" {
			return Message{}, fmt.Errorf("%w: empty sdp", ErrMalformed)
		}
		return NewDescriptionMessage(desc), nil

	case MessageTypeCandidate:
		var raw struct {
			SDPMid        *string `json:"sdpMid"`
			SDPMLineIndex *int    `json:"sdpMLineIndex"`
			Candidate     *string `json:"sdp"`
		}
		if err := decodeData(env.Data, &raw); err != nil {
			return Message{}, err
		}
		if raw.Candidate == nil || raw.SDPMLineIndex == nil {
			return Message{}, fmt.Errorf("%w: candidate missing sdp or sdpMLineIndex", ErrMalformed)
		}
		if *raw.SDPMLineIndex < 0 {
			return Message{}, fmt.Errorf("%w: negative sdpMLineIndex", ErrMalformed)
		}
		c := Candidate{SDPMLineIndex: *raw.SDPMLineIndex, Candidate: *raw.Candidate}
		if raw.SDPMid != nil {
			c.SDPMid = *raw.SDPMid
		}
		return NewCandidateMessage(c), nil

	case "":
		return Message{}, fmt.Errorf("%w: missing messageType", ErrMalformed)

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.MessageType)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
