package signaling

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ToWebRTC converts to a pion session description.
func (d SessionDescription) ToWebRTC() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case SDPTypeOffer:
		t = webrtc.SDPTypeOffer
	case SDPTypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, ErrInvalidSDPType
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// DescriptionFromWebRTC converts a pion offer or answer.
func DescriptionFromWebRTC(d webrtc.SessionDescription) (SessionDescription, error) {
	switch d.Type {
	case webrtc.SDPTypeOffer:
		return SessionDescription{Type: SDPTypeOffer, SDP: d.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return SessionDescription{Type: SDPTypeAnswer, SDP: d.SDP}, nil
	default:
		return SessionDescription{}, fmt.Errorf("%w: %s", ErrInvalidSDPType, d.Type)
	}
}

// ToWebRTC converts to a pion candidate init.
func (c Candidate) ToWebRTC() webrtc.ICECandidateInit {
	mid := c.SDPMid
	index := uint16(c.SDPMLineIndex)
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

// CandidateFromWebRTC converts a locally gathered pion candidate.
func CandidateFromWebRTC(init webrtc.ICECandidateInit) Candidate {
	c := Candidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
