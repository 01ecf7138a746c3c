// Package media defines the contract between the connection lifecycle and
// the application's media layer, plus a synthetic pipeline for demos and
// tests.
package media

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// Errors.
var (
	// ErrNoTrack is returned when no local track can be produced.
	ErrNoTrack = errors.New("media: no local track available")

	// ErrTrackActive is returned when a local track is requested twice
	// without a Release in between.
	ErrTrackActive = errors.New("media: local track already active")
)

// Pipeline supplies the local track when hosting and consumes the remote
// track once connected.
type Pipeline interface {
	// LocalTrack produces the track the host sends.
	LocalTrack() (webrtc.TrackLocal, error)

	// RemoteTrack hands over a received track. The pipeline owns reading it.
	RemoteTrack(track *webrtc.TrackRemote)

	// Release stops all media activity. It is called on every teardown and
	// must be safe to call repeatedly.
	Release() error
}

// FrameCounter is implemented by pipelines that can report how many frames
// they have received. It enables media health monitoring.
type FrameCounter interface {
	FramesReceived() uint64
}
