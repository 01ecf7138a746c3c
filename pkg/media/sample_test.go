package media

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func TestNewSamplePipeline_Defaults(t *testing.T) {
	p := NewSamplePipeline(SampleConfig{})

	if p.config.FrameRate != DefaultFrameRate {
		t.Errorf("FrameRate = %d, want %d", p.config.FrameRate, DefaultFrameRate)
	}
	if p.config.FrameSize != DefaultFrameSize {
		t.Errorf("FrameSize = %d, want %d", p.config.FrameSize, DefaultFrameSize)
	}
	if p.config.MimeType != webrtc.MimeTypeVP8 {
		t.Errorf("MimeType = %q, want VP8", p.config.MimeType)
	}
	if p.Active() {
		t.Error("new pipeline should not be active")
	}
}

func TestSamplePipeline_LocalTrack(t *testing.T) {
	p := NewSamplePipeline(SampleConfig{FrameRate: 200, FrameSize: 64, TrackID: "cam"})
	defer p.Release()

	track, err := p.LocalTrack()
	if err != nil {
		t.Fatalf("LocalTrack() error = %v", err)
	}
	if track.ID() != "cam" {
		t.Errorf("ID() = %q, want cam", track.ID())
	}
	if track.StreamID() != "peerlink" {
		t.Errorf("StreamID() = %q, want peerlink", track.StreamID())
	}
	if !p.Active() {
		t.Error("pipeline should be active")
	}

	if _, err := p.LocalTrack(); !errors.Is(err, ErrTrackActive) {
		t.Errorf("second LocalTrack() error = %v, want ErrTrackActive", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.FramesSent() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no frames written within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSamplePipeline_Release(t *testing.T) {
	p := NewSamplePipeline(SampleConfig{FrameRate: 100})

	// Nothing held.
	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := p.LocalTrack(); err != nil {
			t.Fatalf("cycle %d: LocalTrack() error = %v", i, err)
		}
		if err := p.Release(); err != nil {
			t.Fatalf("cycle %d: Release() error = %v", i, err)
		}
		if p.Active() {
			t.Fatalf("cycle %d: still active after Release", i)
		}
		if err := p.Release(); err != nil {
			t.Fatalf("cycle %d: second Release() error = %v", i, err)
		}
	}

	sent := p.FramesSent()
	time.Sleep(50 * time.Millisecond)
	if p.FramesSent() != sent {
		t.Error("frames still written after Release")
	}
}

func TestSamplePipeline_RemoteTrackNil(t *testing.T) {
	p := NewSamplePipeline(SampleConfig{})
	p.RemoteTrack(nil)
	if p.Active() {
		t.Error("nil remote track should be ignored")
	}
	if p.FramesReceived() != 0 || p.PacketsReceived() != 0 {
		t.Error("counters should be zero")
	}
}
