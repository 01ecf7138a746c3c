package media

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Defaults for SampleConfig.
const (
	DefaultFrameRate = 30
	DefaultFrameSize = 1200
)

// SampleConfig configures a SamplePipeline.
type SampleConfig struct {
	// FrameRate is the number of synthetic frames sent per second.
	FrameRate int

	// FrameSize is the size in bytes of each synthetic frame.
	FrameSize int

	// MimeType is the codec advertised for the local track (default VP8).
	MimeType string

	// TrackID and StreamID label the local track.
	TrackID  string
	StreamID string

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// SamplePipeline sends synthetic frames and counts received ones.
// A frame boundary on the receiving side is an RTP packet with the marker
// bit set. The pipeline can be reused after Release.
type SamplePipeline struct {
	config SampleConfig
	log    logging.LeveledLogger

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	packets        atomic.Uint64

	mu     sync.Mutex
	local  *webrtc.TrackLocalStaticSample
	remote *webrtc.TrackRemote
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSamplePipeline creates a synthetic pipeline.
func NewSamplePipeline(config SampleConfig) *SamplePipeline {
	if config.FrameRate <= 0 {
		config.FrameRate = DefaultFrameRate
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultFrameSize
	}
	if config.MimeType == "" {
		config.MimeType = webrtc.MimeTypeVP8
	}
	if config.TrackID == "" {
		config.TrackID = "video"
	}
	if config.StreamID == "" {
		config.StreamID = "peerlink"
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &SamplePipeline{
		config: config,
		log:    config.LoggerFactory.NewLogger("media"),
		stopCh: make(chan struct{}),
	}
}

// LocalTrack creates the local track and starts writing frames to it.
func (p *SamplePipeline) LocalTrack() (webrtc.TrackLocal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.local != nil {
		return nil, ErrTrackActive
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: p.config.MimeType},
		p.config.TrackID,
		p.config.StreamID,
	)
	if err != nil {
		return nil, errors.Join(ErrNoTrack, err)
	}
	p.local = track

	p.wg.Add(1)
	go p.writeLoop(track, p.stopCh)

	p.log.Infof("Local %s track %q ready at %d fps", p.config.MimeType, p.config.TrackID, p.config.FrameRate)
	return track, nil
}

func (p *SamplePipeline) writeLoop(track *webrtc.TrackLocalStaticSample, stopCh <-chan struct{}) {
	defer p.wg.Done()

	interval := time.Second / time.Duration(p.config.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, p.config.FrameSize)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		if _, err := rand.Read(frame); err != nil {
			p.log.Warnf("Frame generation failed: %v", err)
			continue
		}
		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			p.log.Debugf("WriteSample: %v", err)
			continue
		}
		p.framesSent.Add(1)
	}
}

// RemoteTrack starts counting frames received on track.
func (p *SamplePipeline) RemoteTrack(track *webrtc.TrackRemote) {
	if track == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remote != nil {
		p.log.Warnf("Ignoring extra remote track %q", track.ID())
		return
	}
	p.remote = track
	p.log.Infof("Receiving remote %s track %q", track.Codec().MimeType, track.ID())

	p.wg.Add(1)
	go p.readLoop(track)
}

func (p *SamplePipeline) readLoop(track *webrtc.TrackRemote) {
	defer p.wg.Done()

	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			p.log.Debugf("Remote track read ended: %v", err)
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			p.log.Tracef("Dropping malformed RTP packet: %v", err)
			continue
		}
		p.packets.Add(1)
		if pkt.Marker {
			p.framesReceived.Add(1)
		}
	}
}

// FramesReceived returns the number of complete frames received.
func (p *SamplePipeline) FramesReceived() uint64 {
	return p.framesReceived.Load()
}

// FramesSent returns the number of frames written to the local track.
func (p *SamplePipeline) FramesSent() uint64 {
	return p.framesSent.Load()
}

// PacketsReceived returns the number of RTP packets received.
func (p *SamplePipeline) PacketsReceived() uint64 {
	return p.packets.Load()
}

// Active reports whether a local or remote track is held.
func (p *SamplePipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local != nil || p.remote != nil
}

// Release stops writing and reading and waits for both loops to exit.
func (p *SamplePipeline) Release() error {
	p.mu.Lock()
	if p.local == nil && p.remote == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.stopCh)
	p.stopCh = make(chan struct{})
	if p.remote != nil {
		// Unblocks a pending Read.
		_ = p.remote.SetReadDeadline(time.Now())
	}
	p.local = nil
	p.remote = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debug("Media released")
	return nil
}

// Verify SamplePipeline implements Pipeline and FrameCounter.
var (
	_ Pipeline     = (*SamplePipeline)(nil)
	_ FrameCounter = (*SamplePipeline)(nil)
)
