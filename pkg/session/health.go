package session

import (
	"sync"
	"time"

	"github.com/backkem/peerlink/pkg/media"
)

// healthMonitor watches a frame counter and reports when it stops
// advancing for a full interval.
type healthMonitor struct {
	counter  media.FrameCounter
	interval time.Duration
	onStall  func(frames uint64)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newHealthMonitor(counter media.FrameCounter, interval time.Duration, onStall func(frames uint64)) *healthMonitor {
	return &healthMonitor{
		counter:  counter,
		interval: interval,
		onStall:  onStall,
		stopCh:   make(chan struct{}),
	}
}

func (m *healthMonitor) start() {
	m.wg.Add(1)
	go m.run()
}

func (m *healthMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.counter.FramesReceived()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}

		frames := m.counter.FramesReceived()
		if frames == last {
			m.onStall(frames)
			return
		}
		last = frames
	}
}

// stop ends monitoring and waits for the goroutine. Idempotent.
func (m *healthMonitor) stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.wg.Wait()
}
