package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSamplePeriod is the frame sampling cadence used when none is given.
const DefaultSamplePeriod = 200 * time.Millisecond

// FrameCallback receives the preview surface once per sampling tick.
type FrameCallback func(source PreviewSurface)

// FrameSampler invokes a consumer with the preview surface at a fixed
// cadence. Each tick reads the surface's current state; nothing is queued.
type FrameSampler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  atomic.Uint64
}

// Start begins calling onFrame(source) every period (DefaultSamplePeriod
// when period <= 0). A nil source or consumer makes Start a no-op. Starting
// a running sampler replaces its timer.
func (s *FrameSampler) Start(source PreviewSurface, onFrame FrameCallback, period time.Duration) {
	if source == nil || onFrame == nil {
		return
	}
	if period <= 0 {
		period = DefaultSamplePeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Stop may have raced with the tick.
				if ctx.Err() != nil {
					return
				}
				s.ticks.Add(1)
				onFrame(source)
			}
		}
	}()
}

// Stop cancels the timer and waits for an in-flight tick to return. It is
// idempotent. It must not be called from inside the consumer.
func (s *FrameSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *FrameSampler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Running reports whether the timer is active.
func (s *FrameSampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Ticks returns the number of ticks delivered since creation.
func (s *FrameSampler) Ticks() uint64 {
	return s.ticks.Load()
}
