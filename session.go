package capture

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DeviceSession owns the capture stream for one session: it acquires it,
// binds it to the preview surface, toggles its tracks and releases it.
// Only a DeviceSession stops tracks.
type DeviceSession struct {
	devices     MediaDevices
	preview     PreviewSurface
	constraints UserMediaOptions
	logger      *zap.Logger

	// acquireMu serialises Acquire; mu guards state and is never held
	// across a device request.
	acquireMu    sync.Mutex
	mu           sync.RWMutex
	stream       MediaStream
	videoEnabled bool
	audioEnabled bool
	denial       Denial
}

// NewDeviceSession creates a session that acquires devices through devices
// and renders into preview (which may be nil).
func NewDeviceSession(devices MediaDevices, preview PreviewSurface, constraints UserMediaOptions, logger *zap.Logger) *DeviceSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceSession{
		devices:      devices,
		preview:      preview,
		constraints:  constraints,
		logger:       logger,
		videoEnabled: true,
		audioEnabled: true,
	}
}

// Acquire requests the camera and microphone together.
//
// Permission denials are recorded as a Denial; other failures are only
// logged. The returned error is informational: callers observe the outcome
// through Denial and Stream. Acquire is a no-op while a stream is held.
func (s *DeviceSession) Acquire(ctx context.Context) error {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	if s.Stream() != nil {
		return nil
	}

	stream, err := s.devices.GetUserMedia(ctx, s.constraints)
	if err != nil {
		denial := ClassifyAcquireError(err)
		s.mu.Lock()
		s.denial = denial
		s.mu.Unlock()
		if denial == DenialNone {
			s.logger.Warn("capture device acquisition failed", zap.Error(err))
		} else {
			s.logger.Info("capture permission denied",
				zap.Stringer("denial", denial),
				zap.Error(err))
		}
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.denial = DenialNone
	s.applyEnabledLocked()
	if s.preview != nil {
		s.preview.Bind(stream)
	}
	s.mu.Unlock()
	s.logger.Debug("capture devices acquired",
		zap.String("stream", stream.ID()),
		zap.Int("tracks", len(stream.GetTracks())))
	return nil
}

// Release stops every track of the held stream. Safe to call repeatedly or
// when nothing was acquired.
func (s *DeviceSession) Release() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return
	}
	if s.preview != nil {
		s.preview.Unbind()
	}
	if err := stream.Close(); err != nil {
		s.logger.Warn("stopping capture tracks", zap.String("stream", stream.ID()), zap.Error(err))
	}
	s.logger.Debug("capture devices released", zap.String("stream", stream.ID()))
}

// ToggleAudio flips the microphone enabled flag and applies it to every
// audio track in place. Without a stream it does nothing. It returns the
// resulting flag.
func (s *DeviceSession) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return s.audioEnabled
	}
	s.audioEnabled = !s.audioEnabled
	for _, t := range s.stream.GetAudioTracks() {
		t.SetEnabled(s.audioEnabled)
	}
	return s.audioEnabled
}

// ToggleVideo flips the camera enabled flag and applies it to every video
// track in place. Without a stream it does nothing. It returns the
// resulting flag.
func (s *DeviceSession) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return s.videoEnabled
	}
	s.videoEnabled = !s.videoEnabled
	for _, t := range s.stream.GetVideoTracks() {
		t.SetEnabled(s.videoEnabled)
	}
	return s.videoEnabled
}

func (s *DeviceSession) applyEnabledLocked() {
	for _, t := range s.stream.GetVideoTracks() {
		t.SetEnabled(s.videoEnabled)
	}
	for _, t := range s.stream.GetAudioTracks() {
		t.SetEnabled(s.audioEnabled)
	}
}

// Stream returns the held stream, or nil.
func (s *DeviceSession) Stream() MediaStream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// Preview returns the surface the stream is bound to.
func (s *DeviceSession) Preview() PreviewSurface { return s.preview }

// Denial returns the outcome of the last acquisition.
func (s *DeviceSession) Denial() Denial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.denial
}

// AudioEnabled reports the microphone enabled flag.
func (s *DeviceSession) AudioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioEnabled
}

// VideoEnabled reports the camera enabled flag.
func (s *DeviceSession) VideoEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoEnabled
}
