package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SessionState is what the presentation layer observes.
type SessionState struct {
	VideoPermissionDenied bool
	AudioPermissionDenied bool
	MicEnabled            bool
	VideoEnabled          bool
	IsRecording           bool // Passthrough of the last SetRecording input
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Devices     MediaDevices     // Required
	Preview     PreviewSurface   // Default: NewVideoElement()
	Constraints UserMediaOptions // Default: DefaultUserMediaOptions()

	NewRecorder  RecorderFactory // Nil disables recording
	Encodings    []string        // Default: DefaultEncodings
	SamplePeriod time.Duration   // Default: DefaultSamplePeriod

	OnVideoFrame     FrameCallback      // Nil disables sampling
	OnRecordingReady func(*Artifact)    // Called once per completed pass
	OnStateChange    func(SessionState) // Called after every observable change
	Logger           *zap.Logger
}

// Session composes a DeviceSession, a FrameSampler and a
// RecordingController into one lifecycle driven by an isRecording input.
//
// Entering the recording state starts sampling and recording together;
// leaving it, by SetRecording(false) or Close, stops both together.
type Session struct {
	config   SessionConfig
	logger   *zap.Logger
	devices  *DeviceSession
	sampler  *FrameSampler
	recorder *RecordingController

	// mu serialises transitions; isRecording is readable without it so
	// callbacks may call State.
	mu          sync.Mutex
	isRecording atomic.Bool
	closed      bool
}

// NewSession creates a session. Devices are not acquired until Open.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Devices == nil {
		return nil, errors.New("session: Devices is required")
	}
	if config.Preview == nil {
		config.Preview = NewVideoElement()
	}
	if config.Constraints.Video == nil && config.Constraints.Audio == nil {
		config.Constraints = DefaultUserMediaOptions()
	}
	if config.SamplePeriod <= 0 {
		config.SamplePeriod = DefaultSamplePeriod
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		config:  config,
		logger:  logger,
		devices: NewDeviceSession(config.Devices, config.Preview, config.Constraints, logger.Named("devices")),
		sampler: &FrameSampler{},
		recorder: NewRecordingController(RecordingControllerConfig{
			NewRecorder:      config.NewRecorder,
			Encodings:        config.Encodings,
			OnRecordingReady: config.OnRecordingReady,
			Logger:           logger.Named("recorder"),
		}),
	}, nil
}

// Open acquires the camera and microphone. Acquisition failures are
// reflected in State, never returned; the error is ErrSessionClosed only.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	_ = s.devices.Acquire(ctx)
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetRecording drives the isRecording input. Same-value calls do nothing.
// The only errors are ErrSessionClosed and ctx's, returned while waiting for
// a previous pass to finalize before a new one starts; on error the input
// stays false. It must not be called from OnVideoFrame or OnRecordingReady.
func (s *Session) SetRecording(ctx context.Context, recording bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.isRecording.Load() == recording {
		s.mu.Unlock()
		return nil
	}
	s.isRecording.Store(recording)

	var err error
	if recording {
		if err = s.activateLocked(ctx); err != nil {
			// Nothing started.
			s.isRecording.Store(false)
		}
	} else {
		s.deactivateLocked()
	}
	s.mu.Unlock()

	s.notify()
	return err
}

// activateLocked starts recording and sampling against the held stream.
func (s *Session) activateLocked(ctx context.Context) error {
	stream := s.devices.Stream()
	preview := s.devices.Preview()
	if stream == nil || preview == nil {
		s.logger.Info("recording requested without a capture stream")
		return nil
	}

	if err := s.recorder.Start(ctx, stream); err != nil {
		return err
	}
	if s.config.OnVideoFrame != nil {
		s.sampler.Start(preview, s.config.OnVideoFrame, s.config.SamplePeriod)
	}
	return nil
}

// deactivateLocked releases both halves of the active state.
func (s *Session) deactivateLocked() {
	s.sampler.Stop()
	s.recorder.Stop()
}

// ToggleMic flips the microphone enabled flag without touching the stream.
func (s *Session) ToggleMic() bool {
	enabled := s.devices.ToggleAudio()
	s.notify()
	return enabled
}

// ToggleVideo flips the camera enabled flag without touching the stream.
func (s *Session) ToggleVideo() bool {
	enabled := s.devices.ToggleVideo()
	s.notify()
	return enabled
}

// State returns the observable session state.
func (s *Session) State() SessionState {
	recording := s.isRecording.Load()
	denial := s.devices.Denial()
	return SessionState{
		VideoPermissionDenied: denial == DenialVideo,
		AudioPermissionDenied: denial == DenialAudio,
		MicEnabled:            s.devices.AudioEnabled(),
		VideoEnabled:          s.devices.VideoEnabled(),
		IsRecording:           recording,
	}
}

// Preview returns the preview surface.
func (s *Session) Preview() PreviewSurface { return s.devices.Preview() }

// Stream returns the held capture stream, or nil.
func (s *Session) Stream() MediaStream { return s.devices.Stream() }

// Wait blocks until a finalizing pass has handed off its artifact.
func (s *Session) Wait(ctx context.Context) error {
	return s.recorder.Wait(ctx)
}

// Close tears the session down: the active state is left exactly as with
// SetRecording(false), the pending artifact is awaited, then the devices
// are released. Devices are released even when ctx expires first.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.isRecording.Load() {
		s.deactivateLocked()
		s.isRecording.Store(false)
	}
	s.mu.Unlock()

	err := s.recorder.Wait(ctx)
	s.devices.Release()
	return err
}

func (s *Session) notify() {
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(s.State())
	}
}
