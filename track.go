package capture

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType for convenience
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

func newID() string { return uuid.NewString() }

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing media
	TrackStateEnded                   // Track has ended
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MediaStreamTrack represents a single audio or video track.
// This is similar to the browser's MediaStreamTrack interface.
type MediaStreamTrack interface {
	io.Closer

	// ID returns the unique identifier for this track.
	ID() string

	// Kind returns the track kind (audio or video) - compatible with pion.
	Kind() RTPCodecType

	// Label returns a human-readable label for the track source.
	Label() string

	// State returns the current track state.
	State() TrackState

	// Muted reports whether the source is currently unable to provide media.
	Muted() bool

	// Enabled returns whether the track is enabled. A disabled video track
	// renders black frames and a disabled audio track renders silence; the
	// track keeps running either way.
	Enabled() bool

	// SetEnabled sets the enabled state.
	SetEnabled(enabled bool)

	// OnEnded sets a callback for when the track ends.
	OnEnded(callback func())
}

// VideoTrack is a MediaStreamTrack that produces video frames.
type VideoTrack interface {
	MediaStreamTrack

	// ReadFrame blocks until the next video frame is produced.
	// Any number of readers may call it concurrently; each sees every frame
	// produced while it is waiting.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// OnFrame sets a callback for when a frame is available.
	OnFrame(callback VideoFrameCallback)

	// Settings returns the actual video settings.
	Settings() VideoTrackSettings
}

// VideoTrackSettings describes the actual video track settings.
type VideoTrackSettings struct {
	Width      int
	Height     int
	FrameRate  int
	DeviceID   string
	FacingMode string
}

// AudioTrack is a MediaStreamTrack that produces audio samples.
type AudioTrack interface {
	MediaStreamTrack

	// ReadSamples blocks until the next audio samples are produced.
	ReadSamples(ctx context.Context) (*AudioSamples, error)

	// OnSamples sets a callback for when samples are available.
	OnSamples(callback AudioSamplesCallback)

	// Settings returns the actual audio settings.
	Settings() AudioTrackSettings
}

// AudioTrackSettings describes the actual audio track settings.
type AudioTrackSettings struct {
	SampleRate       int
	ChannelCount     int
	DeviceID         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// MediaStream is a collection of tracks (like browser's MediaStream).
type MediaStream interface {
	io.Closer

	// ID returns the unique identifier for this stream.
	ID() string

	// Active returns whether any track in the stream is live.
	Active() bool

	// GetTracks returns all tracks in the stream.
	GetTracks() []MediaStreamTrack

	// GetVideoTracks returns all video tracks.
	GetVideoTracks() []VideoTrack

	// GetAudioTracks returns all audio tracks.
	GetAudioTracks() []AudioTrack

	// AddTrack adds a track to the stream.
	AddTrack(track MediaStreamTrack)
}

// BaseTrack provides common functionality for tracks.
type BaseTrack struct {
	id      string
	label   string
	kind    RTPCodecType
	state   atomic.Int32
	muted   atomic.Bool
	enabled atomic.Bool
	endedCb func()
	mu      sync.RWMutex
}

// NewBaseTrack creates a new live, enabled base track.
func NewBaseTrack(id, label string, kind RTPCodecType) *BaseTrack {
	t := &BaseTrack{
		id:    id,
		label: label,
		kind:  kind,
	}
	t.state.Store(int32(TrackStateLive))
	t.enabled.Store(true)
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }
func (t *BaseTrack) Label() string      { return t.label }

func (t *BaseTrack) State() TrackState {
	return TrackState(t.state.Load())
}

// End moves the track to the ended state, firing OnEnded once.
func (t *BaseTrack) End() {
	old := TrackState(t.state.Swap(int32(TrackStateEnded)))
	if old == TrackStateEnded {
		return
	}
	t.mu.RLock()
	cb := t.endedCb
	t.mu.RUnlock()
	if cb != nil {
		go cb()
	}
}

// Muted reports whether the source has stopped supplying media. Unlike a
// disabled track, a muted track is muted by its device, not the user.
func (t *BaseTrack) Muted() bool     { return t.muted.Load() }
func (t *BaseTrack) SetMuted(m bool) { t.muted.Store(m) }

func (t *BaseTrack) Enabled() bool     { return t.enabled.Load() }
func (t *BaseTrack) SetEnabled(e bool) { t.enabled.Store(e) }

func (t *BaseTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

// SimpleMediaStream is a basic MediaStream implementation.
type SimpleMediaStream struct {
	id     string
	tracks []MediaStreamTrack
	mu     sync.RWMutex
}

// NewMediaStream creates a new media stream.
func NewMediaStream(id string) *SimpleMediaStream {
	return &SimpleMediaStream{
		id:     id,
		tracks: make([]MediaStreamTrack, 0),
	}
}

func (s *SimpleMediaStream) ID() string { return s.id }

func (s *SimpleMediaStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.State() == TrackStateLive {
			return true
		}
	}
	return false
}

func (s *SimpleMediaStream) GetTracks() []MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]MediaStreamTrack, len(s.tracks))
	copy(result, s.tracks)
	return result
}

func (s *SimpleMediaStream) GetVideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []VideoTrack
	for _, t := range s.tracks {
		if vt, ok := t.(VideoTrack); ok {
			result = append(result, vt)
		}
	}
	return result
}

func (s *SimpleMediaStream) GetAudioTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []AudioTrack
	for _, t := range s.tracks {
		if at, ok := t.(AudioTrack); ok {
			result = append(result, at)
		}
	}
	return result
}

func (s *SimpleMediaStream) AddTrack(track MediaStreamTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

// Close stops every track. Tracks stay listed so the stream reports them
// as ended.
func (s *SimpleMediaStream) Close() error {
	s.mu.RLock()
	tracks := make([]MediaStreamTrack, len(s.tracks))
	copy(tracks, s.tracks)
	s.mu.RUnlock()

	var lastErr error
	for _, t := range tracks {
		if t.State() == TrackStateEnded {
			continue
		}
		if err := t.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
