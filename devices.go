package capture

import (
	"context"
	"fmt"
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota // Camera
	DeviceKindAudioInput                   // Microphone
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	default:
		return "unknown"
	}
}

// Medium returns "video" or "audio".
func (k DeviceKind) Medium() string {
	switch k {
	case DeviceKindVideoInput:
		return "video"
	case DeviceKindAudioInput:
		return "audio"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a media device (like browser's MediaDeviceInfo).
type DeviceInfo struct {
	DeviceID string     // Unique identifier for the device
	GroupID  string     // Group identifier (devices with same groupID belong together)
	Kind     DeviceKind // Device type
	Label    string     // Human-readable device name
}

// UserMediaOptions configures getUserMedia.
type UserMediaOptions struct {
	Video *VideoConstraints // nil = no video
	Audio *AudioConstraints // nil = no audio
}

// DefaultUserMediaOptions requests the default camera and microphone.
func DefaultUserMediaOptions() UserMediaOptions {
	return UserMediaOptions{
		Video: &VideoConstraints{Width: 1280, Height: 720, FrameRate: 30},
		Audio: &AudioConstraints{SampleRate: 48000, ChannelCount: 2},
	}
}

// VideoConstraints for getUserMedia video.
type VideoConstraints struct {
	DeviceID   string // Specific device ID
	Width      int    // Requested width
	Height     int    // Requested height
	FrameRate  int    // Requested framerate
	FacingMode string // "user" or "environment"
}

// AudioConstraints for getUserMedia audio.
type AudioConstraints struct {
	DeviceID         string // Specific device ID
	SampleRate       int    // Requested sample rate
	ChannelCount     int    // Requested channels
	EchoCancellation bool   // Enable echo cancellation
	NoiseSuppression bool   // Enable noise suppression
	AutoGainControl  bool   // Enable automatic gain control
}

// MediaDevices provides access to media input devices (like navigator.mediaDevices).
type MediaDevices interface {
	// EnumerateDevices returns a list of available media devices.
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetUserMedia prompts for permission and returns a MediaStream with
	// requested audio and/or video tracks (camera/microphone).
	GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error)
}

// DeviceProvider is implemented by platform-specific device implementations.
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// ListAudioInputDevices returns available audio input devices.
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenVideoDevice opens a video input device.
	OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error)

	// OpenAudioDevice opens an audio input device.
	OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error)
}

// DefaultMediaDevices implements MediaDevices on top of a DeviceProvider.
type DefaultMediaDevices struct {
	provider DeviceProvider
}

// NewMediaDevices returns a MediaDevices backed by provider.
func NewMediaDevices(provider DeviceProvider) *DefaultMediaDevices {
	return &DefaultMediaDevices{provider: provider}
}

// EnumerateDevices implements MediaDevices.
func (d *DefaultMediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrNotSupported)
	}

	var devices []DeviceInfo

	videoDevices, err := d.provider.ListVideoDevices(ctx)
	if err == nil {
		devices = append(devices, videoDevices...)
	}

	audioInputDevices, err := d.provider.ListAudioInputDevices(ctx)
	if err == nil {
		devices = append(devices, audioInputDevices...)
	}

	return devices, nil
}

// GetUserMedia implements MediaDevices.
//
// Video and audio are requested one after the other; a failure is returned
// as a *DeviceError naming the kind that failed. When video fails the audio
// request is not made.
func (d *DefaultMediaDevices) GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrNotSupported)
	}

	stream := NewMediaStream(newID())

	if options.Video != nil {
		deviceID, err := d.defaultDevice(ctx, DeviceKindVideoInput, options.Video.DeviceID)
		if err != nil {
			return nil, err
		}

		videoTrack, err := d.provider.OpenVideoDevice(ctx, deviceID, options.Video)
		if err != nil {
			return nil, NewDeviceError(DeviceKindVideoInput, err)
		}
		stream.AddTrack(videoTrack)
	}

	if options.Audio != nil {
		deviceID, err := d.defaultDevice(ctx, DeviceKindAudioInput, options.Audio.DeviceID)
		if err != nil {
			stream.Close()
			return nil, err
		}

		audioTrack, err := d.provider.OpenAudioDevice(ctx, deviceID, options.Audio)
		if err != nil {
			// Close video track if we already opened it
			stream.Close()
			return nil, NewDeviceError(DeviceKindAudioInput, err)
		}
		stream.AddTrack(audioTrack)
	}

	return stream, nil
}

// defaultDevice returns deviceID, or the first device of kind when empty.
func (d *DefaultMediaDevices) defaultDevice(ctx context.Context, kind DeviceKind, deviceID string) (string, error) {
	if deviceID != "" {
		return deviceID, nil
	}

	var devices []DeviceInfo
	var err error
	switch kind {
	case DeviceKindVideoInput:
		devices, err = d.provider.ListVideoDevices(ctx)
	default:
		devices, err = d.provider.ListAudioInputDevices(ctx)
	}
	if err != nil {
		return "", NewDeviceError(kind, fmt.Errorf("failed to list %s devices: %w", kind.Medium(), err))
	}
	if len(devices) == 0 {
		return "", NewDeviceError(kind, fmt.Errorf("no %s devices available: %w", kind.Medium(), ErrDeviceNotFound))
	}
	return devices[0].DeviceID, nil
}
