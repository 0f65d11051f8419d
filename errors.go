package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceBusy          = errors.New("device busy")
	ErrEncodingUnsupported = errors.New("encoding not supported")
	ErrNoVideoTrack        = errors.New("stream has no video track")
	ErrTrackEnded          = errors.New("track ended")
	ErrSessionClosed       = errors.New("session closed")
	ErrNotSupported        = errors.New("operation not supported")
)

// Names reported by capture devices, mirroring the DOMException names a
// browser raises from getUserMedia.
const (
	ErrorNameNotAllowed      = "NotAllowedError"
	ErrorNameSecurity        = "SecurityError"
	ErrorNameNotFound        = "NotFoundError"
	ErrorNameNotReadable     = "NotReadableError"
	ErrorNameOverconstrained = "OverconstrainedError"
	ErrorNameAbort           = "AbortError"
	ErrorNameNotSupported    = "NotSupportedError"
)

// DeviceError is a failure to open a capture device. Kind records which
// device request failed; Name is the DOMException-style failure class.
type DeviceError struct {
	Kind DeviceKind
	Name string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to open %s device: %s", e.Kind.Medium(), e.Name)
	}
	return fmt.Sprintf("failed to open %s device: %s: %v", e.Kind.Medium(), e.Name, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel that corresponds to Name.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Name == ErrorNameNotAllowed || e.Name == ErrorNameSecurity
	case ErrDeviceNotFound:
		return e.Name == ErrorNameNotFound
	case ErrDeviceBusy:
		return e.Name == ErrorNameNotReadable
	case ErrNotSupported:
		return e.Name == ErrorNameNotSupported
	}
	return false
}

// NewDeviceError wraps err as a failure of the given device kind. The name
// is derived from err when it wraps one of the package sentinels.
func NewDeviceError(kind DeviceKind, err error) *DeviceError {
	var de *DeviceError
	if errors.As(err, &de) {
		return &DeviceError{Kind: kind, Name: de.Name, Err: de.Err}
	}
	name := ErrorNameAbort
	switch {
	case errors.Is(err, ErrPermissionDenied):
		name = ErrorNameNotAllowed
	case errors.Is(err, ErrDeviceNotFound):
		name = ErrorNameNotFound
	case errors.Is(err, ErrDeviceBusy):
		name = ErrorNameNotReadable
	case errors.Is(err, ErrNotSupported):
		name = ErrorNameNotSupported
	}
	return &DeviceError{Kind: kind, Name: name, Err: err}
}

// Denial is the acquisition failure surfaced to the presentation layer.
type Denial int

const (
	DenialNone  Denial = iota // Acquired, or failed for a non-permission reason
	DenialVideo               // Camera permission denied
	DenialAudio               // Microphone permission denied
)

func (d Denial) String() string {
	switch d {
	case DenialNone:
		return "none"
	case DenialVideo:
		return "video-denied"
	case DenialAudio:
		return "audio-denied"
	default:
		return "unknown"
	}
}

// IsPermissionDenied reports whether err is a permission-denial class failure.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	return strings.Contains(err.Error(), ErrorNameNotAllowed)
}

// ClassifyAcquireError maps an acquisition failure to a Denial.
//
// When the error carries the kind of the device request that failed, that
// kind decides. Otherwise a permission denial whose message mentions audio
// is an audio denial and every other permission denial is a video denial.
// Errors that are not permission denials classify as DenialNone.
func ClassifyAcquireError(err error) Denial {
	if !IsPermissionDenied(err) {
		return DenialNone
	}
	var de *DeviceError
	if errors.As(err, &de) {
		switch de.Kind {
		case DeviceKindAudioInput:
			return DenialAudio
		case DeviceKindVideoInput:
			return DenialVideo
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "audio") {
		return DenialAudio
	}
	return DenialVideo
}
