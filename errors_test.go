package capture

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAcquireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Denial
	}{
		{"nil", nil, DenialNone},
		{"unrelated", errors.New("boom"), DenialNone},
		{"busy", NewDeviceError(DeviceKindVideoInput, ErrDeviceBusy), DenialNone},
		{"not found", NewDeviceError(DeviceKindAudioInput, ErrDeviceNotFound), DenialNone},
		{"bare sentinel", ErrPermissionDenied, DenialVideo},
		{"wrapped audio text", fmt.Errorf("audio capture: %w", ErrPermissionDenied), DenialAudio},
		{"name mentions audio", errors.New("audio device busy, NotAllowedError"), DenialAudio},
		{"name only", errors.New("NotAllowedError: Permission denied"), DenialVideo},
		{"audio kind", NewDeviceError(DeviceKindAudioInput, ErrPermissionDenied), DenialAudio},
		{"video kind", NewDeviceError(DeviceKindVideoInput, ErrPermissionDenied), DenialVideo},
		{
			"kind beats text",
			NewDeviceError(DeviceKindVideoInput, fmt.Errorf("audio permission: %w", ErrPermissionDenied)),
			DenialVideo,
		},
		{"security error", &DeviceError{Kind: DeviceKindAudioInput, Name: ErrorNameSecurity}, DenialAudio},
		{
			"wrapped device error",
			fmt.Errorf("getUserMedia: %w", NewDeviceError(DeviceKindAudioInput, ErrPermissionDenied)),
			DenialAudio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAcquireError(tt.err))
		})
	}
}

func TestIsPermissionDenied(t *testing.T) {
	assert.False(t, IsPermissionDenied(nil))
	assert.False(t, IsPermissionDenied(ErrDeviceBusy))
	assert.True(t, IsPermissionDenied(ErrPermissionDenied))
	assert.True(t, IsPermissionDenied(errors.New("DOMException NotAllowedError")))
	assert.True(t, IsPermissionDenied(&DeviceError{Kind: DeviceKindVideoInput, Name: ErrorNameSecurity}))
	assert.False(t, IsPermissionDenied(&DeviceError{Kind: DeviceKindVideoInput, Name: ErrorNameOverconstrained}))
}

func TestNewDeviceError(t *testing.T) {
	tests := []struct {
		err      error
		wantName string
		wantIs   error
	}{
		{ErrPermissionDenied, ErrorNameNotAllowed, ErrPermissionDenied},
		{fmt.Errorf("camera: %w", ErrDeviceNotFound), ErrorNameNotFound, ErrDeviceNotFound},
		{ErrDeviceBusy, ErrorNameNotReadable, ErrDeviceBusy},
		{ErrNotSupported, ErrorNameNotSupported, ErrNotSupported},
		{errors.New("driver fault"), ErrorNameAbort, nil},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			de := NewDeviceError(DeviceKindAudioInput, tt.err)
			assert.Equal(t, DeviceKindAudioInput, de.Kind)
			assert.Equal(t, tt.wantName, de.Name)
			assert.ErrorIs(t, de, tt.err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, de, tt.wantIs)
			}
		})
	}
}

func TestNewDeviceError_RewrapsKind(t *testing.T) {
	inner := &DeviceError{Kind: DeviceKindVideoInput, Name: ErrorNameSecurity, Err: errors.New("blocked by policy")}
	de := NewDeviceError(DeviceKindAudioInput, inner)

	assert.Equal(t, DeviceKindAudioInput, de.Kind)
	assert.Equal(t, ErrorNameSecurity, de.Name)
	assert.ErrorIs(t, de, ErrPermissionDenied)
}

func TestDeviceError_Error(t *testing.T) {
	de := NewDeviceError(DeviceKindAudioInput, ErrPermissionDenied)
	assert.Equal(t, "failed to open audio device: NotAllowedError: permission denied", de.Error())

	bare := &DeviceError{Kind: DeviceKindVideoInput, Name: ErrorNameNotReadable}
	assert.Equal(t, "failed to open video device: NotReadableError", bare.Error())
	assert.ErrorIs(t, bare, ErrDeviceBusy)
	assert.NotErrorIs(t, bare, ErrPermissionDenied)
}

func TestDenial_String(t *testing.T) {
	assert.Equal(t, "none", DenialNone.String())
	assert.Equal(t, "video-denied", DenialVideo.String())
	assert.Equal(t, "audio-denied", DenialAudio.String())
	assert.Equal(t, "unknown", Denial(9).String())
}
