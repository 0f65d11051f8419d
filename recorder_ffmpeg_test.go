package capture

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleEncoders = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libvpx               libvpx VP8 (codec vp8)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 A....D libopus              libopus Opus (codec opus)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestParseFFmpegEncoders(t *testing.T) {
	encoders := parseFFmpegEncoders([]byte(sampleEncoders))
	assert.Equal(t, map[string]bool{
		"libvpx":     true,
		"libvpx-vp9": true,
		"libx264":    true,
		"libopus":    true,
		"aac":        true,
	}, encoders)

	assert.Empty(t, parseFFmpegEncoders([]byte("no listing here\n")))
}

func TestFFmpegArgs(t *testing.T) {
	enc := Encoding{Container: ContainerWebM, Video: VideoCodecVP9, Audio: AudioCodecOpus}
	args := ffmpegArgs(enc,
		VideoTrackSettings{Width: 640, Height: 480, FrameRate: 30},
		&AudioTrackSettings{SampleRate: 48000, ChannelCount: 2})
	line := strings.Join(args, " ")

	assert.Contains(t, line, "-f rawvideo -pix_fmt yuv420p -video_size 640x480 -framerate 30 -i pipe:3")
	assert.Contains(t, line, "-f s16le -ar 48000 -ac 2 -i pipe:4")
	assert.Contains(t, line, "-c:v libvpx-vp9 -deadline realtime -cpu-used 8")
	assert.Contains(t, line, "-c:a libopus")
	assert.True(t, strings.HasSuffix(line, "-f webm pipe:1"))
}

func TestFFmpegArgs_VideoOnlyDefaultEncoding(t *testing.T) {
	args := ffmpegArgs(Encoding{}, VideoTrackSettings{Width: 320, Height: 240, FrameRate: 15}, nil)
	line := strings.Join(args, " ")

	assert.NotContains(t, line, "pipe:4")
	assert.NotContains(t, line, "-c:v")
	assert.NotContains(t, line, "-c:a")
	assert.Contains(t, line, "-video_size 320x240")
}

func TestNewFFmpegRecorder_Negotiation(t *testing.T) {
	encoders := parseFFmpegEncoders([]byte(sampleEncoders))
	stream, _, _ := newStubStream()
	config := FFmpegConfig{Path: "ffmpeg", Timeslice: time.Second, Logger: zap.NewNop()}

	tests := []struct {
		mime     string
		wantErr  error
		wantMime string
	}{
		{"video/webm;codecs=vp9,opus", nil, "video/webm;codecs=vp9,opus"},
		{"video/webm;codecs=vp8,opus", nil, "video/webm;codecs=vp8,opus"},
		{"", nil, ""},
		{"video/webm;codecs=av1,opus", ErrEncodingUnsupported, ""},
		{"video/webm;codecs=vp8,vorbis", ErrEncodingUnsupported, ""},
		{"video/mp4;codecs=avc1", ErrEncodingUnsupported, ""},
		{"video/webm;codecs=theora", ErrEncodingUnsupported, ""},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			rec, err := newFFmpegRecorder(config, encoders, stream, tt.mime)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, rec.MimeType())
			assert.Equal(t, RecorderInactive, rec.State())
		})
	}
}

func TestNewFFmpegRecorder_NoVideoTrack(t *testing.T) {
	stream := NewMediaStream("audio-only")
	stream.AddTrack(newStubAudioTrack())
	_, err := newFFmpegRecorder(FFmpegConfig{Logger: zap.NewNop()}, map[string]bool{}, stream, "")
	assert.ErrorIs(t, err, ErrNoVideoTrack)
}

func TestFFmpegRecorderFactory_MissingBinary(t *testing.T) {
	factory := NewFFmpegRecorderFactory(FFmpegConfig{Path: "/nonexistent/ffmpeg"})
	stream, _, _ := newStubStream()
	_, err := factory(stream, DefaultEncodings[0])
	assert.Error(t, err)

	// The failed probe is remembered, so every tier fails fast.
	ctrl := NewRecordingController(RecordingControllerConfig{NewRecorder: factory})
	require.NoError(t, ctrl.Start(context.Background(), stream))
	assert.Equal(t, ControllerIdle, ctrl.State())
}

func TestWriteI420_DropsStridePadding(t *testing.T) {
	frame := &VideoFrame{
		Data: [][]byte{
			{1, 2, 0, 0, 3, 4, 0, 0},
			{5, 0},
			{6, 0},
		},
		Stride: []int{4, 2, 2},
		Width:  2,
		Height: 2,
		Format: PixelFormatI420,
	}
	var buf bytes.Buffer
	require.NoError(t, writeI420(&buf, frame))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, buf.Bytes())
}

func TestWriteI420_OddDimensions(t *testing.T) {
	// 3x3 luma carries 2x2 chroma planes.
	frame := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 0, 4, 5, 6, 0, 7, 8, 9, 0},
			{10, 11, 12, 13},
			{14, 15, 16, 17},
		},
		Stride: []int{4, 2, 2},
		Width:  3,
		Height: 3,
		Format: PixelFormatI420,
	}
	var buf bytes.Buffer
	require.NoError(t, writeI420(&buf, frame))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}, buf.Bytes())
	assert.Equal(t, I420Size(3, 3), buf.Len())
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}

func TestFFmpegRecorder_RecordsWebM(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg recording in short mode")
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	devices := NewMediaDevices(NewSyntheticProvider(SyntheticConfig{}))
	stream, err := devices.GetUserMedia(context.Background(), UserMediaOptions{
		Video: &VideoConstraints{Width: 160, Height: 120, FrameRate: 15},
		Audio: &AudioConstraints{SampleRate: 48000, ChannelCount: 1},
	})
	require.NoError(t, err)
	defer stream.Close()

	ready := make(chan *Artifact, 1)
	ctrl := NewRecordingController(RecordingControllerConfig{
		NewRecorder:      NewFFmpegRecorderFactory(FFmpegConfig{Path: path, Timeslice: 200 * time.Millisecond}),
		OnRecordingReady: func(a *Artifact) { ready <- a },
	})
	require.NoError(t, ctrl.Start(context.Background(), stream))
	if ctrl.State() != ControllerRecording {
		t.Skip("ffmpeg lacks webm encoders")
	}

	time.Sleep(time.Second)
	ctrl.Stop()

	select {
	case artifact := <-ready:
		require.GreaterOrEqual(t, len(artifact.Data), 4)
		// EBML header magic.
		assert.Equal(t, []byte{0x1a, 0x45, 0xdf, 0xa3}, artifact.Data[:4])
		assert.True(t, strings.HasPrefix(artifact.MimeType, ContainerWebM))
	case <-time.After(10 * time.Second):
		t.Fatal("ffmpeg did not finalize")
	}
}
