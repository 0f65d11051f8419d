package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeslice is how often an ffmpeg recorder emits a segment.
const DefaultTimeslice = time.Second

// FFmpegConfig configures ffmpeg-backed recorders.
type FFmpegConfig struct {
	Path      string        // ffmpeg binary (default: "ffmpeg")
	Timeslice time.Duration // Segment cadence (default: DefaultTimeslice)
	Logger    *zap.Logger
}

// ffmpeg encoder names for the codecs a webm recording may carry.
var (
	ffmpegVideoEncoders = map[VideoCodec]string{
		VideoCodecVP8: "libvpx",
		VideoCodecVP9: "libvpx-vp9",
		VideoCodecAV1: "libaom-av1",
	}
	ffmpegAudioEncoders = map[AudioCodec]string{
		AudioCodecOpus:   "libopus",
		AudioCodecVorbis: "libvorbis",
	}
)

// NewFFmpegRecorderFactory returns a RecorderFactory producing webm via an
// ffmpeg child process. The available encoders are probed on first use.
func NewFFmpegRecorderFactory(config FFmpegConfig) RecorderFactory {
	if config.Path == "" {
		config.Path = "ffmpeg"
	}
	if config.Timeslice <= 0 {
		config.Timeslice = DefaultTimeslice
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var (
		once     sync.Once
		encoders map[string]bool
		probeErr error
	)
	return func(stream MediaStream, mimeType string) (Recorder, error) {
		once.Do(func() {
			encoders, probeErr = ProbeFFmpegEncoders(context.Background(), config.Path)
		})
		if probeErr != nil {
			return nil, fmt.Errorf("probing ffmpeg encoders: %w", probeErr)
		}
		return newFFmpegRecorder(config, encoders, stream, mimeType)
	}
}

// ProbeFFmpegEncoders lists the encoders compiled into the ffmpeg at path.
func ProbeFFmpegEncoders(ctx context.Context, path string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("%s -encoders: %w", path, err)
	}
	return parseFFmpegEncoders(out), nil
}

// parseFFmpegEncoders parses `ffmpeg -encoders` output: a legend, a
// " ------" separator, then one "<flags> <name> <description>" per line.
func parseFFmpegEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			listing = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// FFmpegRecorder records a stream's first video and audio tracks to webm.
// Raw I420 video is fed on fd 3 and S16LE audio on fd 4; webm is read from
// stdout and cut into segments every Timeslice.
type FFmpegRecorder struct {
	config   FFmpegConfig
	mimeType string
	args     []string
	video    VideoTrack
	audio    AudioTrack
	logger   *zap.Logger

	events chan RecorderEvent

	mu      sync.Mutex
	state   RecorderState
	started bool
	cancel  context.CancelFunc
}

func newFFmpegRecorder(config FFmpegConfig, encoders map[string]bool, stream MediaStream, mimeType string) (*FFmpegRecorder, error) {
	enc, err := ParseEncoding(mimeType)
	if err != nil {
		return nil, err
	}
	if !enc.IsDefault() && enc.Container != ContainerWebM {
		return nil, fmt.Errorf("%w: %s: only %s is produced", ErrEncodingUnsupported, mimeType, ContainerWebM)
	}

	videoTracks := stream.GetVideoTracks()
	if len(videoTracks) == 0 {
		return nil, ErrNoVideoTrack
	}
	var audio AudioTrack
	if tracks := stream.GetAudioTracks(); len(tracks) > 0 {
		audio = tracks[0]
	}

	if enc.Video != VideoCodecUnknown {
		name, ok := ffmpegVideoEncoders[enc.Video]
		if !ok || !encoders[name] {
			return nil, fmt.Errorf("%w: %s: no ffmpeg encoder for %s", ErrEncodingUnsupported, mimeType, enc.Video)
		}
	}
	if enc.Audio != AudioCodecUnknown && audio != nil {
		name, ok := ffmpegAudioEncoders[enc.Audio]
		if !ok || !encoders[name] {
			return nil, fmt.Errorf("%w: %s: no ffmpeg encoder for %s", ErrEncodingUnsupported, mimeType, enc.Audio)
		}
	}

	var audioSettings *AudioTrackSettings
	if audio != nil {
		s := audio.Settings()
		audioSettings = &s
	}

	return &FFmpegRecorder{
		config:   config,
		mimeType: enc.String(),
		args:     ffmpegArgs(enc, videoTracks[0].Settings(), audioSettings),
		video:    videoTracks[0],
		audio:    audio,
		logger:   config.Logger.With(zap.String("stream", stream.ID())),
		events:   make(chan RecorderEvent, 16),
	}, nil
}

// ffmpegArgs builds the command line for enc. audio is nil when the stream
// has no audio track.
func ffmpegArgs(enc Encoding, video VideoTrackSettings, audio *AudioTrackSettings) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-use_wallclock_as_timestamps", "1",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-video_size", fmt.Sprintf("%dx%d", video.Width, video.Height),
		"-framerate", strconv.Itoa(video.FrameRate),
		"-i", "pipe:3",
	}
	if audio != nil {
		args = append(args,
			"-use_wallclock_as_timestamps", "1",
			"-f", "s16le",
			"-ar", strconv.Itoa(audio.SampleRate),
			"-ac", strconv.Itoa(audio.ChannelCount),
			"-i", "pipe:4",
		)
	}
	if name, ok := ffmpegVideoEncoders[enc.Video]; ok {
		args = append(args, "-c:v", name)
		if enc.Video == VideoCodecVP8 || enc.Video == VideoCodecVP9 {
			args = append(args, "-deadline", "realtime", "-cpu-used", "8")
		}
	}
	if name, ok := ffmpegAudioEncoders[enc.Audio]; ok && audio != nil {
		args = append(args, "-c:a", name)
	}
	return append(args, "-f", "webm", "pipe:1")
}

// Start launches ffmpeg and the track pumps.
func (r *FFmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}

	videoR, videoW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("video pipe: %w", err)
	}
	extra := []*os.File{videoR}
	var audioR, audioW *os.File
	if r.audio != nil {
		audioR, audioW, err = os.Pipe()
		if err != nil {
			videoR.Close()
			videoW.Close()
			return fmt.Errorf("audio pipe: %w", err)
		}
		extra = append(extra, audioR)
	}
	closeAll := func() {
		for _, f := range []*os.File{videoR, videoW, audioR, audioW} {
			if f != nil {
				f.Close()
			}
		}
	}

	cmd := exec.Command(r.config.Path, r.args...)
	cmd.ExtraFiles = extra
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeAll()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		closeAll()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	// The child holds the read ends now.
	videoR.Close()
	if audioR != nil {
		audioR.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.started = true
	r.state = RecorderRecording
	r.logger.Debug("ffmpeg recorder started", zap.String("mime", r.mimeType), zap.Strings("args", r.args))

	go r.run(ctx, cmd, stdout, stderr, videoW, audioW)
	return nil
}

func (r *FFmpegRecorder) run(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, videoW, audioW *os.File) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer videoW.Close()
		return pumpVideo(gctx, r.video, videoW)
	})
	if audioW != nil {
		g.Go(func() error {
			defer audioW.Close()
			return pumpAudio(gctx, r.audio, audioW)
		})
	}

	readErr := r.readSegments(stdout)
	// ffmpeg is gone; unblock pumps that are waiting on a track.
	r.cancel()
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	var err error
	switch {
	case waitErr != nil:
		err = fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	case readErr != nil:
		err = readErr
	case pumpErr != nil:
		err = pumpErr
	}

	r.mu.Lock()
	r.state = RecorderInactive
	r.mu.Unlock()

	r.logger.Debug("ffmpeg recorder finalized", zap.Error(err))
	r.events <- RecorderEvent{Type: EventFinalized, Err: err}
	close(r.events)
}

func (r *FFmpegRecorder) readSegments(stdout io.Reader) error {
	buf := make([]byte, 32*1024)
	var pending []byte
	last := time.Now()
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		if len(pending) > 0 && time.Since(last) >= r.config.Timeslice {
			r.events <- RecorderEvent{Type: EventSegment, Data: pending}
			pending = nil
			last = time.Now()
		}
		if err != nil {
			if len(pending) > 0 {
				r.events <- RecorderEvent{Type: EventSegment, Data: pending}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func pumpVideo(ctx context.Context, track VideoTrack, w io.Writer) error {
	settings := track.Settings()
	bw := bufio.NewWriterSize(w, I420Size(settings.Width, settings.Height))
	// Frames from a camera that changed resolution mid-pass are resized to
	// the size ffmpeg was started with.
	scaler := newFrameScaler(settings.Width, settings.Height, ScaleModeFill)
	for {
		frame, err := track.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTrackEnded) {
				return nil
			}
			return err
		}
		if frame.Format != PixelFormatI420 {
			continue
		}
		if frame = scaler.scale(frame); frame == nil {
			continue
		}
		if err := writeI420(bw, frame); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
}

// writeI420 writes the visible part of each plane, dropping stride padding.
// Chroma planes round odd dimensions up.
func writeI420(w io.Writer, frame *VideoFrame) error {
	for i := 0; i < 3; i++ {
		width, height := frame.Width, frame.Height
		if i > 0 {
			width, height = (width+1)/2, (height+1)/2
		}
		plane, stride := frame.Data[i], frame.Stride[i]
		for row := 0; row < height; row++ {
			if _, err := w.Write(plane[row*stride : row*stride+width]); err != nil {
				return err
			}
		}
	}
	return nil
}

func pumpAudio(ctx context.Context, track AudioTrack, w io.Writer) error {
	for {
		samples, err := track.ReadSamples(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTrackEnded) {
				return nil
			}
			return err
		}
		if samples.Format != AudioFormatS16 {
			continue
		}
		if _, err := w.Write(samples.Data); err != nil {
			return err
		}
	}
}

// RequestFinalize stops the pumps; ffmpeg then drains and exits, which
// emits the last segment and EventFinalized.
func (r *FFmpegRecorder) RequestFinalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecorderRecording {
		return nil
	}
	r.cancel()
	return nil
}

func (r *FFmpegRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *FFmpegRecorder) MimeType() string { return r.mimeType }

func (r *FFmpegRecorder) Events() <-chan RecorderEvent { return r.events }

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
