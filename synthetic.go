package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// SyntheticConfig configures a SyntheticProvider.
type SyntheticConfig struct {
	Width  int // Frame width (default: 640)
	Height int // Frame height (default: 480)
	FPS    int // Frames per second (default: 30)

	SampleRate int     // Sample rate (default: 48000)
	Channels   int     // Number of channels (default: 2)
	FrameSize  int     // Samples per channel per chunk (default: 960 = 20ms at 48kHz)
	ToneHz     float64 // Tone frequency in Hz (default: 440)

	// Simulated failures. DenyVideo/DenyAudio fail the open with
	// ErrPermissionDenied; VideoErr/AudioErr fail it with the given error.
	DenyVideo bool
	DenyAudio bool
	VideoErr  error
	AudioErr  error

	// MuteVideo/MuteAudio open the device muted, as a camera behind a
	// privacy shutter or a microphone with its hardware switch off.
	MuteVideo bool
	MuteAudio bool
}

// SyntheticProvider is a DeviceProvider with one generated camera (a box
// moving over a gray background) and one generated microphone (a sine tone).
// It stands in for hardware in tests and demos.
type SyntheticProvider struct {
	config SyntheticConfig
}

// NewSyntheticProvider creates a synthetic device provider.
func NewSyntheticProvider(config SyntheticConfig) *SyntheticProvider {
	if config.Width <= 0 {
		config.Width = 640
	}
	if config.Height <= 0 {
		config.Height = 480
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = config.SampleRate / 50
	}
	if config.ToneHz <= 0 {
		config.ToneHz = 440
	}
	// Ensure even dimensions for YUV
	config.Width = (config.Width + 1) &^ 1
	config.Height = (config.Height + 1) &^ 1
	return &SyntheticProvider{config: config}
}

const (
	syntheticCameraID = "synthetic-camera"
	syntheticMicID    = "synthetic-microphone"
)

func (p *SyntheticProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{DeviceID: syntheticCameraID, GroupID: "synthetic", Kind: DeviceKindVideoInput, Label: "Synthetic Camera"}}, nil
}

func (p *SyntheticProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{DeviceID: syntheticMicID, GroupID: "synthetic", Kind: DeviceKindAudioInput, Label: "Synthetic Microphone"}}, nil
}

func (p *SyntheticProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	if p.config.DenyVideo {
		return nil, fmt.Errorf("camera access: %w", ErrPermissionDenied)
	}
	if p.config.VideoErr != nil {
		return nil, p.config.VideoErr
	}
	if deviceID != syntheticCameraID {
		return nil, fmt.Errorf("camera %q: %w", deviceID, ErrDeviceNotFound)
	}

	settings := VideoTrackSettings{
		Width:      p.config.Width,
		Height:     p.config.Height,
		FrameRate:  p.config.FPS,
		DeviceID:   deviceID,
		FacingMode: "user",
	}
	if constraints != nil {
		if constraints.FacingMode != "" {
			settings.FacingMode = constraints.FacingMode
		}
		if constraints.Width > 0 && constraints.Height > 0 {
			settings.Width = (constraints.Width + 1) &^ 1
			settings.Height = (constraints.Height + 1) &^ 1
		}
		if constraints.FrameRate > 0 {
			settings.FrameRate = constraints.FrameRate
		}
	}
	track := newPatternVideoTrack(settings)
	track.SetMuted(p.config.MuteVideo)
	return track, nil
}

func (p *SyntheticProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	if p.config.DenyAudio {
		return nil, fmt.Errorf("microphone access: %w", ErrPermissionDenied)
	}
	if p.config.AudioErr != nil {
		return nil, p.config.AudioErr
	}
	if deviceID != syntheticMicID {
		return nil, fmt.Errorf("microphone %q: %w", deviceID, ErrDeviceNotFound)
	}

	settings := AudioTrackSettings{
		SampleRate:   p.config.SampleRate,
		ChannelCount: p.config.Channels,
		DeviceID:     deviceID,
	}
	frameSize := p.config.FrameSize
	if constraints != nil {
		if constraints.SampleRate > 0 {
			settings.SampleRate = constraints.SampleRate
			frameSize = settings.SampleRate / 50
		}
		if constraints.ChannelCount > 0 {
			settings.ChannelCount = constraints.ChannelCount
		}
		// Processing stages are reported as requested.
		settings.EchoCancellation = constraints.EchoCancellation
		settings.NoiseSuppression = constraints.NoiseSuppression
		settings.AutoGainControl = constraints.AutoGainControl
	}
	track := newToneAudioTrack(settings, frameSize, p.config.ToneHz)
	track.SetMuted(p.config.MuteAudio)
	return track, nil
}

// latest hands the most recent value to any number of blocked readers.
type latest[T any] struct {
	mu     sync.Mutex
	value  T
	ready  chan struct{}
	closed bool
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ready: make(chan struct{})}
}

func (l *latest[T]) publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.value = v
	close(l.ready)
	l.ready = make(chan struct{})
}

func (l *latest[T]) next(ctx context.Context) (T, error) {
	var zero T
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return zero, ErrTrackEnded
	}
	ch := l.ready
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-ch:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return zero, ErrTrackEnded
	}
	return l.value, nil
}

func (l *latest[T]) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ready)
}

// generator runs a ticker loop until stopped.
type generator struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startGenerator(interval time.Duration, tick func(n uint64)) *generator {
	ctx, cancel := context.WithCancel(context.Background())
	g := &generator{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(g.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(n)
				n++
			}
		}
	}()
	return g
}

func (g *generator) stop() {
	g.once.Do(func() {
		g.cancel()
		<-g.done
	})
}

type patternVideoTrack struct {
	*BaseTrack
	settings VideoTrackSettings
	frames   *latest[*VideoFrame]
	gen      *generator
	start    time.Time

	cbMu     sync.RWMutex
	callback VideoFrameCallback
}

func newPatternVideoTrack(settings VideoTrackSettings) *patternVideoTrack {
	t := &patternVideoTrack{
		BaseTrack: NewBaseTrack(newID(), "Synthetic Camera", RTPCodecTypeVideo),
		settings:  settings,
		frames:    newLatest[*VideoFrame](),
		start:     time.Now(),
	}
	t.gen = startGenerator(time.Second/time.Duration(settings.FrameRate), t.produce)
	return t
}

func (t *patternVideoTrack) produce(n uint64) {
	frame := t.render(n)

	t.cbMu.RLock()
	cb := t.callback
	t.cbMu.RUnlock()
	if cb != nil {
		cb(frame)
	}
	t.frames.publish(frame)
}

// render draws frame n: a white box sliding across gray, or black when the
// track is disabled or muted.
func (t *patternVideoTrack) render(n uint64) *VideoFrame {
	w, h := t.settings.Width, t.settings.Height
	cw, ch := w/2, h/2
	y := make([]byte, w*h)
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)
	for i := range u {
		u[i] = 128
		v[i] = 128
	}

	if t.Enabled() && !t.Muted() {
		for i := range y {
			y[i] = 128
		}
		box := h / 4
		if box > w {
			box = w
		}
		x0 := int(n*4) % (w - box + 1)
		y0 := (h - box) / 2
		for row := y0; row < y0+box; row++ {
			line := y[row*w : row*w+w]
			for col := x0; col < x0+box; col++ {
				line[col] = 235
			}
		}
	} else {
		for i := range y {
			y[i] = 16
		}
	}

	frameDuration := time.Second / time.Duration(t.settings.FrameRate)
	return &VideoFrame{
		Data:      [][]byte{y, u, v},
		Stride:    []int{w, cw, cw},
		Width:     w,
		Height:    h,
		Format:    PixelFormatI420,
		Timestamp: time.Since(t.start).Nanoseconds(),
		Duration:  frameDuration.Nanoseconds(),
	}
}

func (t *patternVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	return t.frames.next(ctx)
}

func (t *patternVideoTrack) OnFrame(callback VideoFrameCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callback = callback
}

func (t *patternVideoTrack) Settings() VideoTrackSettings { return t.settings }

func (t *patternVideoTrack) Close() error {
	t.gen.stop()
	t.frames.close()
	t.End()
	return nil
}

type toneAudioTrack struct {
	*BaseTrack
	settings  AudioTrackSettings
	frameSize int
	toneHz    float64
	phase     float64
	samples   *latest[*AudioSamples]
	gen       *generator
	start     time.Time

	cbMu     sync.RWMutex
	callback AudioSamplesCallback
}

func newToneAudioTrack(settings AudioTrackSettings, frameSize int, toneHz float64) *toneAudioTrack {
	t := &toneAudioTrack{
		BaseTrack: NewBaseTrack(newID(), "Synthetic Microphone", RTPCodecTypeAudio),
		settings:  settings,
		frameSize: frameSize,
		toneHz:    toneHz,
		samples:   newLatest[*AudioSamples](),
		start:     time.Now(),
	}
	interval := time.Duration(frameSize) * time.Second / time.Duration(settings.SampleRate)
	t.gen = startGenerator(interval, t.produce)
	return t
}

func (t *toneAudioTrack) produce(uint64) {
	channels := t.settings.ChannelCount
	data := make([]byte, t.frameSize*channels*AudioFormatS16.BytesPerSample())
	if t.Enabled() && !t.Muted() {
		step := 2 * math.Pi * t.toneHz / float64(t.settings.SampleRate)
		for i := 0; i < t.frameSize; i++ {
			sample := int16(math.Sin(t.phase) * 0.5 * math.MaxInt16)
			t.phase += step
			for c := 0; c < channels; c++ {
				binary.LittleEndian.PutUint16(data[(i*channels+c)*2:], uint16(sample))
			}
		}
		t.phase = math.Mod(t.phase, 2*math.Pi)
	}

	samples := &AudioSamples{
		Data:        data,
		SampleRate:  t.settings.SampleRate,
		Channels:    channels,
		SampleCount: t.frameSize,
		Format:      AudioFormatS16,
		Timestamp:   time.Since(t.start).Nanoseconds(),
	}

	t.cbMu.RLock()
	cb := t.callback
	t.cbMu.RUnlock()
	if cb != nil {
		cb(samples)
	}
	t.samples.publish(samples)
}

func (t *toneAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	return t.samples.next(ctx)
}

func (t *toneAudioTrack) OnSamples(callback AudioSamplesCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callback = callback
}

func (t *toneAudioTrack) Settings() AudioTrackSettings { return t.settings }

func (t *toneAudioTrack) Close() error {
	t.gen.stop()
	t.samples.close()
	t.End()
	return nil
}
