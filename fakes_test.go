package capture

import (
	"context"
	"fmt"
	"sync"
)

// fakeRecorder is a Recorder whose events are driven by the test.
type fakeRecorder struct {
	mimeType string
	startErr error
	// When manual is false, RequestFinalize finalizes immediately.
	manual bool

	mu               sync.Mutex
	state            RecorderState
	finalizeRequests int
	events           chan RecorderEvent
	closeOnce        sync.Once
}

func newFakeRecorder(mimeType string) *fakeRecorder {
	return &fakeRecorder{mimeType: mimeType, events: make(chan RecorderEvent, 64)}
}

func (r *fakeRecorder) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.mu.Lock()
	r.state = RecorderRecording
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) RequestFinalize() error {
	r.mu.Lock()
	r.finalizeRequests++
	manual := r.manual
	r.mu.Unlock()
	if !manual {
		r.finalize(nil)
	}
	return nil
}

func (r *fakeRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) setState(state RecorderState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *fakeRecorder) MimeType() string { return r.mimeType }

func (r *fakeRecorder) Events() <-chan RecorderEvent { return r.events }

func (r *fakeRecorder) emit(data []byte) {
	r.events <- RecorderEvent{Type: EventSegment, Data: data}
}

func (r *fakeRecorder) finalize(err error) {
	r.closeOnce.Do(func() {
		r.setState(RecorderInactive)
		r.events <- RecorderEvent{Type: EventFinalized, Err: err}
		close(r.events)
	})
}

// abort closes the event channel without a final event.
func (r *fakeRecorder) abort() {
	r.closeOnce.Do(func() {
		r.setState(RecorderInactive)
		close(r.events)
	})
}

func (r *fakeRecorder) finalizeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeRequests
}

// fakeFactory builds fakeRecorders, rejecting the configured mime types.
type fakeFactory struct {
	reject   map[string]bool
	manual   bool
	startErr error
	// reported overrides the mime type a recorder reports; nil echoes the
	// requested one.
	reported func(requested string) string

	mu        sync.Mutex
	tried     []string
	recorders []*fakeRecorder
}

func (f *fakeFactory) New(stream MediaStream, mimeType string) (Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tried = append(f.tried, mimeType)
	if f.reject[mimeType] {
		return nil, fmt.Errorf("%w: %q", ErrEncodingUnsupported, mimeType)
	}
	reported := mimeType
	if f.reported != nil {
		reported = f.reported(mimeType)
	}
	rec := newFakeRecorder(reported)
	rec.manual = f.manual
	rec.startErr = f.startErr
	f.recorders = append(f.recorders, rec)
	return rec, nil
}

func (f *fakeFactory) triedMimes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tried...)
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}

func (f *fakeFactory) recorder(i int) *fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.recorders) {
		return nil
	}
	return f.recorders[i]
}

// fakeMediaDevices returns a canned stream or error from GetUserMedia.
// With gate set, GetUserMedia closes entered and blocks until gate closes,
// like a pending permission prompt.
type fakeMediaDevices struct {
	mu     sync.Mutex
	stream MediaStream
	err    error
	calls  int

	entered chan struct{}
	gate    chan struct{}
}

func (d *fakeMediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	return nil, nil
}

func (d *fakeMediaDevices) GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error) {
	if d.gate != nil {
		close(d.entered)
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func (d *fakeMediaDevices) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stubVideoTrack is a VideoTrack that never produces frames on its own.
type stubVideoTrack struct {
	*BaseTrack

	mu       sync.Mutex
	callback VideoFrameCallback
}

func newStubVideoTrack() *stubVideoTrack {
	return &stubVideoTrack{BaseTrack: NewBaseTrack(newID(), "stub camera", RTPCodecTypeVideo)}
}

func (t *stubVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *stubVideoTrack) OnFrame(callback VideoFrameCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = callback
}

// push delivers frame to the registered callback, if any.
func (t *stubVideoTrack) push(frame *VideoFrame) {
	t.mu.Lock()
	cb := t.callback
	t.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

func (t *stubVideoTrack) Settings() VideoTrackSettings {
	return VideoTrackSettings{Width: 4, Height: 4, FrameRate: 30, DeviceID: "stub-camera"}
}

func (t *stubVideoTrack) Close() error {
	t.End()
	return nil
}

// stubAudioTrack is an AudioTrack that never produces samples.
type stubAudioTrack struct {
	*BaseTrack
}

func newStubAudioTrack() *stubAudioTrack {
	return &stubAudioTrack{BaseTrack: NewBaseTrack(newID(), "stub microphone", RTPCodecTypeAudio)}
}

func (t *stubAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *stubAudioTrack) OnSamples(AudioSamplesCallback) {}

func (t *stubAudioTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{SampleRate: 48000, ChannelCount: 2, DeviceID: "stub-microphone"}
}

func (t *stubAudioTrack) Close() error {
	t.End()
	return nil
}

func newStubStream() (*SimpleMediaStream, *stubVideoTrack, *stubAudioTrack) {
	stream := NewMediaStream(newID())
	video := newStubVideoTrack()
	audio := newStubAudioTrack()
	stream.AddTrack(video)
	stream.AddTrack(audio)
	return stream, video, audio
}

// grayFrame returns a w x h I420 frame filled with luma y.
func grayFrame(w, h int, y byte) *VideoFrame {
	luma := make([]byte, w*h)
	for i := range luma {
		luma[i] = y
	}
	chroma := make([]byte, (w/2)*(h/2))
	return &VideoFrame{
		Data:   [][]byte{luma, chroma, append([]byte(nil), chroma...)},
		Stride: []int{w, w / 2, w / 2},
		Width:  w,
		Height: h,
		Format: PixelFormatI420,
	}
}
