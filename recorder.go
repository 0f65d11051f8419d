package capture

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecorderState is the state of a segmented recorder.
type RecorderState int

const (
	RecorderInactive  RecorderState = iota // Not started, or finalized
	RecorderRecording                      // Producing segments
)

func (s RecorderState) String() string {
	switch s {
	case RecorderInactive:
		return "inactive"
	case RecorderRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// RecorderEventType identifies a recorder event.
type RecorderEventType int

const (
	EventSegment   RecorderEventType = iota // A chunk of encoded media is available
	EventFinalized                          // The recorder flushed its last segment and stopped
)

func (t RecorderEventType) String() string {
	switch t {
	case EventSegment:
		return "segment"
	case EventFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// RecorderEvent is emitted by a Recorder on its event channel.
type RecorderEvent struct {
	Type RecorderEventType
	Data []byte // Segment payload; may be empty
	Err  error  // Set on EventFinalized when the recorder stopped abnormally
}

// Recorder is a segmented media recorder bound to one stream.
//
// Events are delivered in capture order: zero or more EventSegment, then
// exactly one EventFinalized, after which the channel is closed.
type Recorder interface {
	// Start begins capturing.
	Start() error

	// RequestFinalize asks the recorder to flush and stop. Completion is
	// signalled by EventFinalized.
	RequestFinalize() error

	// State returns the recorder state.
	State() RecorderState

	// MimeType returns the negotiated media type, or "" when the encoder
	// default could not be described.
	MimeType() string

	// Events returns the event channel.
	Events() <-chan RecorderEvent
}

// RecorderFactory constructs a recorder for stream using mimeType ("" means
// encoder default). It returns an error wrapping ErrEncodingUnsupported when
// the encoding cannot be produced.
type RecorderFactory func(stream MediaStream, mimeType string) (Recorder, error)

// Artifact is the media produced by one recording pass.
type Artifact struct {
	PassID    string
	MimeType  string
	Data      []byte
	Segments  int
	StartedAt time.Time
	StoppedAt time.Time
}

// ControllerState is the state of a RecordingController.
type ControllerState int

const (
	ControllerIdle       ControllerState = iota
	ControllerRecording                  // A pass is capturing
	ControllerFinalizing                 // Finalize requested, artifact not yet assembled
)

func (s ControllerState) String() string {
	switch s {
	case ControllerIdle:
		return "idle"
	case ControllerRecording:
		return "recording"
	case ControllerFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// RecordingControllerConfig configures a RecordingController.
type RecordingControllerConfig struct {
	NewRecorder      RecorderFactory
	Encodings        []string // Fallback chain, tried in order (default: DefaultEncodings)
	OnRecordingReady func(*Artifact)
	Logger           *zap.Logger
}

type recordingPass struct {
	id        string
	recorder  Recorder
	mimeType  string
	segments  [][]byte
	startedAt time.Time
	done      chan struct{}
}

// RecordingController drives one recorder per pass and assembles the
// pass's segments into an Artifact when it finalizes.
type RecordingController struct {
	config RecordingControllerConfig
	logger *zap.Logger

	mu    sync.Mutex
	state ControllerState
	pass  *recordingPass
}

// NewRecordingController creates an idle controller.
func NewRecordingController(config RecordingControllerConfig) *RecordingController {
	if len(config.Encodings) == 0 {
		config.Encodings = DefaultEncodings
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingController{config: config, logger: logger}
}

// Start begins a new pass against stream.
//
// A nil stream makes Start a no-op. A pass still recording is stopped first,
// and Start waits for a finalizing pass to hand off its artifact, so passes
// never share segments. If no encoding in the fallback chain can be
// constructed the pass silently does not start. The only error returned is
// ctx's, while waiting for the previous pass.
func (c *RecordingController) Start(ctx context.Context, stream MediaStream) error {
	if stream == nil {
		c.logger.Debug("recording not started: no stream")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ControllerRecording {
		c.stopLocked()
	}
	if c.state == ControllerFinalizing {
		done := c.pass.done
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			c.mu.Lock()
			return ctx.Err()
		}
		c.mu.Lock()
		// Another Start may have won the lock while we waited.
		if c.state != ControllerIdle {
			return nil
		}
	}

	if c.config.NewRecorder == nil {
		return nil
	}
	rec, mimeType := c.negotiate(stream)
	if rec == nil {
		c.logger.Warn("recording not started: no supported encoding",
			zap.Strings("tried", c.config.Encodings))
		return nil
	}

	pass := &recordingPass{
		id:        newID(),
		recorder:  rec,
		mimeType:  mimeType,
		segments:  nil,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	if err := rec.Start(); err != nil {
		c.logger.Warn("recording not started", zap.String("mime", mimeType), zap.Error(err))
		return nil
	}

	c.pass = pass
	c.state = ControllerRecording
	go c.consume(pass)

	c.logger.Info("recording started",
		zap.String("pass", pass.id),
		zap.String("mime", mimeType),
		zap.String("stream", stream.ID()))
	return nil
}

// negotiate walks the encoding fallback chain.
func (c *RecordingController) negotiate(stream MediaStream) (Recorder, string) {
	for _, mimeType := range c.config.Encodings {
		rec, err := c.config.NewRecorder(stream, mimeType)
		if err == nil {
			return rec, mimeType
		}
		c.logger.Info("recorder encoding rejected", zap.String("mime", mimeType), zap.Error(err))
	}
	return nil, ""
}

// consume drains the pass's recorder events until it finalizes.
func (c *RecordingController) consume(pass *recordingPass) {
	var finalized bool
	var ferr error
	for ev := range pass.recorder.Events() {
		switch ev.Type {
		case EventSegment:
			if len(ev.Data) == 0 {
				continue
			}
			segment := make([]byte, len(ev.Data))
			copy(segment, ev.Data)
			pass.segments = append(pass.segments, segment)
		case EventFinalized:
			finalized = true
			ferr = ev.Err
		}
		if finalized {
			break
		}
	}

	var artifact *Artifact
	if finalized {
		artifact = assemble(pass)
	}
	pass.segments = nil

	// The pass stays current until its artifact is handed off, so Wait and
	// the next Start block on it.
	c.mu.Lock()
	if c.pass == pass {
		c.state = ControllerFinalizing
	}
	c.mu.Unlock()
	defer c.release(pass)

	if ferr != nil {
		c.logger.Warn("recorder finalized with error", zap.String("pass", pass.id), zap.Error(ferr))
	}
	if artifact == nil {
		c.logger.Warn("recorder closed without finalizing", zap.String("pass", pass.id))
	} else {
		c.logger.Info("recording ready",
			zap.String("pass", pass.id),
			zap.String("mime", artifact.MimeType),
			zap.Int("segments", artifact.Segments),
			zap.Int("bytes", len(artifact.Data)))
		if c.config.OnRecordingReady != nil {
			c.config.OnRecordingReady(artifact)
		}
	}
}

// release retires pass after its hand-off.
func (c *RecordingController) release(pass *recordingPass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pass == pass {
		c.state = ControllerIdle
		c.pass = nil
	}
	close(pass.done)
}

func assemble(pass *recordingPass) *Artifact {
	mimeType := pass.recorder.MimeType()
	if mimeType == "" {
		mimeType = ContainerWebM
	}
	return &Artifact{
		PassID:    pass.id,
		MimeType:  mimeType,
		Data:      bytes.Join(pass.segments, nil),
		Segments:  len(pass.segments),
		StartedAt: pass.startedAt,
		StoppedAt: time.Now(),
	}
}

// Stop requests the current pass to finalize. It is a no-op unless a pass
// is recording.
func (c *RecordingController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *RecordingController) stopLocked() {
	if c.state != ControllerRecording {
		return
	}
	c.state = ControllerFinalizing
	pass := c.pass
	if pass.recorder.State() == RecorderInactive {
		return
	}
	if err := pass.recorder.RequestFinalize(); err != nil {
		c.logger.Warn("recorder finalize request failed", zap.String("pass", pass.id), zap.Error(err))
	}
}

// Wait blocks until the current pass, if any, has handed off its artifact.
func (c *RecordingController) Wait(ctx context.Context) error {
	c.mu.Lock()
	var done chan struct{}
	if c.pass != nil {
		done = c.pass.done
	}
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the controller state.
func (c *RecordingController) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
