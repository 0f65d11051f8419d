package capture

import (
	"image"
	"sync"
)

// PreviewSurface is the live rendering target a stream is bound to. It is
// also the source the FrameSampler reads frames from.
type PreviewSurface interface {
	// Bind attaches stream to the surface, replacing any previous stream.
	Bind(stream MediaStream)

	// Unbind detaches the current stream, if any.
	Unbind()

	// Stream returns the bound stream, or nil.
	Stream() MediaStream

	// CurrentFrame returns a copy of the most recently rendered frame, or nil
	// when nothing has been rendered since the last Bind.
	CurrentFrame() *VideoFrame
}

// VideoElement is an in-memory PreviewSurface that keeps the latest frame of
// the bound stream's first video track, like an HTML video element does.
type VideoElement struct {
	mu       sync.RWMutex
	stream   MediaStream
	track    VideoTrack
	frame    *VideoFrame
	rendered uint64
}

// NewVideoElement creates an unbound video element.
func NewVideoElement() *VideoElement {
	return &VideoElement{}
}

func (e *VideoElement) Bind(stream MediaStream) {
	e.Unbind()
	if stream == nil {
		return
	}

	e.mu.Lock()
	e.stream = stream
	if tracks := stream.GetVideoTracks(); len(tracks) > 0 {
		e.track = tracks[0]
	}
	track := e.track
	e.mu.Unlock()

	if track != nil {
		track.OnFrame(func(frame *VideoFrame) { e.render(track, frame) })
	}
}

func (e *VideoElement) render(track VideoTrack, frame *VideoFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track != track {
		return
	}
	e.frame = frame
	e.rendered++
}

func (e *VideoElement) Unbind() {
	e.mu.Lock()
	track := e.track
	e.stream = nil
	e.track = nil
	e.frame = nil
	e.mu.Unlock()

	if track != nil {
		track.OnFrame(nil)
	}
}

func (e *VideoElement) Stream() MediaStream {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stream
}

func (e *VideoElement) CurrentFrame() *VideoFrame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.frame == nil {
		return nil
	}
	return e.frame.Clone()
}

// Snapshot returns the current frame as an image, or nil.
func (e *VideoElement) Snapshot() image.Image {
	frame := e.CurrentFrame()
	if frame == nil {
		return nil
	}
	if img := frame.Image(); img != nil {
		return img
	}
	return nil
}

// Thumbnail returns the current frame scaled to fit within maxWidth x
// maxHeight, or nil. Frames already small enough are returned as copies.
func (e *VideoElement) Thumbnail(maxWidth, maxHeight int) *VideoFrame {
	frame := e.CurrentFrame()
	if frame == nil {
		return nil
	}
	if frame.Width <= maxWidth && frame.Height <= maxHeight {
		return frame
	}
	w, h := FitSize(frame.Width, frame.Height, maxWidth, maxHeight)
	return ScaleFrame(frame, w, h, ScaleModeStretch)
}

// RenderedFrames returns how many frames were rendered since creation.
func (e *VideoElement) RenderedFrames() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rendered
}
