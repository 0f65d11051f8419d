package capture

// ScaleMode controls how a frame is resized to a different aspect ratio.
type ScaleMode int

const (
	ScaleModeStretch ScaleMode = iota // Use the whole source; may distort
	ScaleModeFill                     // Crop the source to the target aspect ratio
)

// frameScaler resizes I420 frames to one output size, reusing its planes.
// Frames it returns are only valid until the next call.
type frameScaler struct {
	width, height int
	mode          ScaleMode
	planes        [3][]byte
}

func newFrameScaler(width, height int, mode ScaleMode) *frameScaler {
	luma := width * height
	chroma := (width / 2) * (height / 2)
	return &frameScaler{
		width:  width,
		height: height,
		mode:   mode,
		planes: [3][]byte{make([]byte, luma), make([]byte, chroma), make([]byte, chroma)},
	}
}

// scale returns frame unchanged when it already has the output size, nil
// when it is not I420, and a resized copy otherwise.
func (s *frameScaler) scale(frame *VideoFrame) *VideoFrame {
	if frame.Width == s.width && frame.Height == s.height {
		return frame
	}
	if frame.Format != PixelFormatI420 || len(frame.Data) < 3 || len(frame.Stride) < 3 {
		return nil
	}

	x, y, w, h := s.crop(frame.Width, frame.Height)
	resample(frame.Data[0], frame.Stride[0], x, y, w, h, s.planes[0], s.width, s.height)
	for i := 1; i < 3; i++ {
		resample(frame.Data[i], frame.Stride[i], x/2, y/2, w/2, h/2, s.planes[i], s.width/2, s.height/2)
	}

	return &VideoFrame{
		Data:      [][]byte{s.planes[0], s.planes[1], s.planes[2]},
		Stride:    []int{s.width, s.width / 2, s.width / 2},
		Width:     s.width,
		Height:    s.height,
		Format:    PixelFormatI420,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}
}

// crop returns the source rectangle to sample from.
func (s *frameScaler) crop(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}
	// Compare srcW/srcH with width/height without floats.
	switch lhs, rhs := srcW*s.height, s.width*srcH; {
	case lhs > rhs:
		w = (srcH * s.width / s.height) &^ 1
		return ((srcW - w) / 2) &^ 1, 0, w, srcH
	case lhs < rhs:
		h = (srcW * s.height / s.width) &^ 1
		return 0, ((srcH - h) / 2) &^ 1, srcW, h
	}
	return 0, 0, srcW, srcH
}

// resample bilinearly maps the w x h region at (x, y) of src onto a tightly
// packed dstW x dstH plane, in 16.16 fixed point.
func resample(src []byte, stride, x, y, w, h int, dst []byte, dstW, dstH int) {
	if w <= 0 || h <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}
	stepX := (w << 16) / dstW
	stepY := (h << 16) / dstH

	for row := 0; row < dstH; row++ {
		fy := row * stepY
		y0 := y + fy>>16
		y1 := y0 + 1
		if y1 >= y+h {
			y1 = y0
		}
		wy := fy & 0xffff
		top, bottom := src[y0*stride:], src[y1*stride:]
		out := dst[row*dstW : row*dstW+dstW]

		for col := range out {
			fx := col * stepX
			x0 := x + fx>>16
			x1 := x0 + 1
			if x1 >= x+w {
				x1 = x0
			}
			wx := fx & 0xffff
			t := (int(top[x0])*(0x10000-wx) + int(top[x1])*wx) >> 16
			b := (int(bottom[x0])*(0x10000-wx) + int(bottom[x1])*wx) >> 16
			out[col] = byte((t*(0x10000-wy) + b*wy) >> 16)
		}
	}
}

// ScaleFrame resizes an I420 frame to width x height. The result does not
// share memory with frame unless no resize was needed.
func ScaleFrame(frame *VideoFrame, width, height int, mode ScaleMode) *VideoFrame {
	return newFrameScaler(width, height, mode).scale(frame)
}

// FitSize returns the largest even size no bigger than maxW x maxH with the
// aspect ratio of srcW x srcH.
func FitSize(srcW, srcH, maxW, maxH int) (w, h int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if srcW*maxH > maxW*srcH {
		w, h = maxW, srcH*maxW/srcW
	} else {
		w, h = srcW*maxH/srcH, maxH
	}
	return w &^ 1, h &^ 1
}
