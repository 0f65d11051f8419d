package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientFrame has luma increasing left to right.
func gradientFrame(w, h int) *VideoFrame {
	frame := grayFrame(w, h, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			frame.Data[0][y*w+x] = byte(x * 255 / (w - 1))
		}
	}
	return frame
}

func TestScaleFrame_SameSizeIsIdentity(t *testing.T) {
	frame := grayFrame(8, 8, 1)
	assert.Same(t, frame, ScaleFrame(frame, 8, 8, ScaleModeStretch))
}

func TestScaleFrame_Downscale(t *testing.T) {
	src := gradientFrame(64, 32)
	src.Timestamp = 99
	out := ScaleFrame(src, 32, 16, ScaleModeStretch)

	require.NotNil(t, out)
	assert.Equal(t, 32, out.Width)
	assert.Equal(t, 16, out.Height)
	assert.Len(t, out.Data[0], 32*16)
	assert.Len(t, out.Data[1], 16*8)
	assert.Equal(t, []int{32, 16, 16}, out.Stride)
	assert.Equal(t, int64(99), out.Timestamp)

	row := out.Data[0][:32]
	assert.Less(t, row[0], row[31], "gradient survives")
	assert.Equal(t, byte(0), row[0])
}

func TestScaleFrame_UpscaleUniform(t *testing.T) {
	out := ScaleFrame(grayFrame(4, 4, 77), 16, 12, ScaleModeStretch)
	require.NotNil(t, out)
	for _, y := range out.Data[0] {
		require.Equal(t, byte(77), y)
	}
}

func TestScaleFrame_FillCrops(t *testing.T) {
	// A 16x4 source filled to 4x4 keeps only the middle columns.
	src := gradientFrame(16, 4)
	out := ScaleFrame(src, 4, 4, ScaleModeFill)
	require.NotNil(t, out)
	assert.Greater(t, out.Data[0][0], byte(0), "left edge cropped")
	assert.Less(t, out.Data[0][3], byte(255), "right edge cropped")
}

func TestScaleFrame_RejectsNonI420(t *testing.T) {
	frame := grayFrame(8, 8, 1)
	frame.Format = PixelFormatNV12
	assert.Nil(t, ScaleFrame(frame, 4, 4, ScaleModeStretch))
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		srcW, srcH, maxW, maxH int
		wantW, wantH           int
	}{
		{1280, 720, 320, 320, 320, 180},
		{720, 1280, 320, 320, 180, 320},
		{640, 480, 160, 120, 160, 120},
		{0, 480, 160, 120, 0, 0},
	}
	for _, tt := range tests {
		w, h := FitSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

func TestVideoElement_Thumbnail(t *testing.T) {
	stream, video, _ := newStubStream()
	e := NewVideoElement()
	assert.Nil(t, e.Thumbnail(8, 8))

	e.Bind(stream)
	video.push(grayFrame(32, 16, 90))

	thumb := e.Thumbnail(8, 8)
	require.NotNil(t, thumb)
	assert.Equal(t, 8, thumb.Width)
	assert.Equal(t, 4, thumb.Height)
	assert.Equal(t, byte(90), thumb.Data[0][0])

	full := e.Thumbnail(64, 64)
	assert.Equal(t, 32, full.Width)
}
