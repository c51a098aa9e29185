package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a frame or texture cannot be
// allocated for the requested size.
var ErrInvalidDimensions = errors.New("invalid frame dimensions")

// Frame is a row-major, tightly packed pixel buffer.
//
// Processing buffers carry 4 channels in B,G,R,A order, device frames carry
// 3 channels and grayscale frames 1 channel.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a zeroed frame.
func New(width, height, channels int) (*Frame, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, width, height, channels)
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}, nil
}

// Wrap declares a frame over pix without copying it. The caller keeps
// ownership of pix and must not reuse it while the frame is alive.
func Wrap(width, height, channels int, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, width, height, channels)
	}
	if len(pix) < width*height*channels {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, need %d",
			ErrInvalidDimensions, len(pix), width*height*channels)
	}
	return &Frame{Width: width, Height: height, Channels: channels, Pix: pix}, nil
}

// Empty reports whether the frame holds no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0
}

// Clone returns an owned deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Channels: f.Channels, Pix: pix}
}

// Offset returns the index of the first channel of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * f.Channels
}

// In reports whether (x, y) lies inside the frame.
func (f *Frame) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// SetPixel writes channel values at (x, y), clipping silently.
func (f *Frame) SetPixel(x, y int, channels ...byte) {
	if !f.In(x, y) {
		return
	}
	i := f.Offset(x, y)
	for c := 0; c < f.Channels && c < len(channels); c++ {
		f.Pix[i+c] = channels[c]
	}
}
