package frame

import (
	"fmt"
	"image"
)

// Gray converts a 3- or 4-channel B,G,R(,A) frame to luminance using the
// BT.601 weights in 8.8 fixed point. 1-channel frames are copied.
func Gray(f *Frame) (*image.Gray, error) {
	if f.Empty() {
		return nil, fmt.Errorf("grayscale: %w", invalid(f))
	}

	g := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	switch f.Channels {
	case 1:
		copy(g.Pix, f.Pix[:n])
	case 3, 4:
		for i := 0; i < n; i++ {
			s := f.Pix[i*f.Channels:]
			b, gr, r := uint32(s[0]), uint32(s[1]), uint32(s[2])
			g.Pix[i] = uint8((29*b + 150*gr + 77*r + 128) >> 8)
		}
	default:
		return nil, fmt.Errorf("grayscale: %w", invalid(f))
	}
	return g, nil
}

// FromImage converts any image into a 4-channel B,G,R,255 processing frame
// sized to the image bounds.
func FromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	f, err := New(b.Dx(), b.Dy(), 4)
	if err != nil {
		return nil, err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.SetPixel(x-b.Min.X, y-b.Min.Y, byte(bl>>8), byte(g>>8), byte(r>>8), 0xff)
		}
	}
	return f, nil
}

// ToImage renders a processing frame back into an RGBA image with the
// channels in their natural order.
func ToImage(f *Frame) (*image.RGBA, error) {
	if f.Empty() || f.Channels < 3 {
		return nil, fmt.Errorf("to image: %w", invalid(f))
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		s := f.Pix[i*f.Channels:]
		img.Pix[i*4+0] = s[2]
		img.Pix[i*4+1] = s[1]
		img.Pix[i*4+2] = s[0]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}
