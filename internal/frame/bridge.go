package frame

import (
	"fmt"
	"image"
)

// Marker is the channel triple the overlay paints and the masked texture keeps.
var Marker = [3]byte{255, 0, 0}

// FromRGBA repacks render-surface samples (R,G,B,A) into a processing buffer
// in B,G,R,255 order declared at res. Samples are consumed in row-major order;
// a short readback leaves the remaining pixels zeroed.
func FromRGBA(img *image.RGBA, res Resolution) (*Frame, error) {
	if res.Width <= 0 || res.Height <= 0 {
		return nil, fmt.Errorf("%w: resolution %dx%d", ErrInvalidDimensions, res.Width, res.Height)
	}

	pix := make([]byte, res.Pixels()*4)
	if img != nil {
		b := img.Bounds()
		i := 0
		for y := b.Min.Y; y < b.Max.Y && i < res.Pixels(); y++ {
			row := img.Pix[img.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx() && i < res.Pixels(); x++ {
				s := row[x*4 : x*4+4]
				d := pix[i*4 : i*4+4]
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], 0xff
				i++
			}
		}
	}

	return Wrap(res.Width, res.Height, 4, pix)
}

// ExternalFeedTexture copies a 3-channel device frame element-wise into an
// opaque RGBA texture.
func ExternalFeedTexture(f *Frame) (*image.RGBA, error) {
	if f.Empty() || f.Channels != 3 {
		return nil, fmt.Errorf("external feed texture: %w", invalid(f))
	}

	tex := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		tex.Pix[i*4+0] = f.Pix[i*3+0]
		tex.Pix[i*4+1] = f.Pix[i*3+1]
		tex.Pix[i*4+2] = f.Pix[i*3+2]
		tex.Pix[i*4+3] = 0xff
	}
	return tex, nil
}

// MaskedTexture keeps only marker pixels, opaque; everything else becomes
// transparent black.
func MaskedTexture(f *Frame, res Resolution) (*image.RGBA, error) {
	masked, _, err := convert(f, res, true, false)
	return masked, err
}

// RawTexture copies every pixel through opaque, channel 0 as red.
func RawTexture(f *Frame, res Resolution) (*image.RGBA, error) {
	_, raw, err := convert(f, res, false, true)
	return raw, err
}

// Textures produces the masked and raw textures in a single pass.
func Textures(f *Frame, res Resolution) (masked, raw *image.RGBA, err error) {
	return convert(f, res, true, true)
}

func convert(f *Frame, res Resolution, wantMasked, wantRaw bool) (*image.RGBA, *image.RGBA, error) {
	if f.Empty() || f.Channels < 3 ||
		res.Width <= 0 || res.Height <= 0 ||
		f.Width < res.Width || f.Height < res.Height {
		return nil, nil, fmt.Errorf("output texture %dx%d: %w", res.Width, res.Height, invalid(f))
	}

	rect := image.Rect(0, 0, res.Width, res.Height)
	var masked, raw *image.RGBA
	if wantMasked {
		masked = image.NewRGBA(rect)
	}
	if wantRaw {
		raw = image.NewRGBA(rect)
	}

	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			s := f.Pix[f.Offset(x, y):]
			d := (y*res.Width + x) * 4
			if masked != nil && s[0] == Marker[0] && s[1] == Marker[1] && s[2] == Marker[2] {
				masked.Pix[d+0] = s[0]
				masked.Pix[d+1] = s[1]
				masked.Pix[d+2] = s[2]
				masked.Pix[d+3] = 0xff
			}
			if raw != nil {
				raw.Pix[d+0] = s[0]
				raw.Pix[d+1] = s[1]
				raw.Pix[d+2] = s[2]
				raw.Pix[d+3] = 0xff
			}
		}
	}
	return masked, raw, nil
}

func invalid(f *Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidDimensions)
	}
	return fmt.Errorf("%w: frame %dx%dx%d", ErrInvalidDimensions, f.Width, f.Height, f.Channels)
}
