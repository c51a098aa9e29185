package display

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Fit scales src into a width x height canvas, keeping its aspect ratio and
// centring it on black. Images that already match are returned unchanged.
func Fit(src *image.RGBA, width, height int) *image.RGBA {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height && b.Min == (image.Point{}) {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if b.Empty() {
		return dst
	}

	w, h := width, b.Dy()*width/b.Dx()
	if h > height {
		w, h = b.Dx()*height/b.Dy(), height
	}
	w, h = max(w, 1), max(h, 1)

	x := (width - w) / 2
	y := (height - h) / 2
	draw.ApproxBiLinear.Scale(dst, image.Rect(x, y, x+w, y+h), src, b, draw.Src, nil)
	return dst
}
