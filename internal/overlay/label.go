package overlay

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
)

// labelFace is the built-in 7x13 bitmap face; no font files are needed.
var labelFace = basicfont.Face7x13

// DrawLabel writes text onto f with its baseline just above the topmost
// vertex of points. Glyph pixels are written with the given channel values
// only where the glyph coverage is at least half, so marker-colored labels
// survive the masked texture exactly.
func DrawLabel(f *frame.Frame, points []decode.Point, text string, channels []byte) {
	if text == "" || len(points) == 0 {
		return
	}

	anchor := points[0]
	for _, p := range points[1:] {
		if p.Y < anchor.Y || (p.Y == anchor.Y && p.X < anchor.X) {
			anchor = p
		}
	}

	d := &font.Drawer{Face: labelFace}
	width := d.MeasureString(text).Ceil()
	height := labelFace.Metrics().Height.Ceil()
	if width <= 0 || height <= 0 {
		return
	}

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	d.Dst = mask
	d.Src = image.Opaque
	d.Dot = fixed.Point26_6{X: 0, Y: labelFace.Metrics().Ascent}
	d.DrawString(text)

	originX := anchor.X
	originY := anchor.Y - height - 2
	if originY < 0 {
		originY = 0
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask.AlphaAt(x, y).A >= 0x80 {
				f.SetPixel(originX+x, originY+y, channels...)
			}
		}
	}
}
