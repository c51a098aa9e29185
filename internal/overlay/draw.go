package overlay

import (
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
)

// DrawLine plots a segment of the given width onto f using Bresenham's
// algorithm, stamping a width×width square at every step. Pixels outside the
// frame are clipped.
func DrawLine(f *frame.Frame, a, b decode.Point, width int, channels []byte) {
	if width < 1 {
		width = 1
	}
	lo := -(width - 1) / 2
	hi := width / 2

	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	x, y := a.X, a.Y
	e := dx + dy
	for {
		for oy := lo; oy <= hi; oy++ {
			for ox := lo; ox <= hi; ox++ {
				f.SetPixel(x+ox, y+oy, channels...)
			}
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// DrawPolygon draws the closed outline through points and returns the number
// of segments drawn.
func DrawPolygon(f *frame.Frame, points []decode.Point, width int, channels []byte) int {
	segs := Segments(points)
	for _, s := range segs {
		DrawLine(f, s.From, s.To, width, channels)
	}
	return len(segs)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
