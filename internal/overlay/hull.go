package overlay

import (
	"sort"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
)

// ConvexHull returns the convex hull of points using the monotone chain
// algorithm. Duplicate, collinear and interior points are removed; vertices
// come back in a consistent winding starting from the lowest (x, y).
func ConvexHull(points []decode.Point) []decode.Point {
	pts := make([]decode.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	uniq := pts[:0]
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return uniq
	}

	hull := make([]decode.Point, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b decode.Point) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Outline returns the polygon drawn for a symbol: the boundary itself when it
// has at most 4 points, otherwise its convex hull.
func Outline(points []decode.Point) []decode.Point {
	if len(points) > 4 {
		return ConvexHull(points)
	}
	return points
}

// Segment is one edge of a drawn outline.
type Segment struct {
	From decode.Point
	To   decode.Point
}

// Segments closes the polygon: n points give n segments, the last one
// joining the final vertex back to the first.
func Segments(points []decode.Point) []Segment {
	n := len(points)
	segs := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, Segment{From: points[i], To: points[(i+1)%n]})
	}
	return segs
}
