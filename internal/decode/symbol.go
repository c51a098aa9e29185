package decode

import (
	"image"

	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
)

// Point is a vertex of a symbol boundary in frame coordinates.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// ImagePoint converts to an image.Point.
func (p Point) ImagePoint() image.Point {
	return image.Pt(p.X, p.Y)
}

// Symbol is one decoded barcode or QR code.
type Symbol struct {
	Type     string  `json:"type" yaml:"type"`
	Payload  string  `json:"payload" yaml:"payload"`
	Location []Point `json:"location" yaml:"location"`
}

// Key identifies a symbol for de-duplication. Location is not part of it.
type Key struct {
	Type    string
	Payload string
}

// Key returns the (type, payload) identity of the symbol.
func (s Symbol) Key() Key {
	return Key{Type: s.Type, Payload: s.Payload}
}

// Equal compares symbols by type and payload only.
func (s Symbol) Equal(o Symbol) bool {
	return s.Key() == o.Key()
}

// Decoder finds symbols in a processing frame.
type Decoder interface {
	Decode(f *frame.Frame) ([]Symbol, error)
}
