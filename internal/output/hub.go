package output

import (
	"errors"
	"fmt"
	"image"
)

// Hub owns one MJPEG stream per texture kind.
type Hub struct {
	streams map[Kind]*MJPEGOutput
}

// NewHub creates a stream for every kind sharing the same config. The
// primary texture is masked, so its snapshots are PNG to keep transparency.
func NewHub(config Config) *Hub {
	h := &Hub{streams: make(map[Kind]*MJPEGOutput)}
	for _, k := range Kinds() {
		c := config
		c.SnapshotPNG = c.SnapshotPNG || k == KindPrimary
		h.streams[k] = NewMJPEGOutput(string(k), c)
	}
	return h
}

// Start starts every stream.
func (h *Hub) Start() error {
	for _, k := range Kinds() {
		if err := h.streams[k].Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every stream and joins their errors.
func (h *Hub) Stop() error {
	var errs []error
	for _, k := range Kinds() {
		errs = append(errs, h.streams[k].Stop())
	}
	return errors.Join(errs...)
}

// Stream returns the stream for kind, or nil.
func (h *Hub) Stream(kind Kind) *MJPEGOutput {
	return h.streams[kind]
}

// WriteTexture writes tex to the kind's stream. Nil textures are ignored.
func (h *Hub) WriteTexture(kind Kind, tex *image.RGBA) error {
	s, ok := h.streams[kind]
	if !ok {
		return fmt.Errorf("unknown texture kind %q", kind)
	}
	if tex == nil || tex.Bounds().Empty() {
		return nil
	}
	return s.WriteFrame(tex)
}
