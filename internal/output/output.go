package output

import (
	"image"
)

// Output defines the interface for frame output mechanisms.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	// The image is expected to be in RGBA format
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int

	// SnapshotPNG serves snapshots losslessly with alpha. The stream itself
	// stays JPEG.
	SnapshotPNG bool
}

// Kind names one of the textures the pipeline publishes.
type Kind string

const (
	// KindPrimary is the masked, annotated scene texture.
	KindPrimary Kind = "primary"
	// KindRaw is the unmasked scene texture.
	KindRaw Kind = "raw"
	// KindFeed is the external device feed.
	KindFeed Kind = "feed"
)

// Kinds lists every texture kind in publishing order.
func Kinds() []Kind {
	return []Kind{KindPrimary, KindRaw, KindFeed}
}

// ParseKind validates a texture kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
