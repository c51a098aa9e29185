package capture

import (
	"errors"
	"image"

	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
)

var (
	// ErrReadback marks a failed pixel readback from the render surface.
	ErrReadback = errors.New("render surface readback failed")

	// ErrDeviceRead marks a failed frame read from an external device.
	ErrDeviceRead = errors.New("device read failed")
)

// SceneSource snapshots the current visual scene on demand.
type SceneSource interface {
	// CaptureScene allocates a surface sized to res, captures into it and
	// reads every pixel back as 8-bit R,G,B,A. On a readback failure the
	// returned image may still hold whatever was read, alongside an error
	// wrapping ErrReadback.
	CaptureScene(res frame.Resolution) (*image.RGBA, error)

	// Name returns a human-readable name for this source
	Name() string

	// Close releases any connection held by the source
	Close() error
}

// Device is an external capture device that is pulled once per tick.
type Device interface {
	// Read fetches one 3-channel frame in R,G,B order
	Read() (*frame.Frame, error)

	// Close releases the device
	Close() error
}

// DeviceOpener opens the capture device with the given identifier.
type DeviceOpener func(id int) (Device, error)
