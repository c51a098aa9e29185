package capture

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// DeviceHandle owns at most one open external device. Opening is attempted
// on demand and release is idempotent.
type DeviceHandle struct {
	opener DeviceOpener
	mu     sync.Mutex
	device Device
	id     int
}

// NewDeviceHandle creates a handle that opens devices through opener.
func NewDeviceHandle(opener DeviceOpener) *DeviceHandle {
	return &DeviceHandle{opener: opener}
}

// Acquire opens device id if nothing is open yet. It returns nil when a
// device is already held.
func (h *DeviceHandle) Acquire(id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device != nil {
		return nil
	}
	if h.opener == nil {
		return fmt.Errorf("no device opener configured")
	}

	dev, err := h.opener(id)
	if err != nil {
		return fmt.Errorf("failed to open device %d: %w", id, err)
	}
	if dev == nil {
		return fmt.Errorf("failed to open device %d: opener returned no device", id)
	}

	h.device = dev
	h.id = id
	logger.WithComponent("device").Info().Int("device_id", id).Msg("Opened capture device")
	return nil
}

// IsOpen reports whether a device is held.
func (h *DeviceHandle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.device != nil
}

// Read pulls one frame from the open device. A failed read is reported as
// an empty frame; callers do not distinguish it from a blank one.
func (h *DeviceHandle) Read() *frame.Frame {
	h.mu.Lock()
	dev := h.device
	id := h.id
	h.mu.Unlock()

	if dev == nil {
		return nil
	}

	f, err := dev.Read()
	if err != nil {
		logger.WithComponent("device").Debug().
			Err(err).
			Int("device_id", id).
			Msg("Device read failed")
		return nil
	}
	return f
}

// Release closes the held device, if any. Safe to call repeatedly.
func (h *DeviceHandle) Release() {
	h.mu.Lock()
	dev := h.device
	id := h.id
	h.device = nil
	h.mu.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Close(); err != nil {
		logger.WithComponent("device").Warn().Err(err).Int("device_id", id).Msg("Failed to close capture device")
		return
	}
	logger.WithComponent("device").Info().Int("device_id", id).Msg("Released capture device")
}
