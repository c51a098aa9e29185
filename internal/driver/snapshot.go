package driver

import (
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/output"
)

// Snapshot is a point-in-time view of the driver for status reporting.
type Snapshot struct {
	State       State            `json:"state"`
	SessionID   string           `json:"session_id,omitempty"`
	Switches    Switches         `json:"switches"`
	Resolution  frame.Resolution `json:"resolution"`
	DeviceID    int              `json:"device_id"`
	DeviceOpen  bool             `json:"device_open"`
	WindowOpen  bool             `json:"window_open"`
	Ticks       uint64           `json:"ticks"`
	HistorySize int              `json:"history_size"`
	Textures    []output.Kind    `json:"textures"`
}

// Snapshot reports the current state. Textures lists the kinds that have
// been produced at least once.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	s := Snapshot{
		State:      d.state,
		SessionID:  d.sessionID,
		Switches:   d.switches,
		Resolution: d.res,
		DeviceID:   d.deviceID,
		WindowOpen: d.windowOpen,
		Ticks:      d.ticks,
		Textures:   []output.Kind{},
	}
	for _, k := range output.Kinds() {
		if d.textures[k] != nil {
			s.Textures = append(s.Textures, k)
		}
	}
	d.mu.RUnlock()

	s.DeviceOpen = d.device.IsOpen()
	s.HistorySize = d.history.Len()
	return s
}
