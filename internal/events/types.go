package events

import "github.com/bryanchriswhite/ScanStreamer/internal/decode"

// Event type constants for kelindar/event.
const (
	TypeFrameProcessed uint32 = iota + 1
	TypeSymbolDecoded
	TypeSessionChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// FrameProcessedEvent is published once per capturing tick, after the
// textures for that tick are final.
type FrameProcessedEvent struct {
	SessionID   string          `json:"session_id"`
	Tick        uint64          `json:"tick"`
	Symbols     []decode.Symbol `json:"symbols"`
	HistorySize int             `json:"history_size"`
	Timestamp   string          `json:"timestamp"`
}

// Type returns the event type identifier for FrameProcessedEvent.
func (e FrameProcessedEvent) Type() uint32 { return TypeFrameProcessed }

// SymbolDecodedEvent is published the first time a symbol enters history.
type SymbolDecodedEvent struct {
	SessionID string        `json:"session_id"`
	Symbol    decode.Symbol `json:"symbol"`
	Timestamp string        `json:"timestamp"`
}

// Type returns the event type identifier for SymbolDecodedEvent.
func (e SymbolDecodedEvent) Type() uint32 { return TypeSymbolDecoded }

// SessionChangedEvent marks a transition between idle and capturing.
type SessionChangedEvent struct {
	SessionID string `json:"session_id"`
	Capturing bool   `json:"capturing"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SessionChangedEvent.
func (e SessionChangedEvent) Type() uint32 { return TypeSessionChanged }
