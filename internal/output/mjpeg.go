package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

const defaultQuality = 90

// MJPEGOutput streams frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	name    string
	config  Config
	running bool
	mu      sync.RWMutex

	// Latest encoded frame
	frameMu     sync.RWMutex
	currentJPEG []byte
	current     *image.RGBA
	lastUpdate  time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	startTime  time.Time
}

// Stats is the JSON body served by the stats handler.
type Stats struct {
	Name        string  `json:"name"`
	Running     bool    `json:"running"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TargetFPS   int     `json:"target_fps"`
	ActualFPS   float64 `json:"actual_fps"`
	TotalFrames uint64  `json:"total_frames"`
	Clients     int     `json:"clients"`
	LastUpdate  string  `json:"last_update,omitempty"`
	Uptime      string  `json:"uptime,omitempty"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(name string, config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = defaultQuality
	}
	return &MJPEGOutput{
		name:    name,
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
// Note: The HTTP handler is registered separately via StreamHandler()
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output %s already running", m.name)
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Str("stream", m.name).
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("Output started")
	return nil
}

// Stop cleanly shuts down the output
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	// Close all client connections
	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Str("stream", m.name).
		Uint64("frames", m.frameCount).
		Msg("Output stopped")
	return nil
}

// WriteFrame encodes frame once and sends it to all connected clients
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output %s not running", m.name)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.currentJPEG = jpegData
	m.current = frame
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the stream name
func (m *MJPEGOutput) Name() string {
	return m.name
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Latest returns the most recently written JPEG, or nil.
func (m *MJPEGOutput) Latest() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.currentJPEG
}

// StreamHandler serves the multipart MJPEG stream until the client goes
// away or the output stops.
func (m *MJPEGOutput) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Str("stream", m.name).Int("clients", clientCount).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Str("stream", m.name).Int("clients", clientCount).Msg("Client disconnected")
		}()

		if latest := m.Latest(); latest != nil {
			if writePart(w, latest) != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if writePart(w, jpegData) != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// SnapshotHandler serves the latest frame as a single image. The format
// query parameter ("jpeg" or "png") overrides the configured default.
func (m *MJPEGOutput) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.frameMu.RLock()
		latest, img := m.currentJPEG, m.current
		m.frameMu.RUnlock()
		if latest == nil {
			http.Error(w, "no frame available", http.StatusNotFound)
			return
		}

		asPNG := m.config.SnapshotPNG
		switch r.URL.Query().Get("format") {
		case "":
		case "png":
			asPNG = true
		case "jpeg", "jpg":
			asPNG = false
		default:
			http.Error(w, "unsupported snapshot format", http.StatusBadRequest)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		if !asPNG {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(latest)
			return
		}

		buf := new(bytes.Buffer)
		if err := png.Encode(buf, img); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode PNG: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}
}

// Stats returns current stream statistics.
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	m.clientsMu.RLock()
	clientCount := len(m.clients)
	m.clientsMu.RUnlock()

	s := Stats{
		Name:        m.name,
		Running:     running,
		Width:       m.config.Width,
		Height:      m.config.Height,
		TargetFPS:   m.config.FPS,
		TotalFrames: frameCount,
		Clients:     clientCount,
	}
	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			s.ActualFPS = float64(frameCount) / elapsed
		}
		s.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	if !lastUpdate.IsZero() {
		s.LastUpdate = lastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// StatsHandler returns an HTTP handler that shows stream statistics
func (m *MJPEGOutput) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
