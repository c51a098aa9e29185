package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/ScanStreamer/internal/config"
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/driver"
	"github.com/bryanchriswhite/ScanStreamer/internal/events"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
	"github.com/bryanchriswhite/ScanStreamer/internal/metrics"
	"github.com/bryanchriswhite/ScanStreamer/internal/output"
)

// Pipeline is the part of the frame driver the API reads and steers.
type Pipeline interface {
	Snapshot() driver.Snapshot
	History() []decode.Symbol
	UpdateSwitches(fn func(*driver.Switches)) driver.Switches
	SetResolution(res frame.Resolution)
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	pipeline  Pipeline
	configMgr *config.Manager
	streams   *output.Hub
	bus       *events.Bus
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server. configMgr, streams and bus may be nil;
// the routes that need them are then not registered.
func NewServer(pipeline Pipeline, configMgr *config.Manager, streams *output.Hub, bus *events.Bus) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		pipeline:  pipeline,
		configMgr: configMgr,
		streams:   streams,
		bus:       bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Decoded history
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	if s.bus != nil {
		api.HandleFunc("/history/stream", s.handleHistoryStream)
	}

	// Driver controls
	api.HandleFunc("/switches", s.handleUpdateSwitches).Methods("PUT")
	api.HandleFunc("/resolution", s.handleUpdateResolution).Methods("PUT")

	if s.configMgr != nil {
		api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	}

	// Texture streams
	if s.streams != nil {
		s.router.HandleFunc("/stream/{kind}", s.withStream((*output.MJPEGOutput).StreamHandler)).Methods("GET")
		s.router.HandleFunc("/stream/{kind}/stats", s.withStream((*output.MJPEGOutput).StatsHandler)).Methods("GET")
		s.router.HandleFunc("/stream/{kind}/snapshot", s.withStream((*output.MJPEGOutput).SnapshotHandler)).Methods("GET")
	}

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.History())
}

// handleHistoryStream sends the current history, then every newly decoded
// symbol, as JSON messages.
func (s *Server) handleHistoryStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := make(chan events.SymbolDecodedEvent, 32)
	unsub := events.SubscribeToChannel(s.bus, updates)
	defer unsub()

	for _, sym := range s.pipeline.History() {
		if err := conn.WriteJSON(sym); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	// The reader notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case e := <-updates:
			if err := conn.WriteJSON(e.Symbol); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

// switchesRequest is a partial update; omitted switches keep their value.
type switchesRequest struct {
	Capture *bool `json:"capture"`
	Video   *bool `json:"video"`
	Window  *bool `json:"window"`
}

func (s *Server) handleUpdateSwitches(w http.ResponseWriter, r *http.Request) {
	var req switchesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sw := s.pipeline.UpdateSwitches(func(sw *driver.Switches) {
		if req.Capture != nil {
			sw.Capture = *req.Capture
		}
		if req.Video != nil {
			sw.Video = *req.Video
		}
		if req.Window != nil {
			sw.Window = *req.Window
		}
	})

	if s.configMgr != nil {
		cfg := s.configMgr.Get()
		cfg.Capture.Enabled = sw.Capture
		cfg.Capture.VideoEnabled = sw.Video
		cfg.Capture.WindowEnabled = sw.Window
		if err := s.configMgr.Update(cfg); err != nil {
			logger.WithComponent("api").Warn().Err(err).Msg("Failed to persist switches")
		}
	}

	writeJSON(w, http.StatusOK, sw)
}

func (s *Server) handleUpdateResolution(w http.ResponseWriter, r *http.Request) {
	var res frame.Resolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if res.Width <= 0 || res.Height <= 0 {
		http.Error(w, fmt.Sprintf("invalid resolution %dx%d", res.Width, res.Height), http.StatusBadRequest)
		return
	}

	s.pipeline.SetResolution(res)
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": res,
		"effective": res.Coerce(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) withStream(h func(m *output.MJPEGOutput) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := output.ParseKind(mux.Vars(r)["kind"])
		if !ok {
			http.Error(w, "unknown stream", http.StatusNotFound)
			return
		}
		h(s.streams.Stream(kind))(w, r)
	}
}
