// Package driver runs the per-tick scan pipeline: open the external feed,
// coerce the resolution, capture the scene, decode, overlay, publish
// textures and notify observers.
package driver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/ScanStreamer/internal/capture"
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/display"
	"github.com/bryanchriswhite/ScanStreamer/internal/events"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
	"github.com/bryanchriswhite/ScanStreamer/internal/metrics"
	"github.com/bryanchriswhite/ScanStreamer/internal/output"
	"github.com/bryanchriswhite/ScanStreamer/internal/overlay"
)

// State is the driver's session state.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "idle"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Switches are the externally toggled booleans read at the start of a tick.
type Switches struct {
	Capture bool `json:"capture" yaml:"capture"`
	Video   bool `json:"video" yaml:"video"`
	Window  bool `json:"window" yaml:"window"`
}

// TextureSink receives the textures finalized by a tick.
type TextureSink interface {
	WriteTexture(kind output.Kind, tex *image.RGBA) error
}

// Options configures a Driver.
type Options struct {
	Switches   Switches
	DeviceID   int
	Resolution frame.Resolution

	// StrictReadback skips the decode stage for a tick whose scene
	// readback failed. When false the partial surface is processed.
	StrictReadback bool

	// WindowTitle names the debug window. Defaults to display.DefaultTitle.
	WindowTitle string
}

// Deps are the collaborators a Driver pulls from and pushes to. Scene,
// Decoder and Renderer are required; the rest may be nil.
type Deps struct {
	Scene      capture.SceneSource
	OpenDevice capture.DeviceOpener
	Decoder    decode.Decoder
	Renderer   *overlay.Renderer
	OpenWindow display.Opener
	Sink       TextureSink
	Bus        *events.Bus
}

// Driver owns the capture session. Tick is serialized; setters, Snapshot
// and the texture accessors may be called from any goroutine.
type Driver struct {
	scene    capture.SceneSource
	device   *capture.DeviceHandle
	decoder  decode.Decoder
	renderer *overlay.Renderer
	openWin  display.Opener
	sink     TextureSink
	bus      *events.Bus
	history  *decode.History
	strict   bool
	title    string

	// tickMu serializes Tick and Close
	tickMu sync.Mutex
	window display.Surface
	winErr bool
	closed bool

	mu         sync.RWMutex
	switches   Switches
	deviceID   int
	res        frame.Resolution
	state      State
	sessionID  string
	ticks      uint64
	windowOpen bool
	textures   map[output.Kind]*image.RGBA
	hooks      []func()
}

// New creates a driver in the Idle state.
func New(opts Options, deps Deps) (*Driver, error) {
	if deps.Scene == nil {
		return nil, errors.New("driver: scene source is required")
	}
	if deps.Decoder == nil {
		return nil, errors.New("driver: decoder is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = overlay.NewRenderer(overlay.Options{})
	}
	if opts.WindowTitle == "" {
		opts.WindowTitle = display.DefaultTitle
	}

	return &Driver{
		scene:    deps.Scene,
		device:   capture.NewDeviceHandle(deps.OpenDevice),
		decoder:  deps.Decoder,
		renderer: deps.Renderer,
		openWin:  deps.OpenWindow,
		sink:     deps.Sink,
		bus:      deps.Bus,
		history:  decode.NewHistory(),
		strict:   opts.StrictReadback,
		title:    opts.WindowTitle,
		switches: opts.Switches,
		deviceID: opts.DeviceID,
		res:      opts.Resolution,
		textures: make(map[output.Kind]*image.RGBA),
	}, nil
}

// OnFrame registers fn to run synchronously at the end of every tick, after
// that tick's textures are final.
func (d *Driver) OnFrame(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// SetSwitches replaces all switches; they take effect on the next tick.
func (d *Driver) SetSwitches(s Switches) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switches = s
}

// UpdateSwitches applies fn to the switches under the driver lock and
// returns the result, so concurrent partial updates do not lose each other.
func (d *Driver) UpdateSwitches(fn func(*Switches)) Switches {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.switches)
	return d.switches
}

// SetCaptureEnabled toggles capture.
func (d *Driver) SetCaptureEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switches.Capture = on
}

// SetVideoEnabled toggles the external device feed.
func (d *Driver) SetVideoEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switches.Video = on
}

// SetWindowEnabled toggles the debug window.
func (d *Driver) SetWindowEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switches.Window = on
}

// SetDeviceID selects the device opened on the next open attempt.
func (d *Driver) SetDeviceID(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceID = id
}

// SetResolution overrides the resolution; the next capturing tick coerces it.
func (d *Driver) SetResolution(res frame.Resolution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.res = res
}

// Texture returns the latest texture of kind, or nil if none was produced.
func (d *Driver) Texture(kind output.Kind) *image.RGBA {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.textures[kind]
}

// History returns a copy of the decoded history.
func (d *Driver) History() []decode.Symbol {
	return d.history.Snapshot()
}

// Run ticks at hz until ctx is cancelled, then closes the driver.
func (d *Driver) Run(ctx context.Context, hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid tick rate %d", hz)
	}

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	logger.WithComponent("driver").Info().Int("tick_hz", hz).Msg("Frame driver started")
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Close ends the session: releases the device and debug window. Later
// ticks are no-ops. Safe to call repeatedly.
func (d *Driver) Close() {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.releaseResources()

	d.mu.Lock()
	wasCapturing := d.state == Capturing
	session := d.sessionID
	d.state = Idle
	d.sessionID = ""
	d.mu.Unlock()

	if wasCapturing {
		metrics.SetCapturing(false)
		d.publish(events.SessionChangedEvent{SessionID: session, Capturing: false, Timestamp: now()})
	}
	logger.WithComponent("driver").Info().Msg("Frame driver closed")
}

// Tick runs one pipeline step.
func (d *Driver) Tick() {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if d.closed {
		return
	}

	d.mu.Lock()
	sw := d.switches
	deviceID := d.deviceID
	prev := d.state
	d.ticks++
	tick := d.ticks
	d.mu.Unlock()

	if !sw.Capture {
		if prev == Capturing {
			d.stopSession()
		}
		d.history.Clear()
		metrics.SetHistorySize(0)
		metrics.ObserveTick(false, 0)
		d.fireHooks()
		return
	}
	if prev == Idle {
		d.startSession()
	}

	start := time.Now()
	session := d.session()
	log := logger.WithSession("driver", session)

	// 1. external device open, retried every tick
	if sw.Video && !d.device.IsOpen() {
		if err := d.device.Acquire(deviceID); err != nil {
			metrics.IncDeviceOpenFailures()
			log.Debug().Err(err).Int("device_id", deviceID).Msg("Capture device not available")
		}
	}

	// 2. external feed texture
	if sw.Video && d.device.IsOpen() {
		d.updateFeed(log)
	}

	// 3. resolution coercion
	d.mu.Lock()
	d.res = d.res.Coerce()
	res := d.res
	d.mu.Unlock()

	// 4. scene capture
	buf := d.captureScene(log, res)

	// 5. decode, overlay, textures, debug window
	var symbols []decode.Symbol
	if !buf.Empty() {
		symbols = d.process(log, session, buf, res)
		d.updateWindow(log, sw.Window, buf)
	} else if !sw.Window {
		d.closeWindow()
	}

	metrics.SetHistorySize(d.history.Len())
	metrics.ObserveTick(true, time.Since(start))
	d.publish(events.FrameProcessedEvent{
		SessionID:   session,
		Tick:        tick,
		Symbols:     symbols,
		HistorySize: d.history.Len(),
		Timestamp:   now(),
	})

	// 6. per-frame hooks
	d.fireHooks()
}

func (d *Driver) updateFeed(log *zerolog.Logger) {
	f := d.device.Read()
	if f.Empty() {
		return
	}
	tex, err := frame.ExternalFeedTexture(f)
	if err != nil {
		metrics.IncTextureErrors(string(output.KindFeed))
		log.Error().Err(err).Msg("Failed to build external feed texture")
		return
	}
	d.storeTexture(log, output.KindFeed, tex)
}

func (d *Driver) captureScene(log *zerolog.Logger, res frame.Resolution) *frame.Frame {
	img, err := d.scene.CaptureScene(res)
	if err != nil {
		metrics.IncReadbackFailures()
		log.Warn().Err(err).Str("source", d.scene.Name()).Msg("Scene readback failed")
		if d.strict || img == nil {
			return nil
		}
	}

	buf, err := frame.FromRGBA(img, res)
	if err != nil {
		log.Error().Err(err).Msg("Failed to wrap scene buffer")
		return nil
	}
	return buf
}

func (d *Driver) process(log *zerolog.Logger, session string, buf *frame.Frame, res frame.Resolution) []decode.Symbol {
	symbols, err := d.decoder.Decode(buf)
	if err != nil {
		log.Warn().Err(err).Msg("Decode failed")
	}

	for _, s := range symbols {
		metrics.AddSymbol(s.Type)
		if d.history.Add(s) {
			log.Info().Str("type", s.Type).Str("payload", s.Payload).Msg("New symbol in history")
			d.publish(events.SymbolDecodedEvent{SessionID: session, Symbol: s, Timestamp: now()})
		}
	}

	d.renderer.Draw(buf, symbols)

	masked, raw, err := frame.Textures(buf, res)
	if err != nil {
		metrics.IncTextureErrors(string(output.KindPrimary))
		metrics.IncTextureErrors(string(output.KindRaw))
		log.Error().Err(err).Msg("Failed to build output textures, keeping previous")
		return symbols
	}
	d.storeTexture(log, output.KindPrimary, masked)
	d.storeTexture(log, output.KindRaw, raw)
	return symbols
}

func (d *Driver) storeTexture(log *zerolog.Logger, kind output.Kind, tex *image.RGBA) {
	d.mu.Lock()
	d.textures[kind] = tex
	d.mu.Unlock()

	if d.sink == nil {
		return
	}
	if err := d.sink.WriteTexture(kind, tex); err != nil {
		log.Debug().Err(err).Str("texture", string(kind)).Msg("Texture sink rejected frame")
	}
}

func (d *Driver) updateWindow(log *zerolog.Logger, enabled bool, buf *frame.Frame) {
	if !enabled {
		d.closeWindow()
		return
	}
	if d.openWin == nil {
		return
	}

	if d.window == nil {
		w, err := d.openWin(d.title, buf.Width, buf.Height)
		if err != nil {
			if !d.winErr {
				log.Warn().Err(err).Msg("Failed to open debug window")
			}
			d.winErr = true
			return
		}
		d.window = w
		d.winErr = false
		d.setWindowOpen(true)
	}

	img, err := frame.ToImage(buf)
	if err != nil {
		log.Error().Err(err).Msg("Failed to convert frame for debug window")
		return
	}
	if err := d.window.Show(img); err != nil {
		log.Warn().Err(err).Msg("Failed to show frame in debug window")
	}
}

func (d *Driver) closeWindow() {
	if d.window != nil {
		d.window.Close()
		d.window = nil
		d.setWindowOpen(false)
	}
	d.winErr = false
}

func (d *Driver) setWindowOpen(open bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windowOpen = open
}

func (d *Driver) releaseResources() {
	d.device.Release()
	d.closeWindow()
}

func (d *Driver) startSession() {
	id := uuid.NewString()

	d.mu.Lock()
	d.state = Capturing
	d.sessionID = id
	d.mu.Unlock()

	metrics.SetCapturing(true)
	logger.WithSession("driver", id).Info().Msg("Capture session started")
	d.publish(events.SessionChangedEvent{SessionID: id, Capturing: true, Timestamp: now()})
}

func (d *Driver) stopSession() {
	d.releaseResources()
	d.history.Clear()

	d.mu.Lock()
	id := d.sessionID
	d.state = Idle
	d.sessionID = ""
	d.mu.Unlock()

	metrics.SetCapturing(false)
	logger.WithSession("driver", id).Info().Msg("Capture session ended")
	d.publish(events.SessionChangedEvent{SessionID: id, Capturing: false, Timestamp: now()})
}

func (d *Driver) session() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionID
}

func (d *Driver) fireHooks() {
	d.mu.RLock()
	hooks := make([]func(), len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (d *Driver) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
