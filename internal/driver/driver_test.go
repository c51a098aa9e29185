package driver

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/bryanchriswhite/ScanStreamer/internal/capture"
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/display"
	"github.com/bryanchriswhite/ScanStreamer/internal/events"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/output"
	"github.com/bryanchriswhite/ScanStreamer/internal/overlay"
)

type fakeScene struct {
	img   *image.RGBA
	err   error
	calls int
	last  frame.Resolution
}

func (s *fakeScene) CaptureScene(res frame.Resolution) (*image.RGBA, error) {
	s.calls++
	s.last = res
	if s.img != nil {
		return s.img, s.err
	}
	return image.NewRGBA(image.Rect(0, 0, res.Width, res.Height)), s.err
}

func (s *fakeScene) Name() string { return "fake" }
func (s *fakeScene) Close() error { return nil }

type fakeDecoder struct {
	symbols []decode.Symbol
	calls   int
}

func (d *fakeDecoder) Decode(*frame.Frame) ([]decode.Symbol, error) {
	d.calls++
	return d.symbols, nil
}

type fakeDevice struct {
	frame  *frame.Frame
	closed int
}

func (d *fakeDevice) Read() (*frame.Frame, error) {
	if d.frame == nil {
		return nil, capture.ErrDeviceRead
	}
	return d.frame, nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

type fakeWindow struct {
	shown  int
	closed int
}

func (w *fakeWindow) Show(*image.RGBA) error {
	w.shown++
	return nil
}

func (w *fakeWindow) Close() { w.closed++ }

type recordingSink struct {
	mu     sync.Mutex
	writes map[output.Kind]int
}

func (s *recordingSink) WriteTexture(kind output.Kind, _ *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = make(map[output.Kind]int)
	}
	s.writes[kind]++
	return nil
}

var square = []decode.Point{{X: 1, Y: 1}, {X: 6, Y: 1}, {X: 6, Y: 6}, {X: 1, Y: 6}}

func newTestDriver(t *testing.T, opts Options, deps Deps) *Driver {
	t.Helper()
	if deps.Scene == nil {
		deps.Scene = &fakeScene{}
	}
	if deps.Decoder == nil {
		deps.Decoder = &fakeDecoder{}
	}
	d, err := New(opts, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestNewRequiresSceneAndDecoder(t *testing.T) {
	if _, err := New(Options{}, Deps{Decoder: &fakeDecoder{}}); err == nil {
		t.Error("expected error without scene")
	}
	if _, err := New(Options{}, Deps{Scene: &fakeScene{}}); err == nil {
		t.Error("expected error without decoder")
	}
}

func TestIdleTickFiresHooksOnly(t *testing.T) {
	scene := &fakeScene{}
	d := newTestDriver(t, Options{Resolution: frame.Resolution{Width: 5, Height: 5}}, Deps{Scene: scene})

	fired := 0
	d.OnFrame(func() { fired++ })
	d.Tick()
	d.Tick()

	if fired != 2 {
		t.Errorf("hook fired %d times, want 2", fired)
	}
	if scene.calls != 0 {
		t.Errorf("scene captured %d times while idle", scene.calls)
	}
	snap := d.Snapshot()
	if snap.State != Idle || snap.Resolution.Width != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCapturingTickCoercesResolutionAndDrawsOverlay(t *testing.T) {
	scene := &fakeScene{}
	dec := &fakeDecoder{symbols: []decode.Symbol{{Type: "QR_CODE", Payload: "x", Location: square}}}
	sink := &recordingSink{}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true},
		Resolution: frame.Resolution{Width: 5, Height: 7},
	}, Deps{Scene: scene, Decoder: dec, Sink: sink})

	d.Tick()

	if scene.last != (frame.Resolution{Width: 8, Height: 8}) {
		t.Errorf("captured at %v, want 8x8", scene.last)
	}
	snap := d.Snapshot()
	if snap.State != Capturing || snap.SessionID == "" || snap.HistorySize != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	primary := d.Texture(output.KindPrimary)
	if primary == nil {
		t.Fatal("no primary texture")
	}
	if c := primary.RGBAAt(3, 1); c != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("outline pixel = %+v, want marker", c)
	}
	if c := primary.RGBAAt(3, 3); c.A != 0 {
		t.Errorf("interior pixel = %+v, want transparent", c)
	}
	if c := d.Texture(output.KindRaw).RGBAAt(3, 3); c.A != 255 {
		t.Errorf("raw interior pixel = %+v, want opaque", c)
	}
	if sink.writes[output.KindPrimary] != 1 || sink.writes[output.KindRaw] != 1 {
		t.Errorf("sink writes = %v", sink.writes)
	}
}

func TestHookSeesFinalTextures(t *testing.T) {
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true},
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{})

	var got *image.RGBA
	d.OnFrame(func() { got = d.Texture(output.KindPrimary) })
	d.Tick()

	if got == nil {
		t.Fatal("hook ran before the primary texture was stored")
	}
}

func TestLeavingCaptureClearsHistoryAndReleasesResources(t *testing.T) {
	dev := &fakeDevice{frame: mustFrame(t, 2, 2, 3)}
	win := &fakeWindow{}
	bus := events.New()
	sessions := make(chan events.SessionChangedEvent, 4)
	unsub := bus.Subscribe(func(e events.SessionChangedEvent) { sessions <- e })
	defer unsub()

	dec := &fakeDecoder{symbols: []decode.Symbol{
		{Type: "QR_CODE", Payload: "a", Location: square},
		{Type: "QR_CODE", Payload: "b", Location: square},
	}}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Video: true, Window: true},
		Resolution: frame.Resolution{Width: 8, Height: 8},
	}, Deps{
		Decoder:    dec,
		OpenDevice: func(int) (capture.Device, error) { return dev, nil },
		OpenWindow: func(title string, w, h int) (display.Surface, error) {
			if title != display.DefaultTitle {
				t.Errorf("window title = %q", title)
			}
			return win, nil
		},
		Bus: bus,
	})

	d.Tick()
	if len(d.History()) != 2 || !d.Snapshot().DeviceOpen || !d.Snapshot().WindowOpen {
		t.Fatalf("after capturing tick: %+v", d.Snapshot())
	}
	if d.Texture(output.KindFeed) == nil {
		t.Error("no external feed texture")
	}
	if win.shown != 1 {
		t.Errorf("window shown %d times, want 1", win.shown)
	}

	d.SetCaptureEnabled(false)
	d.Tick()

	if n := len(d.History()); n != 0 {
		t.Errorf("history has %d entries after leaving capture", n)
	}
	if dev.closed != 1 || win.closed != 1 {
		t.Errorf("device closed %d, window closed %d; want 1 and 1", dev.closed, win.closed)
	}
	snap := d.Snapshot()
	if snap.State != Idle || snap.SessionID != "" || snap.DeviceOpen || snap.WindowOpen {
		t.Errorf("snapshot = %+v", snap)
	}

	for _, want := range []bool{true, false} {
		select {
		case e := <-sessions:
			if e.Capturing != want || e.SessionID == "" {
				t.Errorf("session event = %+v, want capturing=%v", e, want)
			}
		case <-time.After(time.Second):
			t.Fatal("missing session event")
		}
	}
}

func TestDeviceOpenRetriedEveryTick(t *testing.T) {
	dev := &fakeDevice{frame: mustFrame(t, 2, 2, 3)}
	attempts := 0
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Video: true},
		DeviceID:   3,
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{OpenDevice: func(id int) (capture.Device, error) {
		attempts++
		if id != 3 {
			t.Errorf("opened device %d, want 3", id)
		}
		if attempts < 3 {
			return nil, errors.New("busy")
		}
		return dev, nil
	}})

	for i := 0; i < 2; i++ {
		d.Tick()
		if d.Texture(output.KindFeed) != nil {
			t.Fatalf("tick %d: feed texture without an open device", i+1)
		}
	}
	d.Tick()
	d.Tick()

	if attempts != 3 {
		t.Errorf("open attempts = %d, want 3", attempts)
	}
	if d.Texture(output.KindFeed) == nil {
		t.Error("no feed texture after device opened")
	}
}

func TestFailedDeviceReadKeepsPreviousFeed(t *testing.T) {
	dev := &fakeDevice{frame: mustFrame(t, 2, 2, 3)}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Video: true},
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{OpenDevice: func(int) (capture.Device, error) { return dev, nil }})

	d.Tick()
	first := d.Texture(output.KindFeed)
	dev.frame = nil
	d.Tick()

	if d.Texture(output.KindFeed) != first {
		t.Error("failed read replaced the feed texture")
	}
}

func TestFeedNotReadWhileVideoDisabled(t *testing.T) {
	dev := &fakeDevice{frame: mustFrame(t, 2, 2, 3)}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Video: true},
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{OpenDevice: func(int) (capture.Device, error) { return dev, nil }})

	d.Tick()
	first := d.Texture(output.KindFeed)
	if first == nil {
		t.Fatal("no feed texture with video enabled")
	}

	d.SetVideoEnabled(false)
	dev.frame = mustFrame(t, 8, 8, 3)
	d.Tick()

	if got := d.Texture(output.KindFeed); got != first {
		t.Errorf("feed refreshed to %v with video disabled", got.Bounds())
	}
	if !d.Snapshot().DeviceOpen {
		t.Error("device released when only the video switch changed")
	}

	d.SetVideoEnabled(true)
	d.Tick()
	if got := d.Texture(output.KindFeed); got.Bounds().Dx() != 8 {
		t.Errorf("feed bounds = %v after re-enabling video, want 8x8", got.Bounds())
	}
}

func TestUpdateSwitchesKeepsConcurrentChanges(t *testing.T) {
	d := newTestDriver(t, Options{}, Deps{})

	var wg sync.WaitGroup
	for _, fn := range []func(*Switches){
		func(s *Switches) { s.Capture = true },
		func(s *Switches) { s.Video = true },
		func(s *Switches) { s.Window = true },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.UpdateSwitches(fn)
		}()
	}
	wg.Wait()

	want := Switches{Capture: true, Video: true, Window: true}
	if got := d.Snapshot().Switches; got != want {
		t.Errorf("switches = %+v, want %+v", got, want)
	}
}

func TestWindowTitleOverride(t *testing.T) {
	var got string
	d := newTestDriver(t, Options{
		Switches:    Switches{Capture: true, Window: true},
		Resolution:  frame.Resolution{Width: 4, Height: 4},
		WindowTitle: "QRCode-Zbar",
	}, Deps{OpenWindow: func(title string, w, h int) (display.Surface, error) {
		got = title
		return &fakeWindow{}, nil
	}})

	d.Tick()
	if got != "QRCode-Zbar" {
		t.Errorf("window title = %q, want QRCode-Zbar", got)
	}
}

func TestReadbackFailurePolicy(t *testing.T) {
	for _, tc := range []struct {
		name      string
		strict    bool
		wantCalls int
	}{
		{"strict skips decode", true, 0},
		{"permissive decodes partial surface", false, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			scene := &fakeScene{err: capture.ErrReadback}
			dec := &fakeDecoder{}
			d := newTestDriver(t, Options{
				Switches:       Switches{Capture: true},
				Resolution:     frame.Resolution{Width: 4, Height: 4},
				StrictReadback: tc.strict,
			}, Deps{Scene: scene, Decoder: dec})

			d.Tick()

			if dec.calls != tc.wantCalls {
				t.Errorf("decoder called %d times, want %d", dec.calls, tc.wantCalls)
			}
			if got := d.Texture(output.KindPrimary) != nil; got != !tc.strict {
				t.Errorf("primary texture present = %v", got)
			}
		})
	}
}

func TestSymbolDecodedPublishedOncePerSession(t *testing.T) {
	bus := events.New()
	decoded := make(chan events.SymbolDecodedEvent, 4)
	unsub := events.SubscribeToChannel(bus, decoded)
	defer unsub()

	dec := &fakeDecoder{symbols: []decode.Symbol{{Type: "QR_CODE", Payload: "same", Location: square}}}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true},
		Resolution: frame.Resolution{Width: 8, Height: 8},
	}, Deps{Decoder: dec, Bus: bus})

	d.Tick()
	d.Tick()

	select {
	case e := <-decoded:
		if e.Symbol.Payload != "same" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no SymbolDecodedEvent")
	}
	select {
	case e := <-decoded:
		t.Errorf("duplicate event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWindowClosedWhenSwitchedOff(t *testing.T) {
	win := &fakeWindow{}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Window: true},
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{OpenWindow: func(string, int, int) (display.Surface, error) { return win, nil }})

	d.Tick()
	d.SetWindowEnabled(false)
	d.Tick()

	if win.closed != 1 || d.Snapshot().WindowOpen {
		t.Errorf("window closed %d times, open=%v", win.closed, d.Snapshot().WindowOpen)
	}
}

func TestCloseIsIdempotentAndStopsTicks(t *testing.T) {
	dev := &fakeDevice{frame: mustFrame(t, 2, 2, 3)}
	scene := &fakeScene{}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true, Video: true},
		Resolution: frame.Resolution{Width: 4, Height: 4},
	}, Deps{Scene: scene, OpenDevice: func(int) (capture.Device, error) { return dev, nil }})

	d.Tick()
	d.Close()
	d.Close()
	d.Tick()

	if dev.closed != 1 {
		t.Errorf("device closed %d times, want 1", dev.closed)
	}
	if scene.calls != 1 {
		t.Errorf("scene captured %d times, want 1", scene.calls)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	d := newTestDriver(t, Options{}, Deps{})

	ticks := make(chan struct{}, 64)
	d.OnFrame(func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 200) }()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("driver did not tick")
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := d.Run(context.Background(), 0); err == nil {
		t.Error("expected error for zero tick rate")
	}
}

func TestEndToEndDecodesSyntheticQRCode(t *testing.T) {
	const size, codeSize, off = 256, 200, 28

	bm, err := qrcode.NewQRCodeWriter().Encode("ABC123", gozxing.BarcodeFormat_QR_CODE, codeSize, codeSize, nil)
	if err != nil {
		t.Fatalf("encode QR: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(off, off, off+codeSize, off+codeSize), bm, image.Point{}, draw.Src)

	zx, err := decode.NewZXing(decode.FormatQRCode, decode.FormatDataMatrix)
	if err != nil {
		t.Fatalf("NewZXing: %v", err)
	}
	d := newTestDriver(t, Options{
		Switches:   Switches{Capture: true},
		Resolution: frame.Resolution{Width: size, Height: size},
	}, Deps{Scene: &fakeScene{img: img}, Decoder: zx})

	d.Tick()

	history := d.History()
	if len(history) != 1 {
		t.Fatalf("history = %+v, want one symbol", history)
	}
	s := history[0]
	if s.Type != gozxing.BarcodeFormat_QR_CODE.String() || s.Payload != "ABC123" {
		t.Errorf("symbol = %s %q", s.Type, s.Payload)
	}
	if len(s.Location) != 4 {
		t.Fatalf("location has %d points, want 4", len(s.Location))
	}
	if n := len(overlay.Segments(overlay.Outline(s.Location))); n != 4 {
		t.Errorf("outline has %d segments, want 4", n)
	}

	primary := d.Texture(output.KindPrimary)
	for _, p := range s.Location {
		if c := primary.RGBAAt(p.X, p.Y); c != (color.RGBA{R: 255, A: 255}) {
			t.Errorf("corner %v = %+v, want marker", p, c)
		}
	}
}

func mustFrame(t *testing.T, w, h, ch int) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h, ch)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}
