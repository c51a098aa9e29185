package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// DefaultTitle names the debug window.
const DefaultTitle = "QRCode-Scanner"

// Surface is an owned display surface showing processed frames.
type Surface interface {
	Show(img *image.RGBA) error
	Close()
}

// Opener creates a surface with the given title and size.
type Opener func(title string, width, height int) (Surface, error)

// Window is a native X11 debug window. Each Window holds its own connection,
// so several drivers can show windows side by side.
type Window struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext
	width  int
	height int
	closed bool
	mu     sync.Mutex
}

// OpenWindow is an Opener that creates and maps an X11 window on $DISPLAY.
func OpenWindow(title string, width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid window size %dx%d", width, height)
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	w := &Window{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		width:  width,
		height: height,
	}
	if err := w.create(title); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func (w *Window) create(title string) error {
	win, err := xproto.NewWindowId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	w.win = win

	err = xproto.CreateWindowChecked(
		w.conn,
		w.screen.RootDepth,
		w.win,
		w.screen.Root,
		0, 0,
		uint16(w.width), uint16(w.height),
		0,
		xproto.WindowClassInputOutput,
		w.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{
			0x000000,
			xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
		},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("display")
	if err := w.setWindowTitle(title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := w.setWindowClass("scanstreamer", "ScanStreamer"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(w.conn, w.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(w.conn, gc, xproto.Drawable(w.win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	w.gc = gc
	w.conn.Sync()

	log.Info().
		Str("title", title).
		Int("width", w.width).
		Int("height", w.height).
		Uint32("window_id", uint32(w.win)).
		Msg("Debug window opened")
	return nil
}

// Show scales img to the window, letterboxed, and puts it on screen.
func (w *Window) Show(img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("window closed")
	}
	return w.putImage(Fit(img, w.width, w.height))
}

// Close destroys the window and its connection. Safe to call repeatedly.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	if w.gc != 0 {
		xproto.FreeGC(w.conn, w.gc)
	}
	if w.win != 0 {
		xproto.DestroyWindow(w.conn, w.win)
		w.conn.Sync()
	}
	w.conn.Close()
	logger.WithComponent("display").Info().Msg("Debug window closed")
}

// putImage converts RGBA to the server's pixmap format and sends it
func (w *Window) putImage(img *image.RGBA) error {
	depth := w.screen.RootDepth

	var bitsPerPixel, scanlinePad uint8
	for _, format := range xproto.Setup(w.conn).PixmapFormats {
		if format.Depth == depth {
			bitsPerPixel = format.BitsPerPixel
			scanlinePad = format.ScanlinePad
			break
		}
	}
	if bitsPerPixel != 32 && bitsPerPixel != 24 {
		return fmt.Errorf("unsupported pixmap format: depth %d, %d bpp", depth, bitsPerPixel)
	}

	bytesPerPixel := int(bitsPerPixel) / 8
	padBytes := int(scanlinePad) / 8
	if padBytes == 0 {
		padBytes = 1
	}
	stride := ((w.width*bytesPerPixel + padBytes - 1) / padBytes) * padBytes

	data := make([]byte, stride*w.height)
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			s := img.PixOffset(x, y)
			d := y*stride + x*bytesPerPixel
			data[d] = img.Pix[s+2]
			data[d+1] = img.Pix[s+1]
			data[d+2] = img.Pix[s]
			if bytesPerPixel == 4 && depth == 32 {
				data[d+3] = img.Pix[s+3]
			}
		}
	}

	// PutImage requests are bounded by the server's maximum request length,
	// so large frames go out in horizontal bands.
	maxBytes := int(xproto.Setup(w.conn).MaximumRequestLength)*4 - 64
	rows := w.height
	if maxBytes > 0 && stride > 0 && stride*rows > maxBytes {
		rows = max(1, maxBytes/stride)
	}
	for y := 0; y < w.height; y += rows {
		n := min(rows, w.height-y)
		err := xproto.PutImageChecked(
			w.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(w.win),
			w.gc,
			uint16(w.width), uint16(n),
			0, int16(y),
			0,
			depth,
			data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}

	w.conn.Sync()
	return nil
}

func (w *Window) setWindowTitle(title string) error {
	titleAtom, err := w.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := w.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}

	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.win,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (w *Window) setWindowClass(instance, class string) error {
	classAtom, err := w.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.win,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

func (w *Window) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(w.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
