package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// X11SceneOptions selects the captured region.
type X11SceneOptions struct {
	// Display names the X server; "" uses $DISPLAY.
	Display string

	// Origin is the fixed top-left corner of the region.
	Origin image.Point

	// FollowFocus moves the origin to the focused window every capture,
	// falling back to Origin when no window has focus.
	FollowFocus bool
}

// X11Scene snapshots a region of the X11 root window sized to the requested
// resolution every call.
type X11Scene struct {
	conn        *xgb.Conn
	root        xproto.Window
	screen      *xproto.ScreenInfo
	origin      image.Point
	followFocus bool
	lastFocus   xproto.Window
	mu          sync.Mutex
}

// NewX11Scene connects to the X server.
func NewX11Scene(opts X11SceneOptions) (*X11Scene, error) {
	conn, err := xgb.NewConnDisplay(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	logger.WithComponent("x11-scene").Info().
		Int("screen_width", int(screen.WidthInPixels)).
		Int("screen_height", int(screen.HeightInPixels)).
		Int("depth", int(screen.RootDepth)).
		Bool("follow_focus", opts.FollowFocus).
		Msg("Connected to X server")

	return &X11Scene{
		conn:        conn,
		root:        screen.Root,
		screen:      screen,
		origin:      opts.Origin,
		followFocus: opts.FollowFocus,
	}, nil
}

// Name returns the source name
func (s *X11Scene) Name() string {
	return "X11"
}

// Close closes the X11 connection
func (s *X11Scene) Close() error {
	s.conn.Close()
	return nil
}

// CaptureScene reads back the root-window region at the current origin.
// The surface is always res-sized; the part of it that falls outside the
// screen stays black. A zero-sized visible region or a failed GetImage is a
// readback failure.
func (s *X11Scene) CaptureScene(res frame.Resolution) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Width <= 0 || res.Height <= 0 {
		return nil, fmt.Errorf("%w: resolution %dx%d", frame.ErrInvalidDimensions, res.Width, res.Height)
	}
	surface := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))

	origin := s.origin
	if s.followFocus {
		if p, err := s.focusOrigin(); err == nil {
			origin = p
		} else {
			logger.WithComponent("x11-scene").Debug().Err(err).Msg("No focused window, using fixed origin")
		}
	}
	origin.X = max(origin.X, 0)
	origin.Y = max(origin.Y, 0)

	width := min(res.Width, int(s.screen.WidthInPixels)-origin.X)
	height := min(res.Height, int(s.screen.HeightInPixels)-origin.Y)
	if width <= 0 || height <= 0 {
		return surface, fmt.Errorf("%w: origin %v is off screen", ErrReadback, origin)
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(origin.X), int16(origin.Y),
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return surface, fmt.Errorf("%w: %v", ErrReadback, err)
	}

	if err := s.convertImageData(surface, reply.Data, width, height); err != nil {
		return surface, err
	}
	return surface, nil
}

// convertImageData copies X11 BGRx rows into the RGBA surface
func (s *X11Scene) convertImageData(dst *image.RGBA, data []byte, width, height int) error {
	depth := int(s.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return fmt.Errorf("%w: unsupported root depth %d", ErrReadback, depth)
	}
	if len(data) < width*height*4 {
		logger.WithComponent("x11-scene").Warn().
			Int("bytes", len(data)).
			Int("expected", width*height*4).
			Msg("Short image reply")
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			if i+3 >= len(data) {
				return fmt.Errorf("%w: reply truncated at row %d", ErrReadback, y)
			}
			d := dst.PixOffset(x, y)
			dst.Pix[d+0] = data[i+2]
			dst.Pix[d+1] = data[i+1]
			dst.Pix[d+2] = data[i]
			dst.Pix[d+3] = 0xff
		}
	}
	return nil
}
