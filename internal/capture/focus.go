package capture

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// focusedWindow returns the active window, preferring EWMH
// _NET_ACTIVE_WINDOW and falling back to the input focus.
func (s *X11Scene) focusedWindow() (xproto.Window, error) {
	if atom, err := s.getAtom("_NET_ACTIVE_WINDOW"); err == nil {
		reply, err := xproto.GetProperty(s.conn, false, s.root, atom, xproto.AtomWindow, 0, 1).Reply()
		if err == nil && len(reply.Value) >= 4 {
			if win := xproto.Window(binary.LittleEndian.Uint32(reply.Value)); win != 0 {
				return win, nil
			}
		}
	}

	focus, err := xproto.GetInputFocus(s.conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get input focus: %w", err)
	}
	if focus.Focus == xproto.WindowNone || focus.Focus == xproto.InputFocusPointerRoot {
		return 0, fmt.Errorf("no window has focus")
	}
	return focus.Focus, nil
}

// focusOrigin returns the top-left corner of the focused window in root
// coordinates.
func (s *X11Scene) focusOrigin() (image.Point, error) {
	win, err := s.focusedWindow()
	if err != nil {
		return image.Point{}, err
	}

	pos, err := xproto.TranslateCoordinates(s.conn, win, s.root, 0, 0).Reply()
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to translate window coordinates: %w", err)
	}
	origin := image.Pt(int(pos.DstX), int(pos.DstY))

	if win != s.lastFocus {
		s.lastFocus = win
		title, _ := s.getProperty(win, "_NET_WM_NAME")
		if title == "" {
			title, _ = s.getProperty(win, "WM_NAME")
		}
		logger.WithComponent("x11-scene").Debug().
			Uint32("window_id", uint32(win)).
			Str("title", title).
			Int("x", origin.X).
			Int("y", origin.Y).
			Msg("Following focused window")
	}
	return origin, nil
}

func (s *X11Scene) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// getProperty reads a property as a string
func (s *X11Scene) getProperty(win xproto.Window, name string) (string, error) {
	atom, err := s.getAtom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(
		s.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}
