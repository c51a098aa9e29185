package overlay

import (
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// DefaultLineWidth is the outline thickness in pixels.
const DefaultLineWidth = 2

// Options controls how outlines are baked into frames.
type Options struct {
	LineWidth int
	Labels    bool
}

// Renderer bakes symbol outlines into processing frames in the marker color.
type Renderer struct {
	opts   Options
	marker []byte
}

// NewRenderer creates a renderer; a zero line width falls back to the default.
func NewRenderer(opts Options) *Renderer {
	if opts.LineWidth <= 0 {
		opts.LineWidth = DefaultLineWidth
	}
	return &Renderer{
		opts:   opts,
		marker: []byte{frame.Marker[0], frame.Marker[1], frame.Marker[2], 0xff},
	}
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Draw outlines every symbol on f and returns the total number of segments.
func (r *Renderer) Draw(f *frame.Frame, symbols []decode.Symbol) int {
	if f.Empty() || f.Channels < 3 {
		return 0
	}

	total := 0
	for _, s := range symbols {
		outline := Outline(s.Location)
		total += DrawPolygon(f, outline, r.opts.LineWidth, r.marker)
		if r.opts.Labels {
			DrawLabel(f, outline, s.Payload, r.marker)
		}
	}

	if total > 0 {
		logger.WithComponent("overlay").Debug().
			Int("symbols", len(symbols)).
			Int("segments", total).
			Msg("Outlines drawn")
	}
	return total
}
