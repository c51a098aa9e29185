package decode

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// Format names accepted in configuration.
const (
	FormatQRCode     = "qr"
	FormatDataMatrix = "datamatrix"
	FormatCode128    = "code128"
	FormatCode39     = "code39"
	FormatAztec      = "aztec"
	FormatCode93    = "code93"
	FormatCodabar    = "codabar"
	FormatITF        = "itf"
	FormatEAN13      = "ean13"
	FormatEAN8       = "ean8"
	FormatUPCA       = "upca"
	FormatUPCE       = "upce"
)

var readerFactories = map[string]func() gozxing.Reader{
	FormatQRCode:     func() gozxing.Reader { return qrcode.NewQRCodeReader() },
	FormatDataMatrix: func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
	FormatAztec:      func() gozxing.Reader { return aztec.NewAztecReader() },
	FormatCode128:    func() gozxing.Reader { return oned.NewCode128Reader() },
	FormatCode39:     func() gozxing.Reader { return oned.NewCode39Reader() },
	FormatCode93:     func() gozxing.Reader { return oned.NewCode93Reader() },
	FormatCodabar:    func() gozxing.Reader { return oned.NewCodaBarReader() },
	FormatITF:        func() gozxing.Reader { return oned.NewITFReader() },
	FormatEAN13:      func() gozxing.Reader { return oned.NewEAN13Reader() },
	FormatEAN8:       func() gozxing.Reader { return oned.NewEAN8Reader() },
	FormatUPCA:       func() gozxing.Reader { return oned.NewUPCAReader() },
	FormatUPCE:       func() gozxing.Reader { return oned.NewUPCEReader() },
}

// readerOrder keeps 2D detectors ahead of the linear ones.
var readerOrder = []string{
	FormatQRCode,
	FormatDataMatrix,
	FormatAztec,
	FormatCode128,
	FormatCode39,
	FormatCode93,
	FormatCodabar,
	FormatITF,
	FormatEAN13,
	FormatEAN8,
	FormatUPCA,
	FormatUPCE,
}

// AllFormats returns every supported format name.
func AllFormats() []string {
	out := make([]string, len(readerOrder))
	copy(out, readerOrder)
	return out
}

type multiReader interface {
	DecodeMultiple(image *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error)
}

type namedReader struct {
	name   string
	reader gozxing.Reader
}

// ZXing decodes symbols with gozxing. It is not safe for concurrent use; the
// frame driver calls it from a single goroutine.
type ZXing struct {
	readers []namedReader
	multiQR multiReader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing builds a decoder with the given formats enabled. No formats means
// all of them.
func NewZXing(formats ...string) (*ZXing, error) {
	if len(formats) == 0 {
		formats = readerOrder
	}

	wanted := make(map[string]bool, len(formats))
	for _, f := range formats {
		name := strings.ToLower(strings.TrimSpace(f))
		if _, ok := readerFactories[name]; !ok {
			return nil, fmt.Errorf("unknown symbol format %q (supported: %s)",
				f, strings.Join(readerOrder, ", "))
		}
		wanted[name] = true
	}

	z := &ZXing{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
	for _, name := range readerOrder {
		if wanted[name] {
			z.readers = append(z.readers, namedReader{name: name, reader: readerFactories[name]()})
		}
	}
	if wanted[FormatQRCode] {
		z.multiQR = multiqr.NewQRCodeMultiReader()
	}
	return z, nil
}

// Formats lists the enabled detectors.
func (z *ZXing) Formats() []string {
	out := make([]string, 0, len(z.readers))
	for _, r := range z.readers {
		out = append(out, r.name)
	}
	return out
}

// Decode converts f to grayscale and runs every enabled detector over it.
// Every QR code in the frame is reported, so the same payload may appear
// more than once. Finding nothing is the common case and returns an empty
// slice, not an error.
func (z *ZXing) Decode(f *frame.Frame) ([]Symbol, error) {
	log := logger.WithComponent("decoder")

	gray, err := frame.Gray(f)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame to grayscale: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize frame: %w", err)
	}
	// A nil matrix only costs the QR corner refinement.
	bits, _ := bmp.GetBlackMatrix()

	var symbols []Symbol
	for _, nr := range z.readers {
		for _, result := range z.run(nr, bmp) {
			s := toSymbol(result, bits)
			if s.Type == "" || s.Payload == "" {
				continue
			}
			symbols = append(symbols, s)

			log.Info().
				Str("type", s.Type).
				Str("payload", s.Payload).
				Int("points", len(s.Location)).
				Msg("Symbol decoded")
		}
	}

	if len(symbols) == 0 {
		log.Info().Msg("No symbol detected")
	}
	return symbols, nil
}

// run returns every result of one detector. QR codes go through the
// multi-symbol reader first; the single reader is the fallback because it
// tolerates damaged finder patterns better.
func (z *ZXing) run(nr namedReader, bmp *gozxing.BinaryBitmap) []*gozxing.Result {
	if nr.name == FormatQRCode && z.multiQR != nil {
		results, err := z.multiQR.DecodeMultiple(bmp, z.hints)
		if err == nil && len(results) > 0 {
			return results
		}
	}

	result, err := nr.reader.Decode(bmp, z.hints)
	nr.reader.Reset()
	if err != nil {
		return nil
	}
	return []*gozxing.Result{result}
}

func toSymbol(r *gozxing.Result, bits *gozxing.BitMatrix) Symbol {
	s := Symbol{
		Type:    r.GetBarcodeFormat().String(),
		Payload: r.GetText(),
	}

	pts := r.GetResultPoints()
	if r.GetBarcodeFormat() == gozxing.BarcodeFormat_QR_CODE && len(pts) >= 3 &&
		pts[0] != nil && pts[1] != nil && pts[2] != nil {
		// bottom-left, top-left, top-right finder centres; any alignment
		// pattern is dropped
		s.Location = qrCorners(bits, pts[0], pts[1], pts[2])
		return s
	}

	for _, p := range pts {
		if p == nil {
			continue
		}
		s.Location = append(s.Location, round(p.GetX(), p.GetY()))
	}
	return s
}

// qrCorners expands the three finder centres of a QR code to the outer
// corners of the symbol, in the order bottom-left, top-left, top-right,
// bottom-right. A finder's outer dark ring ends 3.5 modules from its centre.
func qrCorners(bits *gozxing.BitMatrix, bl, tl, tr gozxing.ResultPoint) []Point {
	ux, uy, top := unit(tr.GetX()-tl.GetX(), tr.GetY()-tl.GetY())
	vx, vy, _ := unit(bl.GetX()-tl.GetX(), bl.GetY()-tl.GetY())

	// Without a measurement assume a version 1 code, whose finder centres
	// are 14 modules apart.
	r := top * 3.5 / 14
	if measured, ok := finderRadius(bits, top/2,
		ray{tl, -ux, -uy}, ray{tr, ux, uy}, ray{bl, -ux, -uy}); ok {
		r = measured
	}

	tlx, tly := tl.GetX()-r*(ux+vx), tl.GetY()-r*(uy+vy)
	trx, try := tr.GetX()+r*(ux-vx), tr.GetY()+r*(uy-vy)
	blx, bly := bl.GetX()+r*(vx-ux), bl.GetY()+r*(vy-uy)
	return []Point{
		round(blx, bly),
		round(tlx, tly),
		round(trx, try),
		round(trx+blx-tlx, try+bly-tly),
	}
}

type ray struct {
	from   gozxing.ResultPoint
	dx, dy float64
}

// finderRadius measures the distance from finder centres to the outer edge
// of their dark ring, walking each ray across the 1:1:3:1:1 row and
// averaging the rays that found the edge within limit.
func finderRadius(bits *gozxing.BitMatrix, limit float64, rays ...ray) (float64, bool) {
	if bits == nil {
		return 0, false
	}

	const step = 0.5
	var sum float64
	var n int
	for _, rr := range rays {
		x0, y0 := rr.from.GetX(), rr.from.GetY()
		if !inside(bits, x0, y0) || !bits.Get(int(x0), int(y0)) {
			continue
		}
		dark := true
		changes := 0
		for d := step; d <= limit; d += step {
			x, y := x0+rr.dx*d, y0+rr.dy*d
			if !inside(bits, x, y) {
				break
			}
			if bits.Get(int(x), int(y)) == dark {
				continue
			}
			dark = !dark
			if changes++; changes == 3 {
				sum += d - step/2
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func inside(bits *gozxing.BitMatrix, x, y float64) bool {
	return x >= 0 && y >= 0 && x < float64(bits.GetWidth()) && y < float64(bits.GetHeight())
}

func unit(x, y float64) (float64, float64, float64) {
	l := math.Hypot(x, y)
	if l == 0 {
		return 0, 0, 0
	}
	return x / l, y / l, l
}

func round(x, y float64) Point {
	return Point{X: int(math.Round(x)), Y: int(math.Round(y))}
}

// SortByKey orders symbols by type then payload. Used where a stable
// presentation order matters more than first-seen order.
func SortByKey(symbols []Symbol) {
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Type != symbols[j].Type {
			return symbols[i].Type < symbols[j].Type
		}
		return symbols[i].Payload < symbols[j].Payload
	})
}
