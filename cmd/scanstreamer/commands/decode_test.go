package commands

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/overlay"
)

func TestDecodeImageAnnotatesQRCode(t *testing.T) {
	bm, err := qrcode.NewQRCodeWriter().Encode("hello", gozxing.BarcodeFormat_QR_CODE, 160, 160, nil)
	if err != nil {
		t.Fatalf("encode QR: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(20, 20, 180, 180), bm, image.Point{}, draw.Src)

	zx, err := decode.NewZXing(decode.FormatQRCode)
	if err != nil {
		t.Fatalf("NewZXing: %v", err)
	}
	symbols, annotated, err := decodeImage(img, zx, overlay.NewRenderer(overlay.Options{}))
	if err != nil {
		t.Fatalf("decodeImage: %v", err)
	}
	if len(symbols) != 1 || symbols[0].Payload != "hello" {
		t.Fatalf("symbols = %+v", symbols)
	}

	// The marker lands in channel 0 of the processing buffer, which is blue
	// once converted back to natural channel order.
	p := symbols[0].Location[0]
	if c := annotated.RGBAAt(p.X, p.Y); c != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("corner %v = %+v, want outline", p, c)
	}

	out := filepath.Join(t.TempDir(), "annotated.png")
	if err := writePNG(out, annotated); err != nil {
		t.Fatalf("writePNG: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("written file is not a PNG: %v", err)
	}
}

func TestDecodeImageBlank(t *testing.T) {
	zx, _ := decode.NewZXing(decode.FormatQRCode)
	symbols, annotated, err := decodeImage(image.NewGray(image.Rect(0, 0, 32, 32)), zx, overlay.NewRenderer(overlay.Options{}))
	if err != nil {
		t.Fatalf("decodeImage: %v", err)
	}
	if len(symbols) != 0 || annotated.Bounds().Dx() != 32 {
		t.Errorf("symbols = %+v, bounds = %v", symbols, annotated.Bounds())
	}
}

func TestDecodeImageFindsEveryQRCode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	for i, payload := range []string{"beta", "alpha"} {
		bm, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 196, 196, nil)
		if err != nil {
			t.Fatalf("encode QR: %v", err)
		}
		off := 16 + i*284
		draw.Draw(img, image.Rect(off, off, off+196, off+196), bm, image.Point{}, draw.Src)
	}

	zx, _ := decode.NewZXing(decode.FormatQRCode)
	symbols, annotated, err := decodeImage(img, zx, overlay.NewRenderer(overlay.Options{}))
	if err != nil {
		t.Fatalf("decodeImage: %v", err)
	}
	if len(symbols) != 2 || symbols[0].Payload != "alpha" || symbols[1].Payload != "beta" {
		t.Fatalf("symbols = %+v, want alpha and beta in key order", symbols)
	}
	for _, s := range symbols {
		p := s.Location[1]
		if c := annotated.RGBAAt(p.X, p.Y); c != (color.RGBA{B: 255, A: 255}) {
			t.Errorf("%s corner %v = %+v, want outline", s.Payload, p, c)
		}
	}
}
