package frame

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestNextPow2(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-7, 1},
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
		{1025, 2048},
	}

	for _, tt := range tests {
		if got := NextPow2(tt.in); got != tt.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNextPow2IdempotentOnPowersOfTwo(t *testing.T) {
	for n := 1; n <= 1<<20; n <<= 1 {
		if got := NextPow2(n); got != n {
			t.Fatalf("NextPow2(%d) = %d, want unchanged", n, got)
		}
		if got := NextPow2(NextPow2(n)); got != n {
			t.Fatalf("NextPow2 twice on %d = %d", n, got)
		}
	}
}

func TestResolutionCoerceIsIndependent(t *testing.T) {
	got := Resolution{Width: 1000, Height: 3}.Coerce()
	want := Resolution{Width: 1024, Height: 4}
	if got != want {
		t.Errorf("Coerce() = %+v, want %+v", got, want)
	}
}

func TestFromRGBASwapsChannelsAndForcesAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 0})
	img.SetRGBA(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 7})

	f, err := FromRGBA(img, Resolution{Width: 2, Height: 1})
	if err != nil {
		t.Fatalf("FromRGBA: %v", err)
	}
	want := []byte{30, 20, 10, 255, 3, 2, 1, 255}
	for i := range want {
		if f.Pix[i] != want[i] {
			t.Fatalf("Pix = %v, want %v", f.Pix, want)
		}
	}
	if f.Channels != 4 || f.Width != 2 || f.Height != 1 {
		t.Errorf("unexpected frame shape %dx%dx%d", f.Width, f.Height, f.Channels)
	}
}

func TestFromRGBAShortReadbackLeavesZeroTail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	f, err := FromRGBA(img, Resolution{Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("FromRGBA: %v", err)
	}
	for i := 4; i < len(f.Pix); i++ {
		if f.Pix[i] != 0 {
			t.Fatalf("expected zero tail, got %v", f.Pix)
		}
	}
}

func TestFromRGBARejectsBadResolution(t *testing.T) {
	if _, err := FromRGBA(nil, Resolution{}); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err = %v, want ErrInvalidDimensions", err)
	}
}

func TestWrapDoesNotCopy(t *testing.T) {
	pix := make([]byte, 4)
	f, err := Wrap(1, 1, 4, pix)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	pix[0] = 99
	if f.Pix[0] != 99 {
		t.Error("Wrap copied the buffer")
	}
	c := f.Clone()
	pix[0] = 1
	if c.Pix[0] != 99 {
		t.Error("Clone shares the buffer")
	}
}

func TestMaskedTexture(t *testing.T) {
	f, _ := New(3, 1, 4)
	f.SetPixel(0, 0, 255, 0, 0, 255)
	f.SetPixel(1, 0, 255, 0, 1, 255)
	f.SetPixel(2, 0, 0, 0, 255, 255)

	tex, err := MaskedTexture(f, Resolution{Width: 3, Height: 1})
	if err != nil {
		t.Fatalf("MaskedTexture: %v", err)
	}

	if got := tex.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("marker pixel = %v", got)
	}
	for x := 1; x < 3; x++ {
		if got := tex.RGBAAt(x, 0); got != (color.RGBA{}) {
			t.Errorf("pixel %d = %v, want transparent", x, got)
		}
	}
}

func TestRawTextureChannelZeroIsRed(t *testing.T) {
	f, _ := New(1, 1, 4)
	f.SetPixel(0, 0, 10, 20, 30, 0)

	tex, err := RawTexture(f, Resolution{Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("RawTexture: %v", err)
	}
	if got := tex.RGBAAt(0, 0); got != (color.RGBA{10, 20, 30, 255}) {
		t.Errorf("raw pixel = %v", got)
	}
}

func TestTexturesMatchesSeparateConversions(t *testing.T) {
	f, _ := New(4, 4, 4)
	for i := range f.Pix {
		f.Pix[i] = byte(i * 37)
	}
	f.SetPixel(2, 3, 255, 0, 0, 255)
	res := Resolution{Width: 4, Height: 4}

	masked, raw, err := Textures(f, res)
	if err != nil {
		t.Fatalf("Textures: %v", err)
	}
	m2, _ := MaskedTexture(f, res)
	r2, _ := RawTexture(f, res)

	if string(masked.Pix) != string(m2.Pix) {
		t.Error("combined masked texture differs")
	}
	if string(raw.Pix) != string(r2.Pix) {
		t.Error("combined raw texture differs")
	}
}

func TestTextureAllocationFailureIsAnError(t *testing.T) {
	f, _ := New(2, 2, 4)
	if _, err := MaskedTexture(f, Resolution{Width: 4, Height: 4}); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("oversized resolution: err = %v", err)
	}
	if _, err := RawTexture(nil, Resolution{Width: 1, Height: 1}); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("nil frame: err = %v", err)
	}
}

func TestExternalFeedTexture(t *testing.T) {
	f, _ := New(2, 1, 3)
	copy(f.Pix, []byte{1, 2, 3, 4, 5, 6})

	tex, err := ExternalFeedTexture(f)
	if err != nil {
		t.Fatalf("ExternalFeedTexture: %v", err)
	}
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if string(tex.Pix) != string(want) {
		t.Errorf("Pix = %v, want %v", tex.Pix, want)
	}

	bgra, _ := New(1, 1, 4)
	if _, err := ExternalFeedTexture(bgra); err == nil {
		t.Error("expected error for 4-channel input")
	}
}

func TestGray(t *testing.T) {
	f, _ := New(3, 1, 4)
	f.SetPixel(0, 0, 255, 255, 255, 255)
	f.SetPixel(1, 0, 0, 0, 0, 255)
	f.SetPixel(2, 0, 0, 0, 255, 255) // pure red in B,G,R order

	g, err := Gray(f)
	if err != nil {
		t.Fatalf("Gray: %v", err)
	}
	if g.Pix[0] != 255 || g.Pix[1] != 0 {
		t.Errorf("white/black = %d/%d", g.Pix[0], g.Pix[1])
	}
	if g.Pix[2] < 75 || g.Pix[2] > 78 {
		t.Errorf("red luminance = %d, want ~76", g.Pix[2])
	}
}

func TestImageRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	f, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	back, err := ToImage(f)
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	if got := back.RGBAAt(1, 1); got != (color.RGBA{200, 100, 50, 255}) {
		t.Errorf("round trip pixel = %v", got)
	}
}
