package commands

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/overlay"
)

var decodeCmd = &cobra.Command{
	Use:   "decode FILE",
	Short: "Decode symbols in an image file",
	Long: `Decode every QR code and barcode found in an image file.

Supports PNG, JPEG, GIF, BMP, TIFF and WebP input. With --out, the image is
written back as PNG with every symbol outlined.`,
	Example: `  # List symbols in a screenshot
  scanstreamer decode screenshot.png

  # Print JSON and write an annotated copy
  scanstreamer decode photo.jpg --format json --out annotated.png

  # Only look for QR codes
  scanstreamer decode photo.jpg --formats qr`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var (
	decodeFormat  string
	decodeOut     string
	decodeFormats []string
	decodeLabels  bool
)

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "table", "output format (table or json)")
	decodeCmd.Flags().StringVarP(&decodeOut, "out", "o", "", "write an annotated PNG to this path")
	decodeCmd.Flags().StringSliceVar(&decodeFormats, "formats", nil, "symbol formats to enable (default all)")
	decodeCmd.Flags().BoolVar(&decodeLabels, "labels", false, "draw payload labels in the annotated image")
}

func runDecode(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	zx, err := decode.NewZXing(decodeFormats...)
	if err != nil {
		return err
	}
	renderer := overlay.NewRenderer(overlay.Options{Labels: decodeLabels})

	symbols, annotated, err := decodeImage(img, zx, renderer)
	if err != nil {
		return err
	}

	if decodeOut != "" {
		if err := writePNG(decodeOut, annotated); err != nil {
			return err
		}
	}

	switch decodeFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(symbols)
	case "table":
		return printSymbols(symbols)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", decodeFormat)
	}
}

// decodeImage finds symbols in img and returns them sorted together with
// an annotated copy of the image.
func decodeImage(img image.Image, dec decode.Decoder, renderer *overlay.Renderer) ([]decode.Symbol, *image.RGBA, error) {
	buf, err := frame.FromImage(img)
	if err != nil {
		return nil, nil, err
	}

	symbols, err := dec.Decode(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("decode failed: %w", err)
	}
	decode.SortByKey(symbols)

	renderer.Draw(buf, symbols)
	annotated, err := frame.ToImage(buf)
	if err != nil {
		return nil, nil, err
	}
	return symbols, annotated, nil
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return out.Close()
}

func printSymbols(symbols []decode.Symbol) error {
	if len(symbols) == 0 {
		fmt.Println("No symbols found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPAYLOAD\tLOCATION")
	fmt.Fprintln(w, "----\t-------\t--------")
	for _, s := range symbols {
		fmt.Fprintf(w, "%s\t%s\t%v\n", s.Type, s.Payload, s.Location)
	}
	return w.Flush()
}
