package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/ScanStreamer/internal/config"
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported symbol formats",
	Long: `List the symbol formats ScanStreamer can decode and whether each one is
enabled in the current configuration.`,
	Example: `  # Show formats as a table (default)
  scanstreamer formats

  # Show formats as JSON
  scanstreamer formats --format json`,
	RunE: runFormats,
}

var formatsFormat string

type formatInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func init() {
	rootCmd.AddCommand(formatsCmd)

	formatsCmd.Flags().StringVarP(&formatsFormat, "format", "f", "table", "output format (table or json)")
}

func runFormats(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	enabled := make(map[string]bool)
	for _, f := range configMgr.Get().Capture.Formats {
		enabled[f] = true
	}

	var infos []formatInfo
	for _, f := range decode.AllFormats() {
		infos = append(infos, formatInfo{Name: f, Enabled: enabled[f]})
	}

	switch formatsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tENABLED")
		fmt.Fprintln(w, "------\t-------")
		for _, info := range infos {
			status := "  "
			if info.Enabled {
				status = "✓"
			}
			fmt.Fprintf(w, "%s\t%s\n", info.Name, status)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", formatsFormat)
	}
}
