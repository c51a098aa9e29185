package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "scanstreamer",
		Short: "ScanStreamer - QR code and barcode scanning pipeline",
		Long: `ScanStreamer captures a region of the X11 screen every tick, decodes any
QR codes and barcodes it finds, outlines them and publishes the annotated
frames as MJPEG streams.

Features:
  • Scene capture from the X11 root window
  • Optional webcam feed through OpenCV
  • QR, Data Matrix, Code 128, Code 39 and EAN decoding
  • De-duplicated decode history per capture session
  • REST and WebSocket API, Prometheus metrics
  • Optional native debug window`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scanstreamer/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", true, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if level := viper.GetString("log_level"); level != "" {
		logger.Init(level, viper.GetBool("pretty"))
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
