package commands

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/ScanStreamer/internal/api"
	"github.com/bryanchriswhite/ScanStreamer/internal/capture"
	"github.com/bryanchriswhite/ScanStreamer/internal/capture/webcam"
	"github.com/bryanchriswhite/ScanStreamer/internal/config"
	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/display"
	"github.com/bryanchriswhite/ScanStreamer/internal/driver"
	"github.com/bryanchriswhite/ScanStreamer/internal/events"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
	"github.com/bryanchriswhite/ScanStreamer/internal/output"
	"github.com/bryanchriswhite/ScanStreamer/internal/overlay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ScanStreamer server",
	Long: `Start the frame driver and the HTTP server.

Every tick the driver captures the configured screen region, decodes symbols,
outlines them and publishes the primary, raw and webcam textures as MJPEG
streams. Edits to the config file are picked up while running.`,
	Example: `  # Start server on default port (8080), capture off until enabled
  scanstreamer serve

  # Start capturing immediately with the webcam feed
  scanstreamer serve --capture --video --device 0

  # Show the debug window and capture a 512x512 region
  scanstreamer serve --capture --window --width 512 --height 512

  # Scan whatever window has focus
  scanstreamer serve --capture --follow-focus

  # Start with debug logging
  scanstreamer serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("capture", false, "enable capture on start")
	serveCmd.Flags().Bool("video", false, "enable the external device feed")
	serveCmd.Flags().Bool("window", false, "show the debug window")
	serveCmd.Flags().Int("device", 0, "capture device ID")
	serveCmd.Flags().Int("width", 0, "capture width (rounded to a power of two)")
	serveCmd.Flags().Int("height", 0, "capture height (rounded to a power of two)")
	serveCmd.Flags().Int("tick-hz", 0, "driver tick rate")
	serveCmd.Flags().Bool("follow-focus", false, "capture at the focused window instead of the fixed origin")

	viper.BindPFlag("capture.enabled", serveCmd.Flags().Lookup("capture"))
	viper.BindPFlag("capture.video_enabled", serveCmd.Flags().Lookup("video"))
	viper.BindPFlag("capture.window_enabled", serveCmd.Flags().Lookup("window"))
	viper.BindPFlag("capture.device_id", serveCmd.Flags().Lookup("device"))
	viper.BindPFlag("capture.width", serveCmd.Flags().Lookup("width"))
	viper.BindPFlag("capture.height", serveCmd.Flags().Lookup("height"))
	viper.BindPFlag("capture.tick_hz", serveCmd.Flags().Lookup("tick-hz"))
	viper.BindPFlag("capture.follow_focus", serveCmd.Flags().Lookup("follow-focus"))
}

// applyFlagOverrides copies flags that were set on the command line into cfg.
// Overrides apply to this run only and are not saved.
func applyFlagOverrides(cfg *config.Config) {
	if viper.IsSet("server_port") && viper.GetInt("server_port") > 0 {
		cfg.ServerPort = viper.GetInt("server_port")
	}
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		cfg.LogLevel = viper.GetString("log_level")
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"capture.enabled", &cfg.Capture.Enabled},
		{"capture.video_enabled", &cfg.Capture.VideoEnabled},
		{"capture.window_enabled", &cfg.Capture.WindowEnabled},
		{"capture.follow_focus", &cfg.Capture.FollowFocus},
	} {
		if viper.IsSet(b.key) {
			*b.dst = viper.GetBool(b.key)
		}
	}
	for _, n := range []struct {
		key string
		dst *int
	}{
		{"capture.device_id", &cfg.Capture.DeviceID},
		{"capture.width", &cfg.Capture.Width},
		{"capture.height", &cfg.Capture.Height},
		{"capture.tick_hz", &cfg.Capture.TickHz},
	} {
		if viper.IsSet(n.key) && viper.GetInt(n.key) > 0 {
			*n.dst = viper.GetInt(n.key)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("🔎 ScanStreamer - QR Code and Barcode Scanning Pipeline")
	fmt.Println("========================================================")

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	cfg := configMgr.Get()
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	scene, err := capture.NewX11Scene(capture.X11SceneOptions{
		Display:     cfg.Capture.Display,
		Origin:      image.Pt(cfg.Capture.OriginX, cfg.Capture.OriginY),
		FollowFocus: cfg.Capture.FollowFocus,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scene capture: %w", err)
	}
	defer scene.Close()

	decoder, err := decode.NewZXing(cfg.Capture.Formats...)
	if err != nil {
		return fmt.Errorf("failed to initialize decoder: %w", err)
	}
	log.Info().Strs("formats", decoder.Formats()).Msg("Decoder ready")

	bus := events.New()

	streams := output.NewHub(output.Config{
		Width:   cfg.Capture.Width,
		Height:  cfg.Capture.Height,
		FPS:     cfg.Stream.FPS,
		Quality: cfg.Stream.Quality,
	})
	if err := streams.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG outputs: %w", err)
	}
	defer streams.Stop()

	drv, err := driver.New(driver.Options{
		Switches: driver.Switches{
			Capture: cfg.Capture.Enabled,
			Video:   cfg.Capture.VideoEnabled,
			Window:  cfg.Capture.WindowEnabled,
		},
		DeviceID:       cfg.Capture.DeviceID,
		Resolution:     frame.Resolution{Width: cfg.Capture.Width, Height: cfg.Capture.Height},
		StrictReadback: cfg.Capture.StrictReadback,
		WindowTitle:    cfg.Capture.WindowTitle,
	}, driver.Deps{
		Scene:      scene,
		OpenDevice: webcam.Open,
		Decoder:    decoder,
		Renderer: overlay.NewRenderer(overlay.Options{
			LineWidth: cfg.Overlay.LineWidth,
			Labels:    cfg.Overlay.Labels,
		}),
		OpenWindow: display.OpenWindow,
		Sink:       streams,
		Bus:        bus,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize frame driver: %w", err)
	}

	watchConfig(configMgr, drv)

	server := api.NewServer(drv, configMgr, streams, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		drv.Run(ctx, cfg.Capture.TickHz)
	}()

	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	fmt.Println()
	log.Info().Msg("✅ ScanStreamer is running!")
	log.Info().Msgf("   - Status: http://localhost:%d/api/status", cfg.ServerPort)
	log.Info().Msgf("   - Stream: http://localhost:%d/stream/primary", cfg.ServerPort)
	log.Info().Msgf("   - Metrics: http://localhost:%d/metrics", cfg.ServerPort)
	log.Info().Msg("   - Press Ctrl+C to stop")
	fmt.Println()

	<-ctx.Done()

	fmt.Println()
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	<-driverDone
	return nil
}

// liveTarget is the part of the driver that follows config file edits.
type liveTarget interface {
	UpdateSwitches(fn func(*driver.Switches)) driver.Switches
	SetDeviceID(id int)
	SetResolution(res frame.Resolution)
}

// watchConfig pushes edits of the config file into the driver while
// running.
func watchConfig(configMgr *config.Manager, drv liveTarget) {
	var mu sync.Mutex
	prev := configMgr.Get()

	v := viper.New()
	v.SetConfigFile(configMgr.GetConfigPath())
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := configMgr.Reload(); err != nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		next := configMgr.Get()
		applyLiveConfig(prev, next, drv)
		prev = next
	})
	v.WatchConfig()
}

// applyLiveConfig pushes the settings that differ between prev and next
// into the driver. Values nobody edited in the file are left alone, so
// command line overrides and API changes survive writes made for other
// settings. Formats, tick rate and port need a restart.
func applyLiveConfig(prev, next *config.Config, drv liveTarget) {
	log := logger.WithComponent("serve")
	pc, nc := prev.Capture, next.Capture

	if pc.Enabled != nc.Enabled || pc.VideoEnabled != nc.VideoEnabled || pc.WindowEnabled != nc.WindowEnabled {
		sw := drv.UpdateSwitches(func(sw *driver.Switches) {
			if pc.Enabled != nc.Enabled {
				sw.Capture = nc.Enabled
			}
			if pc.VideoEnabled != nc.VideoEnabled {
				sw.Video = nc.VideoEnabled
			}
			if pc.WindowEnabled != nc.WindowEnabled {
				sw.Window = nc.WindowEnabled
			}
		})
		log.Info().
			Bool("capture", sw.Capture).
			Bool("video", sw.Video).
			Bool("window", sw.Window).
			Msg("Applied switch change")
	}
	if pc.DeviceID != nc.DeviceID {
		drv.SetDeviceID(nc.DeviceID)
		log.Info().Int("device_id", nc.DeviceID).Msg("Applied device change")
	}
	if pc.Width != nc.Width || pc.Height != nc.Height {
		drv.SetResolution(frame.Resolution{Width: nc.Width, Height: nc.Height})
		log.Info().Int("width", nc.Width).Int("height", nc.Height).Msg("Applied resolution change")
	}
	if prev.LogLevel != next.LogLevel {
		logger.SetLevel(next.LogLevel)
	}
}
