package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

// Config is the persisted application configuration
type Config struct {
	Capture    CaptureConfig `json:"capture" yaml:"capture"`
	Overlay    OverlayConfig `json:"overlay" yaml:"overlay"`
	Stream     StreamConfig  `json:"stream" yaml:"stream"`
	ServerPort int           `json:"server_port" yaml:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level"`
}

// CaptureConfig holds the frame driver settings
type CaptureConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	VideoEnabled   bool     `json:"video_enabled" yaml:"video_enabled"`
	WindowEnabled  bool     `json:"window_enabled" yaml:"window_enabled"`
	DeviceID       int      `json:"device_id" yaml:"device_id"`
	Width          int      `json:"width" yaml:"width"`
	Height         int      `json:"height" yaml:"height"`
	TickHz         int      `json:"tick_hz" yaml:"tick_hz"`
	StrictReadback bool     `json:"strict_readback" yaml:"strict_readback"`
	Display        string   `json:"display" yaml:"display"`
	OriginX        int      `json:"origin_x" yaml:"origin_x"`
	OriginY        int      `json:"origin_y" yaml:"origin_y"`
	FollowFocus    bool     `json:"follow_focus" yaml:"follow_focus"`
	WindowTitle    string   `json:"window_title,omitempty" yaml:"window_title,omitempty"`
	Formats        []string `json:"formats" yaml:"formats"`
}

// OverlayConfig controls how decoded symbols are drawn
type OverlayConfig struct {
	LineWidth int  `json:"line_width" yaml:"line_width"`
	Labels    bool `json:"labels" yaml:"labels"`
}

// StreamConfig controls the MJPEG texture streams
type StreamConfig struct {
	FPS     int `json:"fps" yaml:"fps"`
	Quality int `json:"quality" yaml:"quality"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/scanstreamer/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "scanstreamer", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Bool("capture_enabled", m.config.Capture.Enabled).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Capture: CaptureConfig{
			Width:          1024,
			Height:         1024,
			TickHz:         30,
			StrictReadback: true,
			Formats:        decode.AllFormats(),
		},
		Overlay: OverlayConfig{
			LineWidth: 2,
		},
		Stream: StreamConfig{
			FPS:     30,
			Quality: 90,
		},
		ServerPort: 8080,
		LogLevel:   "info",
	}
}

// load reads the configuration from disk. Zero values fall back to defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Reload re-reads the file, keeping the current config if it is invalid.
func (m *Manager) Reload() error {
	if err := m.load(); err != nil {
		logger.WithComponent("config").Warn().
			Err(err).
			Str("path", m.configPath).
			Msg("Config reload failed, keeping previous config")
		return err
	}
	logger.WithComponent("config").Info().Str("path", m.configPath).Msg("Config reloaded")
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Capture.TickHz <= 0 {
		return fmt.Errorf("capture.tick_hz must be positive, got %d", c.Capture.TickHz)
	}
	if c.Capture.DeviceID < 0 {
		return fmt.Errorf("capture.device_id must not be negative, got %d", c.Capture.DeviceID)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	if c.Overlay.LineWidth < 0 {
		return fmt.Errorf("overlay.line_width must not be negative, got %d", c.Overlay.LineWidth)
	}
	for _, f := range c.Capture.Formats {
		if !slices.Contains(decode.AllFormats(), f) {
			return fmt.Errorf("unknown symbol format %q", f)
		}
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Capture.Formats = slices.Clone(m.config.Capture.Formats)
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()
	log := logger.WithComponent("config")

	log.Debug().Str("path", m.configPath).Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", configDir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Info().Str("path", m.configPath).Msg("Config saved successfully")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
