package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/ScanStreamer/internal/logger"
)

type field struct {
	get func(c *Config) any
	set func(c *Config, v string) error
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean: %s (use: true or false)", v)
			}
			*p(c) = b
			return nil
		},
	}
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) any { return *p(c) },
		set: func(c *Config, v string) error {
			*p(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"capture.enabled":         boolField(func(c *Config) *bool { return &c.Capture.Enabled }),
	"capture.video_enabled":   boolField(func(c *Config) *bool { return &c.Capture.VideoEnabled }),
	"capture.window_enabled":  boolField(func(c *Config) *bool { return &c.Capture.WindowEnabled }),
	"capture.device_id":       intField(func(c *Config) *int { return &c.Capture.DeviceID }),
	"capture.width":           intField(func(c *Config) *int { return &c.Capture.Width }),
	"capture.height":          intField(func(c *Config) *int { return &c.Capture.Height }),
	"capture.tick_hz":         intField(func(c *Config) *int { return &c.Capture.TickHz }),
	"capture.strict_readback": boolField(func(c *Config) *bool { return &c.Capture.StrictReadback }),
	"capture.display":         stringField(func(c *Config) *string { return &c.Capture.Display }),
	"capture.origin_x":        intField(func(c *Config) *int { return &c.Capture.OriginX }),
	"capture.origin_y":        intField(func(c *Config) *int { return &c.Capture.OriginY }),
	"capture.follow_focus":    boolField(func(c *Config) *bool { return &c.Capture.FollowFocus }),
	"capture.window_title":    stringField(func(c *Config) *string { return &c.Capture.WindowTitle }),
	"capture.formats": {
		get: func(c *Config) any { return strings.Join(c.Capture.Formats, ",") },
		set: func(c *Config, v string) error {
			var formats []string
			for _, f := range strings.Split(v, ",") {
				if f = strings.TrimSpace(f); f != "" {
					formats = append(formats, f)
				}
			}
			c.Capture.Formats = formats
			return nil
		},
	},
	"overlay.line_width": intField(func(c *Config) *int { return &c.Overlay.LineWidth }),
	"overlay.labels":     boolField(func(c *Config) *bool { return &c.Overlay.Labels }),
	"stream.fps":         intField(func(c *Config) *int { return &c.Stream.FPS }),
	"stream.quality":     intField(func(c *Config) *int { return &c.Stream.Quality }),
	"server_port":        intField(func(c *Config) *int { return &c.ServerPort }),
	"log_level": {
		get: func(c *Config) any { return c.LogLevel },
		set: func(c *Config, v string) error {
			switch v {
			case "trace", "debug", "info", "warn", "error":
				c.LogLevel = v
				return nil
			}
			return fmt.Errorf("invalid log level: %s (use: trace, debug, info, warn, error)", v)
		},
	},
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Lookup returns the value stored under a dotted key.
func (c *Config) Lookup(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return f.get(c), nil
}

// SetValue parses value for a dotted key and stores it.
func (c *Config) SetValue(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	return f.set(c, value)
}

// Set updates one key, validates the result and saves it.
func (m *Manager) Set(key, value string) error {
	cfg := m.Get()
	if err := cfg.SetValue(key, value); err != nil {
		return err
	}
	if err := m.Update(cfg); err != nil {
		return err
	}
	logger.WithComponent("config").Info().Str("key", key).Str("value", value).Msg("Config value updated")
	return nil
}
