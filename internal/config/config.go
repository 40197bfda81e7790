// Package config loads the YAML configuration file shared by the youbit
// commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tuomas-lb/youbit/internal/limits"
	"github.com/tuomas-lb/youbit/internal/settings"
	"github.com/tuomas-lb/youbit/internal/video"
)

// Config is the complete configuration of an encode or decode run
type Config struct {
	// Settings are the encoding parameters, also expected by the decoder when
	// no metadata is available
	Settings settings.Settings `yaml:"settings"`
	// Protocol adds or replaces per-codec frame filters
	Protocol video.Protocol `yaml:"protocol"`
	FFmpeg   video.FFmpeg   `yaml:"ffmpeg"`
	Limits   limits.Limits  `yaml:"limits"`
	Log      Log            `yaml:"log"`
}

// Log configures logrus
type Log struct {
	// Level is a logrus level name
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Settings: settings.Default(),
		Protocol: video.DefaultProtocol(),
		FFmpeg:   video.DefaultFFmpeg(),
		Limits:   limits.Default(),
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path over the defaults. Protocol entries in the file
// are merged with the default protocol.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Protocol = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", settings.ErrInvalidConfiguration, err)
	}
	cfg.Protocol = video.DefaultProtocol().Merge(cfg.Protocol)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section of c.
func (c *Config) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	for name, p := range c.Protocol {
		if p.DuplicatePeriod < 0 || p.Stride < 0 {
			return fmt.Errorf("%w: protocol %q has a negative period or stride", settings.ErrInvalidConfiguration, name)
		}
	}
	if c.FFmpeg.Binary == "" || c.FFmpeg.Probe == "" {
		return fmt.Errorf("%w: ffmpeg and ffprobe paths must be set", settings.ErrInvalidConfiguration)
	}
	if c.Limits.MaxFrames <= 0 || c.Limits.MaxFileSize <= 0 {
		return fmt.Errorf("%w: limits must be positive", settings.ErrInvalidConfiguration)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", settings.ErrInvalidConfiguration, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log format %q must be text or json", settings.ErrInvalidConfiguration, c.Log.Format)
	}
	return nil
}

// ApplyLogging configures the standard logrus logger from c.Log.
func (c *Config) ApplyLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: %v", settings.ErrInvalidConfiguration, err)
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
