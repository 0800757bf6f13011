package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	recorder "github.com/koscakluka/ema-recorder/core"
	"gopkg.in/yaml.v3"
)

// Config represents the complete host configuration
type Config struct {
	Recorder RecorderConfig `yaml:"recorder"`
	Storage  StorageConfig  `yaml:"storage"`
	Capture  CaptureConfig  `yaml:"capture"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RecorderConfig is the segmentation configuration handed to the recorder.
type RecorderConfig = recorder.Config

// StorageConfig says where and how utterances are persisted.
type StorageConfig struct {
	// CacheDir defaults to the user cache directory when empty.
	CacheDir string `yaml:"cache_dir"`
	Codec    string `yaml:"codec"`
}

// CaptureConfig selects the audio backend.
type CaptureConfig struct {
	Backend string `yaml:"backend"`
	// BufferSize is the number of samples read per PortAudio call.
	BufferSize int `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables
// it.
type MetricsConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

const (
	CodecMP3 = "mp3"
	CodecWAV = "wav"

	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)

func Default() Config {
	return Config{
		Recorder: recorder.DefaultConfig(),
		Storage:  StorageConfig{Codec: CodecMP3},
		Capture:  CaptureConfig{Backend: BackendMiniaudio, BufferSize: 480},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{ReadHeaderTimeout: 5 * time.Second},
	}
}

// Load reads the file at path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Recorder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recorder config: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage config: %w", err))
	}
	if err := c.Capture.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture config: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging config: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics config: %w", err))
	}
	return errors.Join(errs...)
}

func (s *StorageConfig) Validate() error {
	switch s.Codec {
	case CodecMP3, CodecWAV:
		return nil
	default:
		return fmt.Errorf("codec must be %q or %q, got %q", CodecMP3, CodecWAV, s.Codec)
	}
}

func (c *CaptureConfig) Validate() error {
	switch c.Backend {
	case BackendMiniaudio:
	case BackendPortaudio:
		if c.BufferSize < 1 {
			return fmt.Errorf("buffer_size must be at least 1 sample, got %d", c.BufferSize)
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendMiniaudio, BackendPortaudio, c.Backend)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if _, err := l.SlogLevel(); err != nil {
		return err
	}

	switch l.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
}

// SlogLevel parses Level the way slog.Level.UnmarshalText does.
func (l *LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	return level, nil
}

func (m *MetricsConfig) Validate() error {
	if m.Addr != "" && m.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("read_header_timeout must be positive when metrics are served, got %v", m.ReadHeaderTimeout)
	}
	return nil
}
