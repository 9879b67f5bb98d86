package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvTranscriptionAPIKey = "SESBIL_TRANSCRIPTION_API_KEY"
	EnvOpenAIAPIKey        = "OPENAI_API_KEY"
	EnvHTTPAddress         = "SESBIL_HTTP_ADDRESS"
	EnvLogLevel            = "SESBIL_LOG_LEVEL"
)

// SyntheticDevice selects the built-in test tone instead of a microphone.
const SyntheticDevice = "synthetic"

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Spectrogram   SpectrogramConfig   `yaml:"spectrogram"`
	Stream        StreamConfig        `yaml:"stream"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
	ChunkSize  int `yaml:"chunk_size"` // frames per device read
	// MaxDuration caps a recording in seconds; 0 records until stopped.
	MaxDuration float64 `yaml:"max_duration"`
	// Device is a PortAudio input device name, empty for the system default
	// or "synthetic" for a generated test tone.
	Device string `yaml:"device"`
}

// SpectrogramConfig contains rendering parameters
type SpectrogramConfig struct {
	Width         int     `yaml:"width"`  // pixels
	Height        int     `yaml:"height"` // pixels
	Background    string  `yaml:"background"`
	SegmentLength int     `yaml:"segment_length"` // samples
	Overlap       int     `yaml:"overlap"`        // samples
	TukeyAlpha    float64 `yaml:"tukey_alpha"`
}

// StreamConfig contains viewer streaming parameters
type StreamConfig struct {
	FrameInterval float64 `yaml:"frame_interval"` // seconds
	WriteTimeout  int     `yaml:"write_timeout"`  // seconds
}

// VADConfig contains speech gate configuration
type VADConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Threshold        float64 `yaml:"threshold"`
	Window           float64 `yaml:"window"` // seconds
	MinVoicedWindows int     `yaml:"min_voiced_windows"`
}

// TranscriptionConfig contains speech-to-text configuration
type TranscriptionConfig struct {
	Provider       string `yaml:"provider"` // "openai" or "http"
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Locale         string `yaml:"locale"`
	Prefix         string `yaml:"prefix"`
	RequireStopped bool   `yaml:"require_stopped"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	TempDir        string `yaml:"temp_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// Rotation settings, used when Output is a file path
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8000,
			Address:         "0.0.0.0",
			ReadTimeout:     10,
			ShutdownTimeout: 10,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			BitDepth:   16,
			ChunkSize:  4096,
		},
		Spectrogram: SpectrogramConfig{
			Width:         1000,
			Height:        500,
			Background:    "#2bacc9",
			SegmentLength: 256,
			Overlap:       32,
			TukeyAlpha:    0.25,
		},
		Stream: StreamConfig{
			FrameInterval: 0.001,
			WriteTimeout:  10,
		},
		VAD: VADConfig{
			Enabled:          true,
			Threshold:        0.01,
			Window:           0.03,
			MinVoicedWindows: 3,
		},
		Transcription: TranscriptionConfig{
			Provider:       "openai",
			Model:          "whisper-1",
			Locale:         "tr-TR",
			Prefix:         "ilk mesaj",
			RequireStopped: true,
			Timeout:        30,
			MaxRetries:     3,
			MaxConcurrent:  4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides and validates the result. An empty path uses the
// defaults alone. Variables from a .env file in the working directory are
// loaded first without replacing ones already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides settings from environment variables looked up with
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvTranscriptionAPIKey); v != "" {
		c.Transcription.APIKey = v
	} else if v := getenv(EnvOpenAIAPIKey); v != "" && c.Transcription.APIKey == "" && c.Transcription.Provider == "openai" {
		c.Transcription.APIKey = v
	}

	if v := getenv(EnvHTTPAddress); v != "" {
		if host, port, err := net.SplitHostPort(v); err == nil {
			if p, err := strconv.Atoi(port); err == nil {
				c.HTTP.Address = host
				c.HTTP.Port = p
			}
		} else {
			c.HTTP.Address = v
		}
	}

	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Spectrogram.Validate(); err != nil {
		return fmt.Errorf("spectrogram config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout cannot be negative, got %d", h.ReadTimeout)
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", a.ChunkSize)
	}

	if a.MaxDuration < 0 {
		return fmt.Errorf("max_duration cannot be negative, got %f", a.MaxDuration)
	}

	return nil
}

// Validate validates spectrogram configuration
func (s *SpectrogramConfig) Validate() error {
	if s.Width < 100 || s.Height < 100 {
		return fmt.Errorf("image must be at least 100x100 pixels, got %dx%d", s.Width, s.Height)
	}

	if _, err := ParseColor(s.Background); err != nil {
		return fmt.Errorf("background: %w", err)
	}

	if s.SegmentLength < 2 {
		return fmt.Errorf("segment_length must be at least 2, got %d", s.SegmentLength)
	}

	if s.Overlap < 0 || s.Overlap >= s.SegmentLength {
		return fmt.Errorf("overlap must be between 0 and segment_length (%d), got %d", s.SegmentLength, s.Overlap)
	}

	if s.TukeyAlpha < 0 || s.TukeyAlpha > 1 {
		return fmt.Errorf("tukey_alpha must be between 0 and 1, got %f", s.TukeyAlpha)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.FrameInterval < 0 {
		return fmt.Errorf("frame_interval cannot be negative, got %f", s.FrameInterval)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates speech gate configuration
func (v *VADConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.Window <= 0 {
		return fmt.Errorf("window must be positive, got %f", v.Window)
	}

	if v.MinVoicedWindows < 1 {
		return fmt.Errorf("min_voiced_windows must be at least 1, got %d", v.MinVoicedWindows)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key is required for the openai provider (set transcription.api_key, %s or %s)", EnvTranscriptionAPIKey, EnvOpenAIAPIKey)
		}
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http provider")
		}
	default:
		return fmt.Errorf("provider must be 'openai' or 'http', got '%s'", t.Provider)
	}

	if t.Locale == "" {
		return fmt.Errorf("locale cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("rotation settings cannot be negative")
	}

	return nil
}

// Addr returns the listen address.
func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetMaxDuration returns the recording cap as a time.Duration
func (a *AudioConfig) GetMaxDuration() time.Duration {
	return time.Duration(a.MaxDuration * float64(time.Second))
}

// GetBackground returns the parsed background color
func (s *SpectrogramConfig) GetBackground() color.Color {
	c, err := ParseColor(s.Background)
	if err != nil {
		return color.White
	}
	return c
}

// GetFrameInterval returns the frame interval as a time.Duration
func (s *StreamConfig) GetFrameInterval() time.Duration {
	return time.Duration(s.FrameInterval * float64(time.Second))
}

// GetWriteTimeoutDuration returns the frame write timeout as a time.Duration
func (s *StreamConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetWindowDuration returns the analysis window as a time.Duration
func (v *VADConfig) GetWindowDuration() time.Duration {
	return time.Duration(v.Window * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// ParseColor parses a "#rrggbb" color.
func ParseColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("color must be in #rrggbb form, got '%s'", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color '%s': %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
