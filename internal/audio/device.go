package audio

import (
	"context"
	"errors"
)

// ErrInputOverflow reports a device read whose samples were dropped by the
// driver. Callers treat it as a lost chunk, not as a device failure.
var ErrInputOverflow = errors.New("audio input overflowed")

// StreamConfig describes the PCM format requested from an input device.
type StreamConfig struct {
	SampleRate int
	Channels   int
	ChunkSize  int // samples per read
}

// Device opens input streams. Implementations: portaudio.Device for a real
// microphone, SynthDevice for generated signals.
type Device interface {
	Name() string
	Open(cfg StreamConfig) (InputStream, error)
}

// InputStream delivers interleaved 16-bit samples.
type InputStream interface {
	// Read fills buf completely or returns an error. A blocking
	// implementation may ignore ctx; it must still return within one chunk
	// duration.
	Read(ctx context.Context, buf []int16) error
	Close() error
}

// DeviceInfo describes an input device available on the host.
type DeviceInfo struct {
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	Default           bool    `json:"default"`
}
