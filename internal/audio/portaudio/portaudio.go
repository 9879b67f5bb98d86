// Package portaudio implements audio.Device on top of the PortAudio library.
//
// Requires the PortAudio C library (pkg-config portaudio-2.0).
package portaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/hasanylld/sesbil/internal/audio"
)

// Device opens blocking input streams on a named host device, or on the
// default input device when DeviceName is empty.
type Device struct {
	DeviceName string
}

var _ audio.Device = (*Device)(nil)

// Name implements audio.Device.
func (d *Device) Name() string {
	if d.DeviceName == "" {
		return "default"
	}
	return d.DeviceName
}

// Open initializes PortAudio, opens and starts an input stream. The library
// reference taken here is released by the stream's Close.
func (d *Device) Open(cfg audio.StreamConfig) (audio.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	info, err := d.lookup()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.ChunkSize

	buf := make([]int16, cfg.ChunkSize*cfg.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", info.Name, err)
	}

	return &inputStream{stream: stream, buf: buf}, nil
}

func (d *Device) lookup() (*portaudio.DeviceInfo, error) {
	if d.DeviceName == "" {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, info := range devices {
		if info.Name == d.DeviceName && info.MaxInputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", d.DeviceName)
}

type inputStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// Read blocks for one chunk. ctx is not consulted: PortAudio reads can't be
// interrupted, they return after one buffer duration.
func (s *inputStream) Read(_ context.Context, buf []int16) error {
	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return audio.ErrInputOverflow
		}
		return fmt.Errorf("input stream read failed: %w", err)
	}
	copy(buf, s.buf)
	return nil
}

func (s *inputStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := portaudio.Terminate()
	return errors.Join(stopErr, closeErr, termErr)
}

// ListInputDevices returns host devices that can record.
func ListInputDevices() ([]audio.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	result := make([]audio.DeviceInfo, 0, len(devices))
	for _, info := range devices {
		if info.MaxInputChannels < 1 {
			continue
		}
		result = append(result, audio.DeviceInfo{
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           info.Name == defaultName,
		})
	}
	return result, nil
}
