package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// ErrInvalidWAV is returned when a reader does not hold a RIFF/WAVE stream.
var ErrInvalidWAV = errors.New("invalid WAV data")

// WAVInfo contains information about a WAV stream
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       int // per channel
}

// WriteWAV encodes mono PCM-16 samples as a WAV file.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV stream into mono 16-bit samples. Multi-channel
// input is averaged down to one channel.
func ReadWAV(r io.ReadSeeker) ([]int16, WAVInfo, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, WAVInfo{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("failed to decode WAV samples: %w", err)
	}

	info := WAVInfo{
		SampleRate:    int(dec.SampleRate),
		Channels:      int(dec.NumChans),
		BitsPerSample: int(dec.BitDepth),
	}
	if info.Channels < 1 {
		return nil, info, fmt.Errorf("%w: %d channels", ErrInvalidWAV, info.Channels)
	}

	frames := len(buf.Data) / info.Channels
	info.Samples = frames

	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < info.Channels; c++ {
			sum += toPCM16(buf.Data[i*info.Channels+c], info.BitsPerSample)
		}
		samples[i] = int16(sum / info.Channels)
	}
	return samples, info, nil
}

// toPCM16 rescales a decoded sample of the given bit depth to 16 bits.
func toPCM16(v, bitDepth int) int {
	switch bitDepth {
	case 8:
		return (v - 128) << 8 // 8-bit WAV is unsigned
	case 24:
		return v >> 8
	case 32:
		return v >> 16
	default:
		return v
	}
}
