package audio

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrBufferFull is returned by Append when the buffer reached its sample cap.
var ErrBufferFull = errors.New("audio buffer is full")

// Buffer is the append-only sample store of one recording session.
//
// There is exactly one writer (the capture goroutine) and any number of
// readers. The writer only ever writes past the length of the published
// slice header, so readers holding an older header see a valid prefix and
// never a partially written sample. Reset is a writer operation and must not
// run concurrently with Append.
type Buffer struct {
	sampleRate int
	maxSamples int // 0 means unbounded

	samples atomic.Pointer[[]int16]

	// writer-owned backing slice
	data []int16
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Samples         int     `json:"samples"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	MaxSamples      int     `json:"max_samples,omitempty"`
}

// NewBuffer creates an empty buffer. maxDuration of zero leaves it unbounded.
func NewBuffer(sampleRate int, maxDuration time.Duration) *Buffer {
	b := &Buffer{
		sampleRate: sampleRate,
		maxSamples: int(maxDuration.Seconds() * float64(sampleRate)),
	}
	b.Reset()
	return b
}

// SampleRate returns the rate the buffer contents were captured at.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// Reset drops all samples. Readers holding an earlier snapshot keep it.
func (b *Buffer) Reset() {
	// Pre-allocate for 2 seconds of audio
	b.data = make([]int16, 0, b.sampleRate*2)
	empty := b.data[:0:0]
	b.samples.Store(&empty)
}

// Append adds a chunk in capture order and publishes it to readers. When a
// cap is configured, the chunk is truncated to fit and ErrBufferFull is
// returned once the cap is reached.
func (b *Buffer) Append(chunk []int16) error {
	var full bool
	if b.maxSamples > 0 {
		room := b.maxSamples - len(b.data)
		if room <= 0 {
			return ErrBufferFull
		}
		if len(chunk) >= room {
			chunk = chunk[:room]
			full = true
		}
	}

	b.data = append(b.data, chunk...)
	published := b.data[:len(b.data):len(b.data)]
	b.samples.Store(&published)

	if full {
		return ErrBufferFull
	}
	return nil
}

// Len returns the number of published samples.
func (b *Buffer) Len() int {
	return len(*b.samples.Load())
}

// Snapshot returns a copy of the published samples.
func (b *Buffer) Snapshot() []int16 {
	view := *b.samples.Load()
	out := make([]int16, len(view))
	copy(out, view)
	return out
}

// Duration returns the captured audio length.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Len()) / float64(b.sampleRate) * float64(time.Second))
}

// GetStats returns buffer statistics
func (b *Buffer) GetStats() BufferStats {
	n := b.Len()
	stats := BufferStats{
		Samples:    n,
		SampleRate: b.sampleRate,
		MaxSamples: b.maxSamples,
	}
	if b.sampleRate > 0 {
		stats.DurationSeconds = float64(n) / float64(b.sampleRate)
	}
	return stats
}
