package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(44100, 0)

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d samples", buffer.Len())
	}
	if buffer.SampleRate() != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", buffer.SampleRate())
	}
	if got := buffer.Snapshot(); len(got) != 0 {
		t.Errorf("Expected empty snapshot, got %d samples", len(got))
	}
}

func TestBufferAppendPreservesOrder(t *testing.T) {
	buffer := NewBuffer(8000, 0)

	for chunk := 0; chunk < 10; chunk++ {
		samples := make([]int16, 100)
		for i := range samples {
			samples[i] = int16(chunk*100 + i)
		}
		if err := buffer.Append(samples); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	snapshot := buffer.Snapshot()
	if len(snapshot) != 1000 {
		t.Fatalf("Expected 1000 samples, got %d", len(snapshot))
	}
	for i, s := range snapshot {
		if int(s) != i {
			t.Fatalf("Sample %d out of order: got %d", i, s)
		}
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	buffer := NewBuffer(8000, 0)
	buffer.Append([]int16{1, 2, 3})

	snapshot := buffer.Snapshot()
	snapshot[0] = 42

	if got := buffer.Snapshot()[0]; got != 1 {
		t.Errorf("Snapshot mutation leaked into buffer: got %d", got)
	}
}

func TestBufferReset(t *testing.T) {
	buffer := NewBuffer(8000, 0)
	buffer.Append([]int16{1, 2, 3})

	old := buffer.Snapshot()
	buffer.Reset()

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", buffer.Len())
	}
	if len(old) != 3 {
		t.Errorf("Earlier snapshot changed after reset: %d samples", len(old))
	}

	buffer.Append([]int16{7})
	if got := buffer.Snapshot(); len(got) != 1 || got[0] != 7 {
		t.Errorf("Unexpected contents after reset and append: %v", got)
	}
}

func TestBufferCap(t *testing.T) {
	// 10ms at 1kHz = 10 samples
	buffer := NewBuffer(1000, 10*time.Millisecond)

	if err := buffer.Append(make([]int16, 6)); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if err := buffer.Append(make([]int16, 6)); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Expected ErrBufferFull, got %v", err)
	}
	if buffer.Len() != 10 {
		t.Errorf("Expected buffer truncated to 10 samples, got %d", buffer.Len())
	}
	if err := buffer.Append([]int16{1}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("Expected ErrBufferFull on full buffer, got %v", err)
	}
}

func TestBufferConcurrentReadersSeeMonotonicLength(t *testing.T) {
	buffer := NewBuffer(8000, 0)
	const chunks = 500

	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-done:
					return
				default:
				}
				snapshot := buffer.Snapshot()
				if len(snapshot) < last {
					t.Errorf("Length went backwards: %d after %d", len(snapshot), last)
					return
				}
				for i, s := range snapshot {
					if s != int16(i%128) {
						t.Errorf("Corrupt sample at %d: %d", i, s)
						return
					}
				}
				last = len(snapshot)
			}
		}()
	}

	pos := 0
	for c := 0; c < chunks; c++ {
		chunk := make([]int16, 64)
		for i := range chunk {
			chunk[i] = int16(pos % 128)
			pos++
		}
		buffer.Append(chunk)
	}
	close(done)
	wg.Wait()

	if buffer.Len() != chunks*64 {
		t.Errorf("Expected %d samples, got %d", chunks*64, buffer.Len())
	}
}

func TestBufferStats(t *testing.T) {
	buffer := NewBuffer(44100, 0)
	buffer.Append(make([]int16, 88200))

	stats := buffer.GetStats()
	if stats.Samples != 88200 {
		t.Errorf("Expected 88200 samples, got %d", stats.Samples)
	}
	if stats.DurationSeconds != 2.0 {
		t.Errorf("Expected 2s duration, got %f", stats.DurationSeconds)
	}
	if buffer.Duration() != 2*time.Second {
		t.Errorf("Expected Duration 2s, got %v", buffer.Duration())
	}
}
