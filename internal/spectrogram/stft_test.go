package spectrogram

import (
	"math"
	"testing"
)

func sine(n, sampleRate int, freq, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestComputeEmpty(t *testing.T) {
	if s := Compute(nil, 44100, DefaultAnalysisConfig()); s != nil {
		t.Errorf("Expected nil spectrogram for empty input, got %+v", s)
	}
}

func TestComputeShape(t *testing.T) {
	// 88200 samples, 256/32 segments: (88200-256)/224 + 1 = 393 frames
	s := Compute(make([]int16, 88200), 44100, DefaultAnalysisConfig())

	if len(s.Times) != 393 {
		t.Errorf("Expected 393 segments, got %d", len(s.Times))
	}
	if len(s.Freqs) != 129 {
		t.Errorf("Expected 129 frequency bins, got %d", len(s.Freqs))
	}
	if s.Freqs[128] != 22050 {
		t.Errorf("Expected last bin at Nyquist 22050Hz, got %f", s.Freqs[128])
	}
	if want := 128.0 / 44100; math.Abs(s.Times[0]-want) > 1e-12 {
		t.Errorf("Expected first segment center %f, got %f", want, s.Times[0])
	}
	if want := (128.0 + 392*224) / 44100; math.Abs(s.Times[392]-want) > 1e-12 {
		t.Errorf("Expected last segment center %f, got %f", want, s.Times[392])
	}
}

func TestComputeSilenceIsZeroPower(t *testing.T) {
	s := Compute(make([]int16, 4096), 8000, DefaultAnalysisConfig())

	for ti, row := range s.Power {
		for fi, p := range row {
			if p != 0 {
				t.Fatalf("Expected zero power at [%d][%d], got %g", ti, fi, p)
			}
			db := Decibels(p)
			if math.IsInf(db, 0) || math.IsNaN(db) {
				t.Fatalf("Non-finite dB value at [%d][%d]: %f", ti, fi, db)
			}
			if math.Abs(db+100) > 1e-9 {
				t.Fatalf("Expected floor of -100 dB, got %f", db)
			}
		}
	}
}

func TestComputeConstantOffsetRemoved(t *testing.T) {
	samples := make([]int16, 1024)
	for i := range samples {
		samples[i] = 500
	}
	s := Compute(samples, 8000, DefaultAnalysisConfig())

	for _, row := range s.Power {
		for _, p := range row {
			if p > 1e-12 {
				t.Fatalf("Expected DC offset removed by detrending, got power %g", p)
			}
		}
	}
}

func TestComputeSinePeak(t *testing.T) {
	const rate = 8000
	s := Compute(sine(8000, rate, 1000, 10000), rate, DefaultAnalysisConfig())

	// 1000Hz at 8000/256 = 31.25Hz per bin is bin 32
	for ti, row := range s.Power {
		peak := 0
		for f := range row {
			if row[f] > row[peak] {
				peak = f
			}
		}
		if peak != 32 {
			t.Fatalf("Segment %d: expected peak at bin 32 (1000Hz), got bin %d (%fHz)", ti, peak, s.Freqs[peak])
		}
	}
}

func TestComputeShortInput(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"single sample", 1},
		{"two samples", 2},
		{"shorter than a segment", 100},
		{"exactly one segment", 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(sine(tt.n, 8000, 440, 1000), 8000, DefaultAnalysisConfig())
			if s == nil {
				t.Fatal("Expected a spectrogram")
			}
			if len(s.Times) != 1 {
				t.Errorf("Expected one segment, got %d", len(s.Times))
			}
			for _, p := range s.Power[0] {
				if math.IsNaN(p) || math.IsInf(p, 0) {
					t.Fatalf("Non-finite power: %f", p)
				}
			}
		})
	}
}

func TestDecibels(t *testing.T) {
	tests := []struct {
		power    float64
		expected float64
	}{
		{1, 0},
		{100, 20},
		{0, -100},
		{-1, -100},
		{1e-12, -120},
		{1e-10, -100},
		{math.NaN(), -100},
		{math.SmallestNonzeroFloat64, 10 * math.Log10(math.SmallestNonzeroFloat64)},
	}

	for _, tt := range tests {
		if got := Decibels(tt.power); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Decibels(%g) = %f, want %f", tt.power, got, tt.expected)
		}
	}
}

func TestTimeAxis(t *testing.T) {
	// 2 seconds at 44.1kHz
	axis := TimeAxis(88200, 44100)

	if len(axis) != 88200 {
		t.Fatalf("Expected 88200 points, got %d", len(axis))
	}
	if axis[0] != 0 {
		t.Errorf("Expected axis to start at 0, got %f", axis[0])
	}
	if axis[len(axis)-1] != 2.0 {
		t.Errorf("Expected axis to end at 2.0, got %f", axis[len(axis)-1])
	}
	for i := 1; i < len(axis); i++ {
		if axis[i] <= axis[i-1] {
			t.Fatalf("Axis not increasing at %d", i)
		}
	}

	if got := TimeAxis(0, 44100); got != nil {
		t.Errorf("Expected nil axis for no samples, got %v", got)
	}
	if got := TimeAxis(1, 44100); len(got) != 1 || got[0] != 0 {
		t.Errorf("Expected [0] for one sample, got %v", got)
	}
}

func TestTukeyWindow(t *testing.T) {
	w := tukeyWindow(256, 0.25)

	if len(w) != 256 {
		t.Fatalf("Expected 256 coefficients, got %d", len(w))
	}
	if w[0] != 0 {
		t.Errorf("Expected window to start at 0, got %f", w[0])
	}
	if w[128] != 1 {
		t.Errorf("Expected flat top of 1, got %f", w[128])
	}
	// periodic window: w[i] == w[m-i]
	for i := 1; i < 128; i++ {
		if math.Abs(w[i]-w[256-i]) > 1e-12 {
			t.Fatalf("Window not periodic-symmetric at %d: %f vs %f", i, w[i], w[256-i])
		}
	}
}
