package vad

import (
	"math"
	"testing"
	"time"
)

func tone(n, sampleRate int, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return samples
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(DefaultConfig())
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func TestNewProcessorValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"negative threshold", Config{Threshold: -0.1, Window: time.Millisecond, MinVoicedWindows: 1}, true},
		{"threshold above one", Config{Threshold: 1.5, Window: time.Millisecond, MinVoicedWindows: 1}, true},
		{"zero window", Config{Threshold: 0.1, MinVoicedWindows: 1}, true},
		{"zero voiced windows", Config{Threshold: 0.1, Window: time.Millisecond}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.cfg)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestEnergy(t *testing.T) {
	tests := []struct {
		name     string
		window   []int16
		expected float64
	}{
		{"empty", nil, 0},
		{"silence", make([]int16, 100), 0},
		{"full scale negative", []int16{-32768, -32768}, 1},
		{"half scale", []int16{16384, -16384}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Energy(tt.window); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Energy() = %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestAnalyzeSilence(t *testing.T) {
	p := newTestProcessor(t)

	a := p.Analyze(make([]int16, 8000), 8000)
	if a.HasSpeech {
		t.Error("Expected silence to be rejected")
	}
	// 30ms windows at 8kHz are 240 samples: 33 full windows and a partial one
	if a.Windows != 34 {
		t.Errorf("Expected 34 windows, got %d", a.Windows)
	}
	if a.VoicedWindows != 0 || len(a.Segments) != 0 {
		t.Errorf("Expected no voiced windows, got %d (%d segments)", a.VoicedWindows, len(a.Segments))
	}
}

func TestAnalyzeSegments(t *testing.T) {
	p := newTestProcessor(t)

	// 0.5s silence, 0.5s tone, 0.5s silence
	samples := make([]int16, 0, 12000)
	samples = append(samples, make([]int16, 4000)...)
	samples = append(samples, tone(4000, 8000, 8000)...)
	samples = append(samples, make([]int16, 4000)...)

	a := p.Analyze(samples, 8000)
	if !a.HasSpeech {
		t.Fatal("Expected speech to be detected")
	}
	if len(a.Segments) != 1 {
		t.Fatalf("Expected one segment, got %d", len(a.Segments))
	}

	seg := a.Segments[0]
	if seg.Start < 400*time.Millisecond || seg.Start > 500*time.Millisecond {
		t.Errorf("Expected segment to start near 0.5s, got %v", seg.Start)
	}
	if seg.End < time.Second || seg.End > 1100*time.Millisecond {
		t.Errorf("Expected segment to end near 1s, got %v", seg.End)
	}
	if a.SpeechDuration() != seg.Duration() {
		t.Errorf("Expected speech duration %v, got %v", seg.Duration(), a.SpeechDuration())
	}
	if a.PeakEnergy < 0.1 {
		t.Errorf("Expected tone peak energy, got %f", a.PeakEnergy)
	}
}

func TestHasSpeechShortBurst(t *testing.T) {
	p := newTestProcessor(t)

	// a single click shorter than the minimum run is not speech
	samples := make([]int16, 8000)
	copy(samples[2400:], tone(240, 8000, 8000))
	if p.Analyze(samples, 8000).HasSpeech {
		t.Error("Expected a single voiced window to be rejected")
	}

	// a recording that is one voiced window long is accepted
	if !p.Analyze(tone(100, 8000, 8000), 8000).HasSpeech {
		t.Error("Expected a fully voiced short recording to pass")
	}
}

func TestGetStats(t *testing.T) {
	p := newTestProcessor(t)

	p.Analyze(make([]int16, 2400), 8000)
	p.Analyze(tone(2400, 8000, 8000), 8000)

	stats := p.GetStats()
	if stats.Analyses != 2 {
		t.Errorf("Expected 2 analyses, got %d", stats.Analyses)
	}
	if stats.Rejected != 1 {
		t.Errorf("Expected 1 rejected analysis, got %d", stats.Rejected)
	}
	if stats.TotalWindows != 20 || stats.VoiceWindows != 10 {
		t.Errorf("Expected 10 of 20 voiced windows, got %d of %d", stats.VoiceWindows, stats.TotalWindows)
	}
	if stats.VoicePercentage != 50 {
		t.Errorf("Expected 50%% voiced, got %f", stats.VoicePercentage)
	}
	if stats.Threshold != DefaultConfig().Threshold {
		t.Errorf("Expected threshold %f, got %f", DefaultConfig().Threshold, stats.Threshold)
	}
}
