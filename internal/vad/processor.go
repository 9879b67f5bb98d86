package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScale is the RMS of a full-scale 16-bit square wave.
const fullScale = 32768.0

// Config controls the speech gate
type Config struct {
	// Threshold is the normalized RMS energy (0..1) a window must reach to
	// count as voiced.
	Threshold float64
	// Window is the analysis window length.
	Window time.Duration
	// MinVoicedWindows is how many voiced windows a recording needs to be
	// considered speech.
	MinVoicedWindows int
}

// DefaultConfig returns a gate tuned for close-talking microphones.
func DefaultConfig() Config {
	return Config{
		Threshold:        0.01,
		Window:           30 * time.Millisecond,
		MinVoicedWindows: 3,
	}
}

// Validate checks the gate configuration
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", c.Threshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if c.MinVoicedWindows <= 0 {
		return fmt.Errorf("min voiced windows must be positive, got %d", c.MinVoicedWindows)
	}
	return nil
}

// Processor is an energy-based voice activity detector. It is safe for
// concurrent use.
type Processor struct {
	cfg Config

	mu           sync.Mutex
	totalWindows uint64
	voiceWindows uint64
	analyses     uint64
	rejected     uint64
}

// Segment is a run of consecutive voiced windows
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Analysis is the result of running the gate over a recording
type Analysis struct {
	Windows       int       `json:"windows"`
	VoicedWindows int       `json:"voiced_windows"`
	PeakEnergy    float64   `json:"peak_energy"`
	Segments      []Segment `json:"segments"`
	HasSpeech     bool      `json:"has_speech"`
}

// SpeechDuration returns the total length of the voiced segments.
func (a Analysis) SpeechDuration() time.Duration {
	var d time.Duration
	for _, seg := range a.Segments {
		d += seg.Duration()
	}
	return d
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	Analyses        uint64  `json:"analyses"`
	Rejected        uint64  `json:"rejected"`
	TotalWindows    uint64  `json:"total_windows"`
	VoiceWindows    uint64  `json:"voice_windows"`
	VoicePercentage float64 `json:"voice_percentage"`
	Threshold       float64 `json:"threshold"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg}, nil
}

// Energy returns the normalized RMS energy of window in 0..1.
func Energy(window []int16) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		v := float64(s)
		sum += v * v
	}
	return math.Min(math.Sqrt(sum/float64(len(window)))/fullScale, 1)
}

// Analyze splits samples into windows and marks each voiced or silent. A
// trailing partial window is analyzed as well.
func (p *Processor) Analyze(samples []int16, sampleRate int) Analysis {
	size := int(math.Round(p.cfg.Window.Seconds() * float64(sampleRate)))
	if size <= 0 {
		size = 1
	}
	windowDur := func(i int) time.Duration {
		return time.Duration(float64(i) / float64(sampleRate) * float64(time.Second))
	}

	var a Analysis
	var current *Segment
	for off := 0; off < len(samples); off += size {
		end := min(off+size, len(samples))
		energy := Energy(samples[off:end])
		a.Windows++
		a.PeakEnergy = math.Max(a.PeakEnergy, energy)

		if energy >= p.cfg.Threshold && energy > 0 {
			a.VoicedWindows++
			if current == nil {
				current = &Segment{Start: windowDur(off)}
			}
			current.End = windowDur(end)
			continue
		}
		if current != nil {
			a.Segments = append(a.Segments, *current)
			current = nil
		}
	}
	if current != nil {
		a.Segments = append(a.Segments, *current)
	}

	a.HasSpeech = a.VoicedWindows >= p.cfg.MinVoicedWindows ||
		(a.VoicedWindows > 0 && a.VoicedWindows == a.Windows)

	p.mu.Lock()
	p.analyses++
	p.totalWindows += uint64(a.Windows)
	p.voiceWindows += uint64(a.VoicedWindows)
	if !a.HasSpeech {
		p.rejected++
	}
	p.mu.Unlock()

	return a
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		Analyses:        p.analyses,
		Rejected:        p.rejected,
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		Threshold:       p.cfg.Threshold,
	}
}
