package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Signal returns the sample at absolute index i for a given sample rate.
type Signal func(i, sampleRate int) int16

// Silence is an all-zero signal.
func Silence(int, int) int16 { return 0 }

// Sine returns a pure tone at freq Hz with the given peak amplitude.
func Sine(freq, amplitude float64) Signal {
	return func(i, sampleRate int) int16 {
		t := float64(i) / float64(sampleRate)
		return int16(amplitude * math.Sin(2*math.Pi*freq*t))
	}
}

// Chirp sweeps linearly from f0 to f1 Hz over period, then repeats. It has
// the broadband, time-varying energy of speech without needing a recording.
func Chirp(f0, f1 float64, period time.Duration, amplitude float64) Signal {
	return func(i, sampleRate int) int16 {
		t := math.Mod(float64(i)/float64(sampleRate), period.Seconds())
		k := (f1 - f0) / period.Seconds()
		return int16(amplitude * math.Sin(2*math.Pi*(f0*t+0.5*k*t*t)))
	}
}

// SynthDevice is a Device producing a generated Signal. With Realtime set
// every read blocks for one chunk duration like a microphone would.
type SynthDevice struct {
	Signal   Signal
	Realtime bool

	// OpenErr, when set, is returned by Open.
	OpenErr error
	// FailAfter, when positive, makes the stream fail after that many reads.
	FailAfter int

	mu     sync.Mutex
	opened int
	closed int
}

// Name implements Device.
func (d *SynthDevice) Name() string { return "synthetic" }

// Open implements Device.
func (d *SynthDevice) Open(cfg StreamConfig) (InputStream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid stream config: rate=%d chunk=%d", cfg.SampleRate, cfg.ChunkSize)
	}
	signal := d.Signal
	if signal == nil {
		signal = Silence
	}

	d.mu.Lock()
	d.opened++
	d.mu.Unlock()

	return &synthStream{
		dev:    d,
		cfg:    cfg,
		signal: signal,
		period: time.Duration(float64(cfg.ChunkSize) / float64(cfg.SampleRate) * float64(time.Second)),
	}, nil
}

// Opened returns how many streams were opened and closed so far.
func (d *SynthDevice) Opened() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.closed
}

type synthStream struct {
	dev    *SynthDevice
	cfg    StreamConfig
	signal Signal
	period time.Duration
	pos    int
	reads  int
}

func (s *synthStream) Read(ctx context.Context, buf []int16) error {
	if s.dev.FailAfter > 0 && s.reads >= s.dev.FailAfter {
		return fmt.Errorf("synthetic device failure after %d reads", s.reads)
	}
	if s.dev.Realtime {
		timer := time.NewTimer(s.period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	for i := range buf {
		buf[i] = s.signal(s.pos, s.cfg.SampleRate)
		s.pos++
	}
	s.reads++
	return nil
}

func (s *synthStream) Close() error {
	s.dev.mu.Lock()
	s.dev.closed++
	s.dev.mu.Unlock()
	return nil
}
