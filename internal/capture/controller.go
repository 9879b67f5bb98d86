package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/metrics"
)

// State is the recording state of the process.
type State int32

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// State conflicts. These are informational: the request was a no-op.
var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrAlreadyStopped   = errors.New("recording already stopped")
	ErrRecording        = errors.New("recording in progress")
)

// Config holds the capture parameters
type Config struct {
	SampleRate  int
	Channels    int
	ChunkSize   int           // samples per device read
	MaxDuration time.Duration // 0 means unbounded
}

// Status is a point-in-time view of the controller
type Status struct {
	State           string     `json:"state"`
	Device          string     `json:"device"`
	Samples         int        `json:"samples"`
	SampleRate      int        `json:"sample_rate"`
	DurationSeconds float64    `json:"duration_seconds"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Controller owns the single recording session of the process: its state,
// its sample buffer and the goroutine pulling chunks from the input device.
//
// The state stays Recording until the capture goroutine has exited, so once
// a reader observes Idle the buffer is frozen.
type Controller struct {
	cfg     Config
	device  audio.Device
	buffer  *audio.Buffer
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state atomic.Int32

	// watchMu guards the fields below and every state store.
	watchMu   sync.Mutex
	changed   chan struct{}
	startedAt time.Time
	stoppedAt time.Time
	lastErr   error
}

// NewController creates an idle controller reading from device.
func NewController(cfg Config, device audio.Device, logger *slog.Logger, m *metrics.Metrics) (*Controller, error) {
	if device == nil {
		return nil, fmt.Errorf("input device cannot be nil")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	return &Controller{
		cfg:     cfg,
		device:  device,
		buffer:  audio.NewBuffer(cfg.SampleRate, cfg.MaxDuration),
		logger:  logger,
		metrics: m,
		changed: make(chan struct{}),
	}, nil
}

// State returns the current recording state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Recording reports whether a session is active.
func (c *Controller) Recording() bool {
	return c.State() == Recording
}

// SampleRate returns the capture sample rate.
func (c *Controller) SampleRate() int {
	return c.cfg.SampleRate
}

// Snapshot copies the samples captured so far in the current or last session.
func (c *Controller) Snapshot() []int16 {
	return c.buffer.Snapshot()
}

// Len returns the number of captured samples.
func (c *Controller) Len() int {
	return c.buffer.Len()
}

// Watch returns a channel that is closed on the next state transition.
// Callers take the channel before reading State to avoid missing a change.
func (c *Controller) Watch() <-chan struct{} {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	return c.changed
}

// Start begins a new recording session. It clears the buffer and launches
// the capture goroutine, returning without waiting for the device.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Recording() {
		return ErrAlreadyRecording
	}

	// A session that ended on its own may still be releasing the device.
	if c.done != nil {
		<-c.done
	}

	c.buffer.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	c.watchMu.Lock()
	c.startedAt = time.Now()
	c.stoppedAt = time.Time{}
	c.lastErr = nil
	c.setStateLocked(Recording)
	c.watchMu.Unlock()

	c.metrics.RecordRecordingStarted()
	c.logger.Info("Recording started",
		slog.String("device", c.device.Name()),
		slog.Int("sample_rate", c.cfg.SampleRate),
		slog.Int("chunk_size", c.cfg.ChunkSize),
	)

	go c.run(ctx, done)
	return nil
}

// Stop ends the active session and waits for the capture goroutine to
// release the device, which takes at most one device read.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Recording() {
		return ErrAlreadyStopped
	}

	c.cancel()
	<-c.done

	c.finish(nil)
	return nil
}

// Finish is Stop under the name used by the finish-recording endpoint.
func (c *Controller) Finish() error {
	return c.Stop()
}

// Close stops any active session.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		return err
	}
	return nil
}

// Status returns the controller status
func (c *Controller) Status() Status {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	stats := c.buffer.GetStats()
	status := Status{
		State:           c.State().String(),
		Device:          c.device.Name(),
		Samples:         stats.Samples,
		SampleRate:      stats.SampleRate,
		DurationSeconds: stats.DurationSeconds,
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		status.StartedAt = &started
	}
	if !c.stoppedAt.IsZero() {
		stopped := c.stoppedAt
		status.StoppedAt = &stopped
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// finish moves a Recording session to Idle. It is called either by Stop or
// by the capture goroutine when the session ends on its own; only the first
// call has an effect.
func (c *Controller) finish(cause error) {
	c.watchMu.Lock()
	if c.State() != Recording {
		c.watchMu.Unlock()
		return
	}
	c.stoppedAt = time.Now()
	c.lastErr = cause
	c.setStateLocked(Idle)
	c.watchMu.Unlock()

	duration := c.buffer.Duration()
	c.metrics.RecordRecordingStopped(duration.Seconds())
	c.logger.Info("Recording stopped",
		slog.Int("samples", c.buffer.Len()),
		slog.Duration("audio_duration", duration),
	)
}

func (c *Controller) setStateLocked(s State) {
	c.state.Store(int32(s))
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := c.capture(ctx)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrBufferFull):
		c.logger.Warn("Recording length cap reached, stopping",
			slog.Duration("max_duration", c.cfg.MaxDuration),
		)
		c.finish(nil)
	default:
		c.metrics.RecordCaptureError()
		c.logger.Error("Capture failed, recording stopped",
			slog.String("device", c.device.Name()),
			slog.String("error", err.Error()),
		)
		c.finish(err)
	}
}

// capture reads chunks until ctx is cancelled or the device fails. The
// device stream is closed on every return path.
func (c *Controller) capture(ctx context.Context) error {
	stream, err := c.device.Open(audio.StreamConfig{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		ChunkSize:  c.cfg.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("failed to open input device %s: %w", c.device.Name(), err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			c.logger.Warn("Failed to close input stream", slog.String("error", err.Error()))
		}
	}()

	raw := make([]int16, c.cfg.ChunkSize*c.cfg.Channels)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := stream.Read(ctx, raw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, audio.ErrInputOverflow) {
				c.metrics.RecordDroppedRead()
				c.logger.Debug("Dropped input chunk", slog.String("error", err.Error()))
				continue
			}
			return fmt.Errorf("device read failed: %w", err)
		}

		before := c.buffer.Len()
		err := c.buffer.Append(downmix(raw, c.cfg.Channels))
		c.metrics.RecordSamples(c.buffer.Len() - before)
		if err != nil {
			return err
		}
	}
}

// downmix averages interleaved frames to mono. Mono input is returned as is.
func downmix(raw []int16, channels int) []int16 {
	if channels <= 1 {
		return raw
	}
	frames := len(raw) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += int(raw[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}
