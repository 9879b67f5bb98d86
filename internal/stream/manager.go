package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hasanylld/sesbil/internal/metrics"
)

var (
	// ErrDisconnected ends a viewer loop whose client went away.
	ErrDisconnected = errors.New("viewer disconnected")
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("broadcaster closed")
)

// Source is the recording session frames are rendered from.
type Source interface {
	Recording() bool
	Watch() <-chan struct{}
	Snapshot() []int16
}

// Renderer turns a sample snapshot into an encoded frame. A nil frame means
// there is nothing to show yet.
type Renderer interface {
	Render(samples []int16) ([]byte, error)
}

// FrameSink delivers frames to one connected client.
type FrameSink interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// Config holds broadcaster configuration
type Config struct {
	// FrameInterval is the pause after each delivered frame.
	FrameInterval time.Duration
}

// Viewer is one connected client
type Viewer struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	framesSent atomic.Uint64
}

// ViewerInfo represents viewer information for monitoring
type ViewerInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	FramesSent  uint64    `json:"frames_sent"`
}

// Broadcaster runs an independent render-and-send loop for every connected
// viewer. Viewers never wait on each other or on the capture goroutine.
type Broadcaster struct {
	source   Source
	renderer Renderer
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	viewers map[uuid.UUID]*Viewer
	closed  bool
}

// NewBroadcaster creates a broadcaster rendering frames of source.
func NewBroadcaster(source Source, renderer Renderer, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		source:   source,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		viewers:  make(map[uuid.UUID]*Viewer),
	}
}

// Subscribe registers a viewer and streams frames to sink until the
// recording ends (after at least one frame was delivered) or the viewer
// disconnects. Cancelling ctx is the transport's disconnect signal.
//
// It returns nil when the stream completed and an error wrapping
// ErrDisconnected when the viewer went away.
func (b *Broadcaster) Subscribe(ctx context.Context, remoteAddr string, sink FrameSink) error {
	viewer, err := b.add(remoteAddr)
	if err != nil {
		return err
	}
	defer b.remove(viewer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()

	err = b.run(ctx, viewer, sink)

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelDebug
	}
	b.logger.Log(ctx, level, "Viewer stream ended",
		slog.String("viewer_id", viewer.ID.String()),
		slog.Uint64("frames_sent", viewer.framesSent.Load()),
		slog.Any("reason", err),
	)
	return err
}

func (b *Broadcaster) run(ctx context.Context, viewer *Viewer, sink FrameSink) error {
	var sent uint64
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrDisconnected, context.Cause(ctx))
		}

		// Take the watch channel before reading the state so a transition
		// after the read still wakes us.
		watch := b.source.Watch()
		recording := b.source.Recording()

		start := time.Now()
		frame, err := b.renderer.Render(b.source.Snapshot())
		if err != nil {
			return fmt.Errorf("failed to render frame: %w", err)
		}

		if len(frame) > 0 {
			b.metrics.RecordRender(time.Since(start).Seconds())
			if err := sink.SendFrame(ctx, frame); err != nil {
				return fmt.Errorf("%w: %v", ErrDisconnected, err)
			}
			sent++
			viewer.framesSent.Add(1)
			b.metrics.RecordFrameSent(len(frame))

			if !recording {
				return nil
			}
		} else if !recording && sent > 0 {
			return nil
		}

		if !recording {
			// Nothing to show until the next session starts.
			select {
			case <-ctx.Done():
			case <-watch:
			}
			continue
		}

		timer := time.NewTimer(b.cfg.FrameInterval)
		select {
		case <-ctx.Done():
		case <-watch:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (b *Broadcaster) add(remoteAddr string) (*Viewer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	viewer := &Viewer{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
	b.viewers[viewer.ID] = viewer
	b.wg.Add(1)
	b.metrics.RecordViewerConnected()

	b.logger.Info("Viewer connected",
		slog.String("viewer_id", viewer.ID.String()),
		slog.String("remote_addr", remoteAddr),
		slog.Int("active_viewers", len(b.viewers)),
	)
	return viewer, nil
}

func (b *Broadcaster) remove(viewer *Viewer) {
	b.mu.Lock()
	delete(b.viewers, viewer.ID)
	remaining := len(b.viewers)
	b.mu.Unlock()

	b.metrics.RecordViewerDisconnected()
	b.wg.Done()

	b.logger.Info("Viewer disconnected",
		slog.String("viewer_id", viewer.ID.String()),
		slog.Duration("connected_for", time.Since(viewer.ConnectedAt)),
		slog.Int("active_viewers", remaining),
	)
}

// Count returns the number of connected viewers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.viewers)
}

// Viewers returns information about all connected viewers.
func (b *Broadcaster) Viewers() []ViewerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]ViewerInfo, 0, len(b.viewers))
	for _, v := range b.viewers {
		infos = append(infos, ViewerInfo{
			ID:          v.ID.String(),
			RemoteAddr:  v.RemoteAddr,
			ConnectedAt: v.ConnectedAt,
			FramesSent:  v.framesSent.Load(),
		})
	}
	return infos
}

// Close disconnects every viewer and waits for their loops to exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
