package stream

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/capture"
	"github.com/hasanylld/sesbil/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// lengthRenderer encodes the snapshot length as the frame so tests can tell
// which buffer a frame was rendered from.
type lengthRenderer struct{}

func (lengthRenderer) Render(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	return []byte(strconv.Itoa(len(samples))), nil
}

type failingRenderer struct{}

func (failingRenderer) Render([]int16) ([]byte, error) {
	return nil, errors.New("render failed")
}

// recordingSink collects frames and optionally fails after failAfter frames.
type recordingSink struct {
	mu        sync.Mutex
	frames    []string
	failAfter int
	block     bool
}

func (s *recordingSink) SendFrame(ctx context.Context, frame []byte) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.frames) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, string(frame))
	return nil
}

func (s *recordingSink) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestController(t *testing.T) *capture.Controller {
	t.Helper()
	cfg := capture.Config{SampleRate: 8000, Channels: 1, ChunkSize: 80}
	dev := &audio.SynthDevice{Signal: audio.Sine(440, 8000), Realtime: true}
	c, err := capture.NewController(cfg, dev, testLogger(), metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestBroadcaster(t *testing.T, source Source, renderer Renderer) (*Broadcaster, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	b := NewBroadcaster(source, renderer, Config{FrameInterval: time.Millisecond}, testLogger(), m)
	t.Cleanup(b.Close)
	return b, m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func subscribe(b *Broadcaster, ctx context.Context, sink FrameSink) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, "127.0.0.1:1234", sink) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return")
		return nil
	}
}

func TestFinalFrameAfterStop(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})
	sink := &recordingSink{}

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	done := subscribe(b, context.Background(), sink)

	waitFor(t, 2*time.Second, func() bool { return sink.Count() >= 2 })
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := waitResult(t, done); err != nil {
		t.Fatalf("Expected stream to complete, got %v", err)
	}

	frames := sink.Frames()
	last := frames[len(frames)-1]
	if want := strconv.Itoa(ctrl.Len()); last != want {
		t.Errorf("Expected final frame of the full buffer (%s samples), got %s", want, last)
	}
	for i := 1; i < len(frames); i++ {
		prev, _ := strconv.Atoi(frames[i-1])
		cur, _ := strconv.Atoi(frames[i])
		if cur < prev {
			t.Fatalf("Frame %d shows fewer samples than frame %d", i, i-1)
		}
	}
	if b.Count() != 0 {
		t.Errorf("Expected no viewers after completion, got %d", b.Count())
	}
}

func TestIdleViewerWaitsForRecording(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})
	sink := &recordingSink{}

	done := subscribe(b, context.Background(), sink)
	waitFor(t, time.Second, func() bool { return b.Count() == 1 })

	time.Sleep(30 * time.Millisecond)
	if sink.Count() != 0 {
		t.Fatalf("Expected no frames while idle with an empty buffer, got %d", sink.Count())
	}

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return sink.Count() >= 1 })
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := waitResult(t, done); err != nil {
		t.Errorf("Expected stream to complete, got %v", err)
	}
}

func TestStoppedSessionSendsSingleFrame(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return ctrl.Len() > 0 })
	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	sink := &recordingSink{}
	if err := waitResult(t, subscribe(b, context.Background(), sink)); err != nil {
		t.Fatalf("Expected stream to complete, got %v", err)
	}
	if sink.Count() != 1 {
		t.Errorf("Expected exactly one frame of the stopped recording, got %d", sink.Count())
	}
}

func TestDisconnectLeavesOtherViewers(t *testing.T) {
	ctrl := newTestController(t)
	b, m := newTestBroadcaster(t, ctrl, lengthRenderer{})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := &recordingSink{}
	second := &recordingSink{}
	firstDone := subscribe(b, ctx, first)
	secondDone := subscribe(b, context.Background(), second)

	waitFor(t, 2*time.Second, func() bool { return first.Count() > 0 && second.Count() > 0 })
	if b.Count() != 2 {
		t.Errorf("Expected 2 viewers, got %d", b.Count())
	}
	if got := testutil.ToFloat64(m.ActiveViewers); got != 2 {
		t.Errorf("Expected active viewers gauge 2, got %f", got)
	}

	cancel()
	if err := waitResult(t, firstDone); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}

	seen := second.Count()
	waitFor(t, 2*time.Second, func() bool { return second.Count() > seen })
	if b.Count() != 1 {
		t.Errorf("Expected 1 viewer, got %d", b.Count())
	}

	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := waitResult(t, secondDone); err != nil {
		t.Errorf("Expected remaining stream to complete, got %v", err)
	}
}

func TestSendFailureEndsOnlyThatViewer(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	broken := &recordingSink{failAfter: 2}
	healthy := &recordingSink{}
	brokenDone := subscribe(b, context.Background(), broken)
	healthyDone := subscribe(b, context.Background(), healthy)

	if err := waitResult(t, brokenDone); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}
	if broken.Count() != 2 {
		t.Errorf("Expected 2 delivered frames before failure, got %d", broken.Count())
	}

	seen := healthy.Count()
	waitFor(t, 2*time.Second, func() bool { return healthy.Count() > seen })

	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := waitResult(t, healthyDone); err != nil {
		t.Errorf("Expected healthy stream to complete, got %v", err)
	}
}

func TestSlowViewerDoesNotBlockOthers(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slowDone := subscribe(b, ctx, &recordingSink{block: true})
	fast := &recordingSink{}
	subscribe(b, context.Background(), fast)

	waitFor(t, 2*time.Second, func() bool { return fast.Count() >= 3 })

	// capture keeps going too
	n := ctrl.Len()
	waitFor(t, 2*time.Second, func() bool { return ctrl.Len() > n })

	cancel()
	if err := waitResult(t, slowDone); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Expected ErrDisconnected, got %v", err)
	}
}

func TestRenderErrorEndsViewer(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, failingRenderer{})

	err := waitResult(t, subscribe(b, context.Background(), &recordingSink{}))
	if err == nil || errors.Is(err, ErrDisconnected) {
		t.Errorf("Expected render error, got %v", err)
	}
}

func TestViewers(t *testing.T) {
	ctrl := newTestController(t)
	b, _ := newTestBroadcaster(t, ctrl, lengthRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subscribe(b, ctx, &recordingSink{})
	waitFor(t, time.Second, func() bool { return b.Count() == 1 })

	infos := b.Viewers()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 viewer, got %d", len(infos))
	}
	if infos[0].ID == "" || infos[0].RemoteAddr != "127.0.0.1:1234" {
		t.Errorf("Unexpected viewer info: %+v", infos[0])
	}
}

func TestCloseDisconnectsViewers(t *testing.T) {
	ctrl := newTestController(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	b := NewBroadcaster(ctrl, lengthRenderer{}, Config{FrameInterval: time.Millisecond}, testLogger(), m)

	done := subscribe(b, context.Background(), &recordingSink{})
	waitFor(t, time.Second, func() bool { return b.Count() == 1 })

	b.Close()
	if err := waitResult(t, done); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Expected ErrDisconnected after Close, got %v", err)
	}
	if err := b.Subscribe(context.Background(), "x", &recordingSink{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
