package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/capture"
	"github.com/hasanylld/sesbil/internal/metrics"
	"github.com/hasanylld/sesbil/internal/vad"
)

const (
	// DefaultPrefix is the fixed literal put in front of every transcript
	// with no separator. It is part of the existing /ws/information message
	// format.
	DefaultPrefix = "ilk mesaj"
	// DefaultLocale is the recognition locale.
	DefaultLocale = "tr-TR"
)

// Source is the recording to transcribe
type Source interface {
	Recording() bool
	SampleRate() int
	Snapshot() []int16
}

// ServiceConfig controls transcription
type ServiceConfig struct {
	Locale string
	Prefix string
	// RequireStopped rejects transcription while a recording is running.
	RequireStopped bool
	// TempDir holds the intermediate WAV files; empty means os.TempDir.
	TempDir string
}

// Service produces transcripts of the captured audio.
type Service struct {
	source     Source
	recognizer Recognizer
	gate       *vad.Processor
	cfg        ServiceConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewService creates a transcription service. gate may be nil to send every
// recording to the recognizer.
func NewService(source Source, recognizer Recognizer, gate *vad.Processor, cfg ServiceConfig, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("recognizer cannot be nil")
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	return &Service{
		source:     source,
		recognizer: recognizer,
		gate:       gate,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Stats describes the transcription pipeline for monitoring
type Stats struct {
	Provider   string              `json:"provider"`
	Recognizer *ClientStats        `json:"recognizer,omitempty"`
	SpeechGate *vad.ProcessorStats `json:"speech_gate,omitempty"`
}

// Stats returns recognizer and speech gate statistics. Recognizers that do
// not keep statistics report only their name.
func (s *Service) Stats() Stats {
	stats := Stats{Provider: s.recognizer.Name()}
	if r, ok := s.recognizer.(interface{ GetStats() ClientStats }); ok {
		cs := r.GetStats()
		stats.Recognizer = &cs
	}
	if s.gate != nil {
		gs := s.gate.GetStats()
		stats.SpeechGate = &gs
	}
	return stats
}

// Close waits for in-flight recognitions and releases the recognizer.
func (s *Service) Close() error {
	if c, ok := s.recognizer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Transcribe recognizes the current buffer contents and returns the prefixed
// transcript.
func (s *Service) Transcribe(ctx context.Context) (string, error) {
	if s.cfg.RequireStopped && s.source.Recording() {
		return "", capture.ErrRecording
	}

	samples := s.source.Snapshot()
	if len(samples) == 0 {
		return "", fmt.Errorf("%w: no audio captured", ErrRecognitionFailure)
	}
	rate := s.source.SampleRate()

	if s.gate != nil {
		a := s.gate.Analyze(samples, rate)
		if !a.HasSpeech {
			s.logger.Info("Skipping transcription, no speech detected",
				slog.Int("samples", len(samples)),
				slog.Int("voiced_windows", a.VoicedWindows),
				slog.Float64("peak_energy", a.PeakEnergy),
			)
			return "", fmt.Errorf("%w: no speech detected", ErrRecognitionFailure)
		}
		attrs := []any{
			slog.Int("segments", len(a.Segments)),
			slog.Duration("speech", a.SpeechDuration()),
			slog.Float64("peak_energy", a.PeakEnergy),
		}
		if len(a.Segments) > 0 {
			attrs = append(attrs, slog.Duration("speech_start", a.Segments[0].Start))
		}
		s.logger.Debug("Speech detected", attrs...)
	}

	start := time.Now()
	s.metrics.RecordTranscriptionRequest()

	text, err := s.recognize(ctx, samples, rate)
	elapsed := time.Since(start)
	if err != nil {
		reason := "service"
		if errors.Is(err, ErrRecognitionFailure) {
			reason = "no_match"
		}
		s.metrics.RecordTranscriptionFailure(reason, elapsed.Seconds())
		s.logger.Warn("Transcription failed",
			slog.String("provider", s.recognizer.Name()),
			slog.String("reason", reason),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return "", err
	}

	s.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
	s.logger.Info("Transcription completed",
		slog.String("provider", s.recognizer.Name()),
		slog.Int("samples", len(samples)),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", elapsed),
	)
	return s.cfg.Prefix + text, nil
}

// recognize writes samples to a temporary WAV file, which is removed on
// every path, and passes it to the recognizer.
func (s *Service) recognize(ctx context.Context, samples []int16, rate int) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "sesbil-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := audio.WriteWAV(f, samples, rate); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode WAV: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}

	result, err := s.recognizer.Recognize(ctx, Request{
		Path:       f.Name(),
		SampleRate: rate,
		Locale:     s.cfg.Locale,
		Duration:   time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second)),
	})
	if err != nil {
		return "", err
	}
	if result == nil || result.Text == "" {
		return "", ErrRecognitionFailure
	}
	return result.Text, nil
}
