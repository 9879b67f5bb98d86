package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/audio/portaudio"
	"github.com/hasanylld/sesbil/internal/capture"
	"github.com/hasanylld/sesbil/internal/config"
	"github.com/hasanylld/sesbil/internal/metrics"
	"github.com/hasanylld/sesbil/internal/server"
	"github.com/hasanylld/sesbil/internal/spectrogram"
	"github.com/hasanylld/sesbil/internal/stream"
	"github.com/hasanylld/sesbil/internal/transcription"
	"github.com/hasanylld/sesbil/internal/vad"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

// app holds the wired service components
type app struct {
	controller    *capture.Controller
	broadcaster   *stream.Broadcaster
	transcription *transcription.Service
	server        *server.HTTPServer
	logger        *slog.Logger
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", cfgFile),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Addr()),
		slog.String("device", cfg.Audio.Device),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Int("chunk_size", cfg.Audio.ChunkSize),
		slog.Float64("max_duration", cfg.Audio.MaxDuration),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("transcription_locale", cfg.Transcription.Locale),
		slog.Bool("speech_gate", cfg.VAD.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(cfg, logger, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")
		a.close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Service stopped")
	return nil
}

// newApp builds every component from cfg.
func newApp(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	m := metrics.NewMetrics(reg)

	controller, err := capture.NewController(capture.Config{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		ChunkSize:   cfg.Audio.ChunkSize,
		MaxDuration: cfg.Audio.GetMaxDuration(),
	}, newDevice(cfg.Audio), logger.With(slog.String("component", "capture")), m)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture controller: %w", err)
	}

	renderer, err := newRenderer(cfg.Spectrogram, cfg.Audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	broadcaster := stream.NewBroadcaster(controller, renderer, stream.Config{
		FrameInterval: cfg.Stream.GetFrameInterval(),
	}, logger.With(slog.String("component", "stream")), m)

	recognizer, err := newRecognizer(cfg.Transcription, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	var gate *vad.Processor
	if cfg.VAD.Enabled {
		gate, err = vad.NewProcessor(vad.Config{
			Threshold:        cfg.VAD.Threshold,
			Window:           cfg.VAD.GetWindowDuration(),
			MinVoicedWindows: cfg.VAD.MinVoicedWindows,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create speech gate: %w", err)
		}
	}

	service, err := transcription.NewService(controller, recognizer, gate, transcription.ServiceConfig{
		Locale:         cfg.Transcription.Locale,
		Prefix:         cfg.Transcription.Prefix,
		RequireStopped: cfg.Transcription.RequireStopped,
		TempDir:        cfg.Transcription.TempDir,
	}, logger.With(slog.String("component", "transcription")), m)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription service: %w", err)
	}

	httpServer := server.NewHTTPServer(cfg, logger.With(slog.String("component", "http")), server.Deps{
		Capture:     controller,
		Broadcaster: broadcaster,
		Renderer:    renderer,
		Transcriber: service,
		Metrics:     m,
		Gatherer:    reg,
	})

	return &app{
		controller:    controller,
		broadcaster:   broadcaster,
		transcription: service,
		server:        httpServer,
		logger:        logger,
	}, nil
}

// close disconnects viewers, waits for in-flight transcriptions and
// releases the input device.
func (a *app) close() {
	a.broadcaster.Close()
	if err := a.transcription.Close(); err != nil {
		a.logger.Warn("Failed to close recognizer", slog.String("error", err.Error()))
	}
	a.controller.Close()
}

func newDevice(cfg config.AudioConfig) audio.Device {
	if cfg.Device == config.SyntheticDevice {
		return &audio.SynthDevice{
			Signal:   audio.Chirp(200, 4000, 2*time.Second, 8000),
			Realtime: true,
		}
	}
	return &portaudio.Device{DeviceName: cfg.Device}
}

func newRenderer(cfg config.SpectrogramConfig, sampleRate int) (*spectrogram.Renderer, error) {
	return spectrogram.NewRenderer(spectrogram.Config{
		SampleRate: sampleRate,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Background: cfg.GetBackground(),
		Analysis: spectrogram.AnalysisConfig{
			SegmentLength: cfg.SegmentLength,
			Overlap:       cfg.Overlap,
			TukeyAlpha:    cfg.TukeyAlpha,
		},
	})
}

func newRecognizer(cfg config.TranscriptionConfig, logger *slog.Logger, m *metrics.Metrics) (transcription.Recognizer, error) {
	switch cfg.Provider {
	case "http":
		return transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
		}, logger.With(slog.String("component", "recognizer")), m)
	case "openai":
		return transcription.NewOpenAI(transcription.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.GetTimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}
