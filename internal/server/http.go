package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hasanylld/sesbil/internal/capture"
	"github.com/hasanylld/sesbil/internal/config"
	"github.com/hasanylld/sesbil/internal/metrics"
	"github.com/hasanylld/sesbil/internal/stream"
	"github.com/hasanylld/sesbil/internal/transcription"
)

// Response messages of the recording endpoints
const (
	msgStarted        = "Ses kaydı başlatıldı"
	msgAlreadyStarted = "Kayıt zaten başlatılmış durumda."
	msgStopped        = "Ses kaydı durduruldu"
	msgAlreadyStopped = "Kayıt zaten durdurulmuş durumda."
)

const (
	serviceName    = "sesbil"
	serviceVersion = "1.0.0"
)

// FrameRenderer renders a sample snapshot to an encoded image
type FrameRenderer interface {
	Render(samples []int16) ([]byte, error)
}

// Transcriber produces a transcript of the current recording
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
	Stats() transcription.Stats
}

// Deps are the components the HTTP server exposes
type Deps struct {
	Capture     *capture.Controller
	Broadcaster *stream.Broadcaster
	Renderer    FrameRenderer
	Transcriber Transcriber
	Metrics     *metrics.Metrics
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// HTTPServer provides the recording control API, the websocket streams and
// monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	deps     Deps
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, deps Deps) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger: logger,
		config: cfg,
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           h.Handler(),
		ReadHeaderTimeout: cfg.HTTP.GetReadTimeoutDuration(),
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the routed handler with CORS applied.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Recording control
	mux.HandleFunc("/start-recording", h.withMetrics("/start-recording", h.handleStartRecording))
	mux.HandleFunc("/stop-recording", h.withMetrics("/stop-recording", h.handleStopRecording))
	mux.HandleFunc("/finish-recording", h.withMetrics("/finish-recording", h.handleFinishRecording))

	// Websocket streams
	mux.HandleFunc("/ws/histogram", h.withMetrics("/ws/histogram", h.handleHistogram))
	mux.HandleFunc("/ws/information", h.withMetrics("/ws/information", h.handleInformation))

	// Single frame
	mux.HandleFunc("/spectrogram", h.withMetrics("/spectrogram", h.handleSpectrogram))

	// Monitoring
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (h *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- h.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.config.HTTP.GetShutdownTimeoutDuration())
	defer cancel()
	return h.Stop(shutdownCtx)
}

// Stop gracefully stops the HTTP server. Websocket connections are not
// tracked by the server and end when the broadcaster is closed.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// handleStartRecording implements POST /start-recording
func (h *HTTPServer) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch err := h.deps.Capture.Start(); {
	case err == nil:
		writeMessage(w, http.StatusOK, msgStarted)
	case errors.Is(err, capture.ErrAlreadyRecording):
		writeMessage(w, http.StatusOK, msgAlreadyStarted)
	default:
		h.logger.Error("Failed to start recording", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStopRecording implements POST /stop-recording
func (h *HTTPServer) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.deps.Capture.Stop)
}

// handleFinishRecording implements POST /finish-recording
func (h *HTTPServer) handleFinishRecording(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.deps.Capture.Finish)
}

func (h *HTTPServer) stop(w http.ResponseWriter, r *http.Request, stop func() error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch err := stop(); {
	case err == nil:
		writeMessage(w, http.StatusOK, msgStopped)
	case errors.Is(err, capture.ErrAlreadyStopped):
		writeMessage(w, http.StatusOK, msgAlreadyStopped)
	default:
		h.logger.Error("Failed to stop recording", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSpectrogram implements GET /spectrogram
func (h *HTTPServer) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, err := h.deps.Renderer.Render(h.deps.Capture.Snapshot())
	if err != nil {
		h.logger.Error("Failed to render spectrogram", slog.String("error", err.Error()))
		http.Error(w, "Failed to render spectrogram", http.StatusInternalServerError)
		return
	}
	if len(frame) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

// handleStatus implements GET /status
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recording":     h.deps.Capture.Status(),
		"viewers":       h.deps.Broadcaster.Viewers(),
		"transcription": h.deps.Transcriber.Stats(),
		"timestamp":     time.Now().UTC(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.deps.Capture.Status()
	ts := h.deps.Transcriber.Stats()
	transcriptionHealth := map[string]any{
		"provider": ts.Provider,
		"locale":   h.config.Transcription.Locale,
	}
	if ts.Recognizer != nil {
		transcriptionHealth["success_rate"] = ts.Recognizer.SuccessRate
		transcriptionHealth["active_requests"] = ts.Recognizer.ActiveRequests
	}
	if ts.SpeechGate != nil {
		transcriptionHealth["speech_gate"] = map[string]any{
			"analyses": ts.SpeechGate.Analyses,
			"rejected": ts.SpeechGate.Rejected,
		}
	}

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]any{
			"capture": map[string]any{
				"state":      status.State,
				"device":     status.Device,
				"last_error": status.LastError,
			},
			"stream": map[string]any{
				"active_viewers": h.deps.Broadcaster.Count(),
			},
			"transcription": transcriptionHealth,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// API key is omitted
	sanitized := map[string]any{
		"http": map[string]any{
			"address": h.config.HTTP.Address,
			"port":    h.config.HTTP.Port,
		},
		"audio":       h.config.Audio,
		"spectrogram": h.config.Spectrogram,
		"stream":      h.config.Stream,
		"vad":         h.config.VAD,
		"transcription": map[string]any{
			"provider":        h.config.Transcription.Provider,
			"endpoint":        h.config.Transcription.Endpoint,
			"model":           h.config.Transcription.Model,
			"locale":          h.config.Transcription.Locale,
			"prefix":          h.config.Transcription.Prefix,
			"require_stopped": h.config.Transcription.RequireStopped,
			"timeout":         h.config.Transcription.Timeout,
			"max_retries":     h.config.Transcription.MaxRetries,
			"max_concurrent":  h.config.Transcription.MaxConcurrent,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Sesbil audio capture service",
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":                  "API documentation",
			"POST /start-recording":  "Start a new recording",
			"POST /stop-recording":   "Stop the active recording",
			"POST /finish-recording": "Stop the active recording",
			"GET /ws/histogram":      "Websocket stream of waveform and spectrogram PNG frames",
			"GET /ws/information":    "Websocket returning the transcript of the recording",
			"GET /spectrogram":       "Current waveform and spectrogram as PNG",
			"GET /status":            "Recording state and connected viewers",
			"GET /health":            "Service health check",
			"GET /config":            "Service configuration",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
