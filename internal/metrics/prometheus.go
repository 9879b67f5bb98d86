package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the sesbil service
type Metrics struct {
	// Recording metrics
	Recording         prometheus.Gauge
	RecordingsStarted prometheus.Counter
	RecordingDuration prometheus.Histogram
	SamplesCaptured   prometheus.Counter
	DroppedReads      prometheus.Counter
	CaptureErrors     prometheus.Counter

	// Viewer metrics
	ActiveViewers  prometheus.Gauge
	ViewersTotal   prometheus.Counter
	FramesSent     prometheus.Counter
	RenderDuration prometheus.Histogram
	FrameSize      prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Recording metrics
		Recording: f.NewGauge(prometheus.GaugeOpts{
			Name: "sesbil_recording",
			Help: "1 while a recording session is active",
		}),
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sesbil_recording_duration_seconds",
			Help:    "Captured audio length of finished recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		SamplesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_samples_captured_total",
			Help: "Total number of audio samples appended to the buffer",
		}),
		DroppedReads: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_dropped_reads_total",
			Help: "Total number of device reads lost to input overflow",
		}),
		CaptureErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_capture_errors_total",
			Help: "Total number of device failures that ended a recording",
		}),

		// Viewer metrics
		ActiveViewers: f.NewGauge(prometheus.GaugeOpts{
			Name: "sesbil_active_viewers",
			Help: "Current number of connected spectrogram viewers",
		}),
		ViewersTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_viewers_total",
			Help: "Total number of spectrogram viewers connected",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_frames_sent_total",
			Help: "Total number of spectrogram frames delivered",
		}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sesbil_render_duration_seconds",
			Help:    "Time spent rendering one spectrogram frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		FrameSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sesbil_frame_size_bytes",
			Help:    "Size of encoded spectrogram frames",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8), // 16KB to ~2MB
		}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_transcription_requests_total",
			Help: "Total number of transcription requests",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sesbil_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}, []string{"reason"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sesbil_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "sesbil_transcription_retries_total",
			Help: "Total number of recognizer request retries",
		}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sesbil_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sesbil_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sesbil_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted marks a new recording session
func (m *Metrics) RecordRecordingStarted() {
	m.RecordingsStarted.Inc()
	m.Recording.Set(1)
}

// RecordRecordingStopped marks the end of a session with its audio length
func (m *Metrics) RecordRecordingStopped(durationSeconds float64) {
	m.Recording.Set(0)
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordSamples adds captured samples
func (m *Metrics) RecordSamples(n int) {
	m.SamplesCaptured.Add(float64(n))
}

// RecordDroppedRead increments the dropped reads counter
func (m *Metrics) RecordDroppedRead() {
	m.DroppedReads.Inc()
}

// RecordCaptureError increments the capture errors counter
func (m *Metrics) RecordCaptureError() {
	m.CaptureErrors.Inc()
}

// RecordViewerConnected increments viewer counters
func (m *Metrics) RecordViewerConnected() {
	m.ViewersTotal.Inc()
	m.ActiveViewers.Inc()
}

// RecordViewerDisconnected decrements the active viewers gauge
func (m *Metrics) RecordViewerDisconnected() {
	m.ActiveViewers.Dec()
}

// RecordRender observes the time spent rendering one frame
func (m *Metrics) RecordRender(durationSeconds float64) {
	m.RenderDuration.Observe(durationSeconds)
}

// RecordFrameSent records a delivered frame
func (m *Metrics) RecordFrameSent(sizeBytes int) {
	m.FramesSent.Inc()
	m.FrameSize.Observe(float64(sizeBytes))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(reason string, durationSeconds float64) {
	m.TranscriptionFailures.WithLabelValues(reason).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
