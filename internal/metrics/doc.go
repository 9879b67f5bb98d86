// Package metrics defines the Prometheus metrics for recording sessions,
// spectrogram viewers, transcription requests and the HTTP API.
package metrics
