// Package server exposes the recording controller over HTTP.
//
// POST endpoints start and stop the recording, /ws/histogram streams PNG
// frames of the waveform and spectrogram to each connected viewer, and
// /ws/information sends a single transcript of the recording. Monitoring
// endpoints report status, health, configuration and Prometheus metrics.
package server
