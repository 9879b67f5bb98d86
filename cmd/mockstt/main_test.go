package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/metrics"
	"github.com/hasanylld/sesbil/internal/transcription"
)

func TestMockServesHTTPRecognizer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(newHandler("merhaba", 0, logger))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create WAV: %v", err)
	}
	if err := audio.WriteWAV(f, make([]int16, 16000), 16000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	f.Close()

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:      srv.URL,
		MaxConcurrent: 1,
	}, logger, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.Recognize(context.Background(), transcription.Request{
		Path:       path,
		SampleRate: 16000,
		Locale:     "tr-TR",
	})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if result.Text != "merhaba" {
		t.Errorf("Expected 'merhaba', got %q", result.Text)
	}
	if result.Duration != 1.0 {
		t.Errorf("Expected 1s duration, got %f", result.Duration)
	}
	if result.Language != "tr" {
		t.Errorf("Expected language tr, got %q", result.Language)
	}
}

func TestMockRejectsBadRequests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(newHandler("x", 0, logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL, "text/plain", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
