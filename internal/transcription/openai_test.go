package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	o, err := NewOpenAI(OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1/",
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	return o
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("Expected error for empty API key")
	}
}

func TestOpenAIRecognize(t *testing.T) {
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("Expected default model whisper-1, got %q", got)
		}
		if got := r.FormValue("language"); got != "tr" {
			t.Errorf("Expected language tr, got %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("Missing file part: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"selam"}`)
	})

	res, err := o.Recognize(context.Background(), Request{Path: writeTestWAV(t), SampleRate: 16000, Locale: "tr-TR"})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "selam" {
		t.Errorf("Expected text selam, got %q", res.Text)
	}
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		expectErr    error
		expectStatus int
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid key","type":"invalid_request_error"}}`, ErrRecognitionService, 401},
		{"empty text", http.StatusOK, `{"text":""}`, ErrRecognitionFailure, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := o.Recognize(context.Background(), Request{Path: writeTestWAV(t), SampleRate: 16000, Locale: "tr-TR"})
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("Expected %v, got %v", tt.expectErr, err)
			}
			var se *ServiceError
			if errors.As(err, &se) && se.StatusCode != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, se.StatusCode)
			}
		})
	}
}

func TestOpenAIMissingFile(t *testing.T) {
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected no request for a missing file")
	})

	_, err := o.Recognize(context.Background(), Request{Path: "/nonexistent/clip.wav"})
	if err == nil || errors.Is(err, ErrRecognitionService) {
		t.Errorf("Expected a local file error, got %v", err)
	}
}
