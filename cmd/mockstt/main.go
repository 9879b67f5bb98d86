// Command mockstt is a local stand-in for the HTTP speech recognition
// endpoint. It accepts the multipart requests sent by the http provider and
// answers with a fixed transcript.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hasanylld/sesbil/internal/audio"
)

const maxUploadBytes = 32 << 20

var (
	addr    string
	text    string
	delay   time.Duration
	verbose bool
)

// transcriptResponse matches what the http recognizer decodes
type transcriptResponse struct {
	RequestID  string  `json:"request_id"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration"`
}

var rootCmd = &cobra.Command{
	Use:          "mockstt",
	Short:        "Serve a fake speech recognition endpoint",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

		mux := http.NewServeMux()
		mux.Handle("/transcribe", newHandler(text, delay, logger))

		logger.Info("Mock transcription server starting",
			slog.String("address", addr),
			slog.String("endpoint", "http://"+addr+"/transcribe"),
		)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "localhost:9000", "listen address")
	rootCmd.Flags().StringVar(&text, "text", "bu bir deneme kaydıdır", "transcript returned for every request")
	rootCmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "simulated processing time")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log request fields")
}

func newHandler(text string, delay time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		samples, info, err := audio.ReadWAV(file)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid WAV: %v", err), http.StatusBadRequest)
			return
		}

		requestID := r.FormValue("request_id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		logger.Info("Transcription request received",
			slog.String("request_id", requestID),
			slog.String("filename", header.Filename),
			slog.Int("samples", len(samples)),
			slog.Int("sample_rate", info.SampleRate),
			slog.String("locale", r.FormValue("locale")),
		)
		logger.Debug("Request fields",
			slog.String("language", r.FormValue("language")),
			slog.String("model", r.FormValue("model")),
			slog.String("duration", r.FormValue("duration")),
			slog.Bool("authorized", r.Header.Get("Authorization") != ""),
		)

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		resp := transcriptResponse{
			RequestID:  requestID,
			Text:       text,
			Confidence: 0.95,
			Language:   r.FormValue("language"),
		}
		if info.SampleRate > 0 {
			resp.Duration = float64(len(samples)) / float64(info.SampleRate)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("Failed to write response", slog.String("error", err.Error()))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
