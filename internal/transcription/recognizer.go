package transcription

import (
	"context"
	"strings"
	"time"
)

// Request describes one recognition call
type Request struct {
	// Path of a mono 16-bit PCM WAV file.
	Path       string
	SampleRate int
	// Locale is a BCP 47 tag such as "tr-TR".
	Locale   string
	Duration time.Duration
}

// Language returns the ISO 639-1 part of the locale.
func (r Request) Language() string {
	lang, _, _ := strings.Cut(r.Locale, "-")
	return strings.ToLower(lang)
}

// Result is a recognizer response
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Recognizer turns a WAV file into text. Implementations return
// ErrRecognitionFailure when nothing was recognized and a *ServiceError for
// transport or service failures.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, req Request) (*Result, error)
}
