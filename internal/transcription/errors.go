package transcription

import (
	"errors"
	"fmt"
)

var (
	// ErrRecognitionFailure means the audio produced no usable text.
	ErrRecognitionFailure = errors.New("speech could not be recognized")
	// ErrRecognitionService matches every *ServiceError.
	ErrRecognitionService = errors.New("recognition service error")
)

// ServiceError is a transport or service failure reported by a recognizer
type ServiceError struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s recognizer: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s recognizer: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRecognitionService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrRecognitionService
}
