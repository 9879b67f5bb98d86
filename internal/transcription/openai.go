package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIDefaultModel = openai.AudioModelWhisper1

// OpenAIConfig configures the OpenAI-compatible recognizer
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAI recognizes speech with the audio transcription API.
type OpenAI struct {
	client *openai.Client
	model  openai.AudioModel
}

var _ Recognizer = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI recognizer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	client := openai.NewClient(opts...)

	model := openai.AudioModel(cfg.Model)
	if model == "" {
		model = openAIDefaultModel
	}

	return &OpenAI{client: &client, model: model}, nil
}

// Name returns the provider name.
func (o *OpenAI) Name() string { return "openai" }

// Recognize uploads the WAV file at req.Path for transcription.
func (o *OpenAI) Recognize(ctx context.Context, req Request) (*Result, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          o.model,
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if lang := req.Language(); lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		serviceErr := &ServiceError{Provider: o.Name(), Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			serviceErr.StatusCode = apiErr.StatusCode
		}
		return nil, serviceErr
	}

	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrRecognitionFailure
	}
	return &Result{Text: resp.Text, Language: req.Language()}, nil
}
