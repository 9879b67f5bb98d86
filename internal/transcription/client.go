package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hasanylld/sesbil/internal/metrics"
)

// Client sends WAV files to a multipart transcription endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	// RetryBackoff is the first retry delay; it doubles per attempt up to
	// 30 seconds.
	RetryBackoff time.Duration
}

// response is the JSON body returned by the endpoint
type response struct {
	RequestID  string  `json:"request_id"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// statusError is a non-2xx response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.code, e.body)
}

var _ Recognizer = (*Client)(nil)

// NewClient creates a new transcription HTTP client
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
		metrics:    m,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "http" }

// Recognize uploads the WAV file at req.Path, retrying transient failures
// with exponential backoff.
func (c *Client) Recognize(ctx context.Context, req Request) (*Result, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	audio, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	requestID := uuid.NewString()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordTranscriptionRetry()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBackoff
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			c.logger.Debug("Retrying transcription request",
				slog.String("request_id", requestID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffTime),
				slog.Any("error", lastErr),
			)

			timer := time.NewTimer(backoffTime)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.incrementFailedRequests()
				return nil, &ServiceError{Provider: c.Name(), Err: ctx.Err()}
			}
		}

		resp, err := c.doRequest(ctx, requestID, filepath.Base(req.Path), audio, req)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			if strings.TrimSpace(resp.Text) == "" {
				return nil, ErrRecognitionFailure
			}
			return &Result{Text: resp.Text, Language: resp.Language, Duration: resp.Duration}, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()

	serviceErr := &ServiceError{
		Provider: c.Name(),
		Err:      fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr),
	}
	var se *statusError
	if errors.As(lastErr, &se) {
		serviceErr.StatusCode = se.code
	}
	return nil, serviceErr
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, requestID, filename string, audio []byte, req Request) (*response, error) {
	body, contentType, err := c.createMultipartRequest(requestID, filename, audio, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Sesbil/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return &parsed, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(requestID, filename string, audio []byte, req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := [][2]string{
		{"request_id", requestID},
		{"sample_rate", fmt.Sprintf("%d", req.SampleRate)},
		{"duration", fmt.Sprintf("%.3f", req.Duration.Seconds())},
		{"format", "wav"},
		{"response_format", "json"},
	}
	if req.Locale != "" {
		fields = append(fields, [2]string{"locale", req.Locale}, [2]string{"language", req.Language()})
	}
	if c.config.Model != "" {
		fields = append(fields, [2]string{"model", c.config.Model})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError reports whether a failed attempt may succeed when repeated:
// 5xx and 429 responses, timeouts and connection failures.
func isRetryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests to complete.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
