package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clipforge/internal/services"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultJobTimeout    = 30 * time.Minute
	defaultPollInterval  = 5 * time.Second
	defaultRetryAttempts = 3
)

// Backoff ladder for transient submit/status failures. The final delay is
// reused once the ladder is exhausted.
var defaultBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Config captures the runtime settings for one generation service endpoint.
type Config struct {
	Name          string
	BaseURL       string
	APIKey        string
	JobTimeout    time.Duration
	PollInterval  time.Duration
	RetryAttempts int
}

// Client implements the submit-and-poll contract shared by every generation
// capability: POST a job, poll its status until terminal, return the
// artifact reference. Transient failures (5xx, 408, 429, network timeouts)
// are retried against the backoff ladder; 4xx responses propagate
// immediately as validation errors.
type Client struct {
	cfg        Config
	httpClient *http.Client
	backoff    []time.Duration
	sleeper    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBackoff overrides the retry delay ladder.
func WithBackoff(delays ...time.Duration) Option {
	return func(c *Client) {
		if len(delays) > 0 {
			c.backoff = delays
		}
	}
}

// WithSleeper overrides how retry and poll sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// New constructs a job client for the supplied endpoint configuration.
func New(cfg Config, opts ...Option) *Client {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Name returns the configured endpoint name, used in error messages and logs.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Request is the wire shape every capability submits: a primary input
// reference, an optional secondary reference, and capability-specific options.
type Request struct {
	PrimaryInputRef   string         `json:"primary_input_ref"`
	SecondaryInputRef string         `json:"secondary_input_ref,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	ArtifactRef string `json:"artifact_ref"`
	Error       string `json:"error"`
}

type statusResponse struct {
	Status      string `json:"status"`
	ArtifactRef string `json:"artifact_ref"`
	Error       string `json:"error"`
}

type httpStatusError struct {
	Name       string
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s request: http %d: %s", e.Name, e.StatusCode, strings.TrimSpace(e.Body))
}

// SubmitAndWait submits a job and polls its status until it reaches a
// terminal state, returning the artifact reference. The overall wait is
// bounded by the configured job timeout; individual submit and status calls
// are retried on transient failures.
func (c *Client) SubmitAndWait(ctx context.Context, path string, request Request) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, c.cfg.Name, "submit", "base url required", nil)
	}
	if strings.TrimSpace(request.PrimaryInputRef) == "" {
		return "", services.Wrap(services.ErrValidation, c.cfg.Name, "submit", "primary input ref required", nil)
	}

	submitted, err := c.submit(ctx, path, request)
	if err != nil {
		return "", err
	}
	// Some capabilities complete synchronously and return the artifact in
	// the submit response.
	if submitted.ArtifactRef != "" {
		return submitted.ArtifactRef, nil
	}
	if submitted.JobID == "" {
		return "", services.Wrap(services.ErrTransient, c.cfg.Name, "submit", "response carried neither job id nor artifact", nil)
	}
	return c.waitForJob(ctx, path, submitted.JobID)
}

func (c *Client) submit(ctx context.Context, path string, request Request) (submitResponse, error) {
	var parsed submitResponse
	body, err := c.doWithRetry(ctx, http.MethodPost, path, request, "submit")
	if err != nil {
		return parsed, err
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return parsed, services.Wrap(services.ErrTransient, c.cfg.Name, "submit", "decode response", err)
	}
	if parsed.Error != "" {
		return parsed, services.Wrap(services.ErrTransient, c.cfg.Name, "submit", parsed.Error, nil)
	}
	return parsed, nil
}

func (c *Client) waitForJob(ctx context.Context, path, jobID string) (string, error) {
	deadline := time.Now().Add(c.cfg.JobTimeout)
	statusPath := path + "/" + url.PathEscape(jobID)

	for {
		body, err := c.doWithRetry(ctx, http.MethodGet, statusPath, nil, "status")
		if err != nil {
			return "", err
		}
		var parsed statusResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", services.Wrap(services.ErrTransient, c.cfg.Name, "status", "decode response", err)
		}

		switch strings.ToLower(strings.TrimSpace(parsed.Status)) {
		case "succeeded", "completed", "done":
			if parsed.ArtifactRef == "" {
				return "", services.Wrap(services.ErrTransient, c.cfg.Name, "status", "job succeeded without an artifact ref", nil)
			}
			return parsed.ArtifactRef, nil
		case "failed", "error", "cancelled":
			message := parsed.Error
			if message == "" {
				message = "job failed without detail"
			}
			return "", services.Wrap(services.ErrExternalTool, c.cfg.Name, "status", message, nil)
		}

		if time.Now().After(deadline) {
			return "", services.Wrap(services.ErrTimeout, c.cfg.Name, "status",
				fmt.Sprintf("job %s not terminal after %s", jobID, c.cfg.JobTimeout), nil)
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return "", err
		}
	}
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, payload any, operation string) ([]byte, error) {
	attempts := c.cfg.RetryAttempts
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || attempt >= attempts || ctx.Err() != nil {
			return nil, classify(err, c.cfg.Name, operation)
		}
		if sleepErr := c.sleep(ctx, c.delayFor(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, services.Wrap(services.ErrTransient, c.cfg.Name, operation,
		fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s request: encode body: %w", c.cfg.Name, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s request: new request: %w", c.cfg.Name, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: http error: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s request: read body: %w", c.cfg.Name, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &httpStatusError{Name: c.cfg.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Connection resets and refused connections surface here.
		return true
	}
	return false
}

// classify tags a terminal request error with the marker the orchestrator's
// failure taxonomy expects: 4xx is a validation defect, everything else is
// transient infrastructure.
func classify(err error, name, operation string) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError &&
		statusErr.StatusCode != http.StatusRequestTimeout && statusErr.StatusCode != http.StatusTooManyRequests {
		return services.Wrap(services.ErrValidation, name, operation, "request rejected", err)
	}
	return services.Wrap(services.ErrTransient, name, operation, "request failed", err)
}

func (c *Client) delayFor(attempt int) time.Duration {
	ladder := c.backoff
	if len(ladder) == 0 {
		ladder = defaultBackoff
	}
	index := attempt - 1
	if index >= len(ladder) {
		index = len(ladder) - 1
	}
	if index < 0 {
		index = 0
	}
	return ladder[index]
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
