package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
)

const (
	defaultUploadTimeout = 5 * time.Minute
	defaultRetryAttempts = 3
)

var retryDelays = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Client moves artifact bytes in and out of durable storage. Uploads land
// under deterministic folder paths grouped by date and content id so a run
// for the same content always targets the same folder.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	prefix        string
	retryAttempts int
	sleeper       func(time.Duration)
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

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient builds a storage client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultUploadTimeout
	if cfg.Storage.UploadTimeout > 0 {
		timeout = time.Duration(cfg.Storage.UploadTimeout) * time.Second
	}
	attempts := cfg.Storage.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.Storage.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.Storage.APIKey),
		prefix:        strings.Trim(strings.TrimSpace(cfg.Storage.FolderPrefix), "/"),
		retryAttempts: attempts,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FolderFor returns the storage folder for a content item: the configured
// prefix, the date, then the content id.
func (c *Client) FolderFor(date time.Time, contentID string) string {
	parts := []string{}
	if c.prefix != "" {
		parts = append(parts, c.prefix)
	}
	parts = append(parts, date.UTC().Format("2006-01-02"), contentID)
	return path.Join(parts...)
}

type uploadResponse struct {
	Ref string `json:"ref"`
}

// Upload stores the payload under folder/name and returns a reference to
// the stored object. Transient failures are retried with increasing delays.
func (c *Client) Upload(ctx context.Context, folder, name string, data []byte) (string, error) {
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "objstore", "upload", "base url required", nil)
	}
	if len(data) == 0 {
		return "", services.Wrap(services.ErrValidation, "objstore", "upload", "empty payload", nil)
	}
	objectPath := path.Join(folder, name)
	endpoint := c.baseURL + "/objects/" + escapePath(objectPath)

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		ref, err := c.uploadOnce(ctx, endpoint, objectPath, data)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt >= c.retryAttempts || ctx.Err() != nil {
			return "", err
		}
		if sleepErr := c.sleep(ctx, delayFor(attempt)); sleepErr != nil {
			return "", sleepErr
		}
	}
	return "", services.Wrap(services.ErrTransient, "objstore", "upload",
		fmt.Sprintf("failed after %d attempts", c.retryAttempts), lastErr)
}

func (c *Client) uploadOnce(ctx context.Context, endpoint, objectPath string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "objstore", "upload", "new request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "objstore", "upload", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "objstore", "upload", "read body", err)
	}
	if err := statusToError(resp.StatusCode, body, "upload"); err != nil {
		return "", err
	}

	var parsed uploadResponse
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.Ref != "" {
		return parsed.Ref, nil
	}
	// Servers without a JSON response body address objects by their path.
	return objectPath, nil
}

// Download fetches an artifact by reference. Absolute URLs are fetched
// directly; bare object paths resolve against the configured endpoint.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "objstore", "download", "empty ref", nil)
	}
	endpoint := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if c.baseURL == "" {
			return nil, services.Wrap(services.ErrConfiguration, "objstore", "download", "base url required for relative refs", nil)
		}
		endpoint = c.baseURL + "/objects/" + escapePath(strings.TrimLeft(ref, "/"))
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		data, err := c.downloadOnce(ctx, endpoint)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt >= c.retryAttempts || ctx.Err() != nil {
			return nil, err
		}
		if sleepErr := c.sleep(ctx, delayFor(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, services.Wrap(services.ErrTransient, "objstore", "download",
		fmt.Sprintf("failed after %d attempts", c.retryAttempts), lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "objstore", "download", "new request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "objstore", "download", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "objstore", "download", "read body", err)
	}
	if err := statusToError(resp.StatusCode, body, "download"); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrTransient, "objstore", "download", "empty object", nil)
	}
	return body, nil
}

func statusToError(code int, body []byte, operation string) error {
	switch {
	case code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "objstore", operation, trimBody(body), nil)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "objstore", operation,
			fmt.Sprintf("http %d: %s", code, trimBody(body)), nil)
	default:
		return services.Wrap(services.ErrValidation, "objstore", operation,
			fmt.Sprintf("http %d: %s", code, trimBody(body)), nil)
	}
}

func trimBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 160 {
		trimmed = trimmed[:160] + "..."
	}
	return trimmed
}

func escapePath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func delayFor(attempt int) time.Duration {
	index := attempt - 1
	if index >= len(retryDelays) {
		index = len(retryDelays) - 1
	}
	if index < 0 {
		index = 0
	}
	return retryDelays[index]
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
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
