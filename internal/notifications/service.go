package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
)

const userAgent = "Clipforge-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyPlanApproved(ctx context.Context, contentID string) error
	NotifyProductionStarted(ctx context.Context, contentID string, sections int) error
	NotifyProductionCompleted(ctx context.Context, contentID string, elapsed time.Duration) error
	NotifyPublished(ctx context.Context, contentID, platform string) error
	NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		production: cfg.Notifications.Production,
		queue:      cfg.Notifications.Queue,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	production bool
	queue      bool
	errors     bool
}

func (n *ntfyService) NotifyPlanApproved(ctx context.Context, contentID string) error {
	if !n.production {
		return nil
	}
	data := payload{
		title:   "Clipforge - Plan Approved",
		message: fmt.Sprintf("Plan approved: %s", strings.TrimSpace(contentID)),
		tags:    []string{"clipforge", "plan", "approved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProductionStarted(ctx context.Context, contentID string, sections int) error {
	if !n.production {
		return nil
	}
	data := payload{
		title:   "Clipforge - Production Started",
		message: fmt.Sprintf("Producing %s (%d sections)", strings.TrimSpace(contentID), sections),
		tags:    []string{"clipforge", "production", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProductionCompleted(ctx context.Context, contentID string, elapsed time.Duration) error {
	if !n.production {
		return nil
	}
	data := payload{
		title:    "Clipforge - Ready",
		message:  fmt.Sprintf("Video ready: %s (%s)", strings.TrimSpace(contentID), elapsed.Round(time.Second)),
		tags:     []string{"clipforge", "production", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublished(ctx context.Context, contentID, platform string) error {
	if !n.production {
		return nil
	}
	platform = strings.TrimSpace(platform)
	if platform == "" {
		platform = "unknown"
	}
	data := payload{
		title:   "Clipforge - Published",
		message: fmt.Sprintf("Posted %s to %s", strings.TrimSpace(contentID), platform),
		tags:    []string{"clipforge", "publish", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queue {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Clipforge - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d items in %s", processed, duration)
	} else {
		title = "Clipforge - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", processed, failed, duration)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"clipforge", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Clipforge - Error",
		message:  builder.String(),
		tags:     []string{"clipforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Clipforge - Test",
		message:  "Notification system test",
		tags:     []string{"clipforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPlanApproved(context.Context, string) error           { return nil }
func (noopService) NotifyProductionStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyProductionCompleted(context.Context, string, time.Duration) error {
	return nil
}
func (noopService) NotifyPublished(context.Context, string, string) error             { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
