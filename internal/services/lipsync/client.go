package lipsync

import (
	"context"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
	"clipforge/internal/services/jobclient"
)

// Client drives the lip synchronization API: one video reference plus one
// audio reference in, one synchronized clip reference out.
type Client struct {
	job *jobclient.Client
}

// NewClient builds a synchronization client from configuration.
func NewClient(cfg *config.Config, opts ...jobclient.Option) *Client {
	return &Client{
		job: jobclient.New(jobclient.Config{
			Name:          "lipsync",
			BaseURL:       cfg.LipSync.BaseURL,
			APIKey:        cfg.LipSync.APIKey,
			JobTimeout:    time.Duration(cfg.LipSync.JobTimeout) * time.Second,
			PollInterval:  time.Duration(cfg.LipSync.PollInterval) * time.Second,
			RetryAttempts: cfg.LipSync.RetryAttempts,
		}, opts...),
	}
}

// Sync aligns the clip's mouth movement to the supplied audio and returns a
// reference to the synchronized clip.
func (c *Client) Sync(ctx context.Context, videoRef, audioRef string) (string, error) {
	if strings.TrimSpace(audioRef) == "" {
		return "", services.Wrap(services.ErrValidation, "lipsync", "sync", "audio ref required", nil)
	}
	return c.job.SubmitAndWait(ctx, "/v1/sync", jobclient.Request{
		PrimaryInputRef:   videoRef,
		SecondaryInputRef: audioRef,
	})
}
