package mediagen

import (
	"context"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services/jobclient"
)

// Client drives the image-to-video generation API: one reference image
// (plus an optional motion reference) in, one rendered clip reference out.
type Client struct {
	job         *jobclient.Client
	duration    int
	aspectRatio string
	motion      int
}

// NewClient builds a generation client from configuration.
func NewClient(cfg *config.Config, opts ...jobclient.Option) *Client {
	return &Client{
		job: jobclient.New(jobclient.Config{
			Name:          "mediagen",
			BaseURL:       cfg.MediaGen.BaseURL,
			APIKey:        cfg.MediaGen.APIKey,
			JobTimeout:    time.Duration(cfg.MediaGen.JobTimeout) * time.Second,
			PollInterval:  time.Duration(cfg.MediaGen.PollInterval) * time.Second,
			RetryAttempts: cfg.MediaGen.RetryAttempts,
		}, opts...),
		duration:    cfg.MediaGen.DurationSec,
		aspectRatio: cfg.MediaGen.AspectRatio,
		motion:      cfg.MediaGen.MotionStrength,
	}
}

// GenerateClip renders a video clip from a character image, optionally
// guided by a motion reference. Blocks until the remote job is terminal.
func (c *Client) GenerateClip(ctx context.Context, imageRef, motionRef string) (string, error) {
	options := map[string]any{
		"aspect_ratio": c.aspectRatio,
	}
	if c.duration > 0 {
		options["duration_sec"] = c.duration
	}
	if c.motion > 0 {
		options["motion_strength"] = c.motion
	}
	return c.job.SubmitAndWait(ctx, "/v1/generations", jobclient.Request{
		PrimaryInputRef:   imageRef,
		SecondaryInputRef: motionRef,
		Options:           options,
	})
}
