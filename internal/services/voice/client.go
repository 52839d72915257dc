package voice

import (
	"context"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
	"clipforge/internal/services/jobclient"
)

// Client drives the text-to-speech API: script text in, audio reference out.
type Client struct {
	job          *jobclient.Client
	defaultVoice string
}

// NewClient builds a synthesis client from configuration.
func NewClient(cfg *config.Config, opts ...jobclient.Option) *Client {
	return &Client{
		job: jobclient.New(jobclient.Config{
			Name:          "voice",
			BaseURL:       cfg.Voice.BaseURL,
			APIKey:        cfg.Voice.APIKey,
			JobTimeout:    time.Duration(cfg.Voice.JobTimeout) * time.Second,
			PollInterval:  time.Duration(cfg.Voice.PollInterval) * time.Second,
			RetryAttempts: cfg.Voice.RetryAttempts,
		}, opts...),
		defaultVoice: strings.TrimSpace(cfg.Voice.DefaultVoice),
	}
}

// Synthesize renders the script with the given voice identity and returns a
// reference to the produced audio. An empty voice id falls back to the
// configured default.
func (c *Client) Synthesize(ctx context.Context, script, voiceID, language string) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", services.Wrap(services.ErrValidation, "voice", "synthesize", "script required", nil)
	}
	if voiceID = strings.TrimSpace(voiceID); voiceID == "" {
		voiceID = c.defaultVoice
	}
	options := map[string]any{"voice_id": voiceID}
	if language = strings.TrimSpace(language); language != "" {
		options["language"] = language
	}
	return c.job.SubmitAndWait(ctx, "/v1/speech", jobclient.Request{
		PrimaryInputRef: script,
		Options:         options,
	})
}
