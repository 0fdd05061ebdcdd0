package adapter

import (
	"errors"
	"strings"
	"time"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	DefaultPollTimeout  = 60 * time.Second
	DefaultPollInterval = time.Second
	DefaultWebhookPath  = "/telegram/webhook"
)

// ErrWebhookURL is returned when webhook mode has no public base URL.
var ErrWebhookURL = errors.New("telegram: webhook mode requires a public URL")

type Config struct {
	Token string
	Mode  string

	// PollTimeout is the getUpdates long-poll window; PollInterval the pause between polls.
	PollTimeout  time.Duration
	PollInterval time.Duration

	WebhookURL    string
	WebhookPath   string
	WebhookSecret string

	// APIURL overrides the Bot API endpoint (self-hosted server).
	APIURL string
}

func (c Config) normalized() Config {
	c.Token = strings.TrimSpace(c.Token)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModePolling
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.WebhookPath = strings.TrimSpace(c.WebhookPath)
	if c.WebhookPath == "" {
		c.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		c.WebhookPath = "/" + c.WebhookPath
	}
	return c
}

// PublicWebhookURL joins the base URL and path.
func (c Config) PublicWebhookURL() string {
	c = c.normalized()
	base := strings.TrimRight(strings.TrimSpace(c.WebhookURL), "/")
	if base == "" {
		return ""
	}
	return base + c.WebhookPath
}
