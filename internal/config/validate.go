package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Tokens shipped in sample configs; matched case-insensitively.
var tokenPlaceholders = []string{"YOUR_BOT_TOKEN", "your_bot_token_here"}

// IsPlaceholderToken reports whether tok is a sample value rather than a real token.
func IsPlaceholderToken(tok string) bool {
	tok = strings.TrimSpace(tok)
	for _, p := range tokenPlaceholders {
		if strings.EqualFold(tok, p) {
			return true
		}
	}
	return false
}

var (
	ErrBadMode   = errors.New("telegram.mode must be polling or webhook")
	ErrBadDriver = errors.New("storage.driver must be file, sqlite, redis or memory")
)

var digestParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate rejects configs that cannot run at all. Missing token or admin id
// are warnings, not errors: the status server still starts without them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Telegram.Mode)) {
	case "", "polling", "webhook":
	default:
		errs = append(errs, fmt.Errorf("%w (got %q)", ErrBadMode, cfg.Telegram.Mode))
	}
	for path, raw := range durationSettings(cfg) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "memory", "sqlite", "sqlite3":
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required when storage.driver=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w (got %q)", ErrBadDriver, cfg.Storage.Driver))
	}

	b := cfg.Broadcast
	if b.Workers < 0 || b.RatePerSec < 0 || b.History < 0 {
		errs = append(errs, errors.New("broadcast: workers, rate_per_sec and history must be >= 0"))
	}

	if cfg.Digest.Enabled {
		if s := strings.TrimSpace(cfg.Digest.Schedule); s != "" {
			if _, err := digestParser.Parse(s); err != nil {
				errs = append(errs, fmt.Errorf("digest.schedule %q: %w", s, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Warnings lists startup problems that degrade the bot without stopping it.
func Warnings(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	var out []string
	tok := strings.TrimSpace(cfg.Telegram.Token)
	switch {
	case tok == "":
		out = append(out, "telegram token is not set (BOT_TOKEN); inbound updates are disabled")
	case IsPlaceholderToken(tok):
		out = append(out, "telegram token is still the placeholder; set BOT_TOKEN")
	}
	switch {
	case cfg.Admin.ChatID == 0:
		out = append(out, "admin chat id is not set (ADMIN_ID); nobody can broadcast")
	case cfg.Admin.ChatID < 0:
		// Groups have negative ids.
		out = append(out, "admin chat id is a group; broadcasts will be triggered by anyone posting there")
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Telegram.Mode), "webhook") && strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
		out = append(out, "webhook mode without telegram.webhook_url (WEBHOOK_URL); inbound updates are disabled")
	}
	if cfg.Logging.Telegram.Enabled && cfg.Admin.ChatID == 0 {
		out = append(out, "logging.telegram is enabled but there is no admin chat to send to")
	}
	return out
}
