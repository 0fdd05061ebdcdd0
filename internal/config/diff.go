package config

import (
	"reflect"
	"sort"
	"strings"

	logx "castbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe attrs for logging
// (never the token, secrets or passwords), and the changed sections that only
// take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg, newCfg

	if o.Telegram != n.Telegram {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.String("telegram.mode", strings.TrimSpace(n.Telegram.Mode)),
			logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
			logx.Bool("telegram.webhook_url_set", strings.TrimSpace(n.Telegram.WebhookURL) != ""),
		)
	}
	if o.Admin != n.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs, logx.Bool("admin.set", n.Admin.ChatID != 0))
	}
	if o.Storage != n.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(n.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(n.Storage.Path) != ""),
		)
	}
	if o.Broadcast != n.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.workers", n.Broadcast.Workers),
			logx.Int("broadcast.rate_per_sec", n.Broadcast.RatePerSec),
			logx.Int("broadcast.history", n.Broadcast.History),
		)
	}
	if o.Status != n.Status {
		changed = append(changed, "status")
		restart = append(restart, "status")
		attrs = append(attrs, logx.String("status.addr", strings.TrimSpace(n.Status.Addr)))
	}
	if !reflect.DeepEqual(o.Logging, n.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.ConsoleEnabled()),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}
	if o.Digest != n.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", n.Digest.Enabled),
			logx.String("digest.schedule", n.Digest.Schedule),
		)
	}
	if !reflect.DeepEqual(o.Texts, n.Texts) {
		changed = append(changed, "texts")
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
