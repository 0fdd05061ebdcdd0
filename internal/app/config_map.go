package app

import (
	"net"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/content"
	"castbot/internal/digest"
	"castbot/internal/router"
	"castbot/internal/status"
	"castbot/internal/storage"
	telegram "castbot/internal/transport/telegram/adapter"
	logx "castbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(sc.Path)
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if path == "" {
		switch driver {
		case "", "file":
			path = storage.DefaultPath
		case "sqlite", "sqlite3":
			path = "./castbot.db"
		}
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   strings.TrimSpace(sc.Redis.Prefix),
		},
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	tc := cfg.Telegram
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", tc.PollTimeout, telegram.DefaultPollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	pollInterval, err := config.ParseDurationOrDefault("telegram.poll_interval", tc.PollInterval, telegram.DefaultPollInterval)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:         strings.TrimSpace(tc.Token),
		Mode:          tc.Mode,
		PollTimeout:   pollTimeout,
		PollInterval:  pollInterval,
		WebhookURL:    strings.TrimSpace(tc.WebhookURL),
		WebhookPath:   strings.TrimSpace(tc.WebhookPath),
		WebhookSecret: tc.WebhookSecret,
		APIURL:        strings.TrimSpace(tc.APIURL),
	}, nil
}

func mapStatusConfig(cfg *config.Config) (status.Config, error) {
	sc := cfg.Status
	addr := strings.TrimSpace(sc.Addr)
	if addr == "" && strings.TrimSpace(sc.Port) != "" {
		addr = net.JoinHostPort("0.0.0.0", strings.TrimSpace(sc.Port))
	}
	out := status.Config{Addr: addr}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("status.read_timeout", sc.ReadTimeout, 10*time.Second); err != nil {
		return status.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("status.write_timeout", sc.WriteTimeout, 15*time.Second); err != nil {
		return status.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("status.idle_timeout", sc.IdleTimeout, time.Minute); err != nil {
		return status.Config{}, err
	}
	return out, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.ConsoleEnabled(),
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
		History:    cfg.Broadcast.History,
	}
}

func mapRouterTexts(cfg *config.Config) router.Texts {
	t := cfg.Texts
	return router.Texts{
		Welcome:       t.Welcome,
		BroadcastHelp: t.BroadcastHelp,
		NotAdmin:      t.NotAdmin,
		AdminOnly:     t.AdminOnly,
		Info:          t.Info,
		InfoLast:      t.InfoLast,
		Running:       t.Running,
		Busy:          t.Busy,
		Private:       t.Private,
		Unsupported:   t.Unsupported,
	}.Merge(router.DefaultTexts())
}

func mapBroadcastTexts(cfg *config.Config) broadcast.Texts {
	t := cfg.Texts
	var labels map[content.Kind]string
	if len(t.KindLabels) > 0 {
		labels = make(map[content.Kind]string, len(t.KindLabels))
		for k, v := range t.KindLabels {
			labels[content.Kind(strings.ToLower(strings.TrimSpace(k)))] = v
		}
	}
	return broadcast.Texts{
		NoRecipients: t.NoRecipients,
		Ack:          t.Ack,
		Sent:         t.Sent,
		Failed:       t.Failed,
		KindLabels:   labels,
	}.Merge(broadcast.DefaultTexts())
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	d := cfg.Digest
	return digest.Config{
		Enabled:   d.Enabled,
		Schedule:  d.Schedule,
		Timezone:  d.Timezone,
		SkipQuiet: d.SkipQuiet,
		Template:  cfg.Texts.Digest,
	}
}
