package config

// Config is the on-disk configuration (JSON or YAML). Every section is
// optional; environment variables named in env tags override file values.
//
// Durations are Go duration strings ("500ms", "60s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Admin     AdminConfig     `json:"admin"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Status    StatusConfig    `json:"status"`
	Logging   LoggingConfig   `json:"logging"`
	Digest    DigestConfig    `json:"digest"`
	Texts     TextsConfig     `json:"texts"`
}

type TelegramConfig struct {
	Token string `json:"token" env:"BOT_TOKEN"`
	// Mode is "polling" (default) or "webhook".
	Mode         string `json:"mode,omitempty" env:"TELEGRAM_MODE"`
	PollTimeout  string `json:"poll_timeout,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" env:"WEBHOOK_URL"`
	WebhookPath   string `json:"webhook_path,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty" env:"WEBHOOK_SECRET"`

	APIURL string `json:"api_url,omitempty"`
}

type AdminConfig struct {
	// ChatID is the private chat id of the single admin.
	ChatID int64 `json:"chat_id" env:"ADMIN_ID"`
}

// StorageConfig selects the recipient registry backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./castbot.db" }
type StorageConfig struct {
	Driver      string      `json:"driver,omitempty" env:"STORAGE_DRIVER"`
	Path        string      `json:"path,omitempty" env:"STORAGE_PATH"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite only
	Redis       RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" env:"REDIS_ADDR"`
	Password string `json:"password,omitempty" env:"REDIS_PASSWORD"`
	DB       int    `json:"db,omitempty" env:"REDIS_DB"`
	Prefix   string `json:"prefix,omitempty"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	History    int `json:"history,omitempty"`
}

type StatusConfig struct {
	Addr string `json:"addr,omitempty" env:"STATUS_ADDR"`
	// Port is the PaaS-style override; used only when Addr is empty.
	Port         string `json:"-" env:"PORT"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty" env:"LOG_LEVEL"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

// ConsoleEnabled defaults to true when the field is omitted.
func (l LoggingConfig) ConsoleEnabled() bool { return l.Console == nil || *l.Console }

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingTelegram mirrors warnings and errors into the admin chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type DigestConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	SkipQuiet bool   `json:"skip_quiet,omitempty"`
}

// TextsConfig overrides user-facing wording. Empty fields keep the defaults.
// Placeholders: {count}, {kind}, {sent}, {failed}, {total}, {new}, {broadcasts}.
type TextsConfig struct {
	Welcome       string `json:"welcome,omitempty"`
	BroadcastHelp string `json:"broadcast_help,omitempty"`
	NotAdmin      string `json:"not_admin,omitempty"`
	AdminOnly     string `json:"admin_only,omitempty"`
	Info          string `json:"info,omitempty"`
	InfoLast      string `json:"info_last,omitempty"`
	Running       string `json:"running,omitempty"`
	Busy          string `json:"busy,omitempty"`
	Private       string `json:"private,omitempty"`
	Unsupported   string `json:"unsupported,omitempty"`

	NoRecipients string `json:"no_recipients,omitempty"`
	Ack          string `json:"ack,omitempty"`
	Sent         string `json:"sent,omitempty"`
	Failed       string `json:"failed,omitempty"`
	// KindLabels maps a content kind ("text", "voice", ...) to its label in ack/report texts.
	KindLabels map[string]string `json:"kind_labels,omitempty"`

	Digest string `json:"digest,omitempty"`
}
