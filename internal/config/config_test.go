package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestParseMissingFileGivesDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.False(t, m.FileExists())

	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Driver)
	assert.True(t, cfg.Logging.ConsoleEnabled())
}

func TestParseYAMLWithEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.yaml")
	writeFile(t, path, `
telegram:
  token: from-file
  poll_timeout: 30s
admin:
  chat_id: 7
storage:
  driver: sqlite
  path: ./castbot.db
broadcast:
  workers: 2
logging:
  console: false
texts:
  welcome: "مرحبا"
  kind_labels:
    voice: "🎙 voice"
`)
	t.Setenv("BOT_TOKEN", "123:env")
	t.Setenv("ADMIN_ID", "42")

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "123:env", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Admin.ChatID)
	assert.Equal(t, "30s", cfg.Telegram.PollTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 2, cfg.Broadcast.Workers)
	assert.False(t, cfg.Logging.ConsoleEnabled())
	assert.Equal(t, "مرحبا", cfg.Texts.Welcome)
	assert.Equal(t, "🎙 voice", cfg.Texts.KindLabels["voice"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	writeFile(t, path, `{"telegram":{"tokn":"x"}}`)
	_, err := NewManager(path).Parse()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	writeFile(t, path, `{"admin":{"chat_id":1}} {"admin":{"chat_id":2}}`)
	_, err := NewManager(path).Parse()
	require.ErrorContains(t, err, "trailing data")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(&Config{}))

	cases := map[string]Config{
		"mode":     {Telegram: TelegramConfig{Mode: "carrier-pigeon"}},
		"duration": {Telegram: TelegramConfig{PollTimeout: "soon"}},
		"negative": {Status: StatusConfig{ReadTimeout: "-1s"}},
		"driver":   {Storage: StorageConfig{Driver: "postgres"}},
		"redis":    {Storage: StorageConfig{Driver: "redis"}},
		"workers":  {Broadcast: BroadcastConfig{Workers: -1}},
		"schedule": {Digest: DigestConfig{Enabled: true, Schedule: "every morning"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(&cfg))
		})
	}
	assert.ErrorIs(t, Validate(&Config{Telegram: TelegramConfig{Mode: "x"}}), ErrBadMode)
}

func TestWarnings(t *testing.T) {
	w := Warnings(&Config{})
	require.Len(t, w, 2)
	assert.Contains(t, w[0], "BOT_TOKEN")
	assert.Contains(t, w[1], "ADMIN_ID")

	w = Warnings(&Config{
		Telegram: TelegramConfig{Token: "1:a", Mode: "webhook"},
		Admin:    AdminConfig{ChatID: 5},
	})
	require.Len(t, w, 1)
	assert.Contains(t, w[0], "WEBHOOK_URL")

	assert.Empty(t, Warnings(&Config{Telegram: TelegramConfig{Token: "1:a"}, Admin: AdminConfig{ChatID: 5}}))
}

func TestWarningsFlagPlaceholderTokens(t *testing.T) {
	for _, tok := range []string{"YOUR_BOT_TOKEN", "your_bot_token_here", " Your_Bot_Token_Here "} {
		assert.True(t, IsPlaceholderToken(tok), tok)
		w := Warnings(&Config{Telegram: TelegramConfig{Token: tok}, Admin: AdminConfig{ChatID: 5}})
		require.Len(t, w, 1, tok)
		assert.Contains(t, w[0], "placeholder")
	}
	assert.False(t, IsPlaceholderToken("123:abc"))
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationOrDefault("x", "nope", time.Second)
	assert.ErrorContains(t, err, "x: invalid duration")
}

func TestParseDurationFieldSeconds(t *testing.T) {
	d, err := ParseDurationField("telegram.poll_timeout", " 60 ")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDurationField("x", "0")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDurationField("status.idle_timeout", "-5")
	assert.ErrorIs(t, err, ErrNegativeDuration)
	var de *DurationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "status.idle_timeout", de.Path)

	_, err = ParseDurationField("x", "99999999999999999")
	assert.Error(t, err)
}

func TestValidateReportsBadDurations(t *testing.T) {
	err := Validate(&Config{
		Telegram: TelegramConfig{PollTimeout: "-1s"},
		Status:   StatusConfig{ReadTimeout: "soon"},
	})
	assert.ErrorIs(t, err, ErrNegativeDuration)
	assert.ErrorContains(t, err, "telegram.poll_timeout")
	assert.ErrorContains(t, err, "status.read_timeout")
}

func TestYAMLToJSON(t *testing.T) {
	out, err := yamlToJSON([]byte(`
defaults: &d
  workers: 2
  rate_per_sec: 10
broadcast:
  <<: *d
  workers: 8
list: [1, "two", true, null]
`))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"defaults": {"workers": 2, "rate_per_sec": 10},
		"broadcast": {"workers": 8, "rate_per_sec": 10},
		"list": [1, "two", true, null]
	}`, string(out))

	out, err = yamlToJSON([]byte("# only a comment\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
}

func TestYAMLToJSONRejectsNonMapping(t *testing.T) {
	_, err := yamlToJSON([]byte("- a\n- b\n"))
	assert.ErrorContains(t, err, "yaml line 1: top level must be a mapping")

	_, err = yamlToJSON([]byte("ok: 1\n? [a, b]\n: c\n"))
	assert.ErrorContains(t, err, "mapping keys must be scalars")

	_, err = yamlToJSON([]byte("a: [\n"))
	assert.Error(t, err)
}

func TestParseYAMLUnknownKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.yml")
	writeFile(t, path, "telegram:\n  tokn: x\n")
	_, err := NewManager(path).Parse()
	assert.ErrorContains(t, err, "decode yaml config")
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "1:a"}, Admin: AdminConfig{ChatID: 1}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "1:b"},
		Admin:     AdminConfig{ChatID: 2},
		Broadcast: BroadcastConfig{Workers: 8},
		Texts:     TextsConfig{Welcome: "hi"},
	}
	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"admin", "broadcast", "telegram", "texts"}, changed)
	assert.Equal(t, []string{"telegram"}, restart)
	assert.NotEmpty(t, attrs)

	changed, _, restart = SummarizeConfigChange(oldCfg, oldCfg)
	assert.Empty(t, changed)
	assert.Empty(t, restart)
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	writeFile(t, path, `{"admin":{"chat_id":1}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	writeFile(t, path, `{"admin":{"chat_id":2}}`)
	changed, err = m.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
	got := <-sub
	assert.Equal(t, int64(2), got.Admin.ChatID)
	assert.Equal(t, int64(2), m.Get().Admin.ChatID)

	m.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
}

func TestReloadRejectedByValidator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	writeFile(t, path, `{"admin":{"chat_id":1}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })

	writeFile(t, path, `{"admin":{"chat_id":3}}`)
	changed, err := m.Reload(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, changed)
	assert.Equal(t, int64(1), m.Get().Admin.ChatID)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	writeFile(t, path, `{"admin":{"chat_id":1}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, path, `{"admin":{"chat_id":9}}`)

	select {
	case got := <-sub:
		assert.Equal(t, int64(9), got.Admin.ChatID)
	case <-time.After(5 * time.Second):
		t.Fatal("reload not published")
	}
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "CASTBOT_DOTENV_PROBE=loaded\n")
	t.Cleanup(func() { _ = os.Unsetenv("CASTBOT_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CASTBOT_DOTENV_PROBE"))
}
