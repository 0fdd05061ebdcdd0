package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrNegativeDuration = errors.New("duration must be >= 0")

const maxSeconds = math.MaxInt64 / int64(time.Second)

// DurationError names the setting that held an unusable duration.
type DurationError struct {
	Path string
	Raw  string
	Err  error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("%s: invalid duration %q: %v", e.Path, e.Raw, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }

// ParseDurationField accepts Go durations ("250ms", "1m30s") and bare integers
// as seconds, the way env files usually carry them (POLL_TIMEOUT=60).
// Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err == nil && d < 0 {
		err = ErrNegativeDuration
	}
	if err != nil {
		return 0, &DurationError{Path: path, Raw: raw, Err: err}
	}
	return d, nil
}

func parseDuration(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.ParseDuration(s)
	}
	if n > maxSeconds || n < -maxSeconds {
		return 0, strconv.ErrRange
	}
	return time.Duration(n) * time.Second, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// durationSettings maps each duration-valued setting to its raw value.
func durationSettings(cfg *Config) map[string]string {
	return map[string]string{
		"telegram.poll_timeout":  cfg.Telegram.PollTimeout,
		"telegram.poll_interval": cfg.Telegram.PollInterval,
		"storage.busy_timeout":   cfg.Storage.BusyTimeout,
		"status.read_timeout":    cfg.Status.ReadTimeout,
		"status.write_timeout":   cfg.Status.WriteTimeout,
		"status.idle_timeout":    cfg.Status.IdleTimeout,
	}
}
