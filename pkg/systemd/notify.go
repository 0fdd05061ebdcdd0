// Package systemd speaks the sd_notify protocol: readiness, stopping and
// watchdog keep-alives. Every call is a no-op outside a systemd unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "castbot/pkg/logx"
)

// Ready tells systemd startup finished (Type=notify units).
func Ready(log logx.Logger) { notify(log, daemon.SdNotifyReady) }

// Reloading brackets a config reload; call Ready afterwards.
func Reloading(log logx.Logger) { notify(log, daemon.SdNotifyReloading) }

func Stopping(log logx.Logger) { notify(log, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(log logx.Logger, msg string) { notify(log, "STATUS="+msg) }

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// WatchdogInterval returns the keep-alive period (half of WatchdogSec), or 0
// when the unit has no watchdog.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval until ctx is done. healthy gates each
// ping so a wedged process stops feeding the watchdog and gets restarted.
func Watchdog(ctx context.Context, log logx.Logger, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy != nil && !healthy() {
				log.Warn("watchdog ping skipped: unhealthy")
				continue
			}
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
