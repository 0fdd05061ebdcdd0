package app

import (
	"context"
	"strings"

	"castbot/internal/config"
	logx "castbot/pkg/logx"
	"castbot/pkg/systemd"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest queued config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			systemd.Reloading(a.log)
			a.applyConfig(last, next)
			last = next
			systemd.Ready(a.log)
		}
	}
}

// applyConfig pushes the hot-reloadable sections into the live components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(next.Admin.ChatID)
	a.logs.Apply(mapLogConfig(next))

	a.router.SetAdmin(next.Admin.ChatID)
	a.router.SetTexts(mapRouterTexts(next))
	a.dispatcher.Apply(mapBroadcastConfig(next), mapBroadcastTexts(next))
	if err := a.digest.Apply(mapDigestConfig(next)); err != nil {
		a.log.Warn("digest config rejected; keeping schedule off", logx.Err(err))
	}

	for _, w := range config.Warnings(next) {
		a.log.Warn(w)
	}
	if len(restart) > 0 {
		a.log.Warn("config changed in sections that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
