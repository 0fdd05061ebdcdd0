// Package app wires the registry, transport, router, dispatcher and the
// supporting services into one process and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/delivery"
	"castbot/internal/digest"
	"castbot/internal/eventbus"
	"castbot/internal/router"
	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/status"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	telegram "castbot/internal/transport/telegram/adapter"
	logx "castbot/pkg/logx"
	"castbot/pkg/systemd"
)

// ErrNoToken disables inbound delivery; the status server still runs.
var ErrNoToken = errors.New("telegram token is not set")

type Options struct {
	ConfigPath string
	// EnvFile is an optional dotenv file loaded before the config.
	EnvFile string
}

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store      storage.Store
	recipients *storage.Recipients

	// adapter is nil when inbound delivery is disabled; inboundErr says why.
	adapter    *telegram.Adapter
	inboundErr error

	dispatcher *broadcast.Dispatcher
	router     *router.Router
	digest     *digest.Service
	status     *status.Server

	updates   chan kit.Update
	startedAt time.Time
}

func New(opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	// Console-only until the config says where logs go.
	bootLog := logx.NewConsole("info").With(logx.String("comp", "config"))
	cfgm := config.NewManager(opts.ConfigPath)
	cfgm.SetLogger(bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		bootLog.Error("config load failed", logx.String("path", opts.ConfigPath), logx.Err(err))
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The Telegram log sink needs a target and a sender; enable it once both are wired.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg)
	log := root.With(logx.String("comp", "app"))
	if !cfgm.FileExists() {
		log.Info("config file not found; using defaults and environment", logx.String("path", cfgm.Path()))
	}
	for _, w := range config.Warnings(cfg) {
		log.Warn(w)
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		updates: make(chan kit.Update, 256),
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.recipients = storage.NewRecipients(store, root.With(logx.String("comp", "registry")))
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	if err := a.initAdapter(cfg, root); err != nil {
		a.inboundErr = err
		log.Error("inbound delivery disabled", logx.Err(err))
	}

	// Senders stay nil interfaces without an adapter.
	var notify kit.TextSender
	var gateway broadcast.Deliverer
	if a.adapter != nil {
		notify = a.adapter
		gateway = delivery.New(a.adapter.Bot(), root.With(logx.String("comp", "delivery")))
		logSvc.SetSender(a.adapter)
	}
	logSvc.SetTelegramTarget(cfg.Admin.ChatID)
	logSvc.Apply(logCfg)

	a.dispatcher = broadcast.New(mapBroadcastConfig(cfg), mapBroadcastTexts(cfg), broadcast.Deps{
		Gateway: gateway,
		Notify:  notify,
		Audit:   store,
		Bus:     a.bus,
		Log:     root.With(logx.String("comp", "broadcast")),
	})
	a.router = router.New(cfg.Admin.ChatID, mapRouterTexts(cfg), router.Deps{
		Sender:     notify,
		Recipients: a.recipients,
		Dispatcher: a.dispatcher,
		Bus:        a.bus,
		Log:        root.With(logx.String("comp", "router")),
	})
	a.digest = digest.New(mapDigestConfig(cfg), digest.Deps{
		Sender: notify,
		Admin:  a.router.Admin,
		Count:  a.recipients.Count,
		Bus:    a.bus,
		Log:    root.With(logx.String("comp", "digest")),
	})

	stc, err := mapStatusConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var sopts []status.Option
	if a.adapter != nil {
		if h := a.adapter.WebhookHandler(); h != nil {
			sopts = append(sopts, status.WithWebhook(a.adapter.WebhookPath(), h))
		}
	}
	a.status = status.New(stc, a.Snapshot, root.With(logx.String("comp", "status")), sopts...)
	return a, nil
}

func (a *App) initAdapter(cfg *config.Config, root logx.Logger) error {
	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return err
	}
	if acfg.Token == "" || config.IsPlaceholderToken(acfg.Token) {
		return ErrNoToken
	}
	ad, err := telegram.New(acfg, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = ad
	return nil
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// InboundErr reports why inbound delivery is disabled (nil when enabled).
func (a *App) InboundErr() error { return a.inboundErr }

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateMapped)

	// The status page comes up first so a misconfigured bot is still observable.
	a.status.Start(run)

	if a.adapter != nil {
		if err := a.adapter.Start(run, a.updates); err != nil {
			return err
		}
		a.sup.Go("router.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates)
		})
		a.sup.Go0("telegram.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.adapter.UpdateMenuCommands(mctx, router.Commands()); err != nil {
				a.log.Warn("bot menu update failed", logx.Err(err))
			}
		})
	}

	if err := a.digest.Start(run); err != nil {
		a.log.Warn("digest not scheduled", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgm.FileExists() {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, a.log, iv, func() bool { return a.sup.Err() == nil })
		})
	}
	systemd.Ready(a.log)
	systemd.Status(a.log, a.statusLine())

	a.log.Info("app started", logx.Bool("inbound", a.adapter != nil))
	return nil
}

func (a *App) statusLine() string {
	if a.adapter == nil {
		return "inbound disabled: " + a.inboundErr.Error()
	}
	return "receiving via " + a.adapter.Mode()
}

// validateMapped rejects reloads whose values the components cannot take.
func validateMapped(_ context.Context, cfg *config.Config) error {
	if _, err := mapAdapterConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStatusConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}
