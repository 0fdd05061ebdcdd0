// Package adapter connects the bot to Telegram through telebot, delivering
// normalized updates by long polling or webhook.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	webhook *webhookPoller

	// me is set once getMe succeeds; receiving starts only after that.
	me          atomic.Pointer[tele.User]
	identifyMin time.Duration
	identifyMax time.Duration

	out atomic.Pointer[chan<- kit.Update]

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// dropped counts updates discarded because the router queue was full.
	dropped atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

const (
	identifyRetryMin = time.Second
	identifyRetryMax = 30 * time.Second
)

// New builds the telebot client without contacting the Bot API. The token is
// checked by getMe from Start, which retries until Telegram is reachable.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	cfg = cfg.normalized()
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, identifyMin: identifyRetryMin, identifyMax: identifyRetryMax}

	var poller tele.Poller
	switch cfg.Mode {
	case ModePolling:
		poller = &pacedPoller{timeout: cfg.PollTimeout, interval: cfg.PollInterval, log: log.With(logx.String("comp", "telegram.poller"))}
	case ModeWebhook:
		if cfg.PublicWebhookURL() == "" {
			return nil, ErrWebhookURL
		}
		a.webhook = &webhookPoller{secret: cfg.WebhookSecret, log: log}
		poller = a.webhook
	default:
		return nil, fmt.Errorf("telegram: unknown mode %q", cfg.Mode)
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Poller:  poller,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.PollTimeout + 10*time.Second},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	a.registerHandlers()
	return a, nil
}

// Bot exposes the telebot client for the delivery gateway.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

func (a *Adapter) Mode() string { return a.cfg.Mode }

func (a *Adapter) registerHandlers() {
	for _, ev := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnDocument, tele.OnAudio,
		tele.OnVoice, tele.OnSticker, tele.OnAnimation, tele.OnVideoNote,
		tele.OnLocation, tele.OnContact, tele.OnVenue, tele.OnPoll, tele.OnDice,
	} {
		a.bot.Handle(ev, a.onMessage)
	}
}

func (a *Adapter) onMessage(c tele.Context) error {
	msg, ok := normalizeMessage(c.Message())
	if !ok {
		a.log.Debug("update dropped: no message or chat")
		return nil
	}
	a.deliver(kit.Update{Kind: kit.UpdateMessage, Message: msg, ReceivedAt: time.Now()})
	return nil
}

func (a *Adapter) deliver(up kit.Update) {
	p := a.out.Load()
	if p == nil || *p == nil {
		return
	}
	select {
	case *p <- up:
	default:
		a.dropped.Add(1)
	}
}

// normalizeMessage maps a telebot message to the transport model. Media the
// bot cannot relay is reported as MediaOther.
func normalizeMessage(m *tele.Message) (*kit.Message, bool) {
	if m == nil || m.Chat == nil {
		return nil, false
	}
	out := &kit.Message{
		ID:      m.ID,
		ChatID:  m.Chat.ID,
		FromID:  m.Chat.ID,
		IsGroup: m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		Text:    m.Text,
		Caption: m.Caption,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}

	switch {
	case m.Animation != nil, m.VideoNote != nil:
		out.Media = kit.MediaOther
	case m.Photo != nil:
		out.Media, out.FileID = kit.MediaPhoto, m.Photo.FileID
	case m.Video != nil:
		out.Media, out.FileID = kit.MediaVideo, m.Video.FileID
	case m.Document != nil:
		out.Media, out.FileID = kit.MediaDocument, m.Document.FileID
	case m.Audio != nil:
		out.Media, out.FileID = kit.MediaAudio, m.Audio.FileID
	case m.Voice != nil:
		out.Media, out.FileID = kit.MediaVoice, m.Voice.FileID
	case m.Sticker != nil:
		out.Media, out.FileID = kit.MediaSticker, m.Sticker.FileID
	case m.Text == "":
		out.Media = kit.MediaOther
	}
	return out, true
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(&out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// Start blocks until Stop; restart it if it returns while still running.
	sup.GoRestart("telebot.run", func(c context.Context) error {
		if err := a.identify(c); err != nil {
			return err
		}
		a.log.Info("telegram receiving", logx.String("mode", a.cfg.Mode))
		a.bot.Start()
		a.log.Info("telegram stopped receiving")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartOnCleanExit(true),
	)
	return nil
}

// Me returns the bot account, or nil until getMe has succeeded.
func (a *Adapter) Me() *tele.User { return a.me.Load() }

// identify calls getMe until it succeeds or ctx ends, then prepares the
// receive mode. Later calls return at once.
func (a *Adapter) identify(ctx context.Context) error {
	if a.me.Load() != nil {
		return nil
	}
	wait := a.identifyMin
	for attempt := 1; ; attempt++ {
		me, err := a.getMe()
		if err == nil {
			a.bot.Me = me
			a.me.Store(me)
			a.log.Info("telegram bot identified", logx.String("username", me.Username), logx.Int64("bot_id", me.ID))
			if err := a.prepareMode(); err != nil {
				a.log.Warn("telegram mode setup failed", logx.String("mode", a.cfg.Mode), logx.Err(err))
			}
			return nil
		}
		if errors.Is(err, tele.ErrUnauthorized) {
			a.log.Error("telegram rejected the bot token", logx.Int("attempt", attempt), logx.Err(err))
			wait = a.identifyMax
		} else {
			a.log.Warn("telegram getMe failed", logx.Int("attempt", attempt), logx.Duration("retry_in", wait), logx.Err(err))
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait = min(wait*2, a.identifyMax)
	}
}

func (a *Adapter) getMe() (*tele.User, error) {
	raw, err := a.bot.Raw("getMe", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result *tele.User `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	if resp.Result == nil || resp.Result.ID == 0 {
		return nil, errors.New("telegram getMe: empty result")
	}
	return resp.Result, nil
}

// prepareMode removes a stale webhook before polling, or registers ours.
func (a *Adapter) prepareMode() error {
	switch a.cfg.Mode {
	case ModeWebhook:
		url := a.cfg.PublicWebhookURL()
		err := a.bot.SetWebhook(&tele.Webhook{
			SecretToken: a.cfg.WebhookSecret,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: url},
		})
		if err == nil {
			a.log.Info("webhook registered", logx.String("url", url))
		}
		return err
	default:
		err := a.bot.RemoveWebhook()
		if err == nil {
			a.log.Info("webhook removed; long polling")
		}
		return err
	}
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (queue full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.out.Store(nil)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// A pending getUpdates can hold Stop for the whole poll window.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

// Supervisor returns the adapter's goroutine supervisor (nil when stopped).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) WebhookPath() string {
	if a.webhook == nil {
		return ""
	}
	return a.cfg.WebhookPath
}

func (a *Adapter) WebhookHandler() http.Handler {
	if a.webhook == nil {
		return nil
	}
	return a.webhook
}

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
		}
		if i == 0 && opt.ReplyTo != 0 {
			so.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: chat}
			so.AllowWithoutReply = true
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}

// UpdateMenuCommands publishes the command menu (setMyCommands) when it changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	menu := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		h.Write([]byte(c.Command + "\x00" + c.Description + "\x00"))
		menu = append(menu, tele.Command{Text: c.Command, Description: c.Description})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}
