// Package router classifies inbound messages (admin or not, and which event
// kind) and dispatches each one to exactly one handler.
package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"castbot/internal/broadcast"
	"castbot/internal/content"
	"castbot/internal/eventbus"
	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type EventKind int

const (
	EventStart EventKind = iota
	EventBroadcastCmd
	EventInfoCmd
	EventContent
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBroadcastCmd:
		return "broadcast_cmd"
	case EventInfoCmd:
		return "info_cmd"
	case EventContent:
		return "content"
	default:
		return "other"
	}
}

// Recipients is the guarded registry (see storage.Recipients).
type Recipients interface {
	Register(ctx context.Context, id int64) bool
	ListAll(ctx context.Context) []int64
	Count(ctx context.Context) int
}

// Broadcaster is implemented by *broadcast.Dispatcher.
type Broadcaster interface {
	Broadcast(ctx context.Context, admin kit.ChatTarget, item content.Item, recipients []int64) (broadcast.Report, error)
	Last() (broadcast.Report, bool)
	Running() int
}

type Deps struct {
	Sender     kit.TextSender
	Recipients Recipients
	Dispatcher Broadcaster
	Bus        eventbus.Bus
	Log        logx.Logger
}

type Request struct {
	Msg     *kit.Message
	Chat    kit.ChatTarget
	Admin   bool
	Kind    EventKind
	Command string
	ReqID   string
	Log     logx.Logger
}

type route struct {
	admin bool
	kind  EventKind
}

type Router struct {
	deps  Deps
	log   logx.Logger
	table map[route]HandlerFunc

	admin atomic.Int64

	mu    sync.RWMutex
	texts Texts

	runMu sync.Mutex
	sup   *rtsup.Supervisor
	jobs  chan func()
}

func New(adminID int64, texts Texts, deps Deps) *Router {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		deps:  deps,
		log:   log,
		texts: texts.Merge(DefaultTexts()),
		jobs:  make(chan func(), 256),
	}
	r.admin.Store(adminID)
	r.table = map[route]HandlerFunc{
		{true, EventStart}:         r.handleStart,
		{false, EventStart}:        r.handleStart,
		{true, EventBroadcastCmd}:  r.handleBroadcastHelp,
		{false, EventBroadcastCmd}: r.reply(func(t Texts) string { return t.NotAdmin }),
		{true, EventInfoCmd}:       r.handleInfo,
		{false, EventInfoCmd}:      r.reply(func(t Texts) string { return t.AdminOnly }),
		{true, EventContent}:       r.handleAdminContent,
		{false, EventContent}:      r.handlePrivate,
		{true, EventOther}:         r.reply(func(t Texts) string { return t.Unsupported }),
		{false, EventOther}:        r.handlePrivate,
	}
	return r
}

// SetAdmin changes the admin identity; 0 means nobody is admin.
func (r *Router) SetAdmin(id int64) { r.admin.Store(id) }

func (r *Router) Admin() int64 { return r.admin.Load() }

func (r *Router) SetTexts(t Texts) {
	r.mu.Lock()
	r.texts = t.Merge(DefaultTexts())
	r.mu.Unlock()
}

func (r *Router) currentTexts() Texts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.texts
}

// Commands lists the bot menu entries.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "Register with the bot"},
		{Command: "broadcast", Description: "Broadcast a message (admin)"},
		{Command: "info", Description: "Bot statistics (admin)"},
	}
}

// Classify decides who sent msg and what kind of event it is. Identity is the
// chat id, so the admin acts from their private chat with the bot.
func (r *Router) Classify(msg *kit.Message) (admin bool, kind EventKind, cmd string) {
	adminID := r.admin.Load()
	admin = adminID != 0 && msg.ChatID == adminID

	if msg.Media == kit.MediaNone {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return admin, EventOther, ""
		}
		if cmd = commandWord(text); cmd != "" {
			switch cmd {
			case "start":
				return admin, EventStart, cmd
			case "broadcast":
				return admin, EventBroadcastCmd, cmd
			case "info":
				return admin, EventInfoCmd, cmd
			}
		}
		// Unknown commands are ordinary text.
		return admin, EventContent, cmd
	}
	if _, ok := mediaKinds[msg.Media]; ok && msg.FileID != "" {
		return admin, EventContent, ""
	}
	return admin, EventOther, ""
}

// commandWord returns the lowercased command of "/Cmd@bot args", or "".
func commandWord(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

// Handle routes one update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	h, req := r.prepare(up)
	if h == nil {
		return nil
	}
	return h(ctx, req)
}

func (r *Router) prepare(up kit.Update) (HandlerFunc, *Request) {
	msg := up.Message
	if up.Kind != kit.UpdateMessage || msg == nil || msg.ChatID == 0 {
		r.log.Debug("update dropped: no message")
		return nil, nil
	}
	admin, kind, cmd := r.Classify(msg)
	rid := uuid.NewString()[:8]
	req := &Request{
		Msg:     msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		Admin:   admin,
		Kind:    kind,
		Command: cmd,
		ReqID:   rid,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.Bool("admin", admin),
			logx.String("event", kind.String()),
		),
	}
	h, ok := r.table[route{admin, kind}]
	if !ok {
		return nil, nil
	}
	return Chain(h, MWPanicRecover(), MWRequestLog()), req
}

// DispatchLoop consumes updates with a bounded worker pool until ctx ends or
// updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "router.pool"))))
	r.runMu.Lock()
	r.sup = sup
	jobs := r.jobs
	r.runMu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithPublishFirstError(true))
	}
	r.log.Info("router started", logx.Int("workers", workers), logx.Int("queue_cap", cap(jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			h, req := r.prepare(up)
			if h == nil {
				continue
			}
			select {
			case jobs <- func() { _ = h(ctx, req) }:
			default:
				req.Log.Warn("router queue full; update dropped", logx.Int("queue_cap", cap(jobs)))
			}
		}
	}
}

// Supervisor exposes the worker pool for status output (nil when stopped).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// spawn runs fn on the pool supervisor so a long broadcast does not hold a
// router worker; without a running loop it runs inline.
func (r *Router) spawn(name string, fn func(ctx context.Context)) {
	r.runMu.Lock()
	sup := r.sup
	r.runMu.Unlock()
	if sup == nil {
		fn(context.Background())
		return
	}
	sup.Go0(name, fn)
}
