// Package broadcast fans one content item out to every registered recipient
// and reports the sent/failed tally to the admin.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"castbot/internal/content"
	"castbot/internal/delivery"
	"castbot/internal/eventbus"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// Deliverer sends one item to one recipient. *delivery.Gateway implements it.
type Deliverer interface {
	Send(ctx context.Context, recipient int64, item content.Item) delivery.Outcome
}

type Deps struct {
	Gateway Deliverer
	Notify  kit.TextSender
	Audit   storage.AuditLog
	Bus     eventbus.Bus
	Log     logx.Logger
}

// Started is the payload of eventbus.BroadcastStarted.
type Started struct {
	ID    string       `json:"id"`
	Kind  content.Kind `json:"kind"`
	Total int          `json:"total"`
}

type Dispatcher struct {
	deps Deps
	log  logx.Logger

	mu      sync.Mutex
	cfg     Config
	texts   Texts
	limiter *rate.Limiter

	// runMu guards the in-flight count; idle is closed when it drops to zero.
	runMu   sync.Mutex
	running int
	closing bool
	idle    chan struct{}

	histMu  sync.RWMutex
	history []Report
}

func New(cfg Config, texts Texts, deps Deps) *Dispatcher {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{deps: deps, log: log}
	d.Apply(cfg, texts)
	return d
}

// Apply swaps limits and texts; broadcasts already running keep their snapshot.
func (d *Dispatcher) Apply(cfg Config, texts Texts) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiter == nil || d.cfg.RatePerSec != cfg.RatePerSec {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.cfg = cfg
	d.texts = texts.Merge(DefaultTexts())
}

func (d *Dispatcher) snapshot() (Config, Texts, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.texts, d.limiter
}

// Broadcast delivers item to every id in recipients and reports to admin.
//
// The acknowledgement is sent before any delivery; the final report after every
// attempt has resolved. Once started, the broadcast runs to completion even if
// ctx is cancelled.
func (d *Dispatcher) Broadcast(ctx context.Context, admin kit.ChatTarget, item content.Item, recipients []int64) (Report, error) {
	cfg, texts, lim := d.snapshot()
	ctx = context.WithoutCancel(ctx)

	if len(recipients) == 0 {
		d.notify(ctx, admin, texts.NoRecipients)
		d.log.Info("broadcast skipped: no recipients", logx.Int64("admin", admin.ChatID), logx.String("kind", string(item.Kind())))
		return Report{}, ErrNoRecipients
	}

	if !d.enter() {
		d.log.Info("broadcast rejected: dispatcher closing", logx.Int64("admin", admin.ChatID), logx.String("kind", string(item.Kind())))
		return Report{}, ErrClosing
	}
	defer d.leave()

	snap := append([]int64(nil), recipients...)
	rep := Report{
		ID:        uuid.NewString(),
		AdminID:   admin.ChatID,
		Kind:      item.Kind(),
		Total:     len(snap),
		StartedAt: time.Now(),
	}
	log := d.log.With(logx.String("broadcast", rep.ID), logx.String("kind", string(rep.Kind)))

	d.notify(ctx, admin, FormatAck(texts, rep.Kind, rep.Total))
	d.publish(eventbus.BroadcastStarted, Started{ID: rep.ID, Kind: rep.Kind, Total: rep.Total})
	log.Info("broadcast started", logx.Int("total", rep.Total), logx.Int("workers", cfg.Workers))

	rep.Outcomes = d.fanOut(ctx, log, cfg.Workers, lim, item, snap)
	rep.FinishedAt = time.Now()
	summarize(&rep)

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("blocked", rep.Blocked),
		logx.Duration("took", rep.Took()),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}

	d.notify(ctx, admin, FormatReport(texts, rep))
	d.remember(rep, cfg.History)
	d.audit(ctx, rep)
	d.publish(eventbus.BroadcastFinished, rep)
	return rep, nil
}

// fanOut attempts every recipient exactly once. Each worker writes only its
// own slot, so the result order matches ids regardless of completion order.
func (d *Dispatcher) fanOut(ctx context.Context, log logx.Logger, workers int, lim *rate.Limiter, item content.Item, ids []int64) []delivery.Outcome {
	outcomes := make([]delivery.Outcome, len(ids))
	if workers > len(ids) {
		workers = len(ids)
	}
	if workers < 1 {
		workers = 1
	}

	next := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				outcomes[i] = d.attempt(ctx, log, lim, ids[i], item)
			}
		}()
	}
	for i := range ids {
		next <- i
	}
	close(next)
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) attempt(ctx context.Context, log logx.Logger, lim *rate.Limiter, id int64, item content.Item) (out delivery.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during delivery", logx.Int64("chat_id", id), logx.Any("panic", r))
			out = delivery.Outcome{Recipient: id, Kind: item.Kind(), Class: delivery.OtherError}
		}
	}()
	if lim != nil {
		_ = lim.Wait(ctx)
	}
	out = d.deps.Gateway.Send(ctx, id, item)
	if log.Enabled(logx.LevelTrace) {
		log.Trace("delivery attempt", logx.Int64("chat_id", id), logx.Bool("ok", out.OK()), logx.String("class", out.Class.String()))
	}
	switch {
	case out.OK():
		if log.Enabled(logx.LevelDebug) {
			log.Debug("delivered", logx.Int64("chat_id", id))
		}
	case out.Class == delivery.Blocked:
		log.Info("recipient unreachable (blocked or deactivated)", logx.Int64("chat_id", id), logx.Err(out.Err))
	default:
		log.Warn("delivery failed", logx.Int64("chat_id", id), logx.Err(out.Err))
	}
	return out
}

func (d *Dispatcher) notify(ctx context.Context, admin kit.ChatTarget, text string) {
	if d.deps.Notify == nil || text == "" {
		return
	}
	if _, err := d.deps.Notify.SendText(ctx, admin, text, nil); err != nil {
		d.log.Warn("admin notification failed", logx.Int64("admin", admin.ChatID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(typ string, data any) {
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func (d *Dispatcher) audit(ctx context.Context, r Report) {
	if d.deps.Audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"id": r.ID, "total": r.Total, "blocked": r.Blocked})
	e := storage.AuditEntry{
		At:       r.FinishedAt,
		ActorID:  r.AdminID,
		Action:   "broadcast",
		Target:   string(r.Kind),
		OK:       r.Sent,
		Fail:     r.Failed,
		TookMS:   r.Took().Milliseconds(),
		MetaJSON: string(meta),
	}
	if err := d.deps.Audit.AppendAudit(ctx, e); err != nil {
		d.log.Warn("audit append failed", logx.String("broadcast", r.ID), logx.Err(err))
	}
}

// remember keeps a summary without per-recipient outcomes.
func (d *Dispatcher) remember(r Report, keep int) {
	r.Outcomes = nil
	d.histMu.Lock()
	d.history = append(d.history, r)
	if over := len(d.history) - keep; over > 0 {
		d.history = append([]Report(nil), d.history[over:]...)
	}
	d.histMu.Unlock()
}

// Last returns the most recent finished broadcast.
func (d *Dispatcher) Last() (Report, bool) {
	d.histMu.RLock()
	defer d.histMu.RUnlock()
	if len(d.history) == 0 {
		return Report{}, false
	}
	return d.history[len(d.history)-1], true
}

// History returns finished broadcasts, newest first.
func (d *Dispatcher) History() []Report {
	d.histMu.RLock()
	defer d.histMu.RUnlock()
	out := make([]Report, 0, len(d.history))
	for i := len(d.history) - 1; i >= 0; i-- {
		out = append(out, d.history[i])
	}
	return out
}

func (d *Dispatcher) enter() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.closing {
		return false
	}
	if d.running == 0 {
		d.idle = make(chan struct{})
	}
	d.running++
	return true
}

func (d *Dispatcher) leave() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.running--
	if d.running == 0 {
		close(d.idle)
	}
}

// Running reports how many broadcasts are in flight.
func (d *Dispatcher) Running() int {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.running
}

// Wait stops accepting new broadcasts and blocks until in-flight ones finish
// or ctx ends. Broadcast returns ErrClosing afterwards.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.runMu.Lock()
	d.closing = true
	if d.running == 0 {
		d.runMu.Unlock()
		return nil
	}
	idle := d.idle
	d.runMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
