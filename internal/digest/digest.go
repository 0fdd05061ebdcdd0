// Package digest periodically sends the admin a summary of registrations and
// broadcasts since the previous digest.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"castbot/internal/broadcast"
	"castbot/internal/eventbus"
	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const (
	DefaultSchedule = "0 9 * * *"
	DefaultTemplate = "🗓 Digest\n👥 Registered users: {total}\n🆕 New since last digest: {new}\n📨 Broadcasts: {broadcasts} ({sent} sent, {failed} failed)"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
	// SkipQuiet suppresses the digest when nothing happened.
	SkipQuiet bool
	Template  string
}

func (c Config) normalized() Config {
	c.Schedule = strings.TrimSpace(c.Schedule)
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.Template) == "" {
		c.Template = DefaultTemplate
	}
	return c
}

// ValidateSchedule checks a 5-field cron expression or descriptor (@daily, @every 1h).
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(strings.TrimSpace(expr))
	return err
}

type Deps struct {
	Sender kit.TextSender
	// Admin returns the current admin chat id; 0 disables sending.
	Admin func() int64
	Count func(ctx context.Context) int
	Bus   eventbus.Bus
	Log   logx.Logger
}

// Counters accumulate between digests.
type Counters struct {
	NewUsers   int
	Broadcasts int
	Sent       int
	Failed     int
}

func (c Counters) quiet() bool { return c == Counters{} }

type Service struct {
	deps Deps
	log  logx.Logger

	mu       sync.Mutex
	cfg      Config
	c        *cron.Cron
	sup      *rtsup.Supervisor
	counters Counters
	lastSent time.Time
}

func New(cfg Config, deps Deps) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.normalized(), deps: deps, log: log}
}

// Start subscribes to the event bus and schedules the digest when enabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	if s.deps.Bus != nil {
		events, unsub := s.deps.Bus.Subscribe(64)
		s.sup.Go0("digest.events", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.Observe(ev)
				}
			}
		})
	}
	return s.scheduleLocked()
}

func (s *Service) scheduleLocked() error {
	if !s.cfg.Enabled {
		s.log.Debug("digest disabled")
		return nil
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("digest timezone %q: %w", tz, err)
		}
		loc = l
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	sup := s.sup
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(sup.Context(), 30*time.Second)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("digest send failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("digest schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

// Apply reschedules with cfg. Counters are kept.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.normalized()
	s.mu.Lock()
	if s.cfg == cfg {
		s.mu.Unlock()
		return nil
	}
	old := s.c
	s.c = nil
	s.cfg = cfg
	s.mu.Unlock()

	// A running job takes s.mu, so wait for it outside the lock.
	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil || s.c != nil {
		return nil
	}
	return s.scheduleLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
}

// Observe folds one bus event into the counters.
func (s *Service) Observe(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case eventbus.RecipientRegistered:
		s.counters.NewUsers++
	case eventbus.BroadcastFinished:
		if r, ok := ev.Data.(broadcast.Report); ok {
			s.counters.Broadcasts++
			s.counters.Sent += r.Sent
			s.counters.Failed += r.Failed
		}
	}
}

func (s *Service) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// RunOnce sends the digest now and resets the counters on success.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	cur := s.counters
	s.mu.Unlock()

	if cfg.SkipQuiet && cur.quiet() {
		s.log.Debug("digest skipped: nothing happened")
		return nil
	}
	var admin int64
	if s.deps.Admin != nil {
		admin = s.deps.Admin()
	}
	if admin == 0 || s.deps.Sender == nil {
		return errors.New("digest: admin chat not configured")
	}
	total := 0
	if s.deps.Count != nil {
		total = s.deps.Count(ctx)
	}
	if _, err := s.deps.Sender.SendText(ctx, kit.ChatTarget{ChatID: admin}, Render(cfg.Template, total, cur), nil); err != nil {
		return err
	}

	s.mu.Lock()
	s.counters.NewUsers -= cur.NewUsers
	s.counters.Broadcasts -= cur.Broadcasts
	s.counters.Sent -= cur.Sent
	s.counters.Failed -= cur.Failed
	s.lastSent = time.Now()
	s.mu.Unlock()
	return nil
}

// Render fills {total}, {new}, {broadcasts}, {sent} and {failed}.
func Render(tpl string, total int, c Counters) string {
	return strings.NewReplacer(
		"{total}", strconv.Itoa(total),
		"{new}", strconv.Itoa(c.NewUsers),
		"{broadcasts}", strconv.Itoa(c.Broadcasts),
		"{sent}", strconv.Itoa(c.Sent),
		"{failed}", strconv.Itoa(c.Failed),
	).Replace(tpl)
}

// LastSent is the time of the last delivered digest (zero if none).
func (s *Service) LastSent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}
