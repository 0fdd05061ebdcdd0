package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/broadcast"
	"castbot/internal/eventbus"
	kit "castbot/internal/transport"
)

type sink struct {
	mu   sync.Mutex
	msgs []string
	to   []int64
	err  error
}

func (s *sink) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return kit.MessageRef{}, s.err
	}
	s.msgs = append(s.msgs, text)
	s.to = append(s.to, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(s.msgs)}, nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func newService(t *testing.T, cfg Config, out *sink, bus eventbus.Bus) *Service {
	t.Helper()
	return New(cfg, Deps{
		Sender: out,
		Admin:  func() int64 { return 42 },
		Count:  func(context.Context) int { return 7 },
		Bus:    bus,
	})
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"0 9 * * *", "@daily", "@every 1h", "*/5 * * * 1-5"} {
		assert.NoError(t, ValidateSchedule(ok), ok)
	}
	for _, bad := range []string{"", "every day", "0 9 * *", "61 * * * *"} {
		assert.Error(t, ValidateSchedule(bad), bad)
	}
}

func TestRender(t *testing.T) {
	got := Render(DefaultTemplate, 10, Counters{NewUsers: 2, Broadcasts: 1, Sent: 8, Failed: 1})
	assert.Contains(t, got, "Registered users: 10")
	assert.Contains(t, got, "New since last digest: 2")
	assert.Contains(t, got, "Broadcasts: 1 (8 sent, 1 failed)")
}

func TestObserveCountsEvents(t *testing.T) {
	s := newService(t, Config{}, &sink{}, nil)
	s.Observe(eventbus.Event{Type: eventbus.RecipientRegistered, Data: int64(1)})
	s.Observe(eventbus.Event{Type: eventbus.RecipientRegistered, Data: int64(2)})
	s.Observe(eventbus.Event{Type: eventbus.BroadcastStarted})
	s.Observe(eventbus.Event{Type: eventbus.BroadcastFinished, Data: broadcast.Report{Sent: 3, Failed: 1}})
	s.Observe(eventbus.Event{Type: eventbus.BroadcastFinished, Data: "garbage"})

	assert.Equal(t, Counters{NewUsers: 2, Broadcasts: 1, Sent: 3, Failed: 1}, s.Counters())
}

func TestRunOnceSendsAndResets(t *testing.T) {
	out := &sink{}
	s := newService(t, Config{}, out, nil)
	s.Observe(eventbus.Event{Type: eventbus.RecipientRegistered})

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, out.count())
	assert.Equal(t, int64(42), out.to[0])
	assert.Contains(t, out.msgs[0], "Registered users: 7")
	assert.Contains(t, out.msgs[0], "New since last digest: 1")
	assert.Equal(t, Counters{}, s.Counters())
}

func TestRunOnceKeepsCountersOnFailure(t *testing.T) {
	out := &sink{err: errors.New("network down")}
	s := newService(t, Config{}, out, nil)
	s.Observe(eventbus.Event{Type: eventbus.RecipientRegistered})

	require.Error(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, s.Counters().NewUsers)
}

func TestRunOnceSkipQuiet(t *testing.T) {
	out := &sink{}
	s := newService(t, Config{SkipQuiet: true}, out, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, out.count())
}

func TestRunOnceWithoutAdmin(t *testing.T) {
	s := New(Config{}, Deps{Sender: &sink{}, Admin: func() int64 { return 0 }})
	assert.Error(t, s.RunOnce(context.Background()))
}

func TestStartConsumesBus(t *testing.T) {
	bus := eventbus.New()
	s := newService(t, Config{}, &sink{}, bus)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	bus.Publish(eventbus.Event{Type: eventbus.RecipientRegistered, Data: int64(5)})
	assert.Eventually(t, func() bool { return s.Counters().NewUsers == 1 }, time.Second, 10*time.Millisecond)
}

func TestStartRejectsBadTimezone(t *testing.T) {
	s := newService(t, Config{Enabled: true, Timezone: "Mars/Olympus"}, &sink{}, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	s.Stop(context.Background())
}

func TestScheduledRunAndApply(t *testing.T) {
	out := &sink{}
	s := newService(t, Config{Enabled: true, Schedule: "@every 1s"}, out, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return out.count() >= 1 }, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Apply(Config{Enabled: false}))
	n := out.count()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, out.count())
}
