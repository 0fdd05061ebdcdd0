package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"castbot/internal/broadcast"
	"castbot/internal/content"
	"castbot/internal/delivery"
	"castbot/internal/eventbus"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const adminID = 999

type sentText struct {
	chat    int64
	text    string
	replyTo int
}

type textRecorder struct {
	mu   sync.Mutex
	sent []sentText
}

func (r *textRecorder) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := sentText{chat: to.ChatID, text: text}
	if opt != nil {
		st.replyTo = opt.ReplyTo
	}
	r.sent = append(r.sent, st)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *textRecorder) to(chat int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.chat == chat {
			out = append(out, s.text)
		}
	}
	return out
}

// botAPI stands in for *tele.Bot on the delivery side.
type botAPI struct {
	mu      sync.Mutex
	blocked map[int64]bool
	sends   map[int64][]any
}

func (b *botAPI) Send(to tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chat := to.(tele.ChatID)
	if b.blocked[int64(chat)] {
		return nil, tele.ErrBlockedByUser
	}
	if b.sends == nil {
		b.sends = map[int64][]any{}
	}
	b.sends[int64(chat)] = append(b.sends[int64(chat)], what)
	return &tele.Message{ID: 1}, nil
}

type harness struct {
	router *Router
	texts  *textRecorder
	api    *botAPI
	recips *storage.Recipients
	disp   *broadcast.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	texts := &textRecorder{}
	api := &botAPI{blocked: map[int64]bool{}}
	recips := storage.NewRecipients(storage.NewMemory(), logx.Nop())
	bus := eventbus.New()
	disp := broadcast.New(broadcast.Config{Workers: 2, RatePerSec: 1000}, broadcast.Texts{}, broadcast.Deps{
		Gateway: delivery.New(api, logx.Nop()),
		Notify:  texts,
		Bus:     bus,
	})
	r := New(adminID, Texts{}, Deps{Sender: texts, Recipients: recips, Dispatcher: disp, Bus: bus})
	return &harness{router: r, texts: texts, api: api, recips: recips, disp: disp}
}

func msgUpdate(m kit.Message) kit.Update {
	if m.FromID == 0 {
		m.FromID = m.ChatID
	}
	if m.ID == 0 {
		m.ID = 42
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: &m}
}

func (h *harness) handle(t *testing.T, m kit.Message) {
	t.Helper()
	require.NoError(t, h.router.Handle(context.Background(), msgUpdate(m)))
}

func TestClassifyTable(t *testing.T) {
	r := New(adminID, Texts{}, Deps{})
	cases := []struct {
		name  string
		msg   kit.Message
		admin bool
		kind  EventKind
	}{
		{"start", kit.Message{ChatID: 1, Text: "/start"}, false, EventStart},
		{"start upper with bot suffix", kit.Message{ChatID: 1, Text: "/START@CastBot"}, false, EventStart},
		{"broadcast admin", kit.Message{ChatID: adminID, Text: "/broadcast"}, true, EventBroadcastCmd},
		{"info with args", kit.Message{ChatID: 2, Text: "/info now"}, false, EventInfoCmd},
		{"plain text", kit.Message{ChatID: adminID, Text: "hello"}, true, EventContent},
		{"unknown command is text", kit.Message{ChatID: adminID, Text: "/weather"}, true, EventContent},
		{"photo", kit.Message{ChatID: 3, Media: kit.MediaPhoto, FileID: "f"}, false, EventContent},
		{"location", kit.Message{ChatID: adminID, Media: kit.MediaOther}, true, EventOther},
		{"empty", kit.Message{ChatID: 4}, false, EventOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			admin, kind, _ := r.Classify(&tc.msg)
			assert.Equal(t, tc.admin, admin)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestEveryRouteHasHandler(t *testing.T) {
	r := New(adminID, Texts{}, Deps{})
	for _, admin := range []bool{true, false} {
		for k := EventStart; k <= EventOther; k++ {
			assert.NotNil(t, r.table[route{admin, k}], "admin=%v kind=%s", admin, k)
		}
	}
}

func TestNoAdminConfigured(t *testing.T) {
	r := New(0, Texts{}, Deps{})
	admin, _, _ := r.Classify(&kit.Message{ChatID: 0, Text: "/broadcast"})
	assert.False(t, admin)
	r.SetAdmin(5)
	admin, _, _ = r.Classify(&kit.Message{ChatID: 5, Text: "/broadcast"})
	assert.True(t, admin)
}

func TestStartRegistersAndWelcomes(t *testing.T) {
	h := newHarness(t)
	h.handle(t, kit.Message{ChatID: 10, Text: "/start"})
	h.handle(t, kit.Message{ChatID: 10, Text: "/start"})

	assert.Equal(t, []int64{10}, h.recips.ListAll(context.Background()))
	assert.Equal(t, []string{DefaultTexts().Welcome, DefaultTexts().Welcome}, h.texts.to(10))
	assert.Equal(t, 42, h.texts.sent[0].replyTo)
}

func TestNonAdminIsRefusedAndRegistered(t *testing.T) {
	h := newHarness(t)
	h.handle(t, kit.Message{ChatID: 11, Text: "/broadcast"})
	h.handle(t, kit.Message{ChatID: 11, Text: "/info"})
	h.handle(t, kit.Message{ChatID: 12, Text: "hi there"})
	h.handle(t, kit.Message{ChatID: 13, Media: kit.MediaOther})

	assert.Equal(t, []string{DefaultTexts().NotAdmin, DefaultTexts().AdminOnly}, h.texts.to(11))
	assert.Equal(t, []string{DefaultTexts().Private}, h.texts.to(12))
	assert.Equal(t, []string{DefaultTexts().Private}, h.texts.to(13))
	assert.Equal(t, []int64{12, 13}, h.recips.ListAll(context.Background()))
	assert.Empty(t, h.api.sends)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	h.handle(t, kit.Message{ChatID: 1, Text: "/start"})
	h.handle(t, kit.Message{ChatID: adminID, Text: "/broadcast"})
	h.handle(t, kit.Message{ChatID: adminID, Text: "/info"})
	h.handle(t, kit.Message{ChatID: adminID, Media: kit.MediaOther})

	got := h.texts.to(adminID)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "Registered users: 1")
	assert.Contains(t, got[1], "Registered users: 1")
	assert.Contains(t, got[1], "Admin ID: 999")
	assert.Contains(t, got[1], "running normally")
	assert.Equal(t, DefaultTexts().Unsupported, got[2])
}

func TestBroadcastToRegisteredUsersWithOneBlocked(t *testing.T) {
	h := newHarness(t)
	for _, id := range []int64{101, 102, 103} {
		h.handle(t, kit.Message{ChatID: id, Text: "/start"})
	}
	h.api.blocked[102] = true

	h.handle(t, kit.Message{ChatID: adminID, Media: kit.MediaPhoto, FileID: "AgAD-photo", Caption: "news"})

	for _, id := range []int64{101, 103} {
		require.Len(t, h.api.sends[id], 1)
		p := h.api.sends[id][0].(*tele.Photo)
		assert.Equal(t, "AgAD-photo", p.FileID)
		assert.Equal(t, "news", p.Caption)
	}
	assert.Empty(t, h.api.sends[102])

	got := h.texts.to(adminID)
	require.Len(t, got, 2)
	assert.Equal(t, "Broadcasting photo to 3 users. Please wait...", got[0])
	assert.Contains(t, got[1], "delivered to 2 users")
	assert.Contains(t, got[1], "failed for 1 users")

	last, ok := h.disp.Last()
	require.True(t, ok)
	assert.Equal(t, []int64{102}, last.BlockedIDs)
	assert.Equal(t, []int64{101, 102, 103}, h.recips.ListAll(context.Background()), "blocked users are not pruned")

	h.handle(t, kit.Message{ChatID: adminID, Text: "/info"})
	info := h.texts.to(adminID)
	assert.Contains(t, info[len(info)-1], "Last broadcast: photo")
}

func TestBroadcastWithEmptyRegistry(t *testing.T) {
	h := newHarness(t)
	h.handle(t, kit.Message{ChatID: adminID, Text: "hello everyone"})

	assert.Equal(t, []string{broadcast.DefaultTexts().NoRecipients}, h.texts.to(adminID))
	assert.Empty(t, h.api.sends)
	_, ok := h.disp.Last()
	assert.False(t, ok)
}

func TestContentFidelityAllKinds(t *testing.T) {
	cases := []struct {
		msg   kit.Message
		check func(t *testing.T, v any)
	}{
		{kit.Message{Text: "plain body"}, func(t *testing.T, v any) { assert.Equal(t, "plain body", v) }},
		{kit.Message{Media: kit.MediaPhoto, FileID: "ph", Caption: "c1"}, func(t *testing.T, v any) {
			assert.Equal(t, "ph", v.(*tele.Photo).FileID)
			assert.Equal(t, "c1", v.(*tele.Photo).Caption)
		}},
		{kit.Message{Media: kit.MediaVideo, FileID: "vi", Caption: "c2"}, func(t *testing.T, v any) {
			assert.Equal(t, "vi", v.(*tele.Video).FileID)
			assert.Equal(t, "c2", v.(*tele.Video).Caption)
		}},
		{kit.Message{Media: kit.MediaDocument, FileID: "do", Caption: "c3"}, func(t *testing.T, v any) {
			assert.Equal(t, "do", v.(*tele.Document).FileID)
			assert.Equal(t, "c3", v.(*tele.Document).Caption)
		}},
		{kit.Message{Media: kit.MediaAudio, FileID: "au"}, func(t *testing.T, v any) {
			assert.Equal(t, "au", v.(*tele.Audio).FileID)
			assert.Empty(t, v.(*tele.Audio).Caption)
		}},
		{kit.Message{Media: kit.MediaVoice, FileID: "vo", Caption: "ignored"}, func(t *testing.T, v any) {
			assert.Equal(t, "vo", v.(*tele.Voice).FileID)
		}},
		{kit.Message{Media: kit.MediaSticker, FileID: "st"}, func(t *testing.T, v any) {
			assert.Equal(t, "st", v.(*tele.Sticker).FileID)
		}},
	}
	for _, tc := range cases {
		name := string(tc.msg.Media)
		if name == "" {
			name = "text"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.handle(t, kit.Message{ChatID: 7, Text: "/start"})
			msg := tc.msg
			msg.ChatID = adminID
			h.handle(t, msg)

			require.Len(t, h.api.sends[7], 1)
			tc.check(t, h.api.sends[7][0])
		})
	}
}

func TestContentFromMessageDropsCaptionForVoice(t *testing.T) {
	it, err := ContentFromMessage(&kit.Message{Media: kit.MediaVoice, FileID: "v", Caption: "x"})
	require.NoError(t, err)
	assert.Equal(t, content.KindVoice, it.Kind())
	assert.Empty(t, it.Caption())

	_, err = ContentFromMessage(&kit.Message{Media: kit.MediaOther, FileID: "x"})
	assert.ErrorIs(t, err, content.ErrUnknownKind)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	r := New(adminID, Texts{}, Deps{Sender: panicSender{}})
	err := r.Handle(context.Background(), msgUpdate(kit.Message{ChatID: 1, Text: "/broadcast"}))
	assert.ErrorContains(t, err, "panic")
}

type panicSender struct{}

func (panicSender) SendText(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	panic("sender exploded")
}

func TestDispatchLoopProcessesUpdates(t *testing.T) {
	h := newHarness(t)
	updates := make(chan kit.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.router.DispatchLoop(ctx, updates) }()

	updates <- msgUpdate(kit.Message{ChatID: 55, Text: "/start"})
	updates <- kit.Update{Kind: kit.UpdateMessage}

	require.Eventually(t, func() bool { return len(h.texts.to(55)) == 1 }, timeoutWait, tick)
	cancel()
	require.NoError(t, <-done)
}

const (
	timeoutWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)
