package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/content"
	"castbot/internal/eventbus"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

var mediaKinds = map[kit.MediaKind]content.Kind{
	kit.MediaPhoto:    content.KindPhoto,
	kit.MediaVideo:    content.KindVideo,
	kit.MediaDocument: content.KindDocument,
	kit.MediaAudio:    content.KindAudio,
	kit.MediaVoice:    content.KindVoice,
	kit.MediaSticker:  content.KindSticker,
}

// ContentFromMessage builds the broadcast item for msg. Captions are dropped
// for kinds that cannot carry one.
func ContentFromMessage(msg *kit.Message) (content.Item, error) {
	if msg.Media == kit.MediaNone {
		return content.Text(msg.Text)
	}
	kind, ok := mediaKinds[msg.Media]
	if !ok {
		return content.Item{}, fmt.Errorf("%w: %q", content.ErrUnknownKind, msg.Media)
	}
	caption := msg.Caption
	if !kind.SupportsCaption() {
		caption = ""
	}
	return content.New(kind, msg.FileID, caption)
}

func (r *Router) send(ctx context.Context, req *Request, text string) error {
	if r.deps.Sender == nil {
		return errors.New("router: no sender")
	}
	_, err := r.deps.Sender.SendText(ctx, req.Chat, text, &kit.SendOptions{ReplyTo: req.Msg.ID})
	return err
}

func (r *Router) reply(pick func(Texts) string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		return r.send(ctx, req, pick(r.currentTexts()))
	}
}

func (r *Router) register(ctx context.Context, req *Request) {
	if r.deps.Recipients == nil {
		return
	}
	if r.deps.Recipients.Register(ctx, req.Chat.ChatID) && r.deps.Bus != nil {
		r.deps.Bus.Publish(eventbus.Event{Type: eventbus.RecipientRegistered, Data: req.Chat.ChatID})
	}
}

func (r *Router) count(ctx context.Context) int {
	if r.deps.Recipients == nil {
		return 0
	}
	return r.deps.Recipients.Count(ctx)
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	r.register(ctx, req)
	return r.send(ctx, req, r.currentTexts().Welcome)
}

func (r *Router) handlePrivate(ctx context.Context, req *Request) error {
	r.register(ctx, req)
	return r.send(ctx, req, r.currentTexts().Private)
}

func (r *Router) handleBroadcastHelp(ctx context.Context, req *Request) error {
	t := r.currentTexts()
	return r.send(ctx, req, fill(t.BroadcastHelp, "{count}", strconv.Itoa(r.count(ctx))))
}

func (r *Router) handleInfo(ctx context.Context, req *Request) error {
	t := r.currentTexts()
	status := t.Running
	if r.deps.Dispatcher != nil && r.deps.Dispatcher.Running() > 0 {
		status = t.Busy
	}
	text := fill(t.Info,
		"{count}", strconv.Itoa(r.count(ctx)),
		"{admin}", strconv.FormatInt(r.admin.Load(), 10),
		"{status}", status,
	)
	if r.deps.Dispatcher != nil {
		if last, ok := r.deps.Dispatcher.Last(); ok {
			text += "\n" + fill(t.InfoLast,
				"{kind}", string(last.Kind),
				"{at}", last.FinishedAt.Format(time.DateTime),
				"{sent}", strconv.Itoa(last.Sent),
				"{failed}", strconv.Itoa(last.Failed),
			)
		}
	}
	return r.send(ctx, req, text)
}

func (r *Router) handleAdminContent(ctx context.Context, req *Request) error {
	item, err := ContentFromMessage(req.Msg)
	if err != nil {
		req.Log.Warn("admin content rejected", logx.Err(err))
		return r.send(ctx, req, r.currentTexts().Unsupported)
	}
	if r.deps.Dispatcher == nil {
		return errors.New("router: no dispatcher")
	}
	recipients := []int64(nil)
	if r.deps.Recipients != nil {
		recipients = r.deps.Recipients.ListAll(ctx)
	}
	log := req.Log
	r.spawn("broadcast.run", func(c context.Context) {
		_, err := r.deps.Dispatcher.Broadcast(c, req.Chat, item, recipients)
		switch {
		case err == nil, errors.Is(err, broadcast.ErrNoRecipients):
		case errors.Is(err, broadcast.ErrClosing):
			log.Info("broadcast dropped: shutting down")
		default:
			log.Warn("broadcast failed", logx.Err(err))
		}
	})
	return nil
}
