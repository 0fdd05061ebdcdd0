// Package delivery sends one content item to one recipient through the
// Telegram Bot API and classifies the result.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/content"
	logx "castbot/pkg/logx"
)

// Sender is the subset of *tele.Bot the gateway needs.
type Sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

type Class int

const (
	Delivered Class = iota
	Blocked
	OtherError
)

func (c Class) String() string {
	switch c {
	case Delivered:
		return "delivered"
	case Blocked:
		return "blocked"
	default:
		return "error"
	}
}

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	Recipient int64
	Kind      content.Kind
	Class     Class
	Err       error
	Took      time.Duration
}

func (o Outcome) OK() bool { return o.Class == Delivered }

type Gateway struct {
	sender Sender
	log    logx.Logger
}

func New(sender Sender, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{sender: sender, log: log}
}

// Send performs exactly one remote call. It never retries.
func (g *Gateway) Send(ctx context.Context, recipient int64, item content.Item) Outcome {
	out := Outcome{Recipient: recipient, Kind: item.Kind()}
	if err := ctx.Err(); err != nil {
		out.Class, out.Err = OtherError, err
		return out
	}
	if g == nil || g.sender == nil {
		out.Class, out.Err = OtherError, errors.New("delivery: no sender configured")
		return out
	}
	what, err := Sendable(item)
	if err != nil {
		out.Class, out.Err = OtherError, err
		return out
	}

	start := time.Now()
	_, err = g.sender.Send(tele.ChatID(recipient), what)
	out.Took = time.Since(start)
	if err != nil {
		out.Class, out.Err = Classify(err), err
		g.log.Debug("delivery failed",
			logx.Int64("chat_id", recipient),
			logx.String("kind", string(out.Kind)),
			logx.String("class", out.Class.String()),
			logx.Err(err),
		)
		return out
	}
	out.Class = Delivered
	return out
}

// sendables maps each content kind to the telebot value that produces the
// matching Bot API method (sendMessage, sendPhoto, ...).
var sendables = map[content.Kind]func(ref, caption string) any{
	content.KindText: func(ref, _ string) any { return ref },
	content.KindPhoto: func(ref, caption string) any {
		return &tele.Photo{File: tele.File{FileID: ref}, Caption: caption}
	},
	content.KindVideo: func(ref, caption string) any {
		return &tele.Video{File: tele.File{FileID: ref}, Caption: caption}
	},
	content.KindDocument: func(ref, caption string) any {
		return &tele.Document{File: tele.File{FileID: ref}, Caption: caption}
	},
	content.KindAudio: func(ref, caption string) any {
		return &tele.Audio{File: tele.File{FileID: ref}, Caption: caption}
	},
	content.KindVoice:   func(ref, _ string) any { return &tele.Voice{File: tele.File{FileID: ref}} },
	content.KindSticker: func(ref, _ string) any { return &tele.Sticker{File: tele.File{FileID: ref}} },
}

// Sendable converts item into the value passed to tele.Bot.Send.
func Sendable(item content.Item) (any, error) {
	if item.IsZero() {
		return nil, content.ErrEmptyRef
	}
	build, ok := sendables[item.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", content.ErrUnknownKind, item.Kind())
	}
	return build(item.Ref(), item.Caption()), nil
}

var blockedErrors = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
	tele.ErrChatNotFound,
}

// Classify maps a Bot API error to Blocked when the recipient can no longer
// be reached (blocked the bot, deleted account, never started it).
func Classify(err error) Class {
	if err == nil {
		return Delivered
	}
	for _, target := range blockedErrors {
		if errors.Is(err, target) {
			return Blocked
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return Blocked
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "bot was blocked by the user") ||
		strings.Contains(msg, "user is deactivated") {
		return Blocked
	}
	return OtherError
}
