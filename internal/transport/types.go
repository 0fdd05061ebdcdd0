package transport

import (
	"context"
	"net/http"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

// MediaKind names the payload a message carries besides (or instead of) text.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
	MediaSticker  MediaKind = "sticker"
	// MediaOther covers payloads the bot does not relay (location, contact, poll, ...).
	MediaOther MediaKind = "other"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	ReceivedAt time.Time
}

// Message is a transport-neutral inbound message.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	IsGroup      bool

	Text    string
	Caption string
	Media   MediaKind
	// FileID is the remote handle of the media payload (empty for text).
	FileID string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo quotes an inbound message when non-zero.
	ReplyTo int
}

// TextSender sends plain text replies; it is all the router, dispatcher and log sink need.
type TextSender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	TextSender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// WebhookAdapter is implemented by adapters that receive updates over HTTP.
// The status server mounts Handler at Path.
type WebhookAdapter interface {
	WebhookPath() string
	WebhookHandler() http.Handler
}

// BotCommand is a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is optionally implemented by adapters with a platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
