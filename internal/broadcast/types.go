package broadcast

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"castbot/internal/content"
	"castbot/internal/delivery"
)

var (
	ErrNoRecipients = errors.New("broadcast: no recipients")
	ErrClosing      = errors.New("broadcast: dispatcher closing")
)

const (
	DefaultWorkers    = 4
	DefaultRatePerSec = 25
	DefaultHistory    = 20
)

type Config struct {
	// Workers bounds parallel deliveries; 1 is strictly sequential.
	Workers int
	// RatePerSec caps Bot API calls across all workers.
	RatePerSec int
	// History is how many finished reports are kept in memory.
	History int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.History <= 0 {
		c.History = DefaultHistory
	}
	return c
}

// Texts are the admin-facing messages. Placeholders: {kind}, {count}, {sent}, {failed}.
type Texts struct {
	NoRecipients string
	Ack          string
	Sent         string
	Failed       string
	KindLabels   map[content.Kind]string
}

func DefaultTexts() Texts {
	return Texts{
		NoRecipients: "There are no registered users to broadcast to.",
		Ack:          "Broadcasting {kind} to {count} users. Please wait...",
		Sent:         "✅ {kind} delivered to {sent} users.",
		Failed:       "❌ Delivery failed for {failed} users (they may have blocked the bot or an error occurred).",
		KindLabels: map[content.Kind]string{
			content.KindText:     "message",
			content.KindPhoto:    "photo",
			content.KindVideo:    "video",
			content.KindDocument: "document",
			content.KindAudio:    "audio",
			content.KindVoice:    "🎤 voice message",
			content.KindSticker:  "sticker",
		},
	}
}

// Merge fills empty fields of t from def.
func (t Texts) Merge(def Texts) Texts {
	if t.NoRecipients == "" {
		t.NoRecipients = def.NoRecipients
	}
	if t.Ack == "" {
		t.Ack = def.Ack
	}
	if t.Sent == "" {
		t.Sent = def.Sent
	}
	if t.Failed == "" {
		t.Failed = def.Failed
	}
	labels := make(map[content.Kind]string, len(def.KindLabels))
	for k, v := range def.KindLabels {
		labels[k] = v
	}
	for k, v := range t.KindLabels {
		if v != "" {
			labels[k] = v
		}
	}
	t.KindLabels = labels
	return t
}

func (t Texts) label(k content.Kind) string {
	if v := t.KindLabels[k]; v != "" {
		return v
	}
	return string(k)
}

func (t Texts) render(tpl string, k content.Kind, count, sent, failed int) string {
	return strings.NewReplacer(
		"{kind}", t.label(k),
		"{count}", strconv.Itoa(count),
		"{sent}", strconv.Itoa(sent),
		"{failed}", strconv.Itoa(failed),
	).Replace(tpl)
}

// Report summarizes one broadcast. Outcomes are indexed like the recipient snapshot.
type Report struct {
	ID         string             `json:"id"`
	AdminID    int64              `json:"admin_id"`
	Kind       content.Kind       `json:"kind"`
	Total      int                `json:"total"`
	Sent       int                `json:"sent"`
	Failed     int                `json:"failed"`
	Blocked    int                `json:"blocked"`
	BlockedIDs []int64            `json:"blocked_ids,omitempty"`
	Outcomes   []delivery.Outcome `json:"-"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

func (r Report) Took() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// summarize counts outcomes after the join barrier.
func summarize(r *Report) {
	r.Sent, r.Failed, r.Blocked, r.BlockedIDs = 0, 0, 0, nil
	for _, o := range r.Outcomes {
		switch o.Class {
		case delivery.Delivered:
			r.Sent++
		case delivery.Blocked:
			r.Failed++
			r.Blocked++
			r.BlockedIDs = append(r.BlockedIDs, o.Recipient)
		default:
			r.Failed++
		}
	}
}

// FormatAck renders the acknowledgement sent before delivery starts.
func FormatAck(t Texts, k content.Kind, count int) string {
	return t.render(t.Ack, k, count, 0, 0)
}

// FormatReport renders the final message. The failure line appears only when
// at least one delivery failed.
func FormatReport(t Texts, r Report) string {
	out := t.render(t.Sent, r.Kind, r.Total, r.Sent, r.Failed)
	if r.Failed > 0 {
		out += "\n" + t.render(t.Failed, r.Kind, r.Total, r.Sent, r.Failed)
	}
	return out
}
