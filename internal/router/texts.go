package router

import "strings"

// Texts are the replies sent by handlers. Placeholders: {count}, {admin},
// {status}, {kind}, {sent}, {failed}, {at}.
type Texts struct {
	Welcome       string
	BroadcastHelp string
	NotAdmin      string
	AdminOnly     string
	Info          string
	InfoLast      string
	Running       string
	Busy          string
	Private       string
	Unsupported   string
}

func DefaultTexts() Texts {
	return Texts{
		Welcome:       "Hello! You are now registered with the bot and will receive its messages.",
		BroadcastHelp: "Send me the content (text, photo, video, document, audio, voice or sticker) to broadcast to every user.\n\nRegistered users: {count}",
		NotAdmin:      "You are not the authorized admin for this command.",
		AdminOnly:     "This command is available to the admin only.",
		Info:          "📊 Bot info:\n\n👥 Registered users: {count}\n🆔 Admin ID: {admin}\n🤖 Status: {status}",
		InfoLast:      "📨 Last broadcast: {kind} at {at}, {sent} sent, {failed} failed",
		Running:       "running normally",
		Busy:          "broadcast in progress",
		Private:       "I am a private bot and cannot reply right now. Use /start to register.",
		Unsupported:   "This message type cannot be broadcast. Send text, photo, video, document, audio, voice or a sticker.",
	}
}

// Merge fills empty fields of t from def.
func (t Texts) Merge(def Texts) Texts {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return Texts{
		Welcome:       pick(t.Welcome, def.Welcome),
		BroadcastHelp: pick(t.BroadcastHelp, def.BroadcastHelp),
		NotAdmin:      pick(t.NotAdmin, def.NotAdmin),
		AdminOnly:     pick(t.AdminOnly, def.AdminOnly),
		Info:          pick(t.Info, def.Info),
		InfoLast:      pick(t.InfoLast, def.InfoLast),
		Running:       pick(t.Running, def.Running),
		Busy:          pick(t.Busy, def.Busy),
		Private:       pick(t.Private, def.Private),
		Unsupported:   pick(t.Unsupported, def.Unsupported),
	}
}

func fill(tpl string, kv ...string) string {
	return strings.NewReplacer(kv...).Replace(tpl)
}
