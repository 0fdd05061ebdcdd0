package adapter

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "castbot/pkg/logx"
)

// pacedPoller long-polls getUpdates with a bounded timeout and waits a fixed
// interval between polls.
type pacedPoller struct {
	timeout  time.Duration
	interval time.Duration
	log      logx.Logger

	offset int
}

type getUpdatesResponse struct {
	Result []tele.Update `json:"result"`
}

func (p *pacedPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := b.Raw("getUpdates", map[string]any{
			"offset":  p.offset,
			"timeout": int(p.timeout / time.Second),
		})
		wait := p.interval
		if err != nil {
			failures++
			wait = min(p.interval*time.Duration(1<<min(failures, 5)), time.Minute)
			p.log.Warn("getUpdates failed", logx.Int("failures", failures), logx.Duration("retry_in", wait), logx.Err(err))
		} else {
			failures = 0
			var resp getUpdatesResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				p.log.Warn("getUpdates decode failed", logx.Err(err))
			}
			for _, up := range resp.Result {
				p.offset = up.ID + 1
				select {
				case dest <- up:
				case <-stop:
					return
				}
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// webhookPoller receives updates pushed over HTTP. Until telebot starts
// polling it, the handler answers 503.
type webhookPoller struct {
	secret string
	log    logx.Logger

	mu   sync.RWMutex
	dest chan tele.Update
}

func (p *webhookPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	p.mu.Lock()
	p.dest = dest
	p.mu.Unlock()

	<-stop

	p.mu.Lock()
	p.dest = nil
	p.mu.Unlock()
}

func (p *webhookPoller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.secret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(p.secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var up tele.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&up); err != nil {
		p.log.Debug("webhook update dropped: bad payload", logx.Err(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p.mu.RLock()
	dest := p.dest
	p.mu.RUnlock()
	if dest == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	t := time.NewTimer(5 * time.Second)
	defer t.Stop()
	select {
	case dest <- up:
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
	case <-t.C:
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}
}
