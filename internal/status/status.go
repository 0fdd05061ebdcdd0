package status

import (
	"time"

	"castbot/internal/broadcast"
)

// Status is the snapshot rendered by the status endpoints. The endpoints are
// unauthenticated, so it carries counts only and never a chat id.
type Status struct {
	Running       bool               `json:"running"`
	Now           time.Time          `json:"now"`
	StartedAt     time.Time          `json:"started_at"`
	Uptime        string             `json:"uptime"`
	Registered    int                `json:"registered"`
	Transport     string             `json:"transport"`
	Inbound       bool               `json:"inbound"`
	InboundError  string             `json:"inbound_error,omitempty"`
	AdminSet      bool               `json:"admin_set"`
	Broadcasting  int                `json:"broadcasting"`
	Tasks         int64              `json:"tasks"`
	LastBroadcast *BroadcastSummary  `json:"last_broadcast,omitempty"`
	History       []BroadcastSummary `json:"history,omitempty"`
}

// BroadcastSummary is the public view of a finished broadcast.
type BroadcastSummary struct {
	Kind       string    `json:"kind"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Blocked    int       `json:"blocked"`
	FinishedAt time.Time `json:"finished_at"`
}

func Summarize(r broadcast.Report) BroadcastSummary {
	return BroadcastSummary{
		Kind:       string(r.Kind),
		Total:      r.Total,
		Sent:       r.Sent,
		Failed:     r.Failed,
		Blocked:    r.Blocked,
		FinishedAt: r.FinishedAt,
	}
}

func SummarizeAll(reports []broadcast.Report) []BroadcastSummary {
	if len(reports) == 0 {
		return nil
	}
	out := make([]BroadcastSummary, len(reports))
	for i, r := range reports {
		out[i] = Summarize(r)
	}
	return out
}
