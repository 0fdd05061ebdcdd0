package app

import (
	"context"
	"time"

	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/status"
)

// Snapshot is the live status rendered by the status server.
func (a *App) Snapshot(ctx context.Context) status.Status {
	now := time.Now()
	st := status.Status{
		Running:      a.sup != nil && a.sup.Context().Err() == nil,
		Now:          now,
		StartedAt:    a.startedAt,
		Registered:   a.recipients.Count(ctx),
		Transport:    "disabled",
		Inbound:      a.adapter != nil,
		AdminSet:     a.router.Admin() != 0,
		Broadcasting: a.dispatcher.Running(),
		History:      status.SummarizeAll(a.dispatcher.History()),
	}
	if !a.startedAt.IsZero() {
		st.Uptime = now.Sub(a.startedAt).Truncate(time.Second).String()
	}
	if a.adapter != nil {
		st.Transport = a.adapter.Mode()
	}
	if a.inboundErr != nil {
		st.InboundError = a.inboundErr.Error()
	}
	if last, ok := a.dispatcher.Last(); ok {
		sum := status.Summarize(last)
		st.LastBroadcast = &sum
	}

	sups := map[string]*rtsup.Supervisor{
		"app":    a.sup,
		"router": a.router.Supervisor(),
		"status": a.status.Supervisor(),
	}
	if a.adapter != nil {
		sups["telegram"] = a.adapter.Supervisor()
	}
	for _, s := range sups {
		if s != nil {
			st.Tasks += s.Snapshot().Active
		}
	}
	return st
}
