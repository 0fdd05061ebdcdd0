package storage

import (
	"context"

	logx "castbot/pkg/logx"
)

// Recipients guards a Registry so storage failures never reach a user-facing path:
// errors are logged and the call degrades to a no-op or an empty snapshot.
type Recipients struct {
	reg Registry
	log logx.Logger
}

func NewRecipients(reg Registry, log logx.Logger) *Recipients {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recipients{reg: reg, log: log}
}

// Register adds id if absent and reports whether it was newly added.
func (r *Recipients) Register(ctx context.Context, id int64) bool {
	if r == nil || r.reg == nil {
		return false
	}
	added, err := r.reg.Add(ctx, id)
	if err != nil {
		r.log.Warn("register recipient failed", logx.Int64("chat_id", id), logx.Err(err))
		return false
	}
	if added {
		r.log.Info("new recipient registered", logx.Int64("chat_id", id))
	}
	return added
}

// ListAll returns a snapshot of every registered id in insertion order.
func (r *Recipients) ListAll(ctx context.Context) []int64 {
	if r == nil || r.reg == nil {
		return nil
	}
	ids, err := r.reg.All(ctx)
	if err != nil {
		r.log.Warn("list recipients failed", logx.Err(err))
		return nil
	}
	return ids
}

func (r *Recipients) Count(ctx context.Context) int {
	return len(r.ListAll(ctx))
}
