package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// If Driver is empty, "file" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Registry is the raw recipient set. Add must suppress duplicates even under
// concurrent callers; All returns a snapshot in insertion order.
type Registry interface {
	Add(ctx context.Context, id int64) (added bool, err error)
	All(ctx context.Context) ([]int64, error)
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

type Store interface {
	Registry
	AuditLog
	Close() error
}

// AuditEntry records an admin action (one per broadcast).
type AuditEntry struct {
	At       time.Time `json:"at"`
	ActorID  int64     `json:"actor_id"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	OK       int       `json:"ok"`
	Fail     int       `json:"fail"`
	Error    string    `json:"err,omitempty"`
	TookMS   int64     `json:"took_ms"`
	MetaJSON string    `json:"meta,omitempty"`
}
