package storage

import (
	"context"
	"sync"
)

// Memory is a process-local store. Use NewMemory.
type Memory struct {
	mu     sync.Mutex
	ids    []int64
	set    map[int64]struct{}
	audit  []AuditEntry
	closed bool
}

func NewMemory() *Memory {
	return &Memory{set: map[int64]struct{}{}}
}

func (s *Memory) Add(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.set[id]; ok {
		return false, nil
	}
	s.set[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true, nil
}

func (s *Memory) All(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]int64(nil), s.ids...), nil
}

func (s *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, e)
	return nil
}

// Audit returns a copy of the recorded audit entries.
func (s *Memory) Audit() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
