package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "castbot/pkg/logx"
)

// fileStore keeps recipients in a newline-delimited text file.
//
// Files:
//   - <path>                (one id per line, append-only)
//   - <prefix>.audit.jsonl  (append-only JSON Lines)
//
// The in-memory index is rebuilt whenever the file's size or mtime changes,
// so ids appended by hand are picked up without a restart.
type fileStore struct {
	log  logx.Logger
	path string

	mu        sync.Mutex
	auditFile *os.File
	closed    bool

	ids []int64
	set map[int64]struct{}
	// trailingNewline is false when the last line was written without "\n" (hand edits).
	trailingNewline bool
	stamp           fileStamp
}

type fileStamp struct {
	size int64
	mod  time.Time
	ok   bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	auditPath := filepath.Join(dir, base) + ".audit.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s := &fileStore{
		log:             log,
		path:            path,
		auditFile:       af,
		set:             map[int64]struct{}{},
		trailingNewline: true,
	}
	s.mu.Lock()
	err = s.refreshLocked()
	s.mu.Unlock()
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Add(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if err := s.refreshLocked(); err != nil {
		return false, err
	}
	if _, ok := s.set[id]; ok {
		return false, nil
	}

	line := strconv.FormatInt(id, 10) + "\n"
	if !s.trailingNewline {
		line = "\n" + line
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return false, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, err
	}

	s.ids = append(s.ids, id)
	s.set[id] = struct{}{}
	s.trailingNewline = true
	s.stamp = statStamp(s.path)
	return true, nil
}

func (s *fileStore) All(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return append([]int64(nil), s.ids...), nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.auditFile != nil {
		err := s.auditFile.Close()
		s.auditFile = nil
		return err
	}
	return nil
}

func (s *fileStore) refreshLocked() error {
	st := statStamp(s.path)
	if st.same(s.stamp) {
		return nil
	}
	if !st.ok {
		// Missing file is an empty registry; it is created on first Add.
		s.ids = nil
		s.set = map[int64]struct{}{}
		s.trailingNewline = true
		s.stamp = st
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.ids, s.set, s.stamp = nil, map[int64]struct{}{}, fileStamp{}
			return nil
		}
		return err
	}
	defer f.Close()

	ids, skipped, err := parseIDs(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if skipped > 0 {
		s.log.Warn("registry file has unparsable lines (ignored)", logx.String("path", s.path), logx.Int("count", skipped))
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.ids = ids
	s.set = set
	s.trailingNewline = endsWithNewline(f, st.size)
	s.stamp = st
	return nil
}

// parseIDs reads one id per line. Blank lines are ignored, duplicates are
// collapsed (first occurrence wins) and unparsable lines are counted.
func parseIDs(r io.Reader) (ids []int64, skipped int, err error) {
	seen := map[int64]struct{}{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, perr := strconv.ParseInt(line, 10, 64)
		if perr != nil {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, skipped, sc.Err()
}

func endsWithNewline(f *os.File, size int64) bool {
	if size == 0 {
		return true
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, size-1); err != nil {
		return true
	}
	return b[0] == '\n'
}

func (a fileStamp) same(b fileStamp) bool {
	return a.ok == b.ok && a.size == b.size && a.mod.Equal(b.mod)
}

func statStamp(path string) fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{size: fi.Size(), mod: fi.ModTime(), ok: true}
}
