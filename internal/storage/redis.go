package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "castbot/pkg/logx"
)

const redisAuditMax = 1000

// addRecipient pushes to the order list only when SADD reports a new member,
// so the set and the list never diverge under concurrent registrations.
var addRecipient = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

type redisStore struct {
	rdb *redis.Client
	log logx.Logger

	setKey   string
	orderKey string
	auditKey string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required when storage.driver=redis")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "castbot"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return newRedisStore(rdb, prefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	return &redisStore{
		rdb:      rdb,
		log:      log,
		setKey:   prefix + ":recipients:set",
		orderKey: prefix + ":recipients:order",
		auditKey: prefix + ":audit",
	}
}

func (s *redisStore) Add(ctx context.Context, id int64) (bool, error) {
	n, err := addRecipient.Run(ctx, s.rdb, []string{s.setKey, s.orderKey}, strconv.FormatInt(id, 10)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisStore) All(ctx context.Context) ([]int64, error) {
	raw, err := s.rdb.LRange(ctx, s.orderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids, skipped, err := parseIDs(strings.NewReader(strings.Join(raw, "\n")))
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.log.Warn("redis registry has unparsable members (ignored)", logx.String("key", s.orderKey), logx.Int("count", skipped))
	}
	return ids, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.auditKey, b)
		p.LTrim(ctx, s.auditKey, -redisAuditMax, -1)
		return nil
	})
	return err
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
