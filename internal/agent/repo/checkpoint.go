package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/revpilot-ai/server/internal/agent/model"
	errx "github.com/revpilot-ai/server/internal/core/error"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// RedisCheckpointStore persists one checkpoint record per (thread, step):
// the latest under its own key as the authoritative resumable state, plus a
// bounded history list for audit.
type RedisCheckpointStore struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	maxHistory int
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration, maxHistory int) *RedisCheckpointStore {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl, maxHistory: maxHistory}
}

func (s *RedisCheckpointStore) latestKey(threadID string) string {
	return fmt.Sprintf("checkpoint:%s:latest", threadID)
}

func (s *RedisCheckpointStore) historyKey(threadID string) string {
	return fmt.Sprintf("checkpoint:%s:history", threadID)
}

func (s *RedisCheckpointStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	if cp == nil || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id is required")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.latestKey(cp.ThreadID), b, s.ttl)
	pipe.RPush(ctx, s.historyKey(cp.ThreadID), b)
	pipe.LTrim(ctx, s.historyKey(cp.ThreadID), int64(-s.maxHistory), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.historyKey(cp.ThreadID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("thread_id", cp.ThreadID).Int("step", cp.Step).Msg("failed to persist checkpoint")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisCheckpointStore) Latest(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	raw, err := s.rdb.Get(ctx, s.latestKey(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.WrapRedis(err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)

// MemoryCheckpointStore is a lock-protected in-process checkpoint store for
// single-process deployments and tests.
type MemoryCheckpointStore struct {
	mu     sync.Mutex
	latest map[string]*model.Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{latest: make(map[string]*model.Checkpoint)}
}

func (s *MemoryCheckpointStore) Put(ctx context.Context, cp *model.Checkpoint) error {
	if cp == nil || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id is required")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	// Round-trip through JSON so the stored state is fully detached from the
	// caller's and serializability violations surface in tests.
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	var clone model.Checkpoint
	if err := json.Unmarshal(b, &clone); err != nil {
		return fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[cp.ThreadID] = &clone
	return nil
}

func (s *MemoryCheckpointStore) Latest(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	s.mu.Lock()
	cp, ok := s.latest[threadID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	b, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	var clone model.Checkpoint
	if err := json.Unmarshal(b, &clone); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &clone, nil
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)
