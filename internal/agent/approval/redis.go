package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/revpilot-ai/server/internal/agent/model"
	errx "github.com/revpilot-ai/server/internal/core/error"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// RedisStore is the durable approval store for multi-process deployments.
// Exactly-one resolution is guaranteed by SETNX on a resolution key; waiters
// are woken over pub/sub rather than polling.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisStore creates a redis-backed approval store. Records expire after
// ttl, which bounds storage for approvals nobody ever resolves.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) recordKey(approvalID string) string {
	return fmt.Sprintf("approval:%s:record", approvalID)
}

func (s *RedisStore) resolutionKey(approvalID string) string {
	return fmt.Sprintf("approval:%s:resolution", approvalID)
}

func (s *RedisStore) channel(approvalID string) string {
	return fmt.Sprintf("approval:%s:resolved", approvalID)
}

func (s *RedisStore) Create(ctx context.Context, req model.ApprovalRequest) error {
	record := &PendingApproval{
		ApprovalID:  req.ApprovalID,
		ToolName:    req.ToolName,
		ToolArgs:    req.ToolArgs,
		ToolCallID:  req.ToolCallID,
		ParamSchema: req.ParamSchema,
		CreatedAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.recordKey(req.ApprovalID), b, s.ttl).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if !ok {
		return ErrDuplicateID
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, approvalID string) (*PendingApproval, error) {
	raw, err := s.rdb.Get(ctx, s.recordKey(approvalID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, errx.WrapRedis(err)
	}

	var record PendingApproval
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal approval: %w", err)
	}

	if record.Resolution == nil {
		if res, err := s.loadResolution(ctx, approvalID); err == nil && res != nil {
			record.Resolution = res
		}
	}
	return &record, nil
}

func (s *RedisStore) loadResolution(ctx context.Context, approvalID string) (*Resolution, error) {
	raw, err := s.rdb.Get(ctx, s.resolutionKey(approvalID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.WrapRedis(err)
	}
	var res Resolution
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("unmarshal resolution: %w", err)
	}
	return &res, nil
}

func (s *RedisStore) Resolve(ctx context.Context, approvalID string, approved bool, modifiedArgs map[string]any) error {
	exists, err := s.rdb.Exists(ctx, s.recordKey(approvalID)).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	res := &Resolution{
		Approved:     approved,
		ModifiedArgs: modifiedArgs,
		ResolvedAt:   time.Now().UTC(),
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}

	// SETNX makes the first resolution authoritative across processes.
	won, err := s.rdb.SetNX(ctx, s.resolutionKey(approvalID), b, s.ttl).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if !won {
		logx.Warn().Str("approval_id", approvalID).Msg("Duplicate approval resolution ignored")
		return ErrAlreadyResolved
	}

	if err := s.rdb.Publish(ctx, s.channel(approvalID), b).Err(); err != nil {
		// Waiters fall back to their timeout check; the resolution is durable.
		logx.Warn().Str("approval_id", approvalID).Err(err).Msg("Failed to publish approval resolution")
	}
	return nil
}

func (s *RedisStore) Wait(ctx context.Context, approvalID string, timeout time.Duration) (*model.ApprovalResult, error) {
	// Subscribe before the existence check so a resolution landing between
	// the check and the wait is not missed.
	sub := s.rdb.Subscribe(ctx, s.channel(approvalID))
	defer sub.Close()

	record, err := s.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if record.Resolution != nil {
		return toResult(record.Resolution), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil, fmt.Errorf("approval subscription closed")
			}
			var res Resolution
			if err := json.Unmarshal([]byte(msg.Payload), &res); err != nil {
				logx.Warn().Str("approval_id", approvalID).Err(err).Msg("Bad resolution payload; re-reading record")
				if loaded, lerr := s.loadResolution(ctx, approvalID); lerr == nil && loaded != nil {
					return toResult(loaded), nil
				}
				continue
			}
			return toResult(&res), nil
		case <-timer.C:
			return timedOutResult(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var _ Store = (*RedisStore)(nil)
