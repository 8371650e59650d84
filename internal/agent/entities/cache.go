package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/revpilot-ai/server/internal/core/error"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// CachedService decorates an entity service with a redis-backed cache. The
// cache is explicit and lifetime-scoped rather than a process-wide singleton;
// Invalidate backs the needs_entity_refresh path after mutating calls.
type CachedService struct {
	inner Service
	rdb   redis.UniversalClient
	ttl   time.Duration
}

// NewCachedService wraps a service with caching.
func NewCachedService(inner Service, rdb redis.UniversalClient, ttl time.Duration) *CachedService {
	return &CachedService{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedService) key(userID, organizationID string) string {
	return fmt.Sprintf("entities:%s:%s", organizationID, userID)
}

func (c *CachedService) GetEntities(ctx context.Context, userID, organizationID string) (*Snapshot, error) {
	key := c.key(userID, organizationID)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return &snap, nil
		}
		logx.Warn().Str("key", key).Msg("Corrupt entity cache entry; refetching")
	} else if err != redis.Nil {
		// Cache trouble is not a reason to fail the fetch.
		logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("Entity cache read failed")
	}

	snap, err := c.inner.GetEntities(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(snap); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("Entity cache write failed")
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for a caller.
func (c *CachedService) Invalidate(ctx context.Context, userID, organizationID string) error {
	if err := c.rdb.Del(ctx, c.key(userID, organizationID)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ Service = (*CachedService)(nil)
