package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
)

const workspacesKeyPrefix = "teamsync:workspaces:"

// MembershipSource is the authoritative membership lookup behind the cache.
type MembershipSource interface {
	ListWorkspacesFor(ctx context.Context, identity auth.Identity) ([]string, error)
	ListMembers(ctx context.Context, workspaceID string) ([]auth.Identity, error)
}

// CachedMembership caches the workspaces of each identity in Redis. Redis
// errors fall through to the source; member lookups are never cached.
type CachedMembership struct {
	source MembershipSource
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedMembership wraps source with a Redis cache whose entries expire
// after ttl.
func NewCachedMembership(source MembershipSource, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedMembership {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedMembership{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "membership-cache")),
	}
}

func workspacesKey(identity auth.Identity) string {
	return workspacesKeyPrefix + string(identity)
}

// ListWorkspacesFor serves from Redis when possible and fills the cache on a
// miss.
func (c *CachedMembership) ListWorkspacesFor(ctx context.Context, identity auth.Identity) ([]string, error) {
	key := workspacesKey(identity)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var workspaces []string
		if jerr := json.Unmarshal(raw, &workspaces); jerr == nil {
			return workspaces, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("membership cache read failed", zap.String("key", key), zap.Error(err))
	}

	workspaces, err := c.source.ListWorkspacesFor(ctx, identity)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(workspaces)
	if err != nil {
		return workspaces, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("membership cache write failed", zap.String("key", key), zap.Error(err))
	}
	return workspaces, nil
}

// ListMembers delegates to the source.
func (c *CachedMembership) ListMembers(ctx context.Context, workspaceID string) ([]auth.Identity, error) {
	return c.source.ListMembers(ctx, workspaceID)
}

// Invalidate drops the cached workspace lists of the given identities.
func (c *CachedMembership) Invalidate(ctx context.Context, identities ...auth.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	keys := make([]string, len(identities))
	for i, identity := range identities {
		keys[i] = workspacesKey(identity)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
