package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

// redisKeyPrefix namespaces cache keys within a shared Redis instance.
const redisKeyPrefix = "quorum:rag:query:"

// Redis is a result cache backed by a Redis instance, for deployments
// running more than one engine replica. Expiry is delegated to Redis TTLs,
// so unlike Memory there is no capacity bound to manage here.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

// NewRedis creates a Redis-backed result cache. ttl <= 0 uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration, logger log.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached response for key. Transport or decode errors are
// logged and reported as misses; the cache never fails a query.
func (r *Redis) Get(ctx context.Context, key string) (*rag.QueryResponse, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "error", err)
		}
		return nil, false
	}

	var resp rag.QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		r.logger.Warn("cache entry corrupt, dropping", "error", err)
		r.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return &resp, true
}

// Set stores a response with the configured TTL. Errors are logged only.
func (r *Redis) Set(ctx context.Context, key string, resp *rag.QueryResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Warn("cache encode failed", "error", err)
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", "error", err)
	}
}
