package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchCacheTTL = 60 * time.Second

// RedisStore handles Redis operations: the rate limiter backend and the
// short-lived user-search response cache. It is optional; the server runs
// without it in development.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// searchCacheKey returns the cache key for a viewer's search. The query is
// hashed so arbitrary input never lands in a key verbatim.
func searchCacheKey(viewerID int64, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("search:%s:%s", strconv.FormatInt(viewerID, 10), hex.EncodeToString(sum[:8]))
}

// GetCachedSearch returns a previously cached search response body, or
// (nil, false) on a miss. Errors are treated as misses; the cache is
// best-effort.
func (s *RedisStore) GetCachedSearch(ctx context.Context, viewerID int64, query string) ([]byte, bool) {
	data, err := s.client.Get(ctx, searchCacheKey(viewerID, query)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// CacheSearch stores a serialized search response. Staleness is bounded by
// the TTL; there is no explicit invalidation.
func (s *RedisStore) CacheSearch(ctx context.Context, viewerID int64, query string, body []byte) {
	s.client.Set(ctx, searchCacheKey(viewerID, query), body, searchCacheTTL)
}
