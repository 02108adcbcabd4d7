package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"pricewatch/pkg/metrics"
)

const scanBatch = 1000

// RedisStore 多实例部署时共享的查询缓存，所有 key 带统一前缀
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) InvalidateByUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.deleteMatching(ctx, s.prefix+"*"+userID+"*")
}

func (s *RedisStore) InvalidateByKey(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.deleteMatching(ctx, s.prefix+"*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	ctx, span := otel.Tracer("pricewatch").Start(ctx, "cache.deleteMatching")
	defer span.End()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del %d keys: %w", len(keys), err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
