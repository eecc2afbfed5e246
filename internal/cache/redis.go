package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

const summaryKeyPrefix = "gestiart:summary:"

// Redis caches dashboard summaries as JSON blobs with a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

func (r *Redis) GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool) {
	raw, err := r.client.Get(ctx, summaryKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var summary domain.SalesSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		r.logger.Warn("summary cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, summaryKeyPrefix+key).Err()
		return nil, false
	}
	return &summary, true
}

func (r *Redis) SetSummary(ctx context.Context, key string, summary *domain.SalesSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		r.logger.Warn("summary cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, summaryKeyPrefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) InvalidateAll(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, summaryKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Warn("summary cache invalidation failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("summary cache scan failed", zap.Error(err))
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
