package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisResolver stores center configurations as JSON documents in Redis.
type RedisResolver struct {
	redis *redis.Client
}

func NewRedisResolver(redisClient *redis.Client) *RedisResolver {
	return &RedisResolver{redis: redisClient}
}

func (s *RedisResolver) key(tenantKey string) string {
	return fmt.Sprintf("tenant:config:%s", tenantKey)
}

func (s *RedisResolver) Resolve(ctx context.Context, tenantKey string) (SubaccountConfig, error) {
	data, err := s.redis.Get(ctx, s.key(tenantKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SubaccountConfig{}, &TenantNotFoundError{Key: tenantKey}
	}
	if err != nil {
		return SubaccountConfig{}, fmt.Errorf("tenancy: get config: %w", err)
	}

	var cfg SubaccountConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SubaccountConfig{}, fmt.Errorf("tenancy: unmarshal config: %w", err)
	}
	return cfg, nil
}

// Save writes a center configuration.
func (s *RedisResolver) Save(ctx context.Context, cfg SubaccountConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("tenancy: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("tenancy: set config: %w", err)
	}
	return nil
}
