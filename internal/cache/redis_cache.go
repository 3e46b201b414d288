package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"goodsale/backend/internal/domain"
)

type RedisPolicyCache struct {
	client *redis.Client
}

func NewRedisPolicyCache(addr string, password string, db int) *RedisPolicyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPolicyCache{client: client}
}

func (c *RedisPolicyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPolicyCache) Close() error {
	return c.client.Close()
}

func (c *RedisPolicyCache) Get(ctx context.Context, tenantID string) (*domain.ReturnPolicy, bool, error) {
	val, err := c.client.Get(ctx, policyKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var policy domain.ReturnPolicy
	if err := json.Unmarshal([]byte(val), &policy); err != nil {
		return nil, false, err
	}
	return &policy, true, nil
}

func (c *RedisPolicyCache) Set(ctx context.Context, policy domain.ReturnPolicy, ttl time.Duration) error {
	payload, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, policyKey(policy.TenantID), payload, ttl).Err()
}

func (c *RedisPolicyCache) Invalidate(ctx context.Context, tenantID string) error {
	return c.client.Del(ctx, policyKey(tenantID)).Err()
}
