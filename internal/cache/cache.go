package cache

import (
	"context"
	"time"

	"goodsale/backend/internal/domain"
)

// PolicyCache holds return policies per tenant. Misses and errors fall back to
// the repository; the cache is never the source of truth.
type PolicyCache interface {
	Get(ctx context.Context, tenantID string) (*domain.ReturnPolicy, bool, error)
	Set(ctx context.Context, policy domain.ReturnPolicy, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string) error
}

type NoopPolicyCache struct{}

func (NoopPolicyCache) Get(_ context.Context, _ string) (*domain.ReturnPolicy, bool, error) {
	return nil, false, nil
}

func (NoopPolicyCache) Set(_ context.Context, _ domain.ReturnPolicy, _ time.Duration) error {
	return nil
}

func (NoopPolicyCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func policyKey(tenantID string) string {
	return "goodsale:return-policy:" + tenantID
}
