package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"goodsale/backend/internal/cache"
	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	policies        cache.PolicyCache
	policyTTL       time.Duration
	defaultTenantID string
	now             func() time.Time
}

func New(repo store.Repository, policies cache.PolicyCache, policyTTL time.Duration, defaultTenantID string) *Service {
	if policies == nil {
		policies = cache.NoopPolicyCache{}
	}
	if policyTTL <= 0 {
		policyTTL = time.Minute
	}
	if defaultTenantID == "" {
		defaultTenantID = "main-store"
	}

	return &Service{
		repo:            repo,
		policies:        policies,
		policyTTL:       policyTTL,
		defaultTenantID: defaultTenantID,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// cashier returns the acting user. Every ledger mutation is attributed to
// the cashier whose shift it lands on.
func (s *Service) cashier(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{}, fmt.Errorf("%w: cashier identity required", domain.ErrValidation)
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, s.defaultTenantID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		TenantID:      s.defaultTenantID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
