package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"goodsale/backend/internal/cache"
	"goodsale/backend/internal/config"
	"goodsale/backend/internal/httpapi"
	"goodsale/backend/internal/service"
	"goodsale/backend/internal/store"
	"goodsale/backend/internal/store/memory"
	pgstore "goodsale/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}
	policies, closeCache := openPolicyCache(ctx, cfg)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	svc := service.New(repo, policies, cfg.PolicyCacheTTL(), cfg.TenantID)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("GoodSale backend listening on %s (tenant %s)", cfg.Address(), cfg.TenantID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository never falls back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	log.Println("repository: postgres")
	return pg, []func() error{pg.Close}, nil
}

func openPolicyCache(ctx context.Context, cfg config.Config) (cache.PolicyCache, func() error) {
	if cfg.RedisAddr == "" {
		log.Println("policy cache: noop")
		return cache.NoopPolicyCache{}, nil
	}
	redisCache := cache.NewRedisPolicyCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Printf("redis unavailable (%v), using noop policy cache", err)
		_ = redisCache.Close()
		return cache.NoopPolicyCache{}, nil
	}
	log.Println("policy cache: redis")
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.TrimSpace(cfg.TenantID) == "" {
		return fmt.Errorf("DEFAULT_TENANT_ID must not be blank")
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the POS front-end, not *")
	}
	return nil
}
