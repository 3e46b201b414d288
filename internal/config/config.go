package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TenantID              string
	PolicyCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TenantID:              getEnv("DEFAULT_TENANT_ID", "main-store"),
		PolicyCacheTTLSeconds: getPositiveInt("POLICY_CACHE_TTL_SECONDS", 60),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) PolicyCacheTTL() time.Duration {
	return time.Duration(c.PolicyCacheTTLSeconds) * time.Second
}

// AgentConfig drives the device-side agent that queues and replays sales.
type AgentConfig struct {
	DeviceID     string
	QueuePath    string
	ServerURL    string
	Username     string
	Password     string
	SyncInterval time.Duration
	SyncTimeout  time.Duration
	PingInterval time.Duration
}

func LoadAgent() AgentConfig {
	return AgentConfig{
		DeviceID:     getEnv("DEVICE_ID", "device"),
		QueuePath:    getEnv("QUEUE_PATH", "goodsale-queue.db"),
		ServerURL:    strings.TrimRight(getEnv("SERVER_URL", "http://127.0.0.1:8080"), "/"),
		Username:     strings.TrimSpace(os.Getenv("AGENT_USERNAME")),
		Password:     os.Getenv("AGENT_PASSWORD"),
		SyncInterval: time.Duration(getPositiveInt("SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		SyncTimeout:  time.Duration(getPositiveInt("SYNC_TIMEOUT_SECONDS", 10)) * time.Second,
		PingInterval: time.Duration(getPositiveInt("PING_INTERVAL_SECONDS", 5)) * time.Second,
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
