// Package config loads runtime configuration from the environment, the
// same way the rest of the platform does: plain os.Getenv reads with
// hardcoded fallbacks, no config framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the scheduler, fetch client, and alert
// engine need at startup.
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	WorkerConcurrency int
	FetchTimeout      time.Duration
	MaxRetries        int
	RetryBase         time.Duration
	SourceDeadline    time.Duration
	UserAgent         string

	SMTPAddr string
	SMTPFrom string

	LeaseEnabled bool
	LeaseTTL     time.Duration
}

// Load reads Config from the environment, falling back to the defaults
// spelled out in the external interfaces table.
func Load() *Config {
	redisURL := os.Getenv("REDIS_URL")
	return &Config{
		DatabaseURL:       getenv("DATABASE_URL", "postgres://policywatch@localhost:5432/policywatch?sslmode=disable"),
		RedisURL:          redisURL,
		LogLevel:          getenv("LOG_LEVEL", "info"),
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 8),
		FetchTimeout:      getenvSeconds("FETCH_TIMEOUT_S", 30*time.Second),
		MaxRetries:        getenvInt("MAX_RETRIES", 3),
		RetryBase:         getenvSeconds("RETRY_BASE_S", 1*time.Second),
		SourceDeadline:    getenvSeconds("SOURCE_DEADLINE_S", 120*time.Second),
		UserAgent:         getenv("USER_AGENT", "PolicyWatch/1.0 (+https://github.com/lighthouse-labs/policywatch)"),
		SMTPAddr:          getenv("SMTP_ADDR", ""),
		SMTPFrom:          getenv("SMTP_FROM", "alerts@policywatch.local"),
		LeaseEnabled:      redisURL != "",
		LeaseTTL:          getenvSeconds("LEASE_TTL_S", 300*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}
