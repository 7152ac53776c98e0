package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean.
type Config struct {
	Addr        string
	DatabaseURL string

	RedisURL         string
	PedigreeCacheTTL time.Duration

	KafkaBrokers    []string
	KafkaAuditTopic string

	LogLevel string
}

// FromEnv builds a Config from environment variables. Empty DatabaseURL
// selects the in-memory store; empty RedisURL and KafkaBrokers disable the
// pedigree cache and the Kafka audit sink respectively.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("IDENTITY_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		PedigreeCacheTTL: 5 * time.Minute,
		KafkaAuditTopic:  envOr("KAFKA_AUDIT_TOPIC", "identity.audit"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("PEDIGREE_CACHE_TTL"); raw != "" {
		if ttl, err := time.ParseDuration(raw); err == nil && ttl > 0 {
			cfg.PedigreeCacheTTL = ttl
		}
	}
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
