// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the sweeper process needs at boot.
type Config struct {
	// OpsAddr serves /healthz and /metrics.
	OpsAddr string

	// DatabaseDSN is the Postgres connection string. Empty means run on the
	// in-memory stores, which is what local development uses.
	DatabaseDSN string

	// SweepInterval is how often the overdue materialization sweep runs.
	SweepInterval time.Duration

	// SweepTenants lists the tenant ids the sweep covers, as uuid strings.
	SweepTenants []string

	// KafkaBrokers is the seed broker list for the audit outbox. Empty
	// disables publishing; events stay queryable in the store either way.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

// FromEnv reads ORGCORE_* variables, falling back to development defaults.
func FromEnv() Config {
	cfg := Config{
		OpsAddr:       getenv("ORGCORE_OPS_ADDR", ":9090"),
		DatabaseDSN:   os.Getenv("ORGCORE_DATABASE_DSN"),
		SweepInterval: getDuration("ORGCORE_SWEEP_INTERVAL", time.Minute),
		KafkaTopic:    getenv("ORGCORE_KAFKA_TOPIC", "orgcore.audit"),
		LogLevel:      getenv("ORGCORE_LOG_LEVEL", "info"),
	}
	cfg.KafkaBrokers = splitList(os.Getenv("ORGCORE_KAFKA_BROKERS"))
	cfg.SweepTenants = splitList(os.Getenv("ORGCORE_SWEEP_TENANTS"))
	return cfg
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
