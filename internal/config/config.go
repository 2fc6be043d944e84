package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	defaultCapacity = 5
)

type Config struct {
	HTTPAddr   string `env:"ACCESSMON_HTTP_ADDR" default:":8080"`
	GRPCAddr   string `env:"ACCESSMON_GRPC_ADDR" default:":9090"`
	Env        string `env:"ACCESSMON_ENV" default:"dev"` // "dev" | "prod"
	SystemName string `env:"ACCESSMON_SYSTEM_NAME" default:"Access Monitor"`

	// Session ledger
	SessionBackend string `env:"ACCESSMON_SESSION_BACKEND" default:"sqlite"` // "memory" | "sqlite"
	DBPath         string `env:"ACCESSMON_DB_PATH" default:"./data/accessmon.db"`

	// User registry
	RegistryCapacity    int    `env:"ACCESSMON_REGISTRY_CAPACITY" default:"5"`
	RegistrationPolicy  string `env:"ACCESSMON_REGISTRATION_POLICY" default:"upsert"` // "upsert" | "strict"
	RequireRegistration bool   `env:"ACCESSMON_REQUIRE_REGISTRATION" default:"false"`
	SeedUsers           string `env:"ACCESSMON_SEED_USERS"` // CSV, dev only

	PurgeRetryInterval time.Duration `env:"ACCESSMON_PURGE_RETRY_INTERVAL" default:"30s"`
	ShutdownTimeout    time.Duration `env:"ACCESSMON_SHUTDOWN_TIMEOUT" default:"10s"`
}

// FromEnv loads an optional .env file, reads the environment and normalizes
// the result. Values that parse but make no sense fall back to defaults.
func FromEnv() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	if c.SessionBackend != BackendMemory && c.SessionBackend != BackendSQLite {
		c.SessionBackend = BackendSQLite
	}

	c.RegistrationPolicy = strings.ToLower(strings.TrimSpace(c.RegistrationPolicy))
	if c.RegistrationPolicy != "upsert" && c.RegistrationPolicy != "strict" {
		c.RegistrationPolicy = "upsert"
	}

	if c.RegistryCapacity < 1 {
		c.RegistryCapacity = defaultCapacity
	}
	if strings.TrimSpace(c.SystemName) == "" {
		c.SystemName = "Access Monitor"
	}
	if c.PurgeRetryInterval <= 0 {
		c.PurgeRetryInterval = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// SeedUserIDs returns the users to pre-register at startup. Seeding only
// happens in dev.
func (c Config) SeedUserIDs() []string {
	if c.Env != "dev" {
		return nil
	}
	return splitCSV(c.SeedUsers)
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
