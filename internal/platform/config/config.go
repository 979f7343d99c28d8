package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures process level configuration so main stays lean.
type Config struct {
	Addr        string `env:"CONCORDIA_ADDR" envDefault:":8080"`
	Environment string `env:"CONCORDIA_ENV"  envDefault:"development"`

	// MongoURI selects the production entity gateway. When empty the process
	// runs against the in-memory gateway, which is only useful for local work.
	MongoURI      string `env:"CONCORDIA_MONGODB_URI"`
	MongoDatabase string `env:"CONCORDIA_MONGODB_DATABASE" envDefault:"concordia"`

	// Tenants lists tenant ids that get a periodic audit scheduled at startup.
	Tenants []string `env:"CONCORDIA_AUDIT_TENANTS" envSeparator:","`

	AuditInterval time.Duration `env:"CONCORDIA_AUDIT_INTERVAL" envDefault:"15m"`
	CycleTimeout  time.Duration `env:"CONCORDIA_CYCLE_TIMEOUT"  envDefault:"2m"`
	RuleTimeout   time.Duration `env:"CONCORDIA_RULE_TIMEOUT"   envDefault:"10s"`
	ActionTimeout time.Duration `env:"CONCORDIA_ACTION_TIMEOUT" envDefault:"15s"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
