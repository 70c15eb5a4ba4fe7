// Package config loads environment configuration. Flags on the CLI override
// the env-derived defaults; secrets only ever come from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Remote identity service
	SecretKey   string        `env:"CLERK_SECRET_KEY"`
	APIBaseURL  string        `env:"CLERK_API_URL" envDefault:"https://api.clerk.com"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Dispatch defaults, overridable per run via flags
	Concurrency int `env:"MIGRATE_CONCURRENCY" envDefault:"10"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Validate checks the parts a live run needs. A dry run makes no remote
// calls, so the secret key is not required for it.
func (c *Config) Validate(dryRun bool) error {
	if !dryRun && c.SecretKey == "" {
		return errors.New("CLERK_SECRET_KEY is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("MIGRATE_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
