package config

import (
	"fmt"
	"time"

	"backfeed/internal/policy"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	AppPort    string `envconfig:"APP_PORT" default:"8080"`
	AppVersion string `envconfig:"APP_VERSION" default:"dev"`

	// Storage
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// Redis backs the rate limiters; empty falls back to in-process limits
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`

	// Economic policy
	PolicyFile               string `envconfig:"POLICY_FILE"`
	RewardTokensToEvaluators *bool  `envconfig:"REWARD_TOKENS_TO_EVALUATORS"`

	// Limits
	APIRateLimit         int           `envconfig:"API_RATE_LIMIT" default:"120"`
	APIRateWindow        time.Duration `envconfig:"API_RATE_WINDOW" default:"1m"`
	EvaluationRateLimit  int           `envconfig:"EVALUATION_RATE_LIMIT" default:"30"`
	EvaluationRateWindow time.Duration `envconfig:"EVALUATION_RATE_WINDOW" default:"1m"`

	StatsSchedule string `envconfig:"STATS_SCHEDULE" default:"@every 1m"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN"`
	OTelEndpoint  string `envconfig:"OTEL_ENDPOINT"`
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.APIRateLimit <= 0 || c.APIRateWindow <= 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_WINDOW must be > 0")
	}
	if c.EvaluationRateLimit <= 0 || c.EvaluationRateWindow <= 0 {
		return fmt.Errorf("EVALUATION_RATE_LIMIT and EVALUATION_RATE_WINDOW must be > 0")
	}
	if c.StatsSchedule == "" {
		return fmt.Errorf("STATS_SCHEDULE is empty")
	}
	return nil
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy loads POLICY_FILE (or the built-in default) and applies the
// REWARD_TOKENS_TO_EVALUATORS override.
func (c *Config) Policy() (policy.Policy, error) {
	p := policy.Default()
	if c.PolicyFile != "" {
		var err error
		if p, err = policy.Load(c.PolicyFile); err != nil {
			return policy.Policy{}, err
		}
	}
	if c.RewardTokensToEvaluators != nil {
		p.RewardTokensToEvaluators = *c.RewardTokensToEvaluators
	}
	if err := p.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}
