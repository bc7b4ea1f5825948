package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 120, cfg.APIRateLimit)
	assert.Equal(t, time.Minute, cfg.EvaluationRateWindow)
	assert.Equal(t, "@every 1m", cfg.StatsSchedule)
	assert.Nil(t, cfg.RewardTokensToEvaluators)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/backfeed")
	t.Setenv("REWARD_TOKENS_TO_EVALUATORS", "true")
	t.Setenv("EVALUATION_RATE_WINDOW", "30s")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.RewardTokensToEvaluators)
	assert.True(t, *cfg.RewardTokensToEvaluators)
	assert.Equal(t, 30*time.Second, cfg.EvaluationRateWindow)
	assert.True(t, cfg.LogJSON)
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:          DriverMemory,
		APIRateLimit:         1,
		APIRateWindow:        time.Second,
		EvaluationRateLimit:  1,
		EvaluationRateWindow: time.Second,
		StatsSchedule:        "@every 1m",
	}
	require.NoError(t, base.Validate())

	noDSN := base
	noDSN.StoreDriver = DriverPostgres
	assert.Error(t, noDSN.Validate())

	badDriver := base
	badDriver.StoreDriver = "sqlite"
	assert.Error(t, badDriver.Validate())

	badLimit := base
	badLimit.EvaluationRateLimit = 0
	assert.Error(t, badLimit.Validate())
}

func TestPolicyOverride(t *testing.T) {
	on := true
	cfg := Config{RewardTokensToEvaluators: &on}
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, p.RewardTokensToEvaluators)
	assert.Equal(t, 0.7, p.Alpha)

	cfg = Config{PolicyFile: "/nonexistent/policy.yaml"}
	_, err = cfg.Policy()
	assert.Error(t, err)
}
