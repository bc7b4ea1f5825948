package jobs

import (
	"context"
	"errors"
	"testing"

	"backfeed/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTotals struct {
	totals domain.EconomyTotals
	err    error
}

func (s staticTotals) EconomyTotals(context.Context) (domain.EconomyTotals, error) {
	return s.totals, s.err
}

func TestSampleEconomy(t *testing.T) {
	s := NewScheduler(staticTotals{totals: domain.EconomyTotals{
		Users:                3,
		Contributions:        2,
		ActiveEvaluations:    4,
		TotalReputation:      59.5,
		TotalTokens:          148,
		OutstandingTokenFund: 2,
	}}, "@every 1m")

	s.SampleEconomy(context.Background())
	assert.Equal(t, 3.0, testutil.ToFloat64(EconomyUsers))
	assert.Equal(t, 2.0, testutil.ToFloat64(EconomyContributions))
	assert.Equal(t, 4.0, testutil.ToFloat64(EconomyActiveEvaluations))
	assert.Equal(t, 59.5, testutil.ToFloat64(EconomyReputation))
	assert.Equal(t, 148.0, testutil.ToFloat64(EconomyTokens))
	assert.Equal(t, 2.0, testutil.ToFloat64(EconomyTokenFund))
}

func TestSampleEconomyKeepsGaugesOnError(t *testing.T) {
	EconomyUsers.Set(7)
	s := NewScheduler(staticTotals{err: errors.New("db down")}, "@every 1m")
	s.SampleEconomy(context.Background())
	assert.Equal(t, 7.0, testutil.ToFloat64(EconomyUsers))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(staticTotals{}, "not a schedule")
	require.Error(t, s.Start(context.Background()))

	ok := NewScheduler(staticTotals{}, "@every 1h")
	require.NoError(t, ok.Start(context.Background()))
	ok.Stop()
}
