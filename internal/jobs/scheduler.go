// Package jobs runs periodic background tasks.
package jobs

import (
	"context"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

var (
	EconomyUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_users",
		Help: "Registered users",
	})
	EconomyContributions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_contributions",
		Help: "Submitted contributions",
	})
	EconomyActiveEvaluations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_active_evaluations",
		Help: "Evaluations that have not been superseded",
	})
	EconomyReputation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_total_reputation",
		Help: "Sum of all user reputation",
	})
	EconomyTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_total_tokens",
		Help: "Sum of all user token balances",
	})
	EconomyTokenFund = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "economy_outstanding_token_fund",
		Help: "Tokens held in contribution funds",
	})
)

func init() {
	prometheus.MustRegister(EconomyUsers, EconomyContributions, EconomyActiveEvaluations,
		EconomyReputation, EconomyTokens, EconomyTokenFund)
}

// TotalsSource is the read side the stats job samples.
type TotalsSource interface {
	EconomyTotals(ctx context.Context) (domain.EconomyTotals, error)
}

// Scheduler runs background tasks.
type Scheduler struct {
	cron     *cron.Cron
	source   TotalsSource
	schedule string
}

// NewScheduler creates a scheduler sampling source on schedule (cron spec or @every).
func NewScheduler(source TotalsSource, schedule string) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		source:   source,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.SampleEconomy(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("scheduler started", "stats_schedule", s.schedule)
	return nil
}

// SampleEconomy exports the current economy totals to the gauges.
func (s *Scheduler) SampleEconomy(ctx context.Context) {
	totals, err := s.source.EconomyTotals(ctx)
	if err != nil {
		logger.Error("[CRON] economy stats failed", "error", err)
		return
	}
	EconomyUsers.Set(float64(totals.Users))
	EconomyContributions.Set(float64(totals.Contributions))
	EconomyActiveEvaluations.Set(float64(totals.ActiveEvaluations))
	EconomyReputation.Set(totals.TotalReputation)
	EconomyTokens.Set(totals.TotalTokens)
	EconomyTokenFund.Set(totals.OutstandingTokenFund)
	logger.Debug("[CRON] economy stats",
		"users", totals.Users,
		"contributions", totals.Contributions,
		"total_reputation", totals.TotalReputation,
		"total_tokens", totals.TotalTokens,
	)
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}
