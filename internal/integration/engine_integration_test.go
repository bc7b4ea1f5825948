package integration

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"

	"backfeed/internal/migrations"
	"backfeed/internal/policy"
	"backfeed/internal/repository"
	"backfeed/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) (*service.AccountingService, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, migrations.Apply(ctx, db))
	_, err = db.Exec(ctx, `TRUNCATE ledger_entries, evaluations, contributions, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	svc, err := service.NewAccountingService(repository.NewPostgres(db), policy.Default())
	require.NoError(t, err)
	return svc, db
}

func TestPostgresEvaluationFlow(t *testing.T) {
	svc, _ := setupEngine(t)
	ctx := context.Background()

	a, err := svc.CreateUser(ctx, service.UserParams{})
	require.NoError(t, err)
	b, err := svc.CreateUser(ctx, service.UserParams{})
	require.NoError(t, err)

	c, err := svc.CreateContribution(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "base", c.Type)

	r, err := svc.CreateEvaluation(ctx, b.ID, c.ID, 1)
	require.NoError(t, err)
	wantFee := 0.02 * 20 * (1 - math.Sqrt(0.5))
	assert.InDelta(t, wantFee, r.Fee, 1e-9)
	assert.Zero(t, r.ContributorTokenReward)

	gotA, err := svc.GetUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 49.0, gotA.Tokens)

	gotB, err := svc.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20-wantFee, gotB.Reputation, 1e-9)

	total, err := svc.TotalReputation(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40-wantFee, total, 1e-9)

	ledger, err := svc.UserLedger(ctx, b.ID, 10)
	require.NoError(t, err)
	assert.Len(t, ledger, 3)
}

func TestPostgresRevoteHistory(t *testing.T) {
	svc, _ := setupEngine(t)
	ctx := context.Background()

	a, err := svc.CreateUser(ctx, service.UserParams{})
	require.NoError(t, err)
	b, err := svc.CreateUser(ctx, service.UserParams{})
	require.NoError(t, err)
	c, err := svc.CreateContribution(ctx, a.ID, "")
	require.NoError(t, err)

	first, err := svc.CreateEvaluation(ctx, b.ID, c.ID, 1)
	require.NoError(t, err)
	second, err := svc.CreateEvaluation(ctx, b.ID, c.ID, 0)
	require.NoError(t, err)
	assert.True(t, second.Revote)

	active, err := svc.ListEvaluations(ctx, repository.EvaluationFilter{ContributionID: c.ID})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.Evaluation.ID, active[0].ID)

	history, err := svc.EvaluationHistory(ctx, c.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.Evaluation.ID, history[0].ID)
	assert.False(t, history[0].Active)
	assert.NotNil(t, history[0].SupersededAt)
}

func TestPostgresConcurrentContributions(t *testing.T) {
	svc, _ := setupEngine(t)
	ctx := context.Background()

	three := 3.0
	u, err := svc.CreateUser(ctx, service.UserParams{Tokens: &three})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, poor int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateContribution(ctx, u.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrInsufficientFunds):
				poor++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 5, poor)

	n, err := svc.ContributionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
