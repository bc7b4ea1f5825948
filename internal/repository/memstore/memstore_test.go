package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) (u1, u2 *domain.User, c *domain.Contribution) {
	t.Helper()
	u1 = &domain.User{Tokens: 50, Reputation: 20}
	u2 = &domain.User{Tokens: 50, Reputation: 10}
	c = &domain.Contribution{Type: "base"}
	err := s.InTx(context.Background(), func(tx repository.Tx) error {
		if err := tx.InsertUser(context.Background(), u1); err != nil {
			return err
		}
		if err := tx.InsertUser(context.Background(), u2); err != nil {
			return err
		}
		c.UserID = u1.ID
		return tx.InsertContribution(context.Background(), c)
	})
	require.NoError(t, err)
	return u1, u2, c
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	s := New()
	u1, _, _ := seed(t, s)
	ctx := context.Background()

	err := s.View(ctx, func(tx repository.Tx) error {
		got, err := tx.GetUser(ctx, u1.ID)
		if err != nil {
			return err
		}
		got.Tokens = 0
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		got, err := tx.GetUser(ctx, u1.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.Tokens)
		return nil
	}))
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	u1, _, _ := seed(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, u1.ID)
		if err != nil {
			return err
		}
		u.Tokens = 1
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.InsertUser(ctx, &domain.User{}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, u1.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, u.Tokens)
		users, err := tx.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
		return nil
	}))
}

func TestWritesVisibleInsideUnitOfWork(t *testing.T) {
	s := New()
	u1, u2, _ := seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, u2.ID)
		require.NoError(t, err)
		u.Reputation = 30
		require.NoError(t, tx.UpdateUser(ctx, u))

		total, err := tx.SumReputation(ctx)
		require.NoError(t, err)
		assert.Equal(t, 50.0, total)

		_, err = tx.GetUser(ctx, u1.ID)
		return err
	}))
}

func TestViewRejectsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, func(tx repository.Tx) error {
		return tx.InsertUser(ctx, &domain.User{})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, func(repository.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		_, err := tx.GetUser(ctx, 42)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = tx.GetContribution(ctx, 42)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = tx.GetEvaluation(ctx, 42)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	}))
	err := s.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertContribution(ctx, &domain.Contribution{UserID: 42})
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEvaluationFiltersAndSupersede(t *testing.T) {
	s := New()
	u1, u2, c := seed(t, s)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.InsertEvaluation(ctx, &domain.Evaluation{UserID: u1.ID, ContributionID: c.ID, Value: 1, Active: true}))
		require.NoError(t, tx.InsertEvaluation(ctx, &domain.Evaluation{UserID: u2.ID, ContributionID: c.ID, Value: 0, Active: true}))

		err := tx.InsertEvaluation(ctx, &domain.Evaluation{UserID: u2.ID, ContributionID: c.ID, Value: 1, Active: true})
		assert.ErrorIs(t, err, errDuplicateActive)

		n, err := tx.DeactivateEvaluations(ctx, c.ID, u2.ID, at)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return tx.InsertEvaluation(ctx, &domain.Evaluation{UserID: u2.ID, ContributionID: c.ID, Value: 1, Active: true})
	}))

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		active, err := tx.ListEvaluations(ctx, repository.EvaluationFilter{ContributionID: c.ID})
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Less(t, active[0].ID, active[1].ID)

		all, err := tx.ListEvaluations(ctx, repository.EvaluationFilter{ContributionID: c.ID, IncludeInactive: true})
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.NotNil(t, all[1].SupersededAt)
		assert.True(t, all[1].SupersededAt.Equal(at))

		up := 1
		sum, err := tx.SumEvaluatorReputation(ctx, repository.EvaluationFilter{ContributionID: c.ID, Value: &up})
		require.NoError(t, err)
		assert.Equal(t, 30.0, sum)

		sum, err = tx.SumEvaluatorReputation(ctx, repository.EvaluationFilter{ContributionID: c.ID, Value: &up, ExcludeEvaluatorID: u1.ID})
		require.NoError(t, err)
		assert.Equal(t, 10.0, sum)

		totals, err := tx.EconomyTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, totals.ActiveEvaluations)
		assert.Equal(t, 2, totals.Users)
		assert.Equal(t, 1, totals.Contributions)
		assert.Equal(t, 30.0, totals.TotalReputation)
		return nil
	}))
}

func TestListContributionsOrderAndPaging(t *testing.T) {
	s := New()
	u1, u2, _ := seed(t, s)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		for i, uid := range []int64{u2.ID, u1.ID, u2.ID} {
			if err := tx.InsertContribution(ctx, &domain.Contribution{UserID: uid, Type: "base", CreatedAt: base.Add(time.Duration(i+1) * time.Hour)}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		newest, err := tx.ListContributions(ctx, repository.ContributionFilter{Order: "-time", Limit: 2})
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, int64(4), newest[0].ID)
		assert.Equal(t, int64(3), newest[1].ID)

		byU2, err := tx.ListContributions(ctx, repository.ContributionFilter{ContributorID: u2.ID, Order: "time"})
		require.NoError(t, err)
		require.Len(t, byU2, 2)
		assert.Equal(t, int64(2), byU2[0].ID)

		past, err := tx.ListContributions(ctx, repository.ContributionFilter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, past)

		n, err := tx.CountContributions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		return nil
	}))
}

func TestLedgerNewestFirst(t *testing.T) {
	s := New()
	u1, u2, _ := seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		for _, amt := range []float64{1, 2, 3} {
			uid := u1.ID
			if err := tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{UserID: &uid, Kind: domain.LedgerInitialGrant, Asset: domain.AssetTokens, Amount: amt}); err != nil {
				return err
			}
		}
		other := u2.ID
		return tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{UserID: &other, Kind: domain.LedgerInitialGrant, Asset: domain.AssetTokens, Amount: 9})
	}))

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		entries, err := tx.ListLedgerEntries(ctx, u1.ID, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, 3.0, entries[0].Amount)
		assert.Equal(t, 2.0, entries[1].Amount)

		all, err := tx.ListLedgerEntries(ctx, u1.ID, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		return nil
	}))
}

func TestListReferredUsers(t *testing.T) {
	s := New()
	u1, _, _ := seed(t, s)
	ctx := context.Background()

	ref := u1.ID
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertUser(ctx, &domain.User{Tokens: 1, Reputation: 1, ReferrerID: &ref})
	}))

	require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
		referred, err := tx.ListReferredUsers(ctx, u1.ID)
		require.NoError(t, err)
		require.Len(t, referred, 1)
		assert.Equal(t, int64(3), referred[0].ID)

		none, err := tx.ListReferredUsers(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}
