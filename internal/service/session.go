package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/repository"
)

// session is the identity map of one unit of work. Every entity is loaded
// once and mutated in place; pending changes are flushed before any
// aggregate query so sums observe them, and once more before commit.
type session struct {
	ctx context.Context
	tx  repository.Tx
	now time.Time

	users         map[int64]*domain.User
	contributions map[int64]*domain.Contribution
	dirtyUsers    map[int64]struct{}
	dirtyContribs map[int64]struct{}
	entries       []*domain.LedgerEntry
}

func newSession(ctx context.Context, tx repository.Tx, now time.Time) *session {
	return &session{
		ctx:           ctx,
		tx:            tx,
		now:           now,
		users:         make(map[int64]*domain.User),
		contributions: make(map[int64]*domain.Contribution),
		dirtyUsers:    make(map[int64]struct{}),
		dirtyContribs: make(map[int64]struct{}),
	}
}

func (s *session) user(id int64) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	u, err := s.tx.GetUser(s.ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	s.users[id] = u
	return u, nil
}

// referrer returns the user's referrer, or nil when there is none.
func (s *session) referrer(u *domain.User) (*domain.User, error) {
	if !u.HasReferrer() {
		return nil, nil
	}
	return s.user(*u.ReferrerID)
}

func (s *session) contribution(id int64) (*domain.Contribution, error) {
	if c, ok := s.contributions[id]; ok {
		return c, nil
	}
	c, err := s.tx.GetContribution(s.ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrContributionNotFound, id)
		}
		return nil, fmt.Errorf("load contribution %d: %w", id, err)
	}
	s.contributions[id] = c
	return c, nil
}

// trackUser registers a user created in this unit of work.
func (s *session) trackUser(u *domain.User) { s.users[u.ID] = u }

func (s *session) trackContribution(c *domain.Contribution) { s.contributions[c.ID] = c }

type movement struct {
	kind         domain.LedgerKind
	contribution *domain.Contribution
	evaluation   *domain.Evaluation
	meta         map[string]interface{}
}

func (s *session) record(userID *int64, asset domain.LedgerAsset, amount float64, m movement) {
	e := &domain.LedgerEntry{
		UserID:    userID,
		Kind:      m.kind,
		Asset:     asset,
		Amount:    amount,
		Meta:      m.meta,
		CreatedAt: s.now,
	}
	if m.contribution != nil {
		id := m.contribution.ID
		e.ContributionID = &id
	}
	if m.evaluation != nil {
		id := m.evaluation.ID
		e.EvaluationID = &id
	}
	s.entries = append(s.entries, e)
}

func (s *session) addTokens(u *domain.User, amount float64, m movement) {
	if amount == 0 {
		return
	}
	u.Tokens += amount
	s.dirtyUsers[u.ID] = struct{}{}
	id := u.ID
	s.record(&id, domain.AssetTokens, amount, m)
}

func (s *session) addReputation(u *domain.User, amount float64, m movement) {
	if amount == 0 {
		return
	}
	u.Reputation += amount
	s.dirtyUsers[u.ID] = struct{}{}
	id := u.ID
	s.record(&id, domain.AssetReputation, amount, m)
}

func (s *session) addFund(c *domain.Contribution, amount float64, m movement) {
	if amount == 0 {
		return
	}
	c.TokenFund += amount
	s.dirtyContribs[c.ID] = struct{}{}
	m.contribution = c
	s.record(nil, domain.AssetTokenFund, amount, m)
}

func (s *session) setMaxScore(c *domain.Contribution, score float64) {
	c.MaxScore = score
	s.dirtyContribs[c.ID] = struct{}{}
}

// flush writes pending entity changes in id order.
func (s *session) flush() error {
	userIDs := make([]int64, 0, len(s.dirtyUsers))
	for id := range s.dirtyUsers {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, id := range userIDs {
		if err := s.tx.UpdateUser(s.ctx, s.users[id]); err != nil {
			return fmt.Errorf("update user %d: %w", id, err)
		}
	}
	clear(s.dirtyUsers)

	contribIDs := make([]int64, 0, len(s.dirtyContribs))
	for id := range s.dirtyContribs {
		contribIDs = append(contribIDs, id)
	}
	sort.Slice(contribIDs, func(i, j int) bool { return contribIDs[i] < contribIDs[j] })
	for _, id := range contribIDs {
		if err := s.tx.UpdateContribution(s.ctx, s.contributions[id]); err != nil {
			return fmt.Errorf("update contribution %d: %w", id, err)
		}
	}
	clear(s.dirtyContribs)
	return nil
}

func (s *session) totalReputation() (float64, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	total, err := s.tx.SumReputation(s.ctx)
	if err != nil {
		return 0, fmt.Errorf("sum reputation: %w", err)
	}
	return total, nil
}

func (s *session) evaluatorReputation(f repository.EvaluationFilter) (float64, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	sum, err := s.tx.SumEvaluatorReputation(s.ctx, f)
	if err != nil {
		return 0, fmt.Errorf("sum evaluator reputation: %w", err)
	}
	return sum, nil
}

// commit flushes entities and appends the ledger.
func (s *session) commit() error {
	if err := s.flush(); err != nil {
		return err
	}
	for _, e := range s.entries {
		if err := s.tx.InsertLedgerEntry(s.ctx, e); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

// observe exports the committed ledger to metrics.
func (s *session) observe() {
	for _, e := range s.entries {
		LedgerAmountTotal.WithLabelValues(string(e.Kind), string(e.Asset)).Add(math.Abs(e.Amount))
	}
}
