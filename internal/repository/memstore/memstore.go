// Package memstore is an in-process repository.Store. Each read-write unit of
// work runs against a private copy of the data under a single mutex; the copy
// replaces the shared state only when the unit of work succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/repository"
)

type state struct {
	users         map[int64]*domain.User
	contributions map[int64]*domain.Contribution
	evaluations   map[int64]*domain.Evaluation
	ledger        []*domain.LedgerEntry

	nextUser, nextContribution, nextEvaluation, nextLedger int64
}

func newState() *state {
	return &state{
		users:         make(map[int64]*domain.User),
		contributions: make(map[int64]*domain.Contribution),
		evaluations:   make(map[int64]*domain.Evaluation),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:            make(map[int64]*domain.User, len(s.users)),
		contributions:    make(map[int64]*domain.Contribution, len(s.contributions)),
		evaluations:      make(map[int64]*domain.Evaluation, len(s.evaluations)),
		ledger:           append([]*domain.LedgerEntry(nil), s.ledger...),
		nextUser:         s.nextUser,
		nextContribution: s.nextContribution,
		nextEvaluation:   s.nextEvaluation,
		nextLedger:       s.nextLedger,
	}
	for id, u := range s.users {
		c.users[id] = u.Clone()
	}
	for id, ct := range s.contributions {
		c.contributions[id] = ct.Clone()
	}
	for id, e := range s.evaluations {
		c.evaluations[id] = e.Clone()
	}
	return c
}

// Store keeps all entities in memory.
type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{s: s.state, readOnly: true})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memTx struct {
	s        *state
	readOnly bool
}

func (t *memTx) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (t *memTx) ListUsers(_ context.Context) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(t.s.users))
	for _, u := range t.s.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListReferredUsers(ctx context.Context, referrerID int64) ([]*domain.User, error) {
	all, err := t.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.User
	for _, u := range all {
		if u.ReferrerID != nil && *u.ReferrerID == referrerID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *memTx) InsertUser(_ context.Context, u *domain.User) error {
	if t.readOnly {
		return errReadOnly
	}
	t.s.nextUser++
	u.ID = t.s.nextUser
	t.s.users[u.ID] = u.Clone()
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *domain.User) error {
	if t.readOnly {
		return errReadOnly
	}
	cur, ok := t.s.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Tokens = u.Tokens
	cur.Reputation = u.Reputation
	return nil
}

func (t *memTx) SumReputation(_ context.Context) (float64, error) {
	var total float64
	for _, id := range t.sortedUserIDs() {
		total += t.s.users[id].Reputation
	}
	return total, nil
}

// sortedUserIDs fixes the summation order so float results are reproducible.
func (t *memTx) sortedUserIDs() []int64 {
	ids := make([]int64, 0, len(t.s.users))
	for id := range t.s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTx) GetContribution(_ context.Context, id int64) (*domain.Contribution, error) {
	c, ok := t.s.contributions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (t *memTx) ListContributions(_ context.Context, f repository.ContributionFilter) ([]*domain.Contribution, error) {
	out := make([]*domain.Contribution, 0, len(t.s.contributions))
	for _, c := range t.s.contributions {
		if f.ContributorID != 0 && c.UserID != f.ContributorID {
			continue
		}
		out = append(out, c.Clone())
	}

	switch f.Order {
	case "time":
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		})
	case "-time":
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID > out[j].ID
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*domain.Contribution{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) CountContributions(_ context.Context) (int, error) {
	return len(t.s.contributions), nil
}

func (t *memTx) InsertContribution(_ context.Context, c *domain.Contribution) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.s.users[c.UserID]; !ok {
		return repository.ErrNotFound
	}
	t.s.nextContribution++
	c.ID = t.s.nextContribution
	t.s.contributions[c.ID] = c.Clone()
	return nil
}

func (t *memTx) UpdateContribution(_ context.Context, c *domain.Contribution) error {
	if t.readOnly {
		return errReadOnly
	}
	cur, ok := t.s.contributions[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.TokenFund = c.TokenFund
	cur.MaxScore = c.MaxScore
	return nil
}

func (t *memTx) GetEvaluation(_ context.Context, id int64) (*domain.Evaluation, error) {
	e, ok := t.s.evaluations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e.Clone(), nil
}

func matches(e *domain.Evaluation, f repository.EvaluationFilter) bool {
	switch {
	case !f.IncludeInactive && !e.Active:
		return false
	case f.ContributionID != 0 && e.ContributionID != f.ContributionID:
		return false
	case f.EvaluatorID != 0 && e.UserID != f.EvaluatorID:
		return false
	case f.Value != nil && e.Value != *f.Value:
		return false
	case f.ExcludeEvaluatorID != 0 && e.UserID == f.ExcludeEvaluatorID:
		return false
	}
	return true
}

func (t *memTx) matching(f repository.EvaluationFilter) []*domain.Evaluation {
	var out []*domain.Evaluation
	for _, e := range t.s.evaluations {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) ListEvaluations(_ context.Context, f repository.EvaluationFilter) ([]*domain.Evaluation, error) {
	found := t.matching(f)
	out := make([]*domain.Evaluation, len(found))
	for i, e := range found {
		out[i] = e.Clone()
	}
	return out, nil
}

func (t *memTx) SumEvaluatorReputation(_ context.Context, f repository.EvaluationFilter) (float64, error) {
	var sum float64
	for _, e := range t.matching(f) {
		if u, ok := t.s.users[e.UserID]; ok {
			sum += u.Reputation
		}
	}
	return sum, nil
}

func (t *memTx) InsertEvaluation(_ context.Context, e *domain.Evaluation) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.s.users[e.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := t.s.contributions[e.ContributionID]; !ok {
		return repository.ErrNotFound
	}
	if e.Active {
		for _, cur := range t.s.evaluations {
			if cur.Active && cur.UserID == e.UserID && cur.ContributionID == e.ContributionID {
				return errDuplicateActive
			}
		}
	}
	t.s.nextEvaluation++
	e.ID = t.s.nextEvaluation
	t.s.evaluations[e.ID] = e.Clone()
	return nil
}

func (t *memTx) DeactivateEvaluations(_ context.Context, contributionID, evaluatorID int64, at time.Time) (int, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	n := 0
	for _, e := range t.s.evaluations {
		if e.Active && e.ContributionID == contributionID && e.UserID == evaluatorID {
			e.Active = false
			ts := at
			e.SupersededAt = &ts
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *domain.LedgerEntry) error {
	if t.readOnly {
		return errReadOnly
	}
	t.s.nextLedger++
	e.ID = t.s.nextLedger
	cp := *e
	t.s.ledger = append(t.s.ledger, &cp)
	return nil
}

func (t *memTx) ListLedgerEntries(_ context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.LedgerEntry
	for i := len(t.s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		e := t.s.ledger[i]
		if e.UserID != nil && *e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *memTx) EconomyTotals(ctx context.Context) (domain.EconomyTotals, error) {
	totals := domain.EconomyTotals{
		Users:         len(t.s.users),
		Contributions: len(t.s.contributions),
	}
	for _, id := range t.sortedUserIDs() {
		u := t.s.users[id]
		totals.TotalReputation += u.Reputation
		totals.TotalTokens += u.Tokens
	}
	for _, c := range t.s.contributions {
		totals.OutstandingTokenFund += c.TokenFund
	}
	for _, e := range t.s.evaluations {
		if e.Active {
			totals.ActiveEvaluations++
		}
	}
	return totals, nil
}

var _ repository.Store = (*Store)(nil)
var _ repository.Tx = (*memTx)(nil)
