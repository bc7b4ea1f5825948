package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/repository"
)

// Orderings accepted by GetContributions.
const (
	OrderScoreAsc  = "score"
	OrderScoreDesc = "-score"
	OrderTimeAsc   = "time"
	OrderTimeDesc  = "-time"
)

// ContributionQuery selects a page of contributions.
type ContributionQuery struct {
	Start         int
	Limit         int // 0 means no limit
	ContributorID int64
	OrderBy       string // empty means -score
}

// RankedContribution is a contribution with its standing at query time.
type RankedContribution struct {
	*domain.Contribution
	Score   float64 `json:"score"`
	Upvotes float64 `json:"upvotes"`
}

// Score combines vote quality with a recency multiplier that decays with age.
func Score(upvotes, downvotes float64, ageDays int) float64 {
	return (1 - downvotes) * upvotes * (0.1 + 27/float64(30+ageDays))
}

// upvoteRatio is the reputation behind active upvotes as a share of the total.
func (s *AccountingService) upvoteRatio(sess *session, c *domain.Contribution) (float64, error) {
	return voteRatio(sess, c, domain.EvaluationUpvote)
}

func voteRatio(sess *session, c *domain.Contribution, value int) (float64, error) {
	total, err := sess.totalReputation()
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	voted, err := sess.evaluatorReputation(repository.EvaluationFilter{
		ContributionID: c.ID,
		Value:          &value,
	})
	if err != nil {
		return 0, err
	}
	return voted / total, nil
}

// ContributionUpvotes returns the upvote ratio of a contribution.
func (s *AccountingService) ContributionUpvotes(ctx context.Context, contributionID int64) (float64, error) {
	if contributionID == 0 {
		return 0, fmt.Errorf("%w: contribution_id", ErrMissingID)
	}
	var ratio float64
	err := s.store.View(ctx, func(tx repository.Tx) error {
		sess := newSession(ctx, tx, s.now())
		c, err := sess.contribution(contributionID)
		if err != nil {
			return err
		}
		ratio, err = s.upvoteRatio(sess, c)
		return err
	})
	return ratio, err
}

// ContributionScore returns the ranking score of a contribution.
func (s *AccountingService) ContributionScore(ctx context.Context, contributionID int64) (float64, error) {
	if contributionID == 0 {
		return 0, fmt.Errorf("%w: contribution_id", ErrMissingID)
	}
	var score float64
	err := s.store.View(ctx, func(tx repository.Tx) error {
		now := s.now()
		sess := newSession(ctx, tx, now)
		c, err := sess.contribution(contributionID)
		if err != nil {
			return err
		}
		up, err := voteRatio(sess, c, domain.EvaluationUpvote)
		if err != nil {
			return err
		}
		down, err := voteRatio(sess, c, domain.EvaluationDownvote)
		if err != nil {
			return err
		}
		score = Score(up, down, c.AgeInDays(now))
		return nil
	})
	return score, err
}

// scorer ranks contributions from one consistent read of users and active
// evaluations.
type scorer struct {
	now   time.Time
	total float64
	up    map[int64]float64
	down  map[int64]float64
}

func loadScorer(ctx context.Context, tx repository.Tx, now time.Time) (*scorer, error) {
	users, err := tx.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	evals, err := tx.ListEvaluations(ctx, repository.EvaluationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	rep := make(map[int64]float64, len(users))
	sc := &scorer{
		now:  now,
		up:   make(map[int64]float64),
		down: make(map[int64]float64),
	}
	for _, u := range users {
		rep[u.ID] = u.Reputation
		sc.total += u.Reputation
	}
	for _, e := range evals {
		switch e.Value {
		case domain.EvaluationUpvote:
			sc.up[e.ContributionID] += rep[e.UserID]
		case domain.EvaluationDownvote:
			sc.down[e.ContributionID] += rep[e.UserID]
		}
	}
	return sc, nil
}

func (sc *scorer) rank(c *domain.Contribution) RankedContribution {
	r := RankedContribution{Contribution: c}
	if sc.total == 0 {
		return r
	}
	r.Upvotes = sc.up[c.ID] / sc.total
	r.Score = Score(r.Upvotes, sc.down[c.ID]/sc.total, c.AgeInDays(sc.now))
	return r
}

// GetContributions returns a page of contributions in the requested order.
// Score orderings rank every matching contribution in memory before paging.
func (s *AccountingService) GetContributions(ctx context.Context, q ContributionQuery) ([]RankedContribution, error) {
	if q.OrderBy == "" {
		q.OrderBy = OrderScoreDesc
	}
	switch q.OrderBy {
	case OrderScoreAsc, OrderScoreDesc, OrderTimeAsc, OrderTimeDesc:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrdering, q.OrderBy)
	}
	if q.Start < 0 || q.Limit < 0 {
		return nil, ErrInvalidPagination
	}

	var out []RankedContribution
	err := s.store.View(ctx, func(tx repository.Tx) error {
		sc, err := loadScorer(ctx, tx, s.now())
		if err != nil {
			return err
		}

		f := repository.ContributionFilter{ContributorID: q.ContributorID}
		byTime := q.OrderBy == OrderTimeAsc || q.OrderBy == OrderTimeDesc
		if byTime {
			f.Order = q.OrderBy
			f.Offset = q.Start
			f.Limit = q.Limit
		}
		contribs, err := tx.ListContributions(ctx, f)
		if err != nil {
			return fmt.Errorf("list contributions: %w", err)
		}

		out = make([]RankedContribution, len(contribs))
		for i, c := range contribs {
			out[i] = sc.rank(c)
		}
		if byTime {
			return nil
		}

		if q.OrderBy == OrderScoreAsc {
			sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
		} else {
			sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		}
		out = page(out, q.Start, q.Limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func page(rs []RankedContribution, start, limit int) []RankedContribution {
	if start >= len(rs) {
		return []RankedContribution{}
	}
	rs = rs[start:]
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}
