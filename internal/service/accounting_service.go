package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"backfeed/internal/domain"
	"backfeed/internal/logger"
	"backfeed/internal/policy"
	"backfeed/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("backfeed/internal/service")

// AccountingService applies the economic policy to users, contributions and
// evaluations. Every mutating operation is a single unit of work on the
// store: it either commits completely or leaves no trace.
type AccountingService struct {
	store     repository.Store
	policy    policy.Policy
	now       func() time.Time
	publisher EventPublisher
}

// Option configures an AccountingService.
type Option func(*AccountingService)

// WithClock overrides the time source used for timestamps and contribution age.
func WithClock(now func() time.Time) Option {
	return func(s *AccountingService) { s.now = now }
}

// WithPublisher sets the receiver of committed evaluation events.
func WithPublisher(p EventPublisher) Option {
	return func(s *AccountingService) { s.publisher = p }
}

// NewAccountingService creates a service for one policy.
func NewAccountingService(store repository.Store, p policy.Policy, opts ...Option) (*AccountingService, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	s := &AccountingService{
		store:  store,
		policy: p,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the policy this service applies.
func (s *AccountingService) Policy() policy.Policy {
	return s.policy
}

// startOp opens a span and returns a finisher that records latency, error
// class and span status.
func (s *AccountingService) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "AccountingService."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			OperationErrors.WithLabelValues(op, errorClass(err)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "storage"
	}
}

// UserParams are the optional inputs of CreateUser. Nil fields take the
// policy defaults.
type UserParams struct {
	Tokens     *float64
	Reputation *float64
	ReferrerID *int64
}

// CreateUser inserts a user with the policy's initial balances unless
// overridden. A referrer id must resolve to an existing user.
func (s *AccountingService) CreateUser(ctx context.Context, params UserParams) (u *domain.User, err error) {
	ctx, finish := s.startOp(ctx, "CreateUser")
	defer func() { finish(err) }()

	u = &domain.User{
		Tokens:     s.policy.UserInitialTokens,
		Reputation: s.policy.UserInitialReputation,
		CreatedAt:  s.now(),
	}
	if params.Tokens != nil {
		u.Tokens = *params.Tokens
	}
	if params.Reputation != nil {
		u.Reputation = *params.Reputation
	}
	if math.IsNaN(u.Tokens) || math.IsInf(u.Tokens, 0) {
		return nil, fmt.Errorf("%w: tokens must be finite, got %v", ErrInvalidAmount, u.Tokens)
	}
	if math.IsNaN(u.Reputation) || math.IsInf(u.Reputation, 0) || u.Reputation < 0 {
		return nil, fmt.Errorf("%w: reputation must be finite and not negative, got %v", ErrInvalidAmount, u.Reputation)
	}

	var sess *session
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		sess = newSession(ctx, tx, u.CreatedAt)
		if params.ReferrerID != nil && *params.ReferrerID != 0 {
			ref, err := sess.user(*params.ReferrerID)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					return fmt.Errorf("%w: a user with id %d could not be found", ErrReferrerNotFound, *params.ReferrerID)
				}
				return err
			}
			refID := ref.ID
			u.ReferrerID = &refID
		}

		if err := tx.InsertUser(ctx, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		sess.trackUser(u)

		id := u.ID
		grant := movement{kind: domain.LedgerInitialGrant}
		sess.record(&id, domain.AssetTokens, u.Tokens, grant)
		sess.record(&id, domain.AssetReputation, u.Reputation, grant)
		return sess.commit()
	})
	if err != nil {
		return nil, err
	}
	sess.observe()

	args := []any{"user_id", u.ID, "tokens", u.Tokens, "reputation", u.Reputation}
	if u.HasReferrer() {
		args = append(args, "referrer_id", *u.ReferrerID)
	}
	logger.WithContext(ctx).Info("user created", args...)
	return u, nil
}

// CreateContribution charges the type's fee to the user and seeds the new
// contribution's token fund with it. An empty type selects the policy default.
func (s *AccountingService) CreateContribution(ctx context.Context, userID int64, contributionType string) (c *domain.Contribution, err error) {
	ctx, finish := s.startOp(ctx, "CreateContribution", attribute.Int64("user_id", userID))
	defer func() { finish(err) }()

	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id", ErrMissingID)
	}
	if contributionType == "" {
		contributionType = s.policy.DefaultContributionType
	}
	ct, ok := s.policy.Type(contributionType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContributionType, contributionType)
	}

	var sess *session
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		sess = newSession(ctx, tx, now)

		user, err := sess.user(userID)
		if err != nil {
			return err
		}
		if user.Tokens < ct.Fee {
			return fmt.Errorf("%w: user %d has %.4f tokens, fee is %.4f", ErrInsufficientFunds, user.ID, user.Tokens, ct.Fee)
		}

		c = &domain.Contribution{
			UserID:    user.ID,
			Type:      contributionType,
			CreatedAt: now,
		}
		if err := tx.InsertContribution(ctx, c); err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
		sess.trackContribution(c)

		fee := movement{kind: domain.LedgerContributionFee, contribution: c}
		sess.addTokens(user, -ct.Fee, fee)
		sess.addFund(c, ct.Fee, movement{kind: domain.LedgerFundSeed})
		return sess.commit()
	})
	if err != nil {
		return nil, err
	}
	sess.observe()

	logger.WithContext(ctx).Info("contribution created", "contribution_id", c.ID, "user_id", userID, "type", c.Type, "token_fund", c.TokenFund)
	return c, nil
}

// GetUser returns a user by id.
func (s *AccountingService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: user_id", ErrMissingID)
	}
	var u *domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		u, err = newSession(ctx, tx, s.now()).user(id)
		return err
	})
	return u, err
}

// ListUsers returns every user ordered by id.
func (s *AccountingService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListReferredUsers returns the users whose referrer is referrerID.
func (s *AccountingService) ListReferredUsers(ctx context.Context, referrerID int64) ([]*domain.User, error) {
	if referrerID == 0 {
		return nil, fmt.Errorf("%w: user_id", ErrMissingID)
	}
	var users []*domain.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := newSession(ctx, tx, s.now()).user(referrerID); err != nil {
			return err
		}
		var err error
		users, err = tx.ListReferredUsers(ctx, referrerID)
		return err
	})
	return users, err
}

// GetContribution returns a contribution by id.
func (s *AccountingService) GetContribution(ctx context.Context, id int64) (*domain.Contribution, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: contribution_id", ErrMissingID)
	}
	var c *domain.Contribution
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		c, err = newSession(ctx, tx, s.now()).contribution(id)
		return err
	})
	return c, err
}

// GetEvaluation returns an evaluation by id, active or superseded.
func (s *AccountingService) GetEvaluation(ctx context.Context, id int64) (*domain.Evaluation, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: evaluation_id", ErrMissingID)
	}
	var e *domain.Evaluation
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		e, err = tx.GetEvaluation(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrEvaluationNotFound, id)
		}
		return err
	})
	return e, err
}

// ListEvaluations returns the evaluations matched by f ordered by id.
// Only active evaluations are returned unless f.IncludeInactive is set.
func (s *AccountingService) ListEvaluations(ctx context.Context, f repository.EvaluationFilter) ([]*domain.Evaluation, error) {
	var evals []*domain.Evaluation
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		evals, err = tx.ListEvaluations(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return evals, nil
}

// EvaluationHistory returns every vote an evaluator has cast on a
// contribution, superseded ones included, oldest first.
func (s *AccountingService) EvaluationHistory(ctx context.Context, contributionID, evaluatorID int64) ([]*domain.Evaluation, error) {
	if contributionID == 0 {
		return nil, fmt.Errorf("%w: contribution_id", ErrMissingID)
	}
	if evaluatorID == 0 {
		return nil, fmt.Errorf("%w: evaluator_id", ErrMissingID)
	}
	var evals []*domain.Evaluation
	err := s.store.View(ctx, func(tx repository.Tx) error {
		sess := newSession(ctx, tx, s.now())
		if _, err := sess.contribution(contributionID); err != nil {
			return err
		}
		if _, err := sess.user(evaluatorID); err != nil {
			return err
		}
		var err error
		evals, err = tx.ListEvaluations(ctx, repository.EvaluationFilter{
			ContributionID:  contributionID,
			EvaluatorID:     evaluatorID,
			IncludeInactive: true,
		})
		return err
	})
	return evals, err
}

// UserLedger returns the newest ledger entries of a user, up to limit.
// The repository picks a default page size for a non-positive limit.
func (s *AccountingService) UserLedger(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id", ErrMissingID)
	}
	var entries []*domain.LedgerEntry
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := newSession(ctx, tx, s.now()).user(userID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListLedgerEntries(ctx, userID, limit)
		return err
	})
	return entries, err
}

// TotalReputation sums the reputation of every user.
func (s *AccountingService) TotalReputation(ctx context.Context) (float64, error) {
	var total float64
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		total, err = newSession(ctx, tx, s.now()).totalReputation()
		return err
	})
	return total, err
}

// ContributionsCount returns the number of contributions.
func (s *AccountingService) ContributionsCount(ctx context.Context) (int, error) {
	var n int
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.CountContributions(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return n, nil
}

// EconomyTotals summarizes every balance in the system.
func (s *AccountingService) EconomyTotals(ctx context.Context) (domain.EconomyTotals, error) {
	var totals domain.EconomyTotals
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		totals, err = tx.EconomyTotals(ctx)
		return err
	})
	if err != nil {
		return domain.EconomyTotals{}, fmt.Errorf("economy totals: %w", err)
	}
	return totals, nil
}
