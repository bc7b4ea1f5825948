package repository

import (
	"context"
	"errors"
	"time"

	"backfeed/internal/domain"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("not found")

// EvaluationFilter narrows evaluation queries. Zero fields are ignored.
type EvaluationFilter struct {
	ContributionID     int64
	EvaluatorID        int64
	Value              *int
	ExcludeEvaluatorID int64

	// IncludeInactive also returns superseded evaluations.
	IncludeInactive bool
}

// ContributionFilter narrows and orders contribution listings.
type ContributionFilter struct {
	ContributorID int64

	// Order is "time", "-time" or empty for insertion order.
	Order  string
	Offset int
	Limit  int
}

// Tx is a unit of work. Writes are visible to later reads on the same Tx.
type Tx interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	ListReferredUsers(ctx context.Context, referrerID int64) ([]*domain.User, error)
	SumReputation(ctx context.Context) (float64, error)

	GetContribution(ctx context.Context, id int64) (*domain.Contribution, error)
	ListContributions(ctx context.Context, f ContributionFilter) ([]*domain.Contribution, error)
	CountContributions(ctx context.Context) (int, error)
	InsertContribution(ctx context.Context, c *domain.Contribution) error
	UpdateContribution(ctx context.Context, c *domain.Contribution) error

	GetEvaluation(ctx context.Context, id int64) (*domain.Evaluation, error)
	ListEvaluations(ctx context.Context, f EvaluationFilter) ([]*domain.Evaluation, error)
	// SumEvaluatorReputation sums the reputation of the users behind the
	// evaluations matched by f.
	SumEvaluatorReputation(ctx context.Context, f EvaluationFilter) (float64, error)
	InsertEvaluation(ctx context.Context, e *domain.Evaluation) error
	// DeactivateEvaluations marks the active evaluations of a (contribution,
	// evaluator) pair as superseded and returns how many were affected.
	DeactivateEvaluations(ctx context.Context, contributionID, evaluatorID int64, at time.Time) (int, error)

	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error)

	EconomyTotals(ctx context.Context) (domain.EconomyTotals, error)
}

// Store hands out units of work. InTx serializes all read-write units and
// rolls back every write when fn returns an error.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
