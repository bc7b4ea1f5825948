package domain

import "time"

// Evaluation values understood by the base contribution type.
const (
	EvaluationDownvote = 0
	EvaluationUpvote   = 1
)

// Evaluation is a single vote on a contribution. Evaluations are never removed:
// a re-vote marks the previous one inactive and records when it was superseded.
type Evaluation struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	ContributionID int64      `db:"contribution_id" json:"contribution_id"`
	Value          int        `db:"value" json:"value"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	SupersededAt   *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
}

func (e *Evaluation) Clone() *Evaluation {
	cp := *e
	if e.SupersededAt != nil {
		t := *e.SupersededAt
		cp.SupersededAt = &t
	}
	return &cp
}
