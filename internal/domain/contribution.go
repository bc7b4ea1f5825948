package domain

import "time"

// Contribution is a unit of submitted work that other users evaluate.
type Contribution struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"contribution_type" json:"contribution_type"`
	TokenFund float64   `db:"token_fund" json:"token_fund"`
	MaxScore  float64   `db:"max_score" json:"max_score"` // high-water mark of the upvote ratio
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AgeInDays returns the number of whole days elapsed since creation.
func (c *Contribution) AgeInDays(now time.Time) int {
	d := now.Sub(c.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func (c *Contribution) Clone() *Contribution {
	cp := *c
	return &cp
}
