package domain

import "time"

// User is a participant holding a token balance and a reputation score.
// ReferrerID is a weak reference; the referrer is never owned by the referred user.
type User struct {
	ID         int64     `db:"id" json:"id"`
	Tokens     float64   `db:"tokens" json:"tokens"`
	Reputation float64   `db:"reputation" json:"reputation"`
	ReferrerID *int64    `db:"referrer_id" json:"referrer_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// HasReferrer reports whether the user was referred by someone.
func (u *User) HasReferrer() bool {
	return u.ReferrerID != nil && *u.ReferrerID != 0
}

// Clone returns a detached copy.
func (u *User) Clone() *User {
	c := *u
	if u.ReferrerID != nil {
		id := *u.ReferrerID
		c.ReferrerID = &id
	}
	return &c
}
