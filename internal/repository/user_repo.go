package repository

import (
	"context"
	"errors"

	"backfeed/internal/domain"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db       querier
	lockRows bool
}

const userColumns = `id, tokens, reputation, referrer_id, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Tokens, &u.Reputation, &u.ReferrerID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUser loads a user; inside a read-write unit of work the row is locked.
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if r.lockRows {
		query += ` FOR UPDATE`
	}
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListReferredUsers returns the users whose referrer is referrerID.
func (r *UserRepository) ListReferredUsers(ctx context.Context, referrerID int64) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE referrer_id = $1 ORDER BY id`,
		referrerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) InsertUser(ctx context.Context, u *domain.User) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO users (tokens, reputation, referrer_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		u.Tokens, u.Reputation, u.ReferrerID, u.CreatedAt,
	).Scan(&u.ID)
}

func (r *UserRepository) UpdateUser(ctx context.Context, u *domain.User) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET tokens = $1, reputation = $2 WHERE id = $3`,
		u.Tokens, u.Reputation, u.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) SumReputation(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(reputation), 0) FROM users`).Scan(&total)
	return total, err
}
