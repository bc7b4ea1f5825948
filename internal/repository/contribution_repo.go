package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"backfeed/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ContributionRepository struct {
	db       querier
	lockRows bool
}

const contributionColumns = `id, user_id, contribution_type, token_fund, max_score, created_at`

func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var c domain.Contribution
	if err := row.Scan(&c.ID, &c.UserID, &c.Type, &c.TokenFund, &c.MaxScore, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ContributionRepository) GetContribution(ctx context.Context, id int64) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`
	if r.lockRows {
		query += ` FOR UPDATE`
	}
	return scanContribution(r.db.QueryRow(ctx, query, id))
}

func (r *ContributionRepository) ListContributions(ctx context.Context, f ContributionFilter) ([]*domain.Contribution, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + contributionColumns + ` FROM contributions`)
	if f.ContributorID != 0 {
		args = append(args, f.ContributorID)
		sb.WriteString(` WHERE user_id = $1`)
	}

	switch f.Order {
	case "time":
		sb.WriteString(` ORDER BY created_at ASC, id ASC`)
	case "-time":
		sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	default:
		sb.WriteString(` ORDER BY id ASC`)
	}

	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *ContributionRepository) CountContributions(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contributions`).Scan(&n)
	return n, err
}

func (r *ContributionRepository) InsertContribution(ctx context.Context, c *domain.Contribution) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO contributions (user_id, contribution_type, token_fund, max_score, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.UserID, c.Type, c.TokenFund, c.MaxScore, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *ContributionRepository) UpdateContribution(ctx context.Context, c *domain.Contribution) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE contributions SET token_fund = $1, max_score = $2 WHERE id = $3`,
		c.TokenFund, c.MaxScore, c.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
