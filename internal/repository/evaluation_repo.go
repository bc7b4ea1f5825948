package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"backfeed/internal/domain"

	"github.com/jackc/pgx/v5"
)

type EvaluationRepository struct {
	db querier
}

const evaluationColumns = `e.id, e.user_id, e.contribution_id, e.value, e.active, e.created_at, e.superseded_at`

func scanEvaluation(row pgx.Row) (*domain.Evaluation, error) {
	var e domain.Evaluation
	if err := row.Scan(&e.ID, &e.UserID, &e.ContributionID, &e.Value, &e.Active, &e.CreatedAt, &e.SupersededAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// evaluationWhere renders f as a WHERE clause over the alias "e".
func evaluationWhere(f EvaluationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if !f.IncludeInactive {
		conds = append(conds, "e.active")
	}
	if f.ContributionID != 0 {
		add("e.contribution_id = ?", f.ContributionID)
	}
	if f.EvaluatorID != 0 {
		add("e.user_id = ?", f.EvaluatorID)
	}
	if f.Value != nil {
		add("e.value = ?", *f.Value)
	}
	if f.ExcludeEvaluatorID != 0 {
		add("e.user_id <> ?", f.ExcludeEvaluatorID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *EvaluationRepository) GetEvaluation(ctx context.Context, id int64) (*domain.Evaluation, error) {
	return scanEvaluation(r.db.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations e WHERE e.id = $1`, id))
}

func (r *EvaluationRepository) ListEvaluations(ctx context.Context, f EvaluationFilter) ([]*domain.Evaluation, error) {
	where, args := evaluationWhere(f)
	rows, err := r.db.Query(ctx, `SELECT `+evaluationColumns+` FROM evaluations e`+where+` ORDER BY e.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *EvaluationRepository) SumEvaluatorReputation(ctx context.Context, f EvaluationFilter) (float64, error) {
	where, args := evaluationWhere(f)
	var sum float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(u.reputation), 0) FROM evaluations e JOIN users u ON u.id = e.user_id`+where,
		args...,
	).Scan(&sum)
	return sum, err
}

func (r *EvaluationRepository) InsertEvaluation(ctx context.Context, e *domain.Evaluation) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO evaluations (user_id, contribution_id, value, active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.UserID, e.ContributionID, e.Value, e.Active, e.CreatedAt,
	).Scan(&e.ID)
}

func (r *EvaluationRepository) DeactivateEvaluations(ctx context.Context, contributionID, evaluatorID int64, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE evaluations SET active = FALSE, superseded_at = $1
		 WHERE contribution_id = $2 AND user_id = $3 AND active`,
		at, contributionID, evaluatorID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
