package repository

import (
	"context"
	"encoding/json"

	"backfeed/internal/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerRepository stores the movements applied by the accounting engine.
type LedgerRepository struct {
	db querier
}

func (r *LedgerRepository) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil || e.Meta == nil {
		metaJSON = []byte("{}")
	}

	return r.db.QueryRow(ctx,
		`INSERT INTO ledger_entries (user_id, contribution_id, evaluation_id, kind, asset, amount, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		e.UserID, e.ContributionID, e.EvaluationID, string(e.Kind), string(e.Asset), e.Amount, metaJSON, e.CreatedAt,
	).Scan(&e.ID)
}

// ListLedgerEntries returns the most recent entries for a user.
func (r *LedgerRepository) ListLedgerEntries(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, contribution_id, evaluation_id, kind, asset, amount, meta, created_at
		 FROM ledger_entries
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerRows(rows)
}

func scanLedgerRows(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	var result []*domain.LedgerEntry

	for rows.Next() {
		var (
			e        domain.LedgerEntry
			kind     string
			asset    string
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContributionID, &e.EvaluationID, &kind, &asset, &e.Amount, &metaJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.LedgerKind(kind)
		e.Asset = domain.LedgerAsset(asset)
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		result = append(result, &e)
	}

	return result, rows.Err()
}
