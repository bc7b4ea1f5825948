package repository

import (
	"context"
	"fmt"

	"backfeed/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerLockKey is the advisory lock taken by every read-write unit of work.
// Total reputation spans all users, so evaluation events are serialized
// globally rather than per contribution.
const ledgerLockKey int64 = 0x6261636b66656564

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// InTx runs fn in a transaction holding the ledger advisory lock.
func (p *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err := fn(newPgTx(tx, true)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View runs fn in a read-only transaction so every read sees one snapshot.
func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newPgTx(tx, false)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

type pgTx struct {
	*UserRepository
	*ContributionRepository
	*EvaluationRepository
	*LedgerRepository
	q querier
}

func newPgTx(q querier, lockRows bool) *pgTx {
	return &pgTx{
		UserRepository:         &UserRepository{db: q, lockRows: lockRows},
		ContributionRepository: &ContributionRepository{db: q, lockRows: lockRows},
		EvaluationRepository:   &EvaluationRepository{db: q},
		LedgerRepository:       &LedgerRepository{db: q},
		q:                      q,
	}
}

func (t *pgTx) EconomyTotals(ctx context.Context) (domain.EconomyTotals, error) {
	var totals domain.EconomyTotals
	err := t.q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM contributions),
			(SELECT COUNT(*) FROM evaluations WHERE active),
			(SELECT COALESCE(SUM(reputation), 0) FROM users),
			(SELECT COALESCE(SUM(tokens), 0) FROM users),
			(SELECT COALESCE(SUM(token_fund), 0) FROM contributions)
	`).Scan(
		&totals.Users,
		&totals.Contributions,
		&totals.ActiveEvaluations,
		&totals.TotalReputation,
		&totals.TotalTokens,
		&totals.OutstandingTokenFund,
	)
	return totals, err
}

var _ Store = (*Postgres)(nil)
var _ Tx = (*pgTx)(nil)
