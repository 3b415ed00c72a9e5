package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.TariffRepository = (*tariffRepo)(nil)

type tariffRepo struct{ pool *pgxpool.Pool }

func NewTariffRepo(pool *pgxpool.Pool) *tariffRepo {
	return &tariffRepo{pool: pool}
}

const tariffCols = `id, title, price_minor, currency, duration_days, non_expiring, trial, created_at`

func scanTariff(row pgx.Row) (*model.Tariff, error) {
	t := &model.Tariff{}
	if err := row.Scan(&t.ID, &t.Title, &t.PriceMinor, &t.Currency, &t.DurationDays, &t.NonExpiring, &t.Trial, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *tariffRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	const q = `
INSERT INTO tariffs (` + tariffCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  title=$2, price_minor=$3, currency=$4, duration_days=$5, non_expiring=$6, trial=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.Title, t.PriceMinor, t.Currency, t.DurationDays, t.NonExpiring, t.Trial, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *tariffRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error) {
	const q = `SELECT ` + tariffCols + ` FROM tariffs WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTariff(row)
}

func (r *tariffRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error) {
	const q = `SELECT ` + tariffCols + ` FROM tariffs ORDER BY price_minor ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
