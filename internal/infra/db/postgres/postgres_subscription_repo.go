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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subCols = `id, owner_id, chat_id, tariff_id, target_id, external_client_id, status, expire_at, non_expiring, warned_3, warned_1, deletion_warned_1, deletion_warned_2, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.OwnerID, &s.ChatID, &s.TariffID, &s.TargetID, &s.ExternalClientID, &s.Status, &s.ExpireAt, &s.NonExpiring, &s.Warned3, &s.Warned1, &s.DeletionWarned1, &s.DeletionWarned2, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  ` + subCols + `
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  status=$7, expire_at=$8, warned_3=$10, warned_1=$11, deletion_warned_1=$12, deletion_warned_2=$13, updated_at=$15;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.OwnerID, s.ChatID, s.TariffID, s.TargetID, s.ExternalClientID, s.Status, s.ExpireAt, s.NonExpiring, s.Warned3, s.Warned1, s.DeletionWarned1, s.DeletionWarned2, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subCols + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByOwner(ctx context.Context, tx repository.Tx, ownerID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE owner_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListSweepable returns the lifecycle sweep's working set: expiring-capable
// subscriptions with a deadline, oldest deadline first. The partial index on
// (status, expire_at) WHERE NOT non_expiring keeps this off a full scan.
func (r *subscriptionRepo) ListSweepable(ctx context.Context, tx repository.Tx, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `
SELECT ` + subCols + `
  FROM subscriptions
 WHERE NOT non_expiring
   AND expire_at IS NOT NULL
   AND status IN ('active','expired')
 ORDER BY expire_at ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM subscriptions WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
