package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.RetryRepository = (*retryRepo)(nil)

type retryRepo struct{ pool *pgxpool.Pool }

func NewRetryRepo(pool *pgxpool.Pool) *retryRepo {
	return &retryRepo{pool: pool}
}

const retryCols = `id, payment_id, owner_id, chat_id, tariff_id, target_id, subscription_id, is_renewal, last_error, attempt_count, attempt_budget, next_attempt_at, status, refund_requested, refund_reference, created_at, updated_at`

func scanRetry(row pgx.Row) (*model.RetryEntry, error) {
	e := &model.RetryEntry{}
	if err := row.Scan(&e.ID, &e.PaymentID, &e.OwnerID, &e.ChatID, &e.TariffID, &e.TargetID, &e.SubscriptionID, &e.IsRenewal, &e.LastError, &e.AttemptCount, &e.AttemptBudget, &e.NextAttemptAt, &e.Status, &e.RefundRequested, &e.RefundReference, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

// UpsertOpen inserts a new ledger entry or, when an open one already exists
// for the payment, refreshes its error and next attempt time in place. The
// partial unique index on payment_id WHERE status IN ('pending','processing')
// makes the at-most-one-open-entry invariant a database guarantee rather
// than a call-site convention.
func (r *retryRepo) UpsertOpen(ctx context.Context, tx repository.Tx, e *model.RetryEntry) error {
	const q = `
INSERT INTO failed_provisioning_attempts (
  ` + retryCols + `
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (payment_id) WHERE status IN ('pending','processing') DO UPDATE SET
  last_error=$9, next_attempt_at=$12, status='pending', updated_at=$17;`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.PaymentID, e.OwnerID, e.ChatID, e.TariffID, e.TargetID, e.SubscriptionID, e.IsRenewal, e.LastError, e.AttemptCount, e.AttemptBudget, e.NextAttemptAt, e.Status, e.RefundRequested, e.RefundReference, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *retryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RetryEntry, error) {
	q := `SELECT ` + retryCols + ` FROM failed_provisioning_attempts WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanRetry(row)
}

func (r *retryRepo) FindOpenByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.RetryEntry, error) {
	const q = `SELECT ` + retryCols + ` FROM failed_provisioning_attempts WHERE payment_id=$1 AND status IN ('pending','processing') LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanRetry(row)
}

// ListDue selects due pending entries oldest first. The listing is a plain
// read; MarkProcessing is the claim that keeps two overlapping sweeps from
// double-executing an entry.
func (r *retryRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.RetryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT ` + retryCols + `
  FROM failed_provisioning_attempts
 WHERE status='pending' AND next_attempt_at <= $1
 ORDER BY next_attempt_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.RetryEntry
	for rows.Next() {
		e, err := scanRetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *retryRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE failed_provisioning_attempts SET status='processing', updated_at=NOW() WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *retryRepo) Update(ctx context.Context, tx repository.Tx, e *model.RetryEntry) error {
	const q = `
UPDATE failed_provisioning_attempts
   SET last_error=$2, attempt_count=$3, next_attempt_at=$4, status=$5,
       refund_requested=$6, refund_reference=$7, updated_at=$8
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.LastError, e.AttemptCount, e.NextAttemptAt, e.Status, e.RefundRequested, e.RefundReference, e.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *retryRepo) CountOpen(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM failed_provisioning_attempts WHERE status IN ('pending','processing');`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
