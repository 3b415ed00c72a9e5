package repository

import (
	"context"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

// RetryRepository is the port for the provisioning retry ledger.
type RetryRepository interface {
	// UpsertOpen records a provisioning failure. When an open (pending or
	// processing) entry already exists for the payment it is updated in
	// place; a duplicate row is never inserted. This is the single point
	// enforcing the at-most-one-open-entry-per-payment invariant.
	UpsertOpen(ctx context.Context, tx Tx, e *model.RetryEntry) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.RetryEntry, error)
	FindOpenByPayment(ctx context.Context, tx Tx, paymentID string) (*model.RetryEntry, error)
	// ListDue selects pending entries whose next_attempt_at has passed,
	// oldest first, bounded to limit. Listing does not claim an entry;
	// callers claim through MarkProcessing before executing.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.RetryEntry, error)
	// MarkProcessing flips a pending entry to processing, returning false
	// if someone else got there first.
	MarkProcessing(ctx context.Context, tx Tx, id string) (bool, error)
	Update(ctx context.Context, tx Tx, e *model.RetryEntry) error
	CountOpen(ctx context.Context, tx Tx) (int, error)
}
