package repository

import (
	"context"
	"time"

	"vpn-subscription-bot/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Payment, error)
	// UpdateStatusIfPending atomically moves a pending payment into another
	// state, returning false when the row was already terminal. This is the
	// guard that makes payment resolution idempotent across concurrent checks.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)
	// SetSubscriptionID links the payment to the entitlement it funded.
	SetSubscriptionID(ctx context.Context, tx Tx, id, subscriptionID string) error
	// ListPending feeds poll-job restoration after a process restart.
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
}
