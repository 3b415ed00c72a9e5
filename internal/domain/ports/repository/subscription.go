package repository

import (
	"context"

	"vpn-subscription-bot/internal/domain/model"
)

// SubscriptionRepository is the port for provisioned entitlements.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByOwner(ctx context.Context, tx Tx, ownerID string) ([]*model.Subscription, error)
	// ListSweepable returns expiring-capable subscriptions in active or
	// expired state, batched for one lifecycle sweep. Non-expiring grants
	// are filtered out by the query itself.
	ListSweepable(ctx context.Context, tx Tx, limit int) ([]*model.Subscription, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
