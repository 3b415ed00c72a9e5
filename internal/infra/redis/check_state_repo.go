package redis

import (
	"context"
	"fmt"
	"time"

	"vpn-subscription-bot/internal/domain/ports/repository"
)

var _ repository.CheckStateRepository = (*CheckStateRepo)(nil)

// CheckStateRepo keeps the poll attempt counter for each in-flight payment
// in Redis under a TTL. The entry is advisory: its absence means the check
// was resolved or abandoned, never an error.
type CheckStateRepo struct {
	client RedisClient
}

func NewCheckStateRepo(client RedisClient) *CheckStateRepo {
	return &CheckStateRepo{client: client}
}

func (r *CheckStateRepo) key(paymentID string) string {
	return fmt.Sprintf("check_payment:%s", paymentID)
}

func (r *CheckStateRepo) Init(ctx context.Context, paymentID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(paymentID), 0, ttl)
}

// Bump increments the attempt counter without refreshing the TTL, so the
// entry's lifetime bounds the total polling window regardless of how many
// checks fire. INCR resurrects an expired key without a TTL; such a key is
// removed and reported as gone instead of polling forever.
func (r *CheckStateRepo) Bump(ctx context.Context, paymentID string) (int64, bool, error) {
	key := r.key(paymentID)
	n, err := r.client.Incr(ctx, key)
	if err != nil {
		return 0, false, err
	}
	ttl, err := r.client.TTL(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if ttl < 0 {
		_ = r.client.Del(ctx, key)
		return 0, false, nil
	}
	return n, true, nil
}

// BumpNotFound tracks consecutive not_found gateway responses under a side
// key sharing the payment's polling window. The key starts counting on the
// first miss and expires with the window.
func (r *CheckStateRepo) BumpNotFound(ctx context.Context, paymentID string, ttl time.Duration) (int64, error) {
	key := fmt.Sprintf("check_payment_nf:%s", paymentID)
	n, err := r.client.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, ttl); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (r *CheckStateRepo) Clear(ctx context.Context, paymentID string) error {
	if err := r.client.Del(ctx, fmt.Sprintf("check_payment_nf:%s", paymentID)); err != nil {
		return err
	}
	return r.client.Del(ctx, r.key(paymentID))
}
