package repository

import (
	"context"
	"time"
)

// CheckStateRepository is the ephemeral store for in-flight payment checks.
// It is advisory only: losing it degrades to re-polling, never to data loss.
// A missing entry means the check was resolved or abandoned.
type CheckStateRepository interface {
	// Init creates the attempt counter for a payment with the given TTL.
	Init(ctx context.Context, paymentID string, ttl time.Duration) error
	// Bump increments and returns the attempt counter. ok is false when the
	// entry no longer exists (TTL lapsed or already resolved).
	Bump(ctx context.Context, paymentID string) (attempts int64, ok bool, err error)
	// BumpNotFound counts consecutive gateway not_found responses for a
	// payment, tracked separately from the attempt counter.
	BumpNotFound(ctx context.Context, paymentID string, ttl time.Duration) (int64, error)
	// Clear removes the entry once the payment resolves.
	Clear(ctx context.Context, paymentID string) error
}
