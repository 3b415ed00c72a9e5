package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // checkout created; awaiting gateway resolution
	PaymentStatusPaid     PaymentStatus = "paid"     // gateway reported success
	PaymentStatusFailed   PaymentStatus = "failed"   // gateway declined, timed out or lost the payment
	PaymentStatusCanceled PaymentStatus = "canceled" // user abandoned the checkout page
)

// Terminal reports whether s is one of the immutable end states.
// Once a payment leaves pending it is a financial audit record and is
// never mutated or deleted again.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusCanceled
}

// Payment records one checkout attempt against the gateway.
type Payment struct {
	ID         string        // UUID
	ExternalID string        // gateway-assigned payment id, unique
	OwnerID    string        // UUID of the owning user
	ChatID     int64         // telegram chat used for notifications
	TariffID   string        // UUID of the tariff being bought
	TargetID   string        // backend instance that will host the entitlement
	Amount     int64         // minor units (kopeks), to avoid float errors
	Currency   string        // ISO code, e.g. "RUB"
	Status     PaymentStatus
	// Renewal intent: set when the checkout was started to extend an
	// existing subscription rather than issue a new one.
	SubscriptionID *string
	IsRenewal      bool
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time // set on transition to paid
}
