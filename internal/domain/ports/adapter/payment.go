package adapter

import "context"

// CheckoutStatus is the gateway-side status of a payment, normalised across
// providers.
type CheckoutStatus string

const (
	CheckoutStatusSucceeded CheckoutStatus = "succeeded"
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusCanceled  CheckoutStatus = "canceled"
	CheckoutStatusFailed    CheckoutStatus = "failed"
	CheckoutStatusNotFound  CheckoutStatus = "not_found"
)

// Checkout is the gateway's handle on a newly created payment session.
type Checkout struct {
	ExternalID  string // gateway payment id
	RedirectURL string // where the user completes the payment
}

// Refund is the gateway's record of a compensating refund.
type Refund struct {
	Reference string // gateway refund id
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string

	// CreateCheckout initiates a payment session and returns its gateway id
	// and the redirect URL for the user.
	CreateCheckout(ctx context.Context, amountMinor int64, currency, description, ownerRef string) (*Checkout, error)
	// GetStatus queries the settlement status of a payment by gateway id.
	GetStatus(ctx context.Context, externalID string) (CheckoutStatus, error)
	// RefundPayment returns money for a captured payment.
	RefundPayment(ctx context.Context, externalID string, amountMinor int64, currency, reason string) (*Refund, error)
}
