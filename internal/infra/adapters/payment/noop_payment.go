package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a dev-mode gateway: every checkout succeeds on the first
// status check. Useful for running the engine without gateway credentials.
type NoopGateway struct {
	mu   sync.Mutex
	seen map[string]int
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{seen: make(map[string]int)}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateCheckout(ctx context.Context, amountMinor int64, currency, description, ownerRef string) (*adapter.Checkout, error) {
	id := uuid.NewString()
	return &adapter.Checkout{
		ExternalID:  id,
		RedirectURL: fmt.Sprintf("https://example.invalid/pay/%s", id),
	}, nil
}

func (g *NoopGateway) GetStatus(ctx context.Context, externalID string) (adapter.CheckoutStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[externalID]++
	if g.seen[externalID] < 2 {
		return adapter.CheckoutStatusPending, nil
	}
	return adapter.CheckoutStatusSucceeded, nil
}

func (g *NoopGateway) RefundPayment(ctx context.Context, externalID string, amountMinor int64, currency, reason string) (*adapter.Refund, error) {
	return &adapter.Refund{Reference: "noop-" + uuid.NewString()}, nil
}
