package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.ProvisioningClient = (*NoopClient)(nil)

// NoopClient is a dev-mode panel that always succeeds.
type NoopClient struct{}

func NewNoopClient() *NoopClient { return &NoopClient{} }

func (c *NoopClient) Provision(ctx context.Context, ownerRef, targetID string, duration time.Duration) (*adapter.Provisioned, error) {
	id := uuid.NewString()
	return &adapter.Provisioned{
		ExternalClientID: id,
		AccessDescriptor: fmt.Sprintf("vpn://example.invalid/%s", id),
	}, nil
}

func (c *NoopClient) Renew(ctx context.Context, targetID, externalClientID string, duration time.Duration) error {
	return nil
}

func (c *NoopClient) SetEnabled(ctx context.Context, targetID, externalClientID string, enabled bool) error {
	return nil
}

func (c *NoopClient) Revoke(ctx context.Context, targetID, externalClientID string) error {
	return nil
}
