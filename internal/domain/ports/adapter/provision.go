package adapter

import (
	"context"
	"time"
)

// Provisioned describes a freshly created panel-side client.
type Provisioned struct {
	ExternalClientID string // stable panel handle for later renew/disable/revoke
	AccessDescriptor string // connection config/link handed to the owner
}

// ProvisioningClient is the hex port for the VPN management panel. All calls
// must be safe for the caller to retry: implementations normalise "already
// exists" and "already disabled" panel responses to success.
type ProvisioningClient interface {
	// Provision creates the access resource for an owner on a target
	// instance.
	Provision(ctx context.Context, ownerRef, targetID string, duration time.Duration) (*Provisioned, error)
	// Renew extends the panel-side validity of an existing client.
	Renew(ctx context.Context, targetID, externalClientID string, duration time.Duration) error
	// SetEnabled toggles access without destroying the resource.
	SetEnabled(ctx context.Context, targetID, externalClientID string, enabled bool) error
	// Revoke permanently removes the resource.
	Revoke(ctx context.Context, targetID, externalClientID string) error
}
