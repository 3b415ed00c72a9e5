package model

import (
	"time"

	"vpn-subscription-bot/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusPaused  SubscriptionStatus = "paused"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Subscription is one provisioned grant of VPN access. The panel-side
// resource is addressed by ExternalClientID; the row here is the durable
// source of truth for its lifecycle.
type Subscription struct {
	ID               string // UUID
	OwnerID          string // UUID of user
	ChatID           int64
	TariffID         string
	TargetID         string // which panel instance hosts the client
	ExternalClientID string // opaque handle returned by the panel
	Status           SubscriptionStatus
	ExpireAt         *time.Time // nil for non-expiring grants
	NonExpiring      bool

	// Each flag gates one staged notification and fires at most once.
	Warned3         bool // first pre-expiry warning
	Warned1         bool // second, closer pre-expiry warning
	DeletionWarned1 bool // first pre-deletion warning after expiry
	DeletionWarned2 bool // second pre-deletion warning

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription creates an active subscription for an owner from a tariff.
func NewSubscription(id string, p *Payment, t *Tariff, externalClientID string, now time.Time) (*Subscription, error) {
	if id == "" || p == nil || t == nil || externalClientID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s := &Subscription{
		ID:               id,
		OwnerID:          p.OwnerID,
		ChatID:           p.ChatID,
		TariffID:         t.ID,
		TargetID:         p.TargetID,
		ExternalClientID: externalClientID,
		Status:           SubscriptionStatusActive,
		NonExpiring:      t.NonExpiring,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !t.NonExpiring {
		expire := now.Add(t.Duration())
		s.ExpireAt = &expire
	}
	return s, nil
}

// Extend pushes ExpireAt forward by d: from the current deadline when it is
// still in the future, from now when the subscription already lapsed. The
// deadline never moves backwards. Pre-expiry warning flags are reset so the
// renewed period gets its own warnings, and the status returns to active.
func (s *Subscription) Extend(d time.Duration, now time.Time) {
	if s.NonExpiring {
		return
	}
	base := now
	if s.ExpireAt != nil && s.ExpireAt.After(now) {
		base = *s.ExpireAt
	}
	expire := base.Add(d)
	s.ExpireAt = &expire
	s.Status = SubscriptionStatusActive
	s.Warned3 = false
	s.Warned1 = false
	s.DeletionWarned1 = false
	s.DeletionWarned2 = false
	s.UpdatedAt = now
}

// ExpiredFor reports how long the subscription has been past its deadline
// at the given instant. Zero for non-expiring or still-active grants.
func (s *Subscription) ExpiredFor(now time.Time) time.Duration {
	if s.NonExpiring || s.ExpireAt == nil || s.ExpireAt.After(now) {
		return 0
	}
	return now.Sub(*s.ExpireAt)
}
