package model

import "time"

// Tariff is one purchasable access plan.
type Tariff struct {
	ID           string // UUID
	Title        string
	PriceMinor   int64  // kopeks
	Currency     string // e.g. "RUB"
	DurationDays int
	NonExpiring  bool // lifetime grant; DurationDays ignored
	Trial        bool // zero-price tariff provisioned without a payment
	CreatedAt    time.Time
}

// Duration converts the tariff length into a concrete extension window.
func (t *Tariff) Duration() time.Duration {
	return time.Duration(t.DurationDays) * 24 * time.Hour
}
