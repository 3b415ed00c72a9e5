package model

import "time"

type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"    // waiting for next_attempt_at
	RetryStatusProcessing RetryStatus = "processing" // a sweep is executing it right now
	RetryStatusCompleted  RetryStatus = "completed"  // provisioning eventually succeeded
	RetryStatusFailed     RetryStatus = "failed"     // budget exhausted and refund call errored
	RetryStatusRefunded   RetryStatus = "refunded"   // budget exhausted, money returned
)

// Open reports whether the entry still participates in the retry sweep.
// At most one open entry may exist per payment.
func (s RetryStatus) Open() bool {
	return s == RetryStatusPending || s == RetryStatusProcessing
}

// RetryEntry is a durable record of a provisioning failure for a paid
// payment, awaiting re-attempt or compensation.
type RetryEntry struct {
	ID              string // ULID, sortable by creation time
	PaymentID       string // unique while the entry is open
	OwnerID         string
	ChatID          int64
	TariffID        string
	TargetID        string
	SubscriptionID  *string // set when the failed action was a renewal
	IsRenewal       bool
	LastError       string
	AttemptCount    int
	AttemptBudget   int
	NextAttemptAt   time.Time
	Status          RetryStatus
	RefundRequested bool
	RefundReference *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Exhausted reports whether the attempt budget is used up.
func (e *RetryEntry) Exhausted() bool { return e.AttemptCount >= e.AttemptBudget }

// NextBackoff returns the delay before the attempt after n failures, following
// the configured schedule. Attempts past the end of the schedule repeat the
// last value, so the interval never shrinks.
func NextBackoff(schedule []time.Duration, n int) time.Duration {
	if len(schedule) == 0 {
		return time.Minute
	}
	if n < 0 {
		n = 0
	}
	if n >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[n]
}
