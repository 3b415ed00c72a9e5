package model

import (
	"testing"
	"time"
)

func TestSubscriptionExtend(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("future deadline extends from the deadline", func(t *testing.T) {
		expire := now.Add(10 * day)
		s := &Subscription{Status: SubscriptionStatusActive, ExpireAt: &expire}
		s.Extend(30*day, now)
		want := expire.Add(30 * day)
		if !s.ExpireAt.Equal(want) {
			t.Fatalf("expire_at = %v, want %v", s.ExpireAt, want)
		}
	})

	t.Run("lapsed deadline extends from now", func(t *testing.T) {
		expire := now.Add(-3 * day)
		s := &Subscription{Status: SubscriptionStatusExpired, ExpireAt: &expire}
		s.Extend(30*day, now)
		want := now.Add(30 * day)
		if !s.ExpireAt.Equal(want) {
			t.Fatalf("expire_at = %v, want %v", s.ExpireAt, want)
		}
		if s.Status != SubscriptionStatusActive {
			t.Errorf("status = %s, want active", s.Status)
		}
	})

	t.Run("never shrinks validity", func(t *testing.T) {
		expire := now.Add(100 * day)
		s := &Subscription{Status: SubscriptionStatusActive, ExpireAt: &expire}
		s.Extend(day, now)
		if s.ExpireAt.Before(expire) {
			t.Fatalf("expire_at moved backwards: %v < %v", s.ExpireAt, expire)
		}
	})

	t.Run("resets warning flags", func(t *testing.T) {
		expire := now.Add(-day)
		s := &Subscription{
			Status:   SubscriptionStatusExpired,
			ExpireAt: &expire,
			Warned3:  true, Warned1: true,
			DeletionWarned1: true, DeletionWarned2: true,
		}
		s.Extend(30*day, now)
		if s.Warned3 || s.Warned1 || s.DeletionWarned1 || s.DeletionWarned2 {
			t.Error("warning flags should be cleared after renewal")
		}
	})

	t.Run("non-expiring grant is untouched", func(t *testing.T) {
		s := &Subscription{Status: SubscriptionStatusActive, NonExpiring: true}
		s.Extend(30*day, now)
		if s.ExpireAt != nil {
			t.Error("non-expiring subscription must keep nil expire_at")
		}
	})
}

func TestNextBackoff(t *testing.T) {
	schedule := []time.Duration{
		5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour,
	}
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 15 * time.Minute},
		{4, 2 * time.Hour},
		{5, 2 * time.Hour}, // past the end the last value repeats
		{99, 2 * time.Hour},
		{-1, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := NextBackoff(schedule, c.n); got != c.want {
			t.Errorf("NextBackoff(%d) = %v, want %v", c.n, got, c.want)
		}
	}
	if got := NextBackoff(nil, 0); got != time.Minute {
		t.Errorf("empty schedule fallback = %v, want 1m", got)
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []PaymentStatus{PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestRetryStatusOpen(t *testing.T) {
	for _, s := range []RetryStatus{RetryStatusPending, RetryStatusProcessing} {
		if !s.Open() {
			t.Errorf("%s must be open", s)
		}
	}
	for _, s := range []RetryStatus{RetryStatusCompleted, RetryStatusFailed, RetryStatusRefunded} {
		if s.Open() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestExpiredFor(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expire := now.Add(-48 * time.Hour)
	s := &Subscription{ExpireAt: &expire}
	if got := s.ExpiredFor(now); got != 48*time.Hour {
		t.Errorf("ExpiredFor = %v, want 48h", got)
	}
	s.NonExpiring = true
	if got := s.ExpiredFor(now); got != 0 {
		t.Errorf("non-expiring ExpiredFor = %v, want 0", got)
	}
}
