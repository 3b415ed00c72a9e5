//go:build !integration

// File: internal/usecase/retry_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

type retryDeps struct {
	provisionDeps
	gateway *MockGateway
	uc      *retryUC
}

func newRetryDeps(t *testing.T) *retryDeps {
	t.Helper()
	d := &retryDeps{
		provisionDeps: *newProvisionDeps(t),
		gateway:       &MockGateway{},
	}
	d.uc = NewRetryUseCase(
		d.retries, d.payments, d.gateway, d.provisionDeps.uc, d.notifier,
		testReconcileConfig(), []int64{opsChat}, newTestLogger(),
	)
	d.uc.now = func() time.Time { return d.provisionDeps.now }
	return d
}

// seedFailedProvision runs one resolve with a failing panel so the ledger
// entry is created the same way production creates it.
func (d *retryDeps) seedFailedProvision(t *testing.T) *model.Payment {
	t.Helper()
	d.panel.ProvisionFunc = func(context.Context, string, string, time.Duration) (*adapter.Provisioned, error) {
		return nil, domain.Transient(errors.New("panel unreachable"))
	}
	p := d.seedPayment(&model.Payment{})
	if err := d.provisionDeps.uc.ResolvePayment(context.Background(), p.ID); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}
	return p
}

func (d *retryDeps) advancePast(t *testing.T, paymentID string) {
	t.Helper()
	e, err := d.retries.FindOpenByPayment(context.Background(), nil, paymentID)
	if err != nil {
		t.Fatalf("no open entry: %v", err)
	}
	now := e.NextAttemptAt.Add(time.Second)
	d.provisionDeps.uc.now = func() time.Time { return now }
	d.uc.now = func() time.Time { return now }
}

func TestProcessRetryQueue_EventualSuccess(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)

	// two more transient failures through the sweep
	for i := 0; i < 2; i++ {
		d.advancePast(t, p.ID)
		if n, err := d.uc.ProcessRetryQueue(ctx); err != nil || n != 1 {
			t.Fatalf("sweep %d: n=%d err=%v", i, n, err)
		}
	}

	// panel recovers
	d.panel.ProvisionFunc = nil
	d.advancePast(t, p.ID)
	if n, err := d.uc.ProcessRetryQueue(ctx); err != nil || n != 1 {
		t.Fatalf("final sweep: n=%d err=%v", n, err)
	}

	entries := d.retries.ByPayment(p.ID)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != model.RetryStatusCompleted {
		t.Errorf("status = %s, want completed", e.Status)
	}
	if e.AttemptCount != 2 {
		t.Errorf("attempt_count = %d, want 2", e.AttemptCount)
	}
	got, _ := d.payments.FindByID(ctx, nil, p.ID)
	if got.SubscriptionID == nil {
		t.Error("payment must be linked to the issued subscription")
	}
	if d.gateway.RefundCount() != 0 {
		t.Error("no refund on a recovered provision")
	}
	// exactly one terminal message: the success notification
	if d.notifier.CountFor(p.ChatID) != 1 {
		t.Errorf("owner notifications = %d, want 1", d.notifier.CountFor(p.ChatID))
	}
}

func TestProcessRetryQueue_BudgetExhaustionRefunds(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)
	budget := testReconcileConfig().AttemptBudget

	// the sweep that burns the last attempt also escalates
	for i := 0; i < budget; i++ {
		d.advancePast(t, p.ID)
		if n, err := d.uc.ProcessRetryQueue(ctx); err != nil || n != 1 {
			t.Fatalf("sweep %d: n=%d err=%v", i, n, err)
		}
	}

	entries := d.retries.ByPayment(p.ID)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != model.RetryStatusRefunded {
		t.Errorf("status = %s, want refunded", e.Status)
	}
	if !e.RefundRequested {
		t.Error("refund_requested must be set")
	}
	if e.RefundReference == nil || *e.RefundReference == "" {
		t.Error("refund reference missing")
	}
	if e.AttemptCount != budget {
		t.Errorf("attempt_count = %d, want %d", e.AttemptCount, budget)
	}
	if d.gateway.RefundCount() != 1 {
		t.Fatalf("refund calls = %d, want exactly 1", d.gateway.RefundCount())
	}
	call := d.gateway.RefundCalls[0]
	if call.ExternalID != p.ExternalID || call.AmountMinor != p.Amount || call.Currency != p.Currency {
		t.Errorf("refund call = %+v, want full original amount", call)
	}
	// exactly one terminal message: the refund notice
	if d.notifier.CountFor(p.ChatID) != 1 {
		t.Errorf("owner notifications = %d, want 1", d.notifier.CountFor(p.ChatID))
	}
	if d.notifier.CountFor(opsChat) == 0 {
		t.Error("operators must be paged on exhaustion")
	}
}

func TestProcessRetryQueue_BackoffFollowsSchedule(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)
	schedule := testReconcileConfig().BackoffSchedule

	for i := 1; i < len(schedule); i++ {
		d.advancePast(t, p.ID)
		sweepAt := d.uc.now()
		if _, err := d.uc.ProcessRetryQueue(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		e, err := d.retries.FindOpenByPayment(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("entry gone after sweep %d: %v", i, err)
		}
		if want := sweepAt.Add(schedule[i]); !e.NextAttemptAt.Equal(want) {
			t.Errorf("after %d failures next_attempt_at = %v, want %v", e.AttemptCount, e.NextAttemptAt, want)
		}
	}
}

func TestProcessRetryQueue_RefundFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)
	d.gateway.RefundFunc = func(context.Context, string, int64, string, string) (*adapter.Refund, error) {
		return nil, domain.Terminal(errors.New("refund rejected"))
	}

	for i := 0; i < testReconcileConfig().AttemptBudget; i++ {
		d.advancePast(t, p.ID)
		if _, err := d.uc.ProcessRetryQueue(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	e := d.retries.ByPayment(p.ID)[0]
	if e.Status != model.RetryStatusFailed {
		t.Errorf("status = %s, want failed", e.Status)
	}
	if !e.RefundRequested {
		t.Error("refund_requested must be set even when the call failed")
	}
	if d.gateway.RefundCount() != 1 {
		t.Errorf("refund calls = %d, a failed refund is never replayed", d.gateway.RefundCount())
	}
}

func TestProcessRetryQueue_NonTransientEscalatesImmediately(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)

	d.panel.ProvisionFunc = func(context.Context, string, string, time.Duration) (*adapter.Provisioned, error) {
		return nil, domain.Integrity(errors.New("unknown provisioning target"))
	}
	d.advancePast(t, p.ID)
	if _, err := d.uc.ProcessRetryQueue(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	e := d.retries.ByPayment(p.ID)[0]
	if e.Status.Open() {
		t.Errorf("status = %s, non-transient failure must close the entry", e.Status)
	}
	if d.gateway.RefundCount() != 1 {
		t.Errorf("refund calls = %d, want 1", d.gateway.RefundCount())
	}
}

func TestProcessRetryQueue_SkipsClaimedEntries(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	p := d.seedFailedProvision(t)
	claimed := false
	d.retries.MarkProcessingResult = &claimed

	d.advancePast(t, p.ID)
	n, err := d.uc.ProcessRetryQueue(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("processed = %d, a claimed entry must be skipped", n)
	}
	e := d.retries.ByPayment(p.ID)[0]
	if e.AttemptCount != 0 {
		t.Errorf("attempt_count = %d, want untouched", e.AttemptCount)
	}
}

func TestProcessRetryQueue_NothingDue(t *testing.T) {
	ctx := context.Background()
	d := newRetryDeps(t)
	_ = d.seedFailedProvision(t)

	// before next_attempt_at
	n, err := d.uc.ProcessRetryQueue(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("processed = %d, entry is not due yet", n)
	}
}
