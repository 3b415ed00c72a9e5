//go:build !integration

// File: internal/usecase/checkout_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

type checkoutDeps struct {
	provisionDeps
	state   *MockCheckState
	gateway *MockGateway
	checks  *MockCheckScheduler
	uc      *checkoutUC
}

func newCheckoutDeps(t *testing.T) *checkoutDeps {
	t.Helper()
	d := &checkoutDeps{
		provisionDeps: *newProvisionDeps(t),
		state:         NewMockCheckState(),
		gateway:       &MockGateway{},
		checks:        &MockCheckScheduler{},
	}
	_ = d.tariffs.Save(context.Background(), nil, &model.Tariff{
		ID: "tariff-trial", Title: "3 day trial", PriceMinor: 0, Currency: "RUB", DurationDays: 3, Trial: true,
	})
	d.uc = NewCheckoutUseCase(
		d.payments, d.tariffs, d.state, d.gateway, d.provisionDeps.uc, d.checks,
		testReconcileConfig(), "target-1", newTestLogger(),
	)
	return d
}

func TestInitiate_CreatesPaymentAndSchedulesCheck(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)

	p, redirect, err := d.uc.Initiate(ctx, "owner-1", 100, "tariff-1", "", nil)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if redirect != "https://pay.example/ext-1" {
		t.Errorf("redirect = %q", redirect)
	}
	if p.Status != model.PaymentStatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.Amount != 19900 || p.Currency != "RUB" {
		t.Errorf("amount = %d %s, want tariff price", p.Amount, p.Currency)
	}
	if p.TargetID != "target-1" {
		t.Errorf("target = %q, want the configured default", p.TargetID)
	}
	got, err := d.payments.FindByID(ctx, nil, p.ID)
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if got.ExternalID != "ext-1" {
		t.Errorf("external id = %q", got.ExternalID)
	}
	if !d.state.Exists(p.ID) {
		t.Error("check state must be initialised")
	}
	if len(d.checks.Scheduled) != 1 || d.checks.Scheduled[0] != p.ID {
		t.Errorf("scheduled checks = %v, want the payment id", d.checks.Scheduled)
	}
}

func TestInitiate_RenewalCarriesIntent(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)
	subID := "sub-1"

	p, _, err := d.uc.Initiate(ctx, "owner-1", 100, "tariff-1", "target-2", &subID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !p.IsRenewal || p.SubscriptionID == nil || *p.SubscriptionID != subID {
		t.Errorf("renewal intent lost: renewal=%v sub=%v", p.IsRenewal, p.SubscriptionID)
	}
	if p.TargetID != "target-2" {
		t.Errorf("target = %q, explicit target must win", p.TargetID)
	}
}

func TestInitiate_TrialProvisionsImmediately(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)

	p, redirect, err := d.uc.Initiate(ctx, "owner-1", 100, "tariff-trial", "", nil)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if redirect != "" {
		t.Errorf("redirect = %q, trial must skip the gateway", redirect)
	}
	got, _ := d.payments.FindByID(ctx, nil, p.ID)
	if got.Status != model.PaymentStatusPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
	if got.SubscriptionID == nil {
		t.Fatal("trial must be provisioned on the spot")
	}
	if len(d.checks.Scheduled) != 0 {
		t.Error("no poll job for a trial")
	}
	sub, err := d.subs.FindByID(ctx, nil, *got.SubscriptionID)
	if err != nil {
		t.Fatalf("subscription missing: %v", err)
	}
	if sub.ExpireAt == nil {
		t.Fatal("trial subscription must expire")
	}
}

func TestInitiate_GatewayFailureCreatesNothing(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)
	d.gateway.CreateCheckoutFunc = func(context.Context, int64, string, string, string) (*adapter.Checkout, error) {
		return nil, domain.Transient(errors.New("gateway 503"))
	}

	_, _, err := d.uc.Initiate(ctx, "owner-1", 100, "tariff-1", "", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(d.checks.Scheduled) != 0 {
		t.Error("nothing to poll when checkout creation failed")
	}
	if pending, _ := d.payments.ListPending(ctx, nil, 10); len(pending) != 0 {
		t.Errorf("pending payments = %d, want 0", len(pending))
	}
}

func TestInitiate_UnknownTariff(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)
	if _, _, err := d.uc.Initiate(ctx, "owner-1", 100, "no-such", "", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTariffs(t *testing.T) {
	ctx := context.Background()
	d := newCheckoutDeps(t)
	ts, err := d.uc.ListTariffs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ts) != 2 {
		t.Errorf("tariffs = %d, want 2", len(ts))
	}
}
