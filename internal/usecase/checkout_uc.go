// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
)

// CheckScheduler registers and removes the recurring status check for a
// payment. Implemented by the polling registry in infra.
type CheckScheduler interface {
	Schedule(paymentID string)
	Cancel(paymentID string)
}

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutUseCase starts purchases and renewals.
type CheckoutUseCase interface {
	// Initiate creates a payment for the tariff and returns it together
	// with the gateway redirect URL. Trial tariffs are provisioned on the
	// spot and return an empty URL. A non-nil renewSubscriptionID makes the
	// eventual provisioning extend that subscription instead of issuing a
	// new one.
	Initiate(ctx context.Context, ownerID string, chatID int64, tariffID, targetID string, renewSubscriptionID *string) (*model.Payment, string, error)
	ListTariffs(ctx context.Context) ([]*model.Tariff, error)
}

type checkoutUC struct {
	payments  repository.PaymentRepository
	tariffs   repository.TariffRepository
	state     repository.CheckStateRepository
	gateway   adapter.PaymentGateway
	provision ProvisionUseCase
	checks    CheckScheduler
	cfg       config.ReconcileConfig
	defTarget string
	log       zerolog.Logger
}

func NewCheckoutUseCase(
	payments repository.PaymentRepository,
	tariffs repository.TariffRepository,
	state repository.CheckStateRepository,
	gateway adapter.PaymentGateway,
	provision ProvisionUseCase,
	checks CheckScheduler,
	cfg config.ReconcileConfig,
	defaultTarget string,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		payments:  payments,
		tariffs:   tariffs,
		state:     state,
		gateway:   gateway,
		provision: provision,
		checks:    checks,
		cfg:       cfg,
		defTarget: defaultTarget,
		log:       logger.With().Str("component", "checkout_uc").Logger(),
	}
}

func (u *checkoutUC) Initiate(ctx context.Context, ownerID string, chatID int64, tariffID, targetID string, renewSubscriptionID *string) (*model.Payment, string, error) {
	if ownerID == "" || tariffID == "" {
		return nil, "", domain.ErrInvalidArgument
	}
	tariff, err := u.tariffs.FindByID(ctx, repository.NoTX, tariffID)
	if err != nil {
		return nil, "", err
	}
	if targetID == "" {
		targetID = u.defTarget
	}

	now := time.Now()
	p := &model.Payment{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ChatID:         chatID,
		TariffID:       tariff.ID,
		TargetID:       targetID,
		Amount:         tariff.PriceMinor,
		Currency:       tariff.Currency,
		Status:         model.PaymentStatusPending,
		SubscriptionID: renewSubscriptionID,
		IsRenewal:      renewSubscriptionID != nil,
		Description:    checkoutDescription(tariff, renewSubscriptionID != nil),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if tariff.Trial || tariff.PriceMinor == 0 {
		// nothing to collect; skip the gateway and settle immediately
		p.ExternalID = "free:" + p.ID
		if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
			return nil, "", err
		}
		metrics.IncPayment(string(model.PaymentStatusPending))
		if err := u.provision.ResolvePayment(ctx, p.ID); err != nil {
			return nil, "", err
		}
		return p, "", nil
	}

	checkout, err := u.gateway.CreateCheckout(ctx, p.Amount, p.Currency, p.Description, ownerID)
	if err != nil {
		return nil, "", err
	}
	p.ExternalID = checkout.ExternalID
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, "", err
	}
	metrics.IncPayment(string(model.PaymentStatusPending))

	if err := u.state.Init(ctx, p.ID, u.cfg.PollTTL); err != nil {
		return nil, "", err
	}
	u.checks.Schedule(p.ID)

	u.log.Info().Str("payment_id", p.ID).Str("external_id", p.ExternalID).
		Str("tariff_id", tariff.ID).Bool("renewal", p.IsRenewal).Msg("checkout created")
	return p, checkout.RedirectURL, nil
}

func (u *checkoutUC) ListTariffs(ctx context.Context) ([]*model.Tariff, error) {
	return u.tariffs.ListAll(ctx, repository.NoTX)
}

func checkoutDescription(t *model.Tariff, renewal bool) string {
	if renewal {
		return fmt.Sprintf("VPN subscription renewal: %s", t.Title)
	}
	return fmt.Sprintf("VPN subscription: %s", t.Title)
}
