// File: internal/usecase/poll_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
)

// Compile-time check
var _ PaymentCheckUseCase = (*paymentCheckUC)(nil)

// PaymentCheckUseCase drives the polling loop for one in-flight payment.
type PaymentCheckUseCase interface {
	// CheckPayment performs a single status check. done reports that the
	// payment reached a terminal state (or the check was abandoned) and the
	// recurring job should be removed. A non-nil error with done=false means
	// the tick failed transiently and the job keeps running.
	CheckPayment(ctx context.Context, paymentID string) (done bool, err error)
}

type paymentCheckUC struct {
	payments  repository.PaymentRepository
	state     repository.CheckStateRepository
	gateway   adapter.PaymentGateway
	provision ProvisionUseCase
	notifier  adapter.Notifier
	cfg       config.ReconcileConfig
	log       zerolog.Logger
}

func NewPaymentCheckUseCase(
	payments repository.PaymentRepository,
	state repository.CheckStateRepository,
	gateway adapter.PaymentGateway,
	provision ProvisionUseCase,
	notifier adapter.Notifier,
	cfg config.ReconcileConfig,
	logger *zerolog.Logger,
) *paymentCheckUC {
	return &paymentCheckUC{
		payments:  payments,
		state:     state,
		gateway:   gateway,
		provision: provision,
		notifier:  notifier,
		cfg:       cfg,
		log:       logger.With().Str("component", "payment_check_uc").Logger(),
	}
}

func (u *paymentCheckUC) CheckPayment(ctx context.Context, paymentID string) (bool, error) {
	attempts, alive, err := u.state.Bump(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if !alive {
		// window lapsed or another process resolved it
		return true, nil
	}

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.clear(ctx, paymentID)
			return true, nil
		}
		return false, err
	}

	switch p.Status {
	case model.PaymentStatusPaid:
		// a previous tick flipped the payment but may have died before
		// provisioning finished; ResolvePayment is idempotent
		if err := u.provision.ResolvePayment(ctx, p.ID); err != nil {
			return false, err
		}
		u.clear(ctx, paymentID)
		return true, nil
	case model.PaymentStatusFailed, model.PaymentStatusCanceled:
		u.clear(ctx, paymentID)
		return true, nil
	}

	status, err := u.gateway.GetStatus(ctx, p.ExternalID)
	if err != nil {
		u.log.Warn().Err(err).Str("payment_id", p.ID).Int64("attempt", attempts).
			Msg("gateway status check failed")
		if attempts >= int64(u.cfg.PollMaxAttempts) {
			return true, u.finish(ctx, p, model.PaymentStatusFailed, msgPaymentTimeout())
		}
		return false, nil
	}
	metrics.IncPaymentCheck(string(status))

	switch status {
	case adapter.CheckoutStatusSucceeded:
		if err := u.provision.ResolvePayment(ctx, p.ID); err != nil {
			// store-level failure; the payment row still reflects reality,
			// so leave the job running and try again next tick
			return false, err
		}
		u.clear(ctx, paymentID)
		return true, nil

	case adapter.CheckoutStatusCanceled:
		return true, u.finish(ctx, p, model.PaymentStatusCanceled, msgPaymentCanceled())

	case adapter.CheckoutStatusFailed:
		return true, u.finish(ctx, p, model.PaymentStatusFailed, msgPaymentDeclined())

	case adapter.CheckoutStatusNotFound:
		misses, err := u.state.BumpNotFound(ctx, paymentID, u.cfg.PollTTL)
		if err != nil {
			return false, err
		}
		if misses > int64(u.cfg.NotFoundRetries) {
			return true, u.finish(ctx, p, model.PaymentStatusFailed, msgPaymentLost(p.ID))
		}
		return false, nil

	default: // pending and everything the gateway may add later
		if attempts >= int64(u.cfg.PollMaxAttempts) {
			return true, u.finish(ctx, p, model.PaymentStatusFailed, msgPaymentTimeout())
		}
		return false, nil
	}
}

// finish moves a pending payment into a terminal non-paid state. The status
// flip guards the notification: whoever wins the transition sends the single
// terminal message, everyone else stays silent.
func (u *paymentCheckUC) finish(ctx context.Context, p *model.Payment, status model.PaymentStatus, text string) error {
	ok, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, status, nil)
	if err != nil {
		return err
	}
	if ok {
		metrics.IncPayment(string(status))
		u.log.Info().Str("payment_id", p.ID).Str("status", string(status)).Msg("payment closed")
		if u.notifier != nil && p.ChatID != 0 {
			_ = u.notifier.Send(ctx, p.ChatID, text)
		}
	}
	u.clear(ctx, p.ID)
	return nil
}

func (u *paymentCheckUC) clear(ctx context.Context, paymentID string) {
	if err := u.state.Clear(ctx, paymentID); err != nil {
		u.log.Warn().Err(err).Str("payment_id", paymentID).Msg("check state cleanup failed")
	}
}
