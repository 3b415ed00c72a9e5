// File: internal/usecase/retry_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
)

// Compile-time check
var _ RetryUseCase = (*retryUC)(nil)

// RetryUseCase drains the provisioning retry ledger.
type RetryUseCase interface {
	// ProcessRetryQueue executes one sweep over due entries: re-attempts
	// transient failures and escalates exhausted ones to a refund. Returns
	// the number of entries acted upon.
	ProcessRetryQueue(ctx context.Context) (int, error)
}

type retryUC struct {
	retries   repository.RetryRepository
	payments  repository.PaymentRepository
	gateway   adapter.PaymentGateway
	provision ProvisionUseCase
	notifier  adapter.Notifier
	cfg       config.ReconcileConfig
	adminIDs  []int64
	log       zerolog.Logger
	now       func() time.Time
}

func NewRetryUseCase(
	retries repository.RetryRepository,
	payments repository.PaymentRepository,
	gateway adapter.PaymentGateway,
	provision ProvisionUseCase,
	notifier adapter.Notifier,
	cfg config.ReconcileConfig,
	adminIDs []int64,
	logger *zerolog.Logger,
) *retryUC {
	return &retryUC{
		retries:   retries,
		payments:  payments,
		gateway:   gateway,
		provision: provision,
		notifier:  notifier,
		cfg:       cfg,
		adminIDs:  adminIDs,
		log:       logger.With().Str("component", "retry_uc").Logger(),
		now:       time.Now,
	}
}

func (u *retryUC) ProcessRetryQueue(ctx context.Context) (int, error) {
	now := u.now()
	due, err := u.retries.ListDue(ctx, repository.NoTX, now, u.cfg.RetryBatch)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := u.retries.MarkProcessing(ctx, repository.NoTX, e.ID)
		if err != nil {
			u.log.Error().Err(err).Str("entry_id", e.ID).Msg("claiming retry entry failed")
			continue
		}
		if !ok {
			// another sweep got it first
			continue
		}
		e.Status = model.RetryStatusProcessing
		u.processEntry(ctx, e)
		processed++
	}

	if n, err := u.retries.CountOpen(ctx, repository.NoTX); err == nil {
		metrics.SetRetryQueueDepth(n)
	}
	return processed, nil
}

func (u *retryUC) processEntry(ctx context.Context, e *model.RetryEntry) {
	if e.Exhausted() {
		u.escalate(ctx, e)
		return
	}

	err := u.provision.ExecuteEntry(ctx, e)
	now := u.now()
	if err == nil {
		e.Status = model.RetryStatusCompleted
		e.UpdatedAt = now
		if uerr := u.retries.Update(ctx, repository.NoTX, e); uerr != nil {
			u.log.Error().Err(uerr).Str("entry_id", e.ID).Msg("closing completed entry failed")
			return
		}
		metrics.IncRetryAttempt("ok")
		u.log.Info().Str("entry_id", e.ID).Str("payment_id", e.PaymentID).
			Int("attempt_count", e.AttemptCount).Msg("retry succeeded")
		return
	}

	e.LastError = err.Error()
	e.AttemptCount++
	e.UpdatedAt = now
	metrics.IncRetryAttempt("error")

	// a non-transient cause will fail every future attempt too
	if domain.KindOf(err) != domain.KindTransient || e.Exhausted() {
		u.escalate(ctx, e)
		return
	}

	e.Status = model.RetryStatusPending
	e.NextAttemptAt = now.Add(model.NextBackoff(u.cfg.BackoffSchedule, e.AttemptCount))
	if uerr := u.retries.Update(ctx, repository.NoTX, e); uerr != nil {
		u.log.Error().Err(uerr).Str("entry_id", e.ID).Msg("rescheduling entry failed")
		return
	}
	u.log.Warn().Err(err).Str("entry_id", e.ID).Int("attempt_count", e.AttemptCount).
		Time("next_attempt_at", e.NextAttemptAt).Msg("retry failed, rescheduled")
}

// escalate closes the entry and compensates the owner. The refund_requested
// flag is persisted before the gateway call so the refund happens at most
// once even across crashes; an entry found with the flag already set is
// handed to a human instead of risking a double refund.
func (u *retryUC) escalate(ctx context.Context, e *model.RetryEntry) {
	now := u.now()

	if e.RefundRequested {
		e.Status = model.RetryStatusFailed
		e.UpdatedAt = now
		if err := u.retries.Update(ctx, repository.NoTX, e); err != nil {
			u.log.Error().Err(err).Str("entry_id", e.ID).Msg("closing stale escalation failed")
			return
		}
		u.log.Error().Str("entry_id", e.ID).Msg("refund already requested earlier, needs manual review")
		u.notifyOperators(ctx, msgOperatorEscalation(e))
		return
	}

	p, err := u.payments.FindByID(ctx, repository.NoTX, e.PaymentID)
	if err != nil {
		u.log.Error().Err(err).Str("entry_id", e.ID).Msg("loading payment for escalation failed")
		return
	}

	e.RefundRequested = true
	e.UpdatedAt = now
	if err := u.retries.Update(ctx, repository.NoTX, e); err != nil {
		u.log.Error().Err(err).Str("entry_id", e.ID).Msg("persisting refund intent failed")
		return
	}

	if p.Amount <= 0 {
		e.Status = model.RetryStatusFailed
	} else if refund, rerr := u.gateway.RefundPayment(ctx, p.ExternalID, p.Amount, p.Currency, "provisioning failed"); rerr != nil {
		metrics.IncRefund("error")
		u.log.Error().Err(rerr).Str("entry_id", e.ID).Str("payment_id", p.ID).Msg("refund call failed")
		e.Status = model.RetryStatusFailed
	} else {
		metrics.IncRefund("ok")
		e.Status = model.RetryStatusRefunded
		e.RefundReference = &refund.Reference
	}
	e.UpdatedAt = u.now()
	if err := u.retries.Update(ctx, repository.NoTX, e); err != nil {
		u.log.Error().Err(err).Str("entry_id", e.ID).Msg("closing escalated entry failed")
		return
	}
	metrics.IncRetryAttempt("exhausted")

	u.log.Error().Str("entry_id", e.ID).Str("payment_id", p.ID).Str("status", string(e.Status)).
		Int("attempt_count", e.AttemptCount).Msg("provisioning gave up")

	// the single terminal message for the ledger path
	if u.notifier != nil && e.ChatID != 0 {
		switch {
		case e.Status == model.RetryStatusRefunded:
			_ = u.notifier.Send(ctx, e.ChatID, msgRefundInProgress(p.Amount, p.Currency))
		case p.Amount <= 0:
			_ = u.notifier.Send(ctx, e.ChatID, msgTechnicalError(e.ID))
		default:
			_ = u.notifier.Send(ctx, e.ChatID, msgRefundFailed(e.ID))
		}
	}
	u.notifyOperators(ctx, msgOperatorEscalation(e))
}

func (u *retryUC) notifyOperators(ctx context.Context, text string) {
	if u.notifier == nil {
		return
	}
	for _, id := range u.adminIDs {
		_ = u.notifier.Send(ctx, id, text)
	}
}
