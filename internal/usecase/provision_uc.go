// File: internal/usecase/provision_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
)

// Compile-time check
var _ ProvisionUseCase = (*provisionUC)(nil)

// ProvisionUseCase turns a settled payment into a live entitlement.
type ProvisionUseCase interface {
	// ResolvePayment is the single entry point for a payment the gateway
	// reported as succeeded. It marks the payment paid, then either issues a
	// new subscription or renews the referenced one. Provisioning failures
	// are absorbed into the retry ledger; only store failures surface as
	// errors to the caller.
	ResolvePayment(ctx context.Context, paymentID string) error
	// ExecuteEntry re-runs the provisioning step for an open ledger entry.
	// It performs the panel and store work only; ledger bookkeeping stays
	// with the retry sweep.
	ExecuteEntry(ctx context.Context, e *model.RetryEntry) error
	// RevokeSubscription removes the panel resource and deletes the record.
	RevokeSubscription(ctx context.Context, subscriptionID string, notifyOwner bool) error
}

type provisionUC struct {
	tm       repository.TransactionManager
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	tariffs  repository.TariffRepository
	retries  repository.RetryRepository
	panel    adapter.ProvisioningClient
	notifier adapter.Notifier
	cfg      config.ReconcileConfig
	adminIDs []int64
	log      zerolog.Logger
	now      func() time.Time

	lockMu sync.Mutex
	locks  map[string]*paymentLock
}

// paymentLock is a refcounted mutex; the last holder removes it from the map.
type paymentLock struct {
	mu   sync.Mutex
	refs int
}

func NewProvisionUseCase(
	tm repository.TransactionManager,
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	tariffs repository.TariffRepository,
	retries repository.RetryRepository,
	panel adapter.ProvisioningClient,
	notifier adapter.Notifier,
	cfg config.ReconcileConfig,
	adminIDs []int64,
	logger *zerolog.Logger,
) *provisionUC {
	return &provisionUC{
		tm:       tm,
		payments: payments,
		subs:     subs,
		tariffs:  tariffs,
		retries:  retries,
		panel:    panel,
		notifier: notifier,
		cfg:      cfg,
		adminIDs: adminIDs,
		log:      logger.With().Str("component", "provision_uc").Logger(),
		now:      time.Now,
		locks:    map[string]*paymentLock{},
	}
}

// lockPayment serializes resolution of one payment within this process. The
// return-endpoint kick and the scheduled poll tick can arrive at the same
// time; unserialized, both pass the idempotency checks before either has
// persisted a subscription.
func (u *provisionUC) lockPayment(id string) func() {
	u.lockMu.Lock()
	l, ok := u.locks[id]
	if !ok {
		l = &paymentLock{}
		u.locks[id] = l
	}
	l.refs++
	u.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, id)
		}
		u.lockMu.Unlock()
	}
}

func (u *provisionUC) ResolvePayment(ctx context.Context, paymentID string) error {
	unlock := u.lockPayment(paymentID)
	defer unlock()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return err
	}

	switch p.Status {
	case model.PaymentStatusPending:
		now := u.now()
		ok, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusPaid, &now)
		if err != nil {
			return err
		}
		if !ok {
			// lost the race; reload and see who won
			p, err = u.payments.FindByID(ctx, repository.NoTX, paymentID)
			if err != nil {
				return err
			}
			if p.Status != model.PaymentStatusPaid {
				return domain.ErrPaymentTerminal
			}
		} else {
			p.Status = model.PaymentStatusPaid
			p.PaidAt = &now
			metrics.IncPayment(string(model.PaymentStatusPaid))
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
		}
	case model.PaymentStatusPaid:
		// re-entry after a crash or a duplicate resolve; fall through to the
		// idempotency checks below
	default:
		return domain.ErrPaymentTerminal
	}

	// Already provisioned or already in the ledger's hands: nothing to do.
	if !p.IsRenewal && p.SubscriptionID != nil {
		return nil
	}
	if open, err := u.retries.FindOpenByPayment(ctx, repository.NoTX, p.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	} else if open != nil {
		return nil
	}

	tariff, err := u.tariffs.FindByID(ctx, repository.NoTX, p.TariffID)
	if err != nil {
		return u.recordFailure(ctx, p, domain.Integrity(fmt.Errorf("tariff %s: %w", p.TariffID, err)))
	}

	if err := u.execute(ctx, p, tariff); err != nil {
		return u.recordFailure(ctx, p, err)
	}
	return nil
}

func (u *provisionUC) ExecuteEntry(ctx context.Context, e *model.RetryEntry) error {
	p, err := u.payments.FindByID(ctx, repository.NoTX, e.PaymentID)
	if err != nil {
		return err
	}
	tariff, err := u.tariffs.FindByID(ctx, repository.NoTX, e.TariffID)
	if err != nil {
		return domain.Integrity(fmt.Errorf("tariff %s: %w", e.TariffID, err))
	}
	return u.execute(ctx, p, tariff)
}

// execute performs the panel work and persists the result. Panel calls come
// first: they are safe to repeat, while a saved subscription pointing at a
// client the panel never created would strand the owner.
func (u *provisionUC) execute(ctx context.Context, p *model.Payment, tariff *model.Tariff) error {
	if p.IsRenewal {
		return u.renew(ctx, p, tariff)
	}
	return u.issue(ctx, p, tariff)
}

func (u *provisionUC) issue(ctx context.Context, p *model.Payment, tariff *model.Tariff) error {
	prov, err := u.panel.Provision(ctx, p.OwnerID, p.TargetID, tariff.Duration())
	if err != nil {
		metrics.IncProvisioning("issue", "error")
		return err
	}

	now := u.now()
	sub, err := model.NewSubscription(uuid.NewString(), p, tariff, prov.ExternalClientID, now)
	if err != nil {
		return domain.Integrity(err)
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		return u.payments.SetSubscriptionID(ctx, tx, p.ID, sub.ID)
	})
	if err != nil {
		metrics.IncProvisioning("issue", "error")
		return err
	}
	p.SubscriptionID = &sub.ID

	metrics.IncProvisioning("issue", "ok")
	u.log.Info().Str("payment_id", p.ID).Str("subscription_id", sub.ID).
		Str("target_id", p.TargetID).Msg("subscription issued")
	u.send(ctx, p.ChatID, msgProvisioned(sub, prov.AccessDescriptor))
	return nil
}

func (u *provisionUC) renew(ctx context.Context, p *model.Payment, tariff *model.Tariff) error {
	if p.SubscriptionID == nil {
		return domain.Integrity(errors.New("renewal payment without a subscription reference"))
	}
	sub, err := u.subs.FindByID(ctx, repository.NoTX, *p.SubscriptionID)
	if err != nil {
		return domain.Integrity(fmt.Errorf("subscription %s: %w", *p.SubscriptionID, err))
	}
	if sub.OwnerID != p.OwnerID {
		return domain.Integrity(domain.ErrOwnerMismatch)
	}

	if err := u.panel.Renew(ctx, sub.TargetID, sub.ExternalClientID, tariff.Duration()); err != nil {
		metrics.IncProvisioning("renew", "error")
		return err
	}
	// a lapsed subscription was disabled on expiry; re-enable is idempotent
	if err := u.panel.SetEnabled(ctx, sub.TargetID, sub.ExternalClientID, true); err != nil {
		metrics.IncProvisioning("renew", "error")
		return err
	}

	sub.Extend(tariff.Duration(), u.now())
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		metrics.IncProvisioning("renew", "error")
		return err
	}

	metrics.IncProvisioning("renew", "ok")
	u.log.Info().Str("payment_id", p.ID).Str("subscription_id", sub.ID).Msg("subscription renewed")
	u.send(ctx, p.ChatID, msgRenewed(sub))
	return nil
}

// recordFailure writes the failure into the ledger. Transient causes open a
// pending entry for the retry sweep; terminal and integrity causes are filed
// closed, the owner gets a reference id and operators are paged.
func (u *provisionUC) recordFailure(ctx context.Context, p *model.Payment, cause error) error {
	now := u.now()
	e := &model.RetryEntry{
		ID:             ulid.Make().String(),
		PaymentID:      p.ID,
		OwnerID:        p.OwnerID,
		ChatID:         p.ChatID,
		TariffID:       p.TariffID,
		TargetID:       p.TargetID,
		SubscriptionID: p.SubscriptionID,
		IsRenewal:      p.IsRenewal,
		LastError:      cause.Error(),
		AttemptCount:   0,
		AttemptBudget:  u.cfg.AttemptBudget,
		NextAttemptAt:  now.Add(model.NextBackoff(u.cfg.BackoffSchedule, 0)),
		Status:         model.RetryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	kind := domain.KindOf(cause)
	if kind != domain.KindTransient {
		// misconfiguration or broken references; a retry would hit the same
		// wall, so this goes straight to a human
		e.Status = model.RetryStatusFailed
	}

	if err := u.retries.UpsertOpen(ctx, repository.NoTX, e); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("recording provisioning failure failed")
		return err
	}

	u.log.Warn().Err(cause).Str("payment_id", p.ID).Str("entry_id", e.ID).
		Bool("retryable", kind == domain.KindTransient).Msg("provisioning failed")

	if kind != domain.KindTransient {
		u.send(ctx, p.ChatID, msgTechnicalError(e.ID))
		u.notifyOperators(ctx, msgOperatorEscalation(e))
	}
	return nil
}

func (u *provisionUC) RevokeSubscription(ctx context.Context, subscriptionID string, notifyOwner bool) error {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if err := u.panel.Revoke(ctx, sub.TargetID, sub.ExternalClientID); err != nil {
		return err
	}
	if err := u.subs.Delete(ctx, repository.NoTX, sub.ID); err != nil {
		return err
	}
	metrics.IncLifecycleTransition("revoked")
	u.log.Info().Str("subscription_id", sub.ID).Msg("subscription revoked")
	if notifyOwner {
		u.send(ctx, sub.ChatID, msgExpired())
	}
	return nil
}

// send delivers a notification best effort; delivery problems are the
// notifier's to log and never change reconciliation state.
func (u *provisionUC) send(ctx context.Context, chatID int64, text string) {
	if u.notifier == nil || chatID == 0 {
		return
	}
	_ = u.notifier.Send(ctx, chatID, text)
}

func (u *provisionUC) notifyOperators(ctx context.Context, text string) {
	for _, id := range u.adminIDs {
		u.send(ctx, id, text)
	}
}
