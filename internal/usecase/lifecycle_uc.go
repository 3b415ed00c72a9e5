// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
	"vpn-subscription-bot/internal/infra/worker"
)

// Compile-time check
var _ LifecycleUseCase = (*lifecycleUC)(nil)

// SweepStats summarises one lifecycle pass.
type SweepStats struct {
	Scanned        int
	Warned         int
	Expired        int
	DeletionWarned int
	Purged         int
	Errors         int
}

// LifecycleUseCase walks subscriptions through warning, expiry and deletion.
type LifecycleUseCase interface {
	// Sweep processes one batch of expiring-capable subscriptions. Items
	// fail independently; a panel hiccup on one never blocks the rest.
	Sweep(ctx context.Context) (SweepStats, error)
}

type lifecycleUC struct {
	subs     repository.SubscriptionRepository
	panel    adapter.ProvisioningClient
	notifier adapter.Notifier
	cfg      config.ReconcileConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewLifecycleUseCase(
	subs repository.SubscriptionRepository,
	panel adapter.ProvisioningClient,
	notifier adapter.Notifier,
	cfg config.ReconcileConfig,
	logger *zerolog.Logger,
) *lifecycleUC {
	return &lifecycleUC{
		subs:     subs,
		panel:    panel,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.With().Str("component", "lifecycle_uc").Logger(),
		now:      time.Now,
	}
}

func (u *lifecycleUC) Sweep(ctx context.Context) (SweepStats, error) {
	batch, err := u.subs.ListSweepable(ctx, repository.NoTX, u.cfg.LifecycleBatch)
	if err != nil {
		return SweepStats{}, err
	}

	var (
		mu    sync.Mutex
		stats = SweepStats{Scanned: len(batch)}
	)
	tasks := make([]worker.Task, 0, len(batch))
	for _, sub := range batch {
		sub := sub
		tasks = append(tasks, func(ctx context.Context) error {
			transition, err := u.process(ctx, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Errors++
				u.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("lifecycle step failed")
				return nil // counted, not propagated
			}
			switch transition {
			case "warned_3", "warned_1":
				stats.Warned++
			case "expired":
				stats.Expired++
			case "deletion_warned_1", "deletion_warned_2":
				stats.DeletionWarned++
			case "purged":
				stats.Purged++
			}
			return nil
		})
	}
	worker.RunBatch(ctx, u.cfg.SweepWorkers, tasks)

	u.log.Info().Int("scanned", stats.Scanned).Int("warned", stats.Warned).
		Int("expired", stats.Expired).Int("deletion_warned", stats.DeletionWarned).
		Int("purged", stats.Purged).Int("errors", stats.Errors).Msg("lifecycle sweep done")
	return stats, nil
}

// process applies at most one transition per sweep to a subscription.
// Thresholds are level-triggered: a missed sweep fires the closest pending
// step on the next pass instead of replaying every intermediate one.
func (u *lifecycleUC) process(ctx context.Context, sub *model.Subscription) (string, error) {
	// non-expiring grants are filtered by the query; keep the guard anyway
	if sub.NonExpiring || sub.ExpireAt == nil {
		return "", nil
	}
	now := u.now()

	switch sub.Status {
	case model.SubscriptionStatusActive:
		if !now.Before(*sub.ExpireAt) {
			return u.expire(ctx, sub, now)
		}
		left := sub.ExpireAt.Sub(now)
		if left <= u.cfg.WarnBefore1 && !sub.Warned1 {
			sub.Warned1 = true
			sub.Warned3 = true // the earlier warning is moot now
			return u.flagAndNotify(ctx, sub, now, "warned_1", msgExpiryWarning(sub, left))
		}
		if left <= u.cfg.WarnBefore3 && !sub.Warned3 {
			sub.Warned3 = true
			return u.flagAndNotify(ctx, sub, now, "warned_3", msgExpiryWarning(sub, left))
		}

	case model.SubscriptionStatusExpired:
		since := now.Sub(*sub.ExpireAt)
		if since >= u.cfg.RetentionWindow {
			return u.purge(ctx, sub)
		}
		daysLeft := int((u.cfg.RetentionWindow-since).Hours()/24) + 1
		if since >= u.cfg.DeleteWarn2 && !sub.DeletionWarned2 {
			sub.DeletionWarned2 = true
			sub.DeletionWarned1 = true
			return u.flagAndNotify(ctx, sub, now, "deletion_warned_2", msgDeletionWarning(daysLeft))
		}
		if since >= u.cfg.DeleteWarn1 && !sub.DeletionWarned1 {
			sub.DeletionWarned1 = true
			return u.flagAndNotify(ctx, sub, now, "deletion_warned_1", msgDeletionWarning(daysLeft))
		}
	}
	return "", nil
}

// expire disables panel access, then records the state. Disable repeats
// safely, so a failed save just means the next sweep does it again.
func (u *lifecycleUC) expire(ctx context.Context, sub *model.Subscription, now time.Time) (string, error) {
	if err := u.panel.SetEnabled(ctx, sub.TargetID, sub.ExternalClientID, false); err != nil {
		return "", err
	}
	sub.Status = model.SubscriptionStatusExpired
	sub.UpdatedAt = now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return "", err
	}
	metrics.IncLifecycleTransition("expired")
	u.log.Info().Str("subscription_id", sub.ID).Msg("subscription expired, access disabled")
	u.send(ctx, sub.ChatID, msgExpired())
	return "expired", nil
}

func (u *lifecycleUC) purge(ctx context.Context, sub *model.Subscription) (string, error) {
	if err := u.panel.Revoke(ctx, sub.TargetID, sub.ExternalClientID); err != nil {
		return "", err
	}
	if err := u.subs.Delete(ctx, repository.NoTX, sub.ID); err != nil {
		return "", err
	}
	metrics.IncLifecycleTransition("purged")
	u.log.Info().Str("subscription_id", sub.ID).Msg("expired subscription purged")
	return "purged", nil
}

// flagAndNotify persists the fired flag before sending, so a notifier outage
// drops the message rather than repeating it every sweep.
func (u *lifecycleUC) flagAndNotify(ctx context.Context, sub *model.Subscription, now time.Time, transition, text string) (string, error) {
	sub.UpdatedAt = now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return "", err
	}
	metrics.IncLifecycleTransition(transition)
	u.send(ctx, sub.ChatID, text)
	return transition, nil
}

func (u *lifecycleUC) send(ctx context.Context, chatID int64, text string) {
	if u.notifier == nil || chatID == 0 {
		return
	}
	_ = u.notifier.Send(ctx, chatID, text)
}
