// File: internal/infra/sched/poll_registry.go
package sched

import (
	"context"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/usecase"
)

// Compile-time check
var _ usecase.CheckScheduler = (*PollRegistry)(nil)

// PollRegistry maps in-flight payments onto recurring status-check jobs.
// The job table lives in the scheduler's memory; Restore rebuilds it from
// the durable pending payments after a restart.
type PollRegistry struct {
	sched    *scheduler.Scheduler
	checks   usecase.PaymentCheckUseCase
	payments repository.PaymentRepository
	state    repository.CheckStateRepository
	cfg      config.ReconcileConfig
	log      zerolog.Logger
}

func NewPollRegistry(
	sched *scheduler.Scheduler,
	checks usecase.PaymentCheckUseCase,
	payments repository.PaymentRepository,
	state repository.CheckStateRepository,
	cfg config.ReconcileConfig,
	logger *zerolog.Logger,
) *PollRegistry {
	return &PollRegistry{
		sched:    sched,
		checks:   checks,
		payments: payments,
		state:    state,
		cfg:      cfg,
		log:      logger.With().Str("component", "poll_registry").Logger(),
	}
}

func jobID(paymentID string) string { return "check_payment_" + paymentID }

func (r *PollRegistry) Schedule(paymentID string) {
	r.sched.Add(jobID(paymentID), r.cfg.PollInterval, func(ctx context.Context) bool {
		done, err := r.checks.CheckPayment(ctx, paymentID)
		if err != nil {
			r.log.Warn().Err(err).Str("payment_id", paymentID).Msg("payment check tick failed")
		}
		return done
	})
}

func (r *PollRegistry) Cancel(paymentID string) {
	r.sched.Remove(jobID(paymentID))
}

// Kick runs one check immediately, outside the recurring cadence. Used by
// the gateway return endpoint so a user landing back from the checkout page
// does not wait a full interval.
func (r *PollRegistry) Kick(ctx context.Context, paymentID string) {
	done, err := r.checks.CheckPayment(ctx, paymentID)
	if err != nil {
		r.log.Warn().Err(err).Str("payment_id", paymentID).Msg("kicked payment check failed")
		return
	}
	if done {
		r.Cancel(paymentID)
	}
}

// Restore rebuilds polling jobs for payments that were pending when the
// process last stopped. The check window restarts from scratch; a payment
// that resolved while we were down is settled on its first tick.
func (r *PollRegistry) Restore(ctx context.Context) error {
	pending, err := r.payments.ListPending(ctx, repository.NoTX, 1000)
	if err != nil {
		return err
	}
	restored := 0
	for _, p := range pending {
		// skip checkouts the gateway has not even been asked about
		if p.ExternalID == "" {
			continue
		}
		if err := r.state.Init(ctx, p.ID, r.cfg.PollTTL); err != nil {
			r.log.Warn().Err(err).Str("payment_id", p.ID).Msg("check state restore failed")
			continue
		}
		r.Schedule(p.ID)
		restored++
	}
	if restored > 0 {
		r.log.Info().Int("count", restored).Msg("payment checks restored")
	}
	return nil
}
