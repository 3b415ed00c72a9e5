// File: internal/infra/sched/lifecycle_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/metrics"
	"vpn-subscription-bot/internal/usecase"
)

// LifecycleWorker periodically sweeps subscriptions through warning, expiry
// and deletion.
type LifecycleWorker struct {
	interval time.Duration
	lifeUC   usecase.LifecycleUseCase
	log      zerolog.Logger
}

func NewLifecycleWorker(interval time.Duration, lifeUC usecase.LifecycleUseCase, logger *zerolog.Logger) *LifecycleWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &LifecycleWorker{
		interval: interval,
		lifeUC:   lifeUC,
		log:      logger.With().Str("component", "lifecycle_worker").Logger(),
	}
}

func (w *LifecycleWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting lifecycle worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping lifecycle worker")
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			stats, err := w.lifeUC.Sweep(ctx)
			metrics.ObserveSweep("lifecycle", time.Since(start).Seconds())
			if err != nil {
				w.log.Error().Err(err).Msg("lifecycle sweep failed")
				continue
			}
			if stats.Warned+stats.Expired+stats.DeletionWarned+stats.Purged+stats.Errors > 0 {
				w.log.Info().Int("scanned", stats.Scanned).Int("warned", stats.Warned).
					Int("expired", stats.Expired).Int("deletion_warned", stats.DeletionWarned).
					Int("purged", stats.Purged).Int("errors", stats.Errors).Msg("lifecycle sweep done")
			}
		}
	}
}
