// File: internal/infra/sched/retry_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/metrics"
	"vpn-subscription-bot/internal/usecase"
)

// RetryWorker periodically drains the provisioning retry ledger.
type RetryWorker struct {
	interval time.Duration
	retryUC  usecase.RetryUseCase
	log      zerolog.Logger
}

func NewRetryWorker(interval time.Duration, retryUC usecase.RetryUseCase, logger *zerolog.Logger) *RetryWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RetryWorker{
		interval: interval,
		retryUC:  retryUC,
		log:      logger.With().Str("component", "retry_worker").Logger(),
	}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting retry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping retry worker")
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			n, err := w.retryUC.ProcessRetryQueue(ctx)
			metrics.ObserveSweep("retry", time.Since(start).Seconds())
			if err != nil {
				w.log.Error().Err(err).Msg("retry sweep failed")
				continue
			}
			if n > 0 {
				w.log.Info().Int("processed", n).Msg("retry sweep done")
			}
		}
	}
}
