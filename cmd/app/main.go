// File: cmd/app/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	payAdapters "vpn-subscription-bot/internal/infra/adapters/payment"
	provAdapters "vpn-subscription-bot/internal/infra/adapters/provision"
	tele "vpn-subscription-bot/internal/infra/adapters/telegram"
	pg "vpn-subscription-bot/internal/infra/db/postgres"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"
	red "vpn-subscription-bot/internal/infra/redis"
	"vpn-subscription-bot/internal/infra/sched"
	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/infra/web"
	"vpn-subscription-bot/internal/usecase"

	"flag"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop adapters where credentials are missing)")
	flag.Parse()

	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	checkState := red.NewCheckStateRepo(redisClient)

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	tariffRepo := pg.NewTariffRepo(pool)
	retryRepo := pg.NewRetryRepo(pool)

	// ---- Adapters ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.YooKassa.ShopID != "" && cfg.Payment.YooKassa.SecretKey != "" {
		gateway, err = payAdapters.NewYooKassaGateway(
			cfg.Payment.YooKassa.ShopID, cfg.Payment.YooKassa.SecretKey, cfg.Payment.YooKassa.ReturnURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa gateway")
		}
	} else if cfg.Runtime.Dev {
		logger.Warn().Msg("no gateway credentials, using noop payment gateway")
		gateway = payAdapters.NewNoopGateway()
	} else {
		logger.Fatal().Msg("payment.yookassa credentials are required")
	}

	var panel adapter.ProvisioningClient
	if len(cfg.Provisioning.Targets) > 0 {
		panel, err = provAdapters.NewPanelClient(cfg.Provisioning.Targets)
		if err != nil {
			logger.Fatal().Err(err).Msg("panel client")
		}
	} else {
		logger.Warn().Msg("no provisioning targets, using noop panel client")
		panel = provAdapters.NewNoopClient()
	}

	var notifier adapter.Notifier
	if cfg.Bot.Token != "" {
		notifier, err = tele.NewBotNotifier(cfg.Bot.Token, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
	} else {
		notifier = tele.NewNoopNotifier(logger)
	}

	// ---- Use cases ----
	provisionUC := usecase.NewProvisionUseCase(
		tm, paymentRepo, subRepo, tariffRepo, retryRepo,
		panel, notifier, cfg.Reconcile, cfg.Bot.AdminIDs, logger)
	checkUC := usecase.NewPaymentCheckUseCase(
		paymentRepo, checkState, gateway, provisionUC, notifier, cfg.Reconcile, logger)
	retryUC := usecase.NewRetryUseCase(
		retryRepo, paymentRepo, gateway, provisionUC, notifier, cfg.Reconcile, cfg.Bot.AdminIDs, logger)
	lifecycleUC := usecase.NewLifecycleUseCase(subRepo, panel, notifier, cfg.Reconcile, logger)

	// ---- Schedulers ----
	jobs := scheduler.New(logger)
	registry := sched.NewPollRegistry(jobs, checkUC, paymentRepo, checkState, cfg.Reconcile, logger)
	if err := registry.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("restoring payment checks failed")
	}
	jobs.Start(ctx)
	defer jobs.Stop()

	checkoutUC := usecase.NewCheckoutUseCase(
		paymentRepo, tariffRepo, checkState, gateway, provisionUC, registry,
		cfg.Reconcile, cfg.Provisioning.DefaultTarget, logger)

	retryWorker := sched.NewRetryWorker(cfg.Reconcile.RetryInterval, retryUC, logger)
	go func() { _ = retryWorker.Run(ctx) }()
	lifecycleWorker := sched.NewLifecycleWorker(cfg.Reconcile.LifecycleInterval, lifecycleUC, logger)
	go func() { _ = lifecycleWorker.Run(ctx) }()

	// ---- HTTP ----
	srv := web.NewServer(
		cfg.Web.Port, cfg.Web.AuthSecret, !cfg.Runtime.Dev,
		registry, checkoutUC, retryUC, lifecycleUC, provisionUC, retryRepo, paymentRepo, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}
