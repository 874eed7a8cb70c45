// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-market-billing/internal/config"
	"telegram-market-billing/internal/domain/ports/adapter"
	payAdapters "telegram-market-billing/internal/infra/adapters/payment"
	tele "telegram-market-billing/internal/infra/adapters/telegram"
	pg "telegram-market-billing/internal/infra/db/postgres"
	httpapi "telegram-market-billing/internal/infra/http"
	"telegram-market-billing/internal/infra/logging"
	"telegram-market-billing/internal/infra/metrics"
	red "telegram-market-billing/internal/infra/redis"
	"telegram-market-billing/internal/infra/sched"
	"telegram-market-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop notifier)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	productRepo := pg.NewProductRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	subscriptionRepo := pg.NewSubscriptionRepo(pool)
	recurringRepo := pg.NewRecurringRepo(pool)
	chargeRepo := pg.NewSubscriptionPaymentRepo(pool)
	tokenRepo := pg.NewCardTokenRepo(pool)
	partnerRepo := pg.NewPartnerRepo(pool)
	withdrawalRepo := pg.NewWithdrawalRepo(pool)

	// ---- Gateway + notifier ----
	gateway := payAdapters.NewMonoGateway(cfg.Gateway.Token, cfg.Gateway.BaseURL, cfg.Gateway.RedirectURL,
		logging.Component(logger, "MonoGateway"))

	var notifier adapter.NotificationSink
	if cfg.Runtime.Dev {
		notifier = tele.NewNoopNotifier()
	} else {
		notifier, err = tele.NewNotifier(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram connect failed")
		}
	}

	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.Billing.Timezone).Msg("invalid timezone")
	}

	// ---- Use cases ----
	partnerUC := usecase.NewPartnerUseCase(userRepo, partnerRepo, withdrawalRepo, txManager,
		logging.Component(logger, "PartnerUC"))
	purchaseUC := usecase.NewPurchaseUseCase(paymentRepo, productRepo, gateway,
		logging.Component(logger, "PurchaseUC"))
	reconcileUC := usecase.NewReconcileUseCase(paymentRepo, productRepo, subscriptionRepo, recurringRepo,
		tokenRepo, userRepo, txManager, gateway, partnerUC, notifier, cfg.Billing, cfg.Telegram.AdminChatID,
		logging.Component(logger, "ReconcileUC"))
	recurringUC := usecase.NewRecurringUseCase(recurringRepo, chargeRepo, tokenRepo, userRepo, txManager, gateway,
		partnerUC, notifier, cfg.Billing, cfg.Telegram.AdminChatID,
		logging.Component(logger, "RecurringUC"))
	notificationUC := usecase.NewNotificationUseCase(subscriptionRepo, recurringRepo, chargeRepo, notifier,
		loc, cfg.Telegram.AdminChatID, logging.Component(logger, "NotificationUC"))

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Workers ----
	recurringWorker := sched.NewRecurringWorker(cfg.Billing.RecurringInterval, recurringUC, locker, logger)
	sweepWorker := sched.NewSweepWorker(cfg.Billing.SweepInterval, recurringUC, locker, logger)
	reconcileWorker := sched.NewReconcileWorker(cfg.Billing.ReconcileInterval, reconcileUC, locker, logger)
	dailyWorker, err := sched.NewDailyWorker(cfg.Billing.DailyNotifyAt, loc, notificationUC, locker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("daily worker setup failed")
	}

	go func() { _ = recurringWorker.Run(ctx) }()
	go func() { _ = sweepWorker.Run(ctx) }()
	go func() { _ = reconcileWorker.Run(ctx) }()
	go func() { _ = dailyWorker.Run(ctx) }()

	// ---- Ops server ----
	opsServer := httpapi.NewServer(cfg.OpsPort, pool, redisClient, recurringRepo, purchaseUC, partnerUC,
		logging.Component(logger, "OpsServer"))
	go func() {
		if err := opsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown failed")
	}
}
