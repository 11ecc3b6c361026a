package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicvoice/booking-engine/cmd/mainconfig"
	"github.com/clinicvoice/booking-engine/internal/booking"
	appconfig "github.com/clinicvoice/booking-engine/internal/config"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/notify"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/tenants"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine notification worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	cipher, err := vault.NewCipher(cfg.VaultMasterKey)
	if err != nil {
		logger.Error("invalid vault master key", "error", err)
		os.Exit(1)
	}
	credVault := vault.NewService(vault.NewStore(pool), cipher)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	bridge := notify.NewBridge(
		booking.NewStore(pool),
		contacts.NewStore(pool),
		tenants.NewStore(pool),
		credVault,
		sms.NewFactory(logger),
		logger,
		notify.WithHotLeadPolicy(cfg.HotLeadMinScore, cfg.HotLeadMinCallSeconds),
		notify.WithEmailSender(emailSender),
		notify.WithMetrics(bookingMetrics),
	)

	worker := notify.NewWorker(queue, bridge, logger, cfg.NotifyWorkerCount)
	go worker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down notification worker...")
	cancel()
	logger.Info("notification worker stopped")
}
