package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicvoice/booking-engine/cmd/mainconfig"
	"github.com/clinicvoice/booking-engine/internal/api/router"
	"github.com/clinicvoice/booking-engine/internal/booking"
	"github.com/clinicvoice/booking-engine/internal/calendar"
	appconfig "github.com/clinicvoice/booking-engine/internal/config"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/internal/hold"
	"github.com/clinicvoice/booking-engine/internal/http/handlers"
	"github.com/clinicvoice/booking-engine/internal/notify"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/internal/otp"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/tenants"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	cipher, err := vault.NewCipher(cfg.VaultMasterKey)
	if err != nil {
		logger.Error("invalid vault master key", "error", err)
		os.Exit(1)
	}
	credVault := vault.NewService(vault.NewStore(pool), cipher)

	holdStore := hold.NewStore(pool)
	locker := hold.NewRedisSlotLocker(redisClient, cfg.SlotLockTTL)
	holdService := hold.NewService(holdStore, locker, logger,
		hold.WithHoldTTL(cfg.HoldTTL),
		hold.WithMetrics(bookingMetrics),
	)

	smsFactory := sms.NewFactory(logger)
	verifier := otp.NewVerifier(holdStore, credVault, smsFactory, logger,
		otp.WithCodeTTL(cfg.OTPCodeTTL),
		otp.WithMaxAttempts(cfg.OTPMaxAttempts),
		otp.WithCodeLength(cfg.OTPCodeLength),
		otp.WithMetrics(bookingMetrics),
	)

	appointmentStore := booking.NewStore(pool)
	contactStore := contacts.NewStore(pool)
	tenantStore := tenants.NewStore(pool)
	outboxStore := events.NewOutboxStore(pool)
	confirmer := booking.NewConfirmer(appointmentStore, holdStore, contactStore, outboxStore, logger,
		booking.WithDurationMinutes(cfg.SlotDurationMinutes),
		booking.WithMaxRetries(cfg.ConfirmMaxRetries),
		booking.WithMetrics(bookingMetrics),
	)

	hours, err := calendar.ParseBusinessHours(cfg.BusinessDayStart, cfg.BusinessDayEnd)
	if err != nil {
		logger.Error("invalid business hours", "error", err)
		os.Exit(1)
	}
	availability := calendar.NewService(pool, logger,
		calendar.WithSlotDuration(time.Duration(cfg.SlotDurationMinutes)*time.Minute),
		calendar.WithBusinessHours(hours),
	)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	bridge := notify.NewBridge(appointmentStore, contactStore, tenantStore, credVault, smsFactory, logger,
		notify.WithHotLeadPolicy(cfg.HotLeadMinScore, cfg.HotLeadMinCallSeconds),
		notify.WithEmailSender(emailSender),
		notify.WithMetrics(bookingMetrics),
	)

	queue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build notification queue", "error", err)
		os.Exit(1)
	}
	publisher := notify.NewPublisher(queue, logger)
	deliverer := events.NewDeliverer(outboxStore, publisher, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)

	// The in-memory queue only exists inside this process, so its consumer
	// has to live here too. The SQS path runs in the notify-worker binary.
	if cfg.UseMemoryQueue {
		worker := notify.NewWorker(queue, bridge, logger, cfg.NotifyWorkerCount)
		go worker.Start(ctx)
	}

	sweeper := hold.NewSweeper(holdService, logger, cfg.SweepInterval)
	go sweeper.Start(ctx)

	toolCalls := handlers.NewToolCallHandler(holdService, verifier, confirmer, appointmentStore, contactStore, outboxStore, bridge, availability, logger)
	r := router.New(&router.Config{
		Logger:         logger,
		ToolCalls:      toolCalls,
		AgentJWTSecret: cfg.AgentJWTSecret,
		MetricsHandler: promhttp.Handler(),
		HealthCheck: func(w http.ResponseWriter, req *http.Request) {
			if err := pool.Ping(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Queue, error) {
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory notification queue")
		return notify.NewMemoryQueue(256), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL), nil
}
