package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/opdesk/clinic-queue/cmd/mainconfig"
	"github.com/opdesk/clinic-queue/internal/api/router"
	"github.com/opdesk/clinic-queue/internal/booking"
	"github.com/opdesk/clinic-queue/internal/clinictime"
	appconfig "github.com/opdesk/clinic-queue/internal/config"
	"github.com/opdesk/clinic-queue/internal/doctor"
	"github.com/opdesk/clinic-queue/internal/events"
	"github.com/opdesk/clinic-queue/internal/notify"
	"github.com/opdesk/clinic-queue/internal/observability/metrics"
	"github.com/opdesk/clinic-queue/internal/queueboard"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-queue API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.ClinicTimezone,
	)

	clock, err := clinictime.NewClock(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulerMetrics := metrics.NewSchedulerMetrics(reg)

	doctorStore := doctor.NewStore(redisClient)

	repo := booking.NewRepository(pool)
	allocator := booking.NewAllocator(repo, doctorStore, clock, booking.AllocatorConfig{
		DefaultConsultMinutes:  cfg.DefaultConsultMinutes,
		WalkinReserveRatio:     cfg.WalkinReserveRatio,
		AdvanceCutoff:          cfg.AdvanceCutoff,
		MaxRetries:             cfg.AllocatorMaxRetries,
		CountBreakPlaceholders: cfg.PaceCountsBreakPlaceholders,
	}, schedulerMetrics, logger)

	hub := queueboard.NewHub(logger)
	go hub.Run()

	// Notifications go through the Postgres outbox: the booking request only
	// appends a row, and the deliverer sends email out of band.
	emailService := notify.NewService(newEmailSender(ctx, cfg, logger), logger)
	outboxStore := events.NewOutboxStore(pool)
	deliverer := events.NewDeliverer(outboxStore, events.NewNotificationRelay(emailService), logger)

	delivererCtx, stopDeliverer := context.WithCancel(ctx)
	defer stopDeliverer()
	go deliverer.Start(delivererCtx)

	bookingService := booking.NewService(allocator, repo, doctorStore, clock,
		events.NewOutboxDispatcher(outboxStore), hub, schedulerMetrics, logger)

	r := router.New(&router.Config{
		Logger:               logger,
		BookingHandler:       booking.NewHandler(bookingService, logger),
		DoctorHandler:        doctor.NewHandler(doctorStore, logger),
		BoardHandler:         queueboard.NewHandler(hub, logger),
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		StaffJWTSecret:       cfg.StaffJWTSecret,
		CORSAllowedOrigins:   splitOrigins(cfg.CORSAllowedOrigins),
		BookingRatePerSecond: 10,
		BookingRateBurst:     20,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newEmailSender picks the configured provider. No provider means the stub,
// which logs instead of sending; bookings still work without email.
func newEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch strings.ToLower(cfg.EmailProvider) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but not configured, falling back to stub")
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config, falling back to stub", "error", err)
			break
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}

func splitOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	return strings.Split(origins, ",")
}
