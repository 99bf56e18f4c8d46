package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/domain"
	"hotelbook/internal/events"
	"hotelbook/internal/logging"
	"hotelbook/internal/mail"
	"hotelbook/internal/metrics"
	"hotelbook/internal/repository"
	"hotelbook/internal/service"
	"hotelbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database, &logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	events.AttachMetrics(bus)
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := events.NewKafkaWriter(cfg.Kafka, &logger)
		if err != nil {
			return fmt.Errorf("init kafka writer: %w", err)
		}
		sink := events.NewKafkaSink(writer, &logger)
		sink.Attach(bus)
		defer sink.Close()
	}

	var wg sync.WaitGroup
	startMetrics(ctx, cfg, &wg, &logger)

	bookingService := service.NewBookingService(db, roomLocker(redisClient, cfg), nil, bus, cfg.Booking, &logger)
	sweeper := worker.NewExpirySweeper(db, bookingService, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch, &logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	retry := worker.NewRetryPolicy(cfg.Notification.Retry)
	notifications := worker.NewNotificationWorker(db, mail.NewSender(cfg.Mail, &logger), redisClient, retry, &logger).
		WithPolling(cfg.Notification.PollInterval, cfg.Notification.BatchSize)
	if failed, err := db.GetFailedNotificationTasks(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to count dead-lettered notifications")
	} else if len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Msg("Dead-lettered notifications need attention")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifications.Start(ctx)
	}()

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			backupService.Start(ctx)
		}()
	}

	logger.Info().Dur("sweep_interval", cfg.Booking.SweepInterval).Msg("Worker started")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	wg.Wait()
	logger.Info().Msg("Worker stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "worker-main").Logger()

	return cfg, logger, closer, nil
}

// initRedis is optional here: the notification queue falls back to memory
// and DB polling.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// roomLocker releases expired holds' keys in redis. Without redis the keys
// lapse on their own TTL.
func roomLocker(client *redis.Client, cfg *config.Config) domain.RoomLocker {
	if client == nil {
		return repository.NewMemoryRoomLocker(cfg.Booking.LockTTL)
	}
	return repository.NewRedisRoomLocker(client, cfg.Booking.LockTTL)
}

func startMetrics(ctx context.Context, cfg *config.Config, wg *sync.WaitGroup, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
