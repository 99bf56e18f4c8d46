package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotelbook/internal/api"
	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/events"
	"hotelbook/internal/export"
	"hotelbook/internal/logging"
	"hotelbook/internal/mail"
	"hotelbook/internal/metrics"
	"hotelbook/internal/repository"
	"hotelbook/internal/service"
	"hotelbook/internal/worker"

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

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	db, err := database.NewDB(cfg.Database, &logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := initRedis(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	metrics.Register()

	bus, kafkaSink, err := initEvents(cfg, &logger)
	if err != nil {
		return err
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
	}

	// Only the enqueue side runs here; cmd/worker delivers.
	retry := worker.NewRetryPolicy(cfg.Notification.Retry)
	notifier := worker.NewNotificationWorker(db, mail.NewSender(cfg.Mail, &logger), redisClient, retry, &logger)

	locker := repository.NewRedisRoomLocker(redisClient, cfg.Booking.LockTTL)
	limiter := repository.NewFailoverRateLimiter(
		repository.NewRedisRateLimiter(redisClient),
		repository.NewMemoryRateLimiter(),
		&logger,
	)

	bookingService := service.NewBookingService(db, locker, limiter, bus, cfg.Booking, &logger)
	paymentService := service.NewPaymentService(db, db, locker, notifier, bus, &logger)

	checks := []api.HealthCheck{
		{Name: "database", Check: db.Healthy},
		{Name: "redis", Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }},
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.Services{
		Bookings:     bookingService,
		Creator:      service.NewRetryingBookingCreator(bookingService, cfg.Booking.CreateRetry, &logger),
		Payments:     paymentService,
		Availability: service.NewAvailabilityService(db, &logger),
		Exporter:     export.NewBookingExporter(db, cfg.Exports.Path, &logger),
		Checks:       checks,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, checks, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// initRedis connects the lock store. Room locks fail closed, so the API
// refuses to start without redis.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, error) {
	if cfg.Redis.Address == "" {
		return nil, errors.New("redis.address is required for room locks")
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		client.Close()
		logger.Error().Err(err).Str("addr", cfg.Redis.Address).Msg("redis connection failed")
		return nil, err
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client, nil
}

func initEvents(cfg *config.Config, logger *zerolog.Logger) (*events.EventBus, *events.KafkaSink, error) {
	bus := events.NewEventBus()
	bus.OnError(func(ev *events.Event, err error) {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})
	events.AttachMetrics(bus)

	if len(cfg.Kafka.Brokers) == 0 {
		return bus, nil, nil
	}

	writer, err := events.NewKafkaWriter(cfg.Kafka, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka writer: %w", err)
	}
	sink := events.NewKafkaSink(writer, logger)
	sink.Attach(bus)
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event sink attached")
	return bus, sink, nil
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return serveErr
}
