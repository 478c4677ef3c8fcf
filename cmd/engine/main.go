package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/api"
	"github.com/Ngetich-86/autoseat-engine/internal/backend"
	"github.com/Ngetich-86/autoseat-engine/internal/config"
	"github.com/Ngetich-86/autoseat-engine/internal/database"
	"github.com/Ngetich-86/autoseat-engine/internal/domain"
	"github.com/Ngetich-86/autoseat-engine/internal/events"
	"github.com/Ngetich-86/autoseat-engine/internal/logging"
	"github.com/Ngetich-86/autoseat-engine/internal/metrics"
	"github.com/Ngetich-86/autoseat-engine/internal/mpesa"
	"github.com/Ngetich-86/autoseat-engine/internal/payment"
	"github.com/Ngetich-86/autoseat-engine/internal/repository"
	"github.com/Ngetich-86/autoseat-engine/internal/service"

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
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "engine-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("audit store ready")

	sessionTTL := time.Duration(cfg.Engine.SessionTTL) * time.Second
	sessions, redisClient := buildSessionRepository(ctx, cfg, &logger, sessionTTL)

	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	if redisClient != nil && cfg.Backend.CacheTTL > 0 {
		backendClient.UseRedisCache(redisClient, time.Duration(cfg.Backend.CacheTTL)*time.Second)
	}

	gateway := mpesa.NewClient(cfg.Mpesa)

	eventBus := events.NewEventBus()
	subscribePaymentEvents(eventBus, &logger)

	paymentCfg := payment.Config{
		PollInterval:        time.Duration(cfg.Engine.PollIntervalSeconds) * time.Second,
		MaxPollCycles:       cfg.Engine.MaxPollCycles,
		MaxTransportRetries: cfg.Engine.MaxTransportRetries,
	}

	workflowLogger := logging.Component(baseLogger, "workflow")
	workflow := service.NewWorkflowService(
		backendClient, gateway, sessions, db, eventBus,
		payment.TimerScheduler{}, paymentCfg, &workflowLogger,
	)

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("api disabled; engine has no transport surface")
		<-ctx.Done()
		return nil
	}

	apiLogger := logging.Component(baseLogger, "http-api")
	apiServer := api.NewHTTPServer(cfg.API, workflow, &apiLogger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

// buildSessionRepository prefers redis with memory failover; without a redis
// address (or with redis unreachable at boot) it runs memory-only.
func buildSessionRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, ttl time.Duration) (domain.SessionRepository, *redis.Client) {
	memory := repository.NewMemorySessionRepository(ttl)
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis not configured, sessions are memory-only")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, sessions are memory-only")
		return memory, nil
	}

	primary := repository.NewRedisSessionRepository(client, ttl)
	return repository.NewFailoverSessionRepository(primary, memory, logger), client
}

func subscribePaymentEvents(bus *events.EventBus, logger *zerolog.Logger) {
	logOutcome := func(event *events.Event) error {
		logger.Info().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("workflow event")
		return nil
	}
	bus.Subscribe(events.EventBookingCreated, logOutcome)
	bus.Subscribe(events.EventBookingReverted, logOutcome)
	bus.Subscribe(events.EventPaymentSucceeded, logOutcome)
	bus.Subscribe(events.EventPaymentFailed, logOutcome)
	bus.Subscribe(events.EventPaymentTimedOut, logOutcome)
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("prometheus metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
