package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cypherlabdev/bet-sync-service/internal/cache"
	"github.com/cypherlabdev/bet-sync-service/internal/config"
	"github.com/cypherlabdev/bet-sync-service/internal/coordinator"
	"github.com/cypherlabdev/bet-sync-service/internal/fetcher"
	httpHandler "github.com/cypherlabdev/bet-sync-service/internal/handler/http"
	"github.com/cypherlabdev/bet-sync-service/internal/messaging"
	"github.com/cypherlabdev/bet-sync-service/internal/metrics"
	"github.com/cypherlabdev/bet-sync-service/internal/realtime"
	"github.com/cypherlabdev/bet-sync-service/internal/service"
)

// realtimeBackend is what the server needs from a realtime implementation
type realtimeBackend interface {
	realtime.Subscriber
	realtime.Publisher
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting bet-sync-service")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Create realtime backend
	pingers := make(map[string]service.Pinger)
	var backend realtimeBackend
	switch cfg.Realtime.Backend {
	case config.BackendRedis:
		feed := realtime.NewRedisFeed(
			realtime.RedisFeedConfig{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				KeyPrefix:   cfg.Redis.KeyPrefix,
				SnapshotTTL: cfg.Redis.SnapshotTTL,
			},
			logger,
		)
		defer feed.Close()

		// Test Redis connection
		if err := feed.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

		backend = feed
		pingers["redis"] = feed
	default:
		backend = realtime.NewHub(logger)
		logger.Info().Msg("using in-memory realtime hub")
	}

	// Create bets API fetcher and cache store
	pageFetcher := fetcher.NewHTTPFetcher(
		fetcher.HTTPFetcherConfig{
			BaseURL: cfg.Query.BaseURL,
			Timeout: cfg.Query.Timeout,
		},
		logger,
	)

	store := cache.NewStore(
		pageFetcher,
		cache.StoreConfig{
			DefaultPageSize: cfg.Sync.DefaultPageSize,
			PageSizes:       cfg.Sync.PageSizes(),
		},
		m,
		logger,
	)
	logger.Info().Int("page_size", cfg.Sync.DefaultPageSize).Msg("cache store initialized")

	// Create sync coordinator
	coord := coordinator.NewCoordinator(
		store,
		backend,
		coordinator.Config{
			TopicPrefix:      cfg.Realtime.TopicPrefix,
			StandingsPrefix:  cfg.Realtime.StandingsPrefix,
			SubscribeTimeout: cfg.Realtime.SubscribeTimeout,
		},
		m,
		logger,
	)

	// Create sync service layer
	syncService := service.NewSyncService(store, coord, cfg.Sync, pingers, logger)
	defer syncService.Close()
	logger.Info().Msg("sync service initialized")

	// Create Kafka consumer
	if cfg.Kafka.Enabled {
		consumer := messaging.NewSnapshotConsumer(
			messaging.KafkaConsumerConfig{
				Brokers:         cfg.Kafka.Brokers,
				Topic:           cfg.Kafka.Topic,
				GroupID:         cfg.Kafka.GroupID,
				TopicPrefix:     cfg.Realtime.TopicPrefix,
				StandingsPrefix: cfg.Realtime.StandingsPrefix,
			},
			backend,
			m,
			logger,
		)
		defer consumer.Close()

		// Start Kafka consumer in goroutine
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Kafka consumer failed")
			}
		}()
	}

	// Initialize HTTP handler
	listsHandler := httpHandler.NewListsHandler(syncService, logger)
	logger.Info().Msg("HTTP handler initialized")

	// Setup HTTP server routes
	mux := http.NewServeMux()

	// Health and monitoring endpoints
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyHandler(w, r, syncService)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Register API routes
	listsHandler.RegisterRoutes(mux)
	logger.Info().Msg("API routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server in goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully...")

	// Cancel context to stop consumer
	cancel()

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("shutdown complete")
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set format
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log.Logger.With().Str("service", "bet-sync").Logger()
}

// healthHandler returns 200 if service is running
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler returns 200 if service is ready to accept traffic
func readyHandler(w http.ResponseWriter, r *http.Request, svc *service.SyncService) {
	if err := svc.Ready(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(err.Error()))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
