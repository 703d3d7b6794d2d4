package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fulfillment/internal/cache"
	"fulfillment/internal/config"
	"fulfillment/internal/db"
	"fulfillment/internal/fulfillment"
	"fulfillment/internal/rabbitmq"
	"fulfillment/internal/server"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.NewDBWithConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	repository := db.NewLedgerRepo(database)

	lruCache, err := cache.NewLRU(cfg.Cache.Capacity)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LRU cache")
	}

	cacheLogger := logger.With().Str("component", "ledger-cache").Logger()
	cacheManager := cache.NewManager(lruCache, repository, &cacheLogger)

	if _, err := cacheManager.WarmCache(ctx, repository, cfg.Cache.Capacity); err != nil {
		logger.Warn().Err(err).Msg("Failed to warm cache, continuing with empty cache")
	}

	breakerLogger := logger.With().Str("component", "ledger-breaker").Logger()
	ledger := fulfillment.NewBreakerLedger(cacheManager, cfg.CircuitBreaker, &breakerLogger)

	connLogger := logger.With().Str("component", "rabbitmq-connection").Logger()
	conn := rabbitmq.NewConnection(cfg.RabbitMQ, &connLogger)

	publisherLogger := logger.With().Str("component", "rabbitmq-publisher").Logger()
	publisher := rabbitmq.NewPublisher(conn, cfg.RabbitMQ, &publisherLogger)

	pipelineLogger := logger.With().Str("component", "fulfillment-pipeline").Logger()
	pipeline := fulfillment.NewPipeline(
		ledger, fulfillment.NewSimulatedProcessor(cfg.Worker), publisher, cfg, &pipelineLogger,
	)

	consumerLogger := logger.With().Str("component", "rabbitmq-consumer").Logger()
	consumer := rabbitmq.NewConsumer(conn, cfg.RabbitMQ, pipeline, &consumerLogger)

	dlqLogger := logger.With().Str("component", "dead-letter-queue").Logger()
	deadLetters := rabbitmq.NewDeadLetterQueue(conn, publisher, cfg.RabbitMQ, &dlqLogger)

	serverLogger := logger.With().Str("component", "http-server").Logger()
	httpServer := server.New(cfg, cacheManager, deadLetters, &serverLogger)

	// deliveries are handled with their own context so that a signal lets the
	// in-flight one finish instead of bouncing it back to the queue
	workCtx, workCancel := context.WithCancel(context.Background())
	defer workCancel()

	if err := consumer.Start(workCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start consumer")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("queue", cfg.RabbitMQ.Queue).
		Int("max_retries", cfg.Worker.MaxRetries).
		Str("http", cfg.GetServerAddress()).
		Msg("Fulfillment worker started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errChan:
		logger.Error().Err(err).Msg("Component failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var stopWg sync.WaitGroup
	var stopErrors []error
	var mu sync.Mutex

	stopWg.Add(1)
	go func() {
		defer stopWg.Done()
		if err := consumer.Stop(shutdownCtx); err != nil {
			mu.Lock()
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop consumer: %w", err))
			mu.Unlock()
		}
	}()

	stopWg.Add(1)
	go func() {
		defer stopWg.Done()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			mu.Lock()
			stopErrors = append(stopErrors, err)
			mu.Unlock()
		}
	}()

	stopWg.Wait()
	workCancel()

	if err := publisher.Close(); err != nil {
		stopErrors = append(stopErrors, fmt.Errorf("failed to close publisher: %w", err))
	}
	if err := conn.Close(); err != nil {
		stopErrors = append(stopErrors, fmt.Errorf("failed to close broker connection: %w", err))
	}
	database.Close()

	if len(stopErrors) > 0 {
		for _, err := range stopErrors {
			logger.Error().Err(err).Msg("Shutdown error")
		}
		logger.Error().Int("error_count", len(stopErrors)).Msg("Some components failed to stop gracefully")
		os.Exit(1)
	}

	logger.Info().Msg("Fulfillment worker stopped")
}
