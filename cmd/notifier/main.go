package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"fulfillment/internal/config"
	"fulfillment/internal/models"
	"fulfillment/internal/rabbitmq"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "notifier").Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn := rabbitmq.NewConnection(cfg.RabbitMQ, &logger)
	defer func() { _ = conn.Close() }()

	subscriber := rabbitmq.NewSubscriber(conn, cfg.RabbitMQ.NotificationsExchange, &logger)

	err = subscriber.Subscribe(
		ctx, func(event models.ConfirmationEvent) {
			logger.Info().
				Str("order_uuid", event.OrderUUID).
				Str("customer_name", event.CustomerName).
				Str("status", string(event.Status)).
				Msg("Sending confirmation email")
		},
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Subscription ended")
		os.Exit(1)
	}
}
