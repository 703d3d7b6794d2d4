package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fulfillment/internal/config"
	"fulfillment/internal/db"
	"fulfillment/internal/models"
	"fulfillment/internal/rabbitmq"
)

var customers = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli"}

func generateOrder(fail bool, marker string) *models.Order {
	name := customers[rand.Intn(len(customers))]
	if fail {
		name = marker + "-co"
	}

	items := []models.Item{
		{
			ProductID: fmt.Sprintf("SKU-%04d", rand.Intn(10000)),
			Quantity:  1 + rand.Intn(3),
			Price:     decimal.New(int64(100+rand.Intn(9900)), -2),
		},
		{
			ProductID: fmt.Sprintf("SKU-%04d", rand.Intn(10000)),
			Quantity:  1,
			Price:     decimal.New(int64(100+rand.Intn(9900)), -2),
		},
	}

	return &models.Order{
		OrderUUID:    uuid.NewString(),
		CustomerName: name,
		TotalAmount:  models.Total(items),
		Status:       models.StatusPending,
		Items:        items,
		CreatedAt:    time.Now().UTC(),
	}
}

// creationMessage wraps the order the way the orders API does
func creationMessage(order *models.Order) ([]byte, error) {
	items, err := order.ItemsJSON()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(models.OrderMessage{
		OrderUUID:    order.OrderUUID,
		CustomerName: order.CustomerName,
		Items:        items,
		Total:        json.Number(order.TotalAmount.StringFixed(2)),
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Event: models.EventOrderCreated, Payload: payload})
}

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	count := flag.Int("count", 1, "Number of orders")
	fail := flag.Bool("fail", false, "Use a customer name that makes processing fail")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "producer").Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	database, err := db.NewDBWithConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close()
	repository := db.NewLedgerRepo(database)

	conn := rabbitmq.NewConnection(cfg.RabbitMQ, &logger)
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open channel")
	}
	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitMQ); err != nil {
		logger.Fatal().Err(err).Msg("Failed to declare topology")
	}
	_ = ch.Close()

	publisher := rabbitmq.NewPublisher(conn, cfg.RabbitMQ, &logger)
	defer func() { _ = publisher.Close() }()

	for i := range *count {
		order := generateOrder(*fail, cfg.Worker.ErrorMarker)

		err := retry.Do(
			func() error {
				return repository.CreateOrder(ctx, order)
			},
			retry.Context(ctx),
			retry.Attempts(uint(cfg.Database.Retry.MaxAttempts)),
			retry.Delay(cfg.Database.Retry.Delay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			logger.Error().Err(err).Int("n", i+1).Msg("Failed to record order")
			continue
		}

		body, err := creationMessage(order)
		if err != nil {
			logger.Error().Err(err).Str("order_uuid", order.OrderUUID).Msg("Failed to encode order")
			continue
		}

		msg := amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: order.OrderUUID,
			MessageId:     uuid.NewString(),
			Timestamp:     time.Now(),
			Body:          body,
		}
		if err := publisher.Publish(ctx, "", cfg.RabbitMQ.Queue, msg); err != nil {
			logger.Error().Err(err).Str("order_uuid", order.OrderUUID).Msg("Failed to publish order")
			continue
		}

		logger.Info().
			Str("order_uuid", order.OrderUUID).
			Str("customer_name", order.CustomerName).
			Str("total", order.TotalAmount.StringFixed(2)).
			Msg("Sent order")
	}
}
