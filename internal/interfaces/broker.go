package interfaces

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/models"
)

type Publisher interface {
	// Publish returns only once the broker has confirmed the message.
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
	// Broadcast publishes without waiting for a confirmation.
	Broadcast(ctx context.Context, exchange string, msg amqp.Publishing) error
	DeclareFanout(ctx context.Context, exchange string) error
}

type DeliveryHandler interface {
	Handle(ctx context.Context, delivery amqp.Delivery)
}

type DeadLetterQueue interface {
	Peek(ctx context.Context, limit int) ([]models.DeadLetterMessage, error)
	Replay(ctx context.Context, limit int) (int, error)
	Count(ctx context.Context) (int, error)
}
