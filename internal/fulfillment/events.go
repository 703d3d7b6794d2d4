package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
)

// An EventPublisher broadcasts order confirmations to every bound subscriber
type EventPublisher struct {
	publisher interfaces.Publisher
	exchange  string
}

func NewEventPublisher(publisher interfaces.Publisher, exchange string) *EventPublisher {
	return &EventPublisher{publisher: publisher, exchange: exchange}
}

// Publish declares the fanout exchange and broadcasts the event without waiting for a confirm
func (e *EventPublisher) Publish(ctx context.Context, event models.ConfirmationEvent) error {
	if err := e.publisher.DeclareFanout(ctx, e.exchange); err != nil {
		return &PublishError{Exchange: e.exchange, Err: err}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: event.OrderUUID,
		Timestamp:     time.Now(),
		Body:          body,
	}
	if err := e.publisher.Broadcast(ctx, e.exchange, msg); err != nil {
		return &PublishError{Exchange: e.exchange, Err: err}
	}
	return nil
}
