package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"fulfillment/internal/config"
	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
)

// A DeadLetterQueue gives operators a view into the dead-letter queue and a way to replay it
type DeadLetterQueue struct {
	conn      *Connection
	publisher interfaces.Publisher
	config    config.RabbitMQConfig
	logger    *zerolog.Logger
}

// NewDeadLetterQueue creates a dead-letter queue accessor
func NewDeadLetterQueue(
	conn *Connection, publisher interfaces.Publisher, cfg config.RabbitMQConfig, logger *zerolog.Logger,
) *DeadLetterQueue {
	return &DeadLetterQueue{conn: conn, publisher: publisher, config: cfg, logger: logger}
}

// Peek returns not more than limit messages and leaves all of them in the queue
func (dlq *DeadLetterQueue) Peek(ctx context.Context, limit int) ([]models.DeadLetterMessage, error) {
	ch, err := dlq.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ch.Close() }()

	messages := make([]models.DeadLetterMessage, 0, limit)
	var lastTag uint64

	for len(messages) < limit {
		delivery, ok, err := ch.Get(dlq.config.DeadLetterQueue, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read dead-letter queue: %w", err)
		}
		if !ok {
			break
		}
		messages = append(messages, ToDeadLetterMessage(delivery))
		lastTag = delivery.DeliveryTag
	}

	if lastTag > 0 {
		if err := ch.Nack(lastTag, true, true); err != nil {
			return nil, fmt.Errorf("failed to return messages to dead-letter queue: %w", err)
		}
	}
	return messages, nil
}

// Replay moves not more than limit messages back to the main queue with a fresh
// attempt counter. Each message leaves the dead-letter queue only once its copy
// is confirmed by the broker.
func (dlq *DeadLetterQueue) Replay(ctx context.Context, limit int) (int, error) {
	ch, err := dlq.conn.Channel(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = ch.Close() }()

	replayed := 0
	for replayed < limit {
		delivery, ok, err := ch.Get(dlq.config.DeadLetterQueue, false)
		if err != nil {
			return replayed, fmt.Errorf("failed to read dead-letter queue: %w", err)
		}
		if !ok {
			break
		}

		msg := amqp.Publishing{
			Headers:       WithoutRetryState(delivery.Headers),
			ContentType:   delivery.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: delivery.CorrelationId,
			MessageId:     delivery.MessageId,
			Timestamp:     time.Now(),
			Body:          delivery.Body,
		}
		if err := dlq.publisher.Publish(ctx, "", dlq.config.Queue, msg); err != nil {
			_ = delivery.Nack(false, true)
			return replayed, fmt.Errorf("failed to replay dead-letter message: %w", err)
		}
		if err := delivery.Ack(false); err != nil {
			return replayed, fmt.Errorf("failed to remove replayed message: %w", err)
		}
		replayed++

		dlq.logger.Info().
			Str("order_uuid", delivery.CorrelationId).
			Str("queue", dlq.config.Queue).
			Msg("Dead-letter message replayed")
	}
	return replayed, nil
}

// Count returns the number of messages waiting in the dead-letter queue
func (dlq *DeadLetterQueue) Count(ctx context.Context) (int, error) {
	ch, err := dlq.conn.Channel(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = ch.Close() }()

	q, err := ch.QueueDeclarePassive(dlq.config.DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect dead-letter queue: %w", err)
	}
	return q.Messages, nil
}

// ToDeadLetterMessage builds the operator view of a dead-lettered delivery
func ToDeadLetterMessage(delivery amqp.Delivery) models.DeadLetterMessage {
	reason, queue, count := DeathInfo(delivery.Headers)

	orderUUID := delivery.CorrelationId
	if msg, err := models.DecodeOrderMessage(delivery.Body); err == nil {
		orderUUID = msg.OrderUUID
	}

	return models.DeadLetterMessage{
		MessageID:     delivery.MessageId,
		OrderUUID:     orderUUID,
		RetryCount:    RetryCount(delivery.Headers),
		Reason:        reason,
		OriginalQueue: queue,
		DeathCount:    count,
		Body:          string(delivery.Body),
		Timestamp:     delivery.Timestamp,
	}
}
