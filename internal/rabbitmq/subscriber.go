package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"fulfillment/internal/models"
)

// A Subscriber receives confirmation events broadcast on the fanout exchange
type Subscriber struct {
	conn     *Connection
	exchange string
	logger   *zerolog.Logger
}

func NewSubscriber(conn *Connection, exchange string, logger *zerolog.Logger) *Subscriber {
	return &Subscriber{conn: conn, exchange: exchange, logger: logger}
}

// Subscribe binds an exclusive, server-named queue to the exchange and calls fn for
// every event until ctx is done. Deliveries are auto-acknowledged.
func (s *Subscriber) Subscribe(ctx context.Context, fn func(models.ConfirmationEvent)) error {
	ch, err := s.conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := DeclareFanout(ch, s.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, false, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare subscriber queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind subscriber queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", q.Name, err)
	}

	s.logger.Info().Str("exchange", s.exchange).Str("queue", q.Name).Msg("Subscribed to confirmation events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("subscription closed by broker")
			}
			var event models.ConfirmationEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				s.logger.Error().Err(err).Str("raw_message", string(delivery.Body)).Msg("Failed to unmarshal event")
				continue
			}
			fn(event)
		}
	}
}
