package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"fulfillment/internal/config"
	"fulfillment/internal/interfaces"
)

// A Consumer binds to the main queue and feeds deliveries to the handler one at a time
type Consumer struct {
	conn    *Connection
	config  config.RabbitMQConfig
	handler interfaces.DeliveryHandler
	logger  *zerolog.Logger

	mu      sync.Mutex
	running bool
	ch      *amqp.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConsumer(
	conn *Connection, cfg config.RabbitMQConfig, handler interfaces.DeliveryHandler, logger *zerolog.Logger,
) *Consumer {
	return &Consumer{
		conn:    conn,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start declares the topology, applies fair dispatch and starts the consumer loop.
// The handler runs with ctx, so an in-flight delivery is not interrupted by Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer is already running")
	}

	ch, deliveries, err := c.subscribe(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.ch = ch
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	c.logger.Info().
		Str("queue", c.config.Queue).
		Int("prefetch", c.config.Prefetch).
		Msg("Consumer started, waiting for orders")

	go c.consume(ctx, loopCtx, deliveries)

	return nil
}

func (c *Consumer) subscribe(ctx context.Context) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := DeclareTopology(ch, c.config); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	if err := ch.Qos(c.config.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(c.config.Queue, c.config.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("failed to consume from %s: %w", c.config.Queue, err)
	}
	return ch, deliveries, nil
}

// consume drains deliveries sequentially and resubscribes when the broker drops the channel.
// loopCtx is cancelled by Stop and only governs reconnection.
func (c *Consumer) consume(ctx, loopCtx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		for delivery := range deliveries {
			c.handler.Handle(ctx, delivery)
		}

		if loopCtx.Err() != nil {
			return
		}

		c.logger.Warn().Str("queue", c.config.Queue).Msg("Delivery channel closed, resubscribing")

		err := retry.Do(
			func() error {
				ch, next, err := c.subscribe(loopCtx)
				if err != nil {
					return err
				}
				c.mu.Lock()
				c.ch = ch
				c.mu.Unlock()
				deliveries = next
				return nil
			},
			retry.Attempts(uint(c.config.Reconnect.MaxAttempts)),
			retry.Delay(c.config.Reconnect.Delay),
			retry.DelayType(retry.BackOffDelay),
			retry.MaxDelay(30*time.Second),
			retry.OnRetry(
				func(n uint, err error) {
					c.logger.Warn().
						Err(err).
						Uint("attempt", n+1).
						Msg("Retrying RabbitMQ subscription")
				},
			),
			retry.Context(loopCtx),
		)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to recover RabbitMQ subscription")
			return
		}

		// Stop raced with the resubscription
		if loopCtx.Err() != nil {
			c.mu.Lock()
			_ = c.ch.Close()
			c.mu.Unlock()
			return
		}
	}
}

// Stop cancels the subscription and waits for the in-flight delivery to finish
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	ch := c.ch
	done := c.done
	c.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		if err := ch.Cancel(c.config.ConsumerTag, false); err != nil {
			c.logger.Error().Err(err).Msg("Error cancelling consumer")
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for in-flight delivery: %w", ctx.Err())
	}

	if ch != nil && !ch.IsClosed() {
		if err := ch.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing consumer channel")
			return fmt.Errorf("failed to close consumer channel: %w", err)
		}
	}
	return nil
}
