// Package rabbitmq implements the broker side of the worker: topology, consumer loop,
// confirmed publishing, dead-letter inspection and fanout subscriptions
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"fulfillment/internal/config"
)

var ErrConnectionClosed = errors.New("rabbitmq connection is closed")

// A Connection owns the AMQP connection and redials it lazily when it drops
type Connection struct {
	url       string
	reconnect config.RetryConfig
	logger    *zerolog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// NewConnection creates a connection holder; nothing is dialed until the first channel is requested
func NewConnection(cfg config.RabbitMQConfig, logger *zerolog.Logger) *Connection {
	return &Connection{url: cfg.URL, reconnect: cfg.Reconnect, logger: logger}
}

// Channel opens a new channel, dialing the broker first if needed
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.dial(ctx); err != nil {
			return nil, err
		}
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

func (c *Connection) dial(ctx context.Context) error {
	target := c.target()

	err := retry.Do(
		func() error {
			conn, err := amqp.Dial(c.url)
			if err != nil {
				return err
			}
			c.conn = conn
			return nil
		},
		retry.Attempts(uint(c.reconnect.MaxAttempts)),
		retry.Delay(c.reconnect.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(
			func(n uint, err error) {
				c.logger.Warn().
					Err(err).
					Uint("attempt", n+1).
					Str("broker", target).
					Msg("Retrying RabbitMQ connection")
			},
		),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ at %s: %w", target, err)
	}

	c.logger.Info().Str("broker", target).Msg("Connected to RabbitMQ")
	return nil
}

// target is the broker address without credentials, for logs
func (c *Connection) target() string {
	uri, err := amqp.ParseURI(c.url)
	if err != nil {
		return "invalid-url"
	}
	return fmt.Sprintf("%s:%d%s", uri.Host, uri.Port, uri.Vhost)
}

// Close closes the AMQP connection. The Connection cannot be reused afterwards.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}
	return nil
}
