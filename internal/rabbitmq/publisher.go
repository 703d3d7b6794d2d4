package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"fulfillment/internal/config"
)

var (
	ErrPublishNacked  = errors.New("broker rejected the published message")
	ErrConfirmTimeout = errors.New("timed out waiting for publish confirmation")
)

// A Publisher publishes on a dedicated channel in confirm mode
type Publisher struct {
	conn           *Connection
	confirmTimeout time.Duration
	logger         *zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher creates a publisher; its channel is opened on first use
func NewPublisher(conn *Connection, cfg config.RabbitMQConfig, logger *zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, confirmTimeout: cfg.ConfirmTimeout, logger: logger}
}

// channel returns the open confirm-mode channel, reopening it after a failure.
// Callers hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// Publish sends msg and waits until the broker confirms it
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("failed to publish to %q/%q: %w", exchange, routingKey, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirmation.WaitContext(confirmCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrConfirmTimeout
		}
		return fmt.Errorf("failed waiting for publish confirmation: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

// Broadcast publishes msg to a fanout exchange without waiting for a confirmation
func (p *Publisher) Broadcast(ctx context.Context, exchange string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("failed to broadcast to %q: %w", exchange, err)
	}
	return nil
}

// DeclareFanout declares the broadcast exchange on the publishing channel
func (p *Publisher) DeclareFanout(ctx context.Context, exchange string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	return DeclareFanout(ch, exchange)
}

// Close closes the publishing channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	if err != nil {
		p.logger.Error().Err(err).Msg("Error closing publisher channel")
		return fmt.Errorf("failed to close publisher channel: %w", err)
	}
	return nil
}
