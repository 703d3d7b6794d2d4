package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/config"
)

// An AMQPChannel defines the channel operations required to declare the topology
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// MainQueueArgs routes rejected messages of the main queue to the dead-letter exchange
func MainQueueArgs(cfg config.RabbitMQConfig) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    cfg.DeadLetterExchange,
		"x-dead-letter-routing-key": cfg.DeadLetterRoutingKey,
	}
}

// DeclareTopology declares the dead-letter exchange and queue, then the main queue bound to them
func DeclareTopology(ch AMQPChannel, cfg config.RabbitMQConfig) error {
	if ch == nil {
		return errors.New("declare topology: channel is required")
	}

	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, cfg.DeadLetterRoutingKey, cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, MainQueueArgs(cfg)); err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	return nil
}

// DeclareFanout declares the broadcast exchange. Subscribers declare it
// non-durable too, and a mismatch would make the broker close the channel.
func DeclareFanout(ch AMQPChannel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare fanout exchange %s: %w", name, err)
	}
	return nil
}
