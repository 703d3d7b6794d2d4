// Package fulfillment confirms orders delivered from the main queue: it guards
// against duplicates, runs the business step, records the result in the ledger,
// broadcasts a confirmation and settles every delivery exactly once.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"fulfillment/internal/config"
	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
	"fulfillment/internal/rabbitmq"
)

var _ interfaces.DeliveryHandler = (*Pipeline)(nil)

// A Pipeline handles order-creation deliveries one at a time
type Pipeline struct {
	guard      *Guard
	ledger     interfaces.Ledger
	processor  Processor
	retries    *RetryController
	events     *EventPublisher
	maxRetries int
	logger     *zerolog.Logger
}

func NewPipeline(
	ledger interfaces.Ledger,
	processor Processor,
	publisher interfaces.Publisher,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Pipeline {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &Pipeline{
		guard:      NewGuard(ledger),
		ledger:     ledger,
		processor:  processor,
		retries:    NewRetryController(publisher, cfg.RabbitMQ.Queue, cfg.Worker.MaxRetries, cfg.Worker.RetryBackoff),
		events:     NewEventPublisher(publisher, cfg.RabbitMQ.NotificationsExchange),
		maxRetries: cfg.Worker.MaxRetries,
		logger:     logger,
	}
}

// Handle implements interfaces.DeliveryHandler
func (p *Pipeline) Handle(ctx context.Context, delivery amqp.Delivery) {
	p.Process(ctx, delivery)
}

// Process runs one attempt for the delivery and returns the terminal action it took.
// Every path acks or nacks the delivery exactly once.
func (p *Pipeline) Process(ctx context.Context, delivery amqp.Delivery) (outcome Outcome) {
	start := time.Now()
	d := newSettledDelivery(delivery)
	attempt := rabbitmq.RetryCount(delivery.Headers)
	orderUUID := delivery.CorrelationId

	var cause error
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("panic while handling delivery: %v", r)
			if !d.isSettled() {
				_ = d.nack(false)
				outcome = OutcomeDeadLettered
			}
		}
		p.logOutcome(orderUUID, attempt, outcome, time.Since(start), cause)
	}()

	msg, err := models.DecodeOrderMessage(delivery.Body)
	if err != nil {
		cause = err
		if err := d.nack(false); err != nil {
			cause = errors.Join(cause, err)
		}
		return OutcomeRejected
	}
	orderUUID = msg.OrderUUID

	order, err := p.guard.Check(ctx, orderUUID)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		cause = p.settleAck(d)
		return OutcomeIgnored
	case errors.Is(err, ErrAlreadyProcessed):
		cause = p.settleAck(d)
		return OutcomeAlreadyProcessed
	case err != nil:
		return p.fail(ctx, d, attempt, &ProcessingFailedError{Cause: "ledger lookup failed", Err: err}, &cause)
	}

	if err := p.runProcessor(ctx, msg); err != nil {
		return p.fail(ctx, d, attempt, err, &cause)
	}

	if err := p.ledger.UpdateStatus(ctx, orderUUID, models.StatusConfirmed); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			// another attempt confirmed it first
			cause = p.settleAck(d)
			return OutcomeAlreadyProcessed
		}
		return p.fail(ctx, d, attempt, &ProcessingFailedError{Cause: "ledger update failed", Err: err}, &cause)
	}

	event := models.NewConfirmationEvent(msg)
	if event.CustomerName == "" && order != nil {
		event.CustomerName = order.CustomerName
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("order_uuid", orderUUID).Msg("Failed to broadcast confirmation")
	}

	cause = p.settleAck(d)
	return OutcomeConfirmed
}

// fail hands a failed attempt to the retry controller and records why it failed
func (p *Pipeline) fail(ctx context.Context, d *settledDelivery, attempt int, err error, cause *error) Outcome {
	outcome, settleErr := p.retries.Handle(ctx, d, attempt)
	if outcome == OutcomeDeadLettered {
		err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	*cause = errors.Join(err, settleErr)
	return outcome
}

func (p *Pipeline) settleAck(d *settledDelivery) error {
	if err := d.ack(); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

// runProcessor turns processor panics into ordinary failed attempts
func (p *Pipeline) runProcessor(ctx context.Context, msg *models.OrderMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingFailedError{Cause: fmt.Sprintf("processor panicked: %v", r)}
		}
	}()

	if err := p.processor.Process(ctx, msg); err != nil {
		var failed *ProcessingFailedError
		if errors.As(err, &failed) {
			return err
		}
		return &ProcessingFailedError{Cause: "processor error", Err: err}
	}
	return nil
}

func (p *Pipeline) logOutcome(orderUUID string, attempt int, outcome Outcome, duration time.Duration, cause error) {
	var event *zerolog.Event
	switch outcome {
	case OutcomeDeadLettered, OutcomeRejected:
		event = p.logger.Error()
	case OutcomeRetryScheduled, OutcomeRequeued:
		event = p.logger.Warn()
	default:
		event = p.logger.Info()
	}

	event.
		Str("order_uuid", orderUUID).
		Int("attempt", attempt+1).
		Int("max_attempts", p.maxRetries+1).
		Str("outcome", outcome.String()).
		Dur("duration", duration).
		Err(cause).
		Msg("Delivery handled")
}
