package fulfillment

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/interfaces"
	"fulfillment/internal/rabbitmq"
)

// A RetryController settles a failed attempt: it schedules the next attempt
// on the main queue or hands the message to the dead-letter exchange
type RetryController struct {
	publisher  interfaces.Publisher
	queue      string
	maxRetries int
	backoff    time.Duration
	wait       func(ctx context.Context, d time.Duration) error
}

func NewRetryController(publisher interfaces.Publisher, queue string, maxRetries int, backoff time.Duration) *RetryController {
	return &RetryController{
		publisher:  publisher,
		queue:      queue,
		maxRetries: maxRetries,
		backoff:    backoff,
		wait:       sleepContext,
	}
}

// Exhausted reports whether an attempt carrying retryCount may not be retried
func (r *RetryController) Exhausted(retryCount int) bool {
	return retryCount >= r.maxRetries
}

// Handle settles the delivery of a failed attempt numbered retryCount.
// The original is acked only after the broker confirmed the copy, so a crash
// in between can duplicate an attempt but never lose one.
func (r *RetryController) Handle(ctx context.Context, d *settledDelivery, retryCount int) (Outcome, error) {
	// an interrupted attempt did not fail, the broker redelivers it unchanged
	if err := ctx.Err(); err != nil {
		_ = d.nack(true)
		return OutcomeRequeued, err
	}

	if r.Exhausted(retryCount) {
		return OutcomeDeadLettered, d.nack(false)
	}

	if err := r.wait(ctx, r.backoff); err != nil {
		// shutting down, the broker redelivers with the same attempt number
		_ = d.nack(true)
		return OutcomeRequeued, err
	}

	if err := r.publisher.Publish(ctx, "", r.queue, nextAttempt(d.Delivery, retryCount+1)); err != nil {
		_ = d.nack(true)
		return OutcomeRequeued, &PublishError{Exchange: "", RoutingKey: r.queue, Err: err}
	}
	return OutcomeRetryScheduled, d.ack()
}

// nextAttempt copies the delivery into a publishing with the attempt header bumped.
// A delivery without a delivery mode is republished as persistent.
func nextAttempt(d amqp.Delivery, retryCount int) amqp.Publishing {
	mode := d.DeliveryMode
	if mode == 0 {
		mode = amqp.Persistent
	}

	return amqp.Publishing{
		Headers:         rabbitmq.WithRetryCount(d.Headers, retryCount),
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		DeliveryMode:    mode,
		Priority:        d.Priority,
		CorrelationId:   d.CorrelationId,
		MessageId:       d.MessageId,
		Timestamp:       time.Now(),
		Type:            d.Type,
		AppId:           d.AppId,
		Body:            d.Body,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
