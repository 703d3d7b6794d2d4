package fulfillment

import (
	"errors"
	"fmt"

	"fulfillment/internal/models"
)

var (
	ErrOrderNotFound = models.ErrOrderNotFound
	// ErrAlreadyProcessed means the order has left PENDING, the delivery is a duplicate
	ErrAlreadyProcessed = errors.New("order already processed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// A ProcessingFailedError is a transient failure of one processing attempt
type ProcessingFailedError struct {
	Cause string
	Err   error
}

func (e *ProcessingFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing failed: %s: %v", e.Cause, e.Err)
	}
	return "processing failed: " + e.Cause
}

func (e *ProcessingFailedError) Unwrap() error {
	return e.Err
}

// A PublishError is a failure to hand a message to the broker
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish to exchange %q with routing key %q: %v", e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
