package fulfillment

import (
	"context"
	"strings"
	"time"

	"fulfillment/internal/config"
	"fulfillment/internal/models"
)

// A Processor performs the business step for one order.
// A non-nil error makes the attempt eligible for retry.
type Processor interface {
	Process(ctx context.Context, msg *models.OrderMessage) error
}

// A SimulatedProcessor stands in for a payment gateway call
type SimulatedProcessor struct {
	delay  time.Duration
	marker string
}

func NewSimulatedProcessor(cfg config.WorkerConfig) *SimulatedProcessor {
	return &SimulatedProcessor{delay: cfg.ProcessingDelay, marker: strings.ToUpper(cfg.ErrorMarker)}
}

// Process waits for the configured delay and fails for customers whose
// upper-cased name contains the error marker
func (p *SimulatedProcessor) Process(ctx context.Context, msg *models.OrderMessage) error {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return &ProcessingFailedError{Cause: "processing interrupted", Err: ctx.Err()}
		}
	}

	if p.marker != "" && strings.Contains(strings.ToUpper(msg.CustomerName), p.marker) {
		return &ProcessingFailedError{Cause: "simulated payment gateway connection failure"}
	}
	return nil
}
