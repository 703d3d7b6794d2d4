package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"fulfillment/internal/config"
	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
)

// A Guard decides whether a delivery still has work to do
type Guard struct {
	ledger interfaces.Ledger
}

func NewGuard(ledger interfaces.Ledger) *Guard {
	return &Guard{ledger: ledger}
}

// Check returns the order if it is PENDING.
// It returns ErrOrderNotFound for unknown orders and ErrAlreadyProcessed for any other status.
func (g *Guard) Check(ctx context.Context, orderUUID string) (*models.Order, error) {
	order, err := g.ledger.GetOrder(ctx, orderUUID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != models.StatusPending {
		return order, ErrAlreadyProcessed
	}
	return order, nil
}

// breakerLedger fails fast while the ledger keeps erroring
type breakerLedger struct {
	ledger interfaces.Ledger
	cb     *gobreaker.CircuitBreaker
}

// NewBreakerLedger wraps ledger in a circuit breaker.
// Not-found and status conflicts are answers, not failures, and never trip it.
func NewBreakerLedger(ledger interfaces.Ledger, cfg config.CircuitBreakerConfig, logger *zerolog.Logger) interfaces.Ledger {
	settings := gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: uint32(cfg.HalfOpenMaxCalls),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailers)
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, models.ErrOrderNotFound) ||
				errors.Is(err, models.ErrStatusConflict) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Circuit breaker state changed")
			}
		},
	}
	return &breakerLedger{ledger: ledger, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerLedger) GetOrder(ctx context.Context, orderUUID string) (*models.Order, error) {
	res, err := b.cb.Execute(
		func() (interface{}, error) {
			return b.ledger.GetOrder(ctx, orderUUID)
		},
	)
	if err != nil {
		return nil, err
	}
	order, _ := res.(*models.Order)
	return order, nil
}

func (b *breakerLedger) UpdateStatus(ctx context.Context, orderUUID string, status models.OrderStatus) error {
	_, err := b.cb.Execute(
		func() (interface{}, error) {
			return nil, b.ledger.UpdateStatus(ctx, orderUUID, status)
		},
	)
	return err
}
