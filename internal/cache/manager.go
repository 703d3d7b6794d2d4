// Package cache implements a read-through cache in front of the order ledger
package cache

import (
	"context"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
)

// A Manager connects the LRU cache and the ledger. Only orders in a terminal
// status are cached: they can never change again, so a hit is never stale.
type Manager struct {
	cache  interfaces.Cache[string, *models.Order]
	ledger interfaces.Ledger
	logger *zerolog.Logger
}

// NewLRU creates the cache used by the Manager
func NewLRU(capacity int) (*lru.Cache[string, *models.Order], error) {
	return lru.New[string, *models.Order](capacity)
}

// NewManager creates a new manager with specified cache, ledger and logger
func NewManager(
	cache interfaces.Cache[string, *models.Order], ledger interfaces.Ledger, logger *zerolog.Logger,
) *Manager {
	if logger == nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		return &Manager{cache: cache, ledger: ledger, logger: &logger}
	}
	return &Manager{cache: cache, ledger: ledger, logger: logger}
}

// GetOrder returns the order from cache, if it's not there - from the ledger
func (m *Manager) GetOrder(ctx context.Context, orderUUID string) (*models.Order, error) {
	if order, ok := m.cache.Get(orderUUID); ok {
		return cloneOrder(order), nil
	}

	order, err := m.ledger.GetOrder(ctx, orderUUID)
	if err != nil {
		return nil, err
	}
	if order != nil && order.Status.Terminal() {
		m.cache.Add(orderUUID, cloneOrder(order))
	}
	return order, nil
}

// UpdateStatus writes through to the ledger and drops any cached copy
func (m *Manager) UpdateStatus(ctx context.Context, orderUUID string, status models.OrderStatus) error {
	if err := m.ledger.UpdateStatus(ctx, orderUUID, status); err != nil {
		return err
	}
	if m.cache.Remove(orderUUID) {
		m.logger.Debug().Str("order_uuid", orderUUID).Msg("evicted order after status update")
	}
	return nil
}

// WarmCache loads at most limit recent orders and keeps the confirmed ones.
// It returns the number of orders cached.
func (m *Manager) WarmCache(ctx context.Context, lister interfaces.OrderLister, limit int) (int, error) {
	orders, err := lister.ListOrders(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to warm cache: %w", err)
	}

	cached := 0
	for i := range orders {
		if !orders[i].Status.Terminal() {
			continue
		}
		m.cache.Add(orders[i].OrderUUID, cloneOrder(&orders[i]))
		cached++
	}

	m.logger.Info().Int("cached", cached).Int("loaded", len(orders)).Msg("Cache warmed")
	return cached, nil
}

// Size returns number of orders in cache
func (m *Manager) Size() int {
	return m.cache.Len()
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.Items != nil {
		c.Items = append([]models.Item(nil), o.Items...)
	}
	return &c
}
