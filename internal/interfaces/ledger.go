package interfaces

import (
	"context"
	"fulfillment/internal/models"
)

// A Ledger is the order store the worker reads and conditionally updates
type Ledger interface {
	GetOrder(ctx context.Context, orderUUID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderUUID string, status models.OrderStatus) error
}

type OrderLister interface {
	ListOrders(ctx context.Context, limit int) ([]models.Order, error)
}

type Repository interface {
	Ledger
	OrderLister
	CreateOrder(ctx context.Context, order *models.Order) error
}
