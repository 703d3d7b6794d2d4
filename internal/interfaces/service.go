package interfaces

import (
	"context"
	"fulfillment/internal/models"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderUUID string) (*models.Order, error)
}
