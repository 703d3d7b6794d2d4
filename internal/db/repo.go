package db

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fulfillment/internal/interfaces"
	"fulfillment/internal/models"
)

var (
	ErrOrderNotFound  = models.ErrOrderNotFound
	ErrStatusConflict = models.ErrStatusConflict
)

var _ interfaces.Repository = (*LedgerRepo)(nil)

const orderColumns = `order_uuid::text AS order_uuid, customer_name, total_amount, status, items, created_at`

// A LedgerRepo is a repository pattern implementation of the order ledger
type LedgerRepo struct {
	db *DB
	q  Queryable
}

// NewLedgerRepo creates a ledger repository on top of db
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db, q: db.pool}
}

// GetOrder returns the order by its correlation identifier or ErrOrderNotFound
func (r *LedgerRepo) GetOrder(ctx context.Context, orderUUID string) (*models.Order, error) {
	id, err := uuid.Parse(orderUUID)
	if err != nil {
		// the column is a uuid, nothing else can ever be stored
		return nil, ErrOrderNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_uuid = $1`

	var order models.Order
	if err := pgxscan.Get(ctx, r.q, &order, query, id.String()); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderUUID, err)
	}
	return &order, nil
}

// UpdateStatus moves an order to status if the transition is legal from the stored status.
// The write is conditional on the expected prior status, so only one writer can win.
func (r *LedgerRepo) UpdateStatus(ctx context.Context, orderUUID string, status models.OrderStatus) error {
	if !models.StatusPending.CanTransitionTo(status) {
		return fmt.Errorf("unsupported status transition to %s", status)
	}
	id, err := uuid.Parse(orderUUID)
	if err != nil {
		return ErrOrderNotFound
	}

	query := `UPDATE orders SET status = $2 WHERE order_uuid = $1 AND status = $3`

	tag, err := r.q.Exec(ctx, query, id.String(), string(status), string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderUUID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// CreateOrder records a new order using transaction. Existing orders are left untouched.
func (r *LedgerRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	items, err := order.ItemsJSON()
	if err != nil {
		return err
	}

	_, err = r.db.WithTx(
		ctx, func(tx pgx.Tx) (any, error) {
			return nil, insertOrder(ctx, tx, order, items)
		},
	)
	return err
}

func insertOrder(ctx context.Context, q Queryable, order *models.Order, items []byte) error {
	query := `
		INSERT INTO orders (order_uuid, customer_name, total_amount, status, items, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		ON CONFLICT (order_uuid) DO NOTHING;
	`

	var createdAt any
	if !order.CreatedAt.IsZero() {
		createdAt = order.CreatedAt
	}

	_, err := q.Exec(
		ctx, query, order.OrderUUID, order.CustomerName, order.TotalAmount, string(order.Status),
		string(items), createdAt,
	)
	return err
}

// ListOrders returns at most limit orders, newest first
func (r *LedgerRepo) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	var orders []models.Order
	if err := pgxscan.Select(ctx, r.q, &orders, query, limit); err != nil {
		return []models.Order{}, err
	}
	if orders == nil {
		return []models.Order{}, nil
	}
	return orders, nil
}
