// Package models implements the order ledger records and the messages exchanged over the broker
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict means the stored status was not the one the update expected
	ErrStatusConflict = errors.New("order status conflict")
)

// An OrderStatus is the lifecycle state of an order in the ledger
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
)

// CanTransitionTo reports whether the ledger may move an order from s to next.
// The only legal transition is PENDING -> CONFIRMED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == StatusPending && next == StatusConfirmed
}

// Terminal reports whether no further transition is possible from s
func (s OrderStatus) Terminal() bool {
	return s == StatusConfirmed
}

// An Order is a ledger record keyed by its correlation identifier
type Order struct {
	OrderUUID    string          `json:"order_uuid" db:"order_uuid"`
	CustomerName string          `json:"customer_name" db:"customer_name"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status       OrderStatus     `json:"status" db:"status"`
	Items        []Item          `json:"items" db:"items"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// An Item is one order line
type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// A ValidationError is a custom error type for data validation
type ValidationError struct {
	Field   string
	Struct  string
	Message string
}

// Error is an interface implementation for errors
func (e ValidationError) Error() string {
	return fmt.Sprintf("Validation error in field %s.%s: %s", e.Struct, e.Field, e.Message)
}

// NewOrderValidationError is a validation error in the Order
func NewOrderValidationError(field, message string) ValidationError {
	return ValidationError{field, "order", message}
}

// NewItemValidationError is a validation error in the Item
func NewItemValidationError(field, message string) ValidationError {
	return ValidationError{field, "item", message}
}

// NewMessageValidationError is a validation error in an inbound message
func NewMessageValidationError(field, message string) ValidationError {
	return ValidationError{field, "message", message}
}

// Total sums price*quantity over the items
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Validate checks if the Order data is correct before it is recorded
func (o *Order) Validate() error {
	if strings.TrimSpace(o.OrderUUID) == "" {
		return NewOrderValidationError("order_uuid", "is required")
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		return NewOrderValidationError("customer_name", "is required")
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return NewOrderValidationError("status", fmt.Sprintf("unknown status %q", o.Status))
	}
	if o.TotalAmount.IsNegative() {
		return NewOrderValidationError("total_amount", "cannot be negative")
	}
	if !o.TotalAmount.Equal(o.TotalAmount.Round(2)) {
		return NewOrderValidationError("total_amount", "must have at most two decimal places")
	}
	for i, item := range o.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
	}

	return nil
}

// Validate checks if the Item data is correct
func (i *Item) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return NewItemValidationError("product_id", "is required")
	}
	if i.Quantity <= 0 {
		return NewItemValidationError("quantity", "must be positive")
	}
	if i.Price.IsNegative() {
		return NewItemValidationError("price", "cannot be negative")
	}

	return nil
}

// ItemsJSON encodes the items for the jsonb column
func (o *Order) ItemsJSON() ([]byte, error) {
	if o.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o.Items)
}
