package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventOrderCreated is the event name the orders API wraps its payload with
const EventOrderCreated = "OrderCreated"

// An OrderMessage is the body of an order-creation delivery. Everything but the
// correlation identifier is passed through untouched.
type OrderMessage struct {
	OrderUUID    string          `json:"order_uuid"`
	CustomerName string          `json:"customer_name"`
	Items        json.RawMessage `json:"items,omitempty"`
	Total        json.Number     `json:"total,omitempty"`
}

// An Envelope is the wrapper the orders API publishes: {"event": ..., "payload": {...}}
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeOrderMessage accepts either a flat order body or an Envelope around one
func DecodeOrderMessage(body []byte) (*OrderMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order message: %w", err)
	}

	raw := body
	if len(bytes.TrimSpace(env.Payload)) > 0 && !bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		raw = env.Payload
	}

	var msg OrderMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks that the message can be correlated with a ledger record
func (m *OrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderUUID) == "" {
		return NewMessageValidationError("order_uuid", "is required")
	}
	return nil
}

// A ConfirmationEvent is broadcast once per confirmed order
type ConfirmationEvent struct {
	OrderUUID    string      `json:"order_uuid"`
	CustomerName string      `json:"customer_name"`
	Status       OrderStatus `json:"status"`
}

// NewConfirmationEvent builds the broadcast event for a confirmed order
func NewConfirmationEvent(msg *OrderMessage) ConfirmationEvent {
	return ConfirmationEvent{
		OrderUUID:    msg.OrderUUID,
		CustomerName: msg.CustomerName,
		Status:       StatusConfirmed,
	}
}

// A DeadLetterMessage is a read-only view of a message parked in the dead-letter queue
type DeadLetterMessage struct {
	MessageID     string    `json:"message_id,omitempty"`
	OrderUUID     string    `json:"order_uuid,omitempty"`
	RetryCount    int       `json:"retry_count"`
	Reason        string    `json:"reason,omitempty"`
	OriginalQueue string    `json:"original_queue,omitempty"`
	DeathCount    int64     `json:"death_count"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
}
