package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fulfillment/internal/config"
	"fulfillment/internal/models"
)

type mockOrders struct {
	orders map[string]*models.Order
	err    error
}

func (m *mockOrders) GetOrder(ctx context.Context, orderUUID string) (*models.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	order, ok := m.orders[orderUUID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

type mockDLQ struct {
	messages  []models.DeadLetterMessage
	err       error
	peekLimit int
	replayed  int
}

func (m *mockDLQ) Peek(ctx context.Context, limit int) ([]models.DeadLetterMessage, error) {
	m.peekLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.messages) {
		return m.messages[:limit], nil
	}
	return m.messages, nil
}

func (m *mockDLQ) Replay(ctx context.Context, limit int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.replayed = min(limit, len(m.messages))
	return m.replayed, nil
}

func (m *mockDLQ) Count(ctx context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.messages), nil
}

func newTestServer(orders *mockOrders, dlq *mockDLQ) http.Handler {
	logger := zerolog.Nop()
	cfg := &config.Config{Server: config.ServerConfig{Port: 8081}}
	return New(cfg, orders, dlq, &logger).setupRoutes()
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(&mockOrders{}, &mockDLQ{}), http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Status != "ok" {
		t.Errorf("error: unexpected health response %+v %v", resp, err)
	}
}

func TestGetOrder(t *testing.T) {
	order := &models.Order{
		OrderUUID:    "0b5f2c1e-8d7a-4a47-9d0e-3c1a2f6b7e01",
		CustomerName: "Acme",
		TotalAmount:  decimal.RequireFromString("12.50"),
		Status:       models.StatusConfirmed,
	}
	h := newTestServer(&mockOrders{orders: map[string]*models.Order{order.OrderUUID: order}}, &mockDLQ{})

	rec := serve(h, http.MethodGet, "/orders/"+order.OrderUUID)
	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d", rec.Code)
	}
	var got models.Order
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("error: %v", err)
	}
	if got.Status != models.StatusConfirmed || !got.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("error: unexpected order %+v", got)
	}

	if rec := serve(h, http.MethodGet, "/orders/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("error: expected 404, got %d", rec.Code)
	}
}

func TestGetOrder_LedgerError(t *testing.T) {
	h := newTestServer(&mockOrders{err: errors.New("connection refused")}, &mockDLQ{})

	if rec := serve(h, http.MethodGet, "/orders/x"); rec.Code != http.StatusInternalServerError {
		t.Errorf("error: expected 500, got %d", rec.Code)
	}
}

func TestPeekDeadLetters(t *testing.T) {
	dlq := &mockDLQ{messages: []models.DeadLetterMessage{
		{OrderUUID: "a", RetryCount: 3}, {OrderUUID: "b", RetryCount: 3}, {OrderUUID: "c", RetryCount: 3},
	}}
	h := newTestServer(&mockOrders{}, dlq)

	rec := serve(h, http.MethodGet, "/dlq?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d", rec.Code)
	}
	var resp DeadLetterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("error: %v", err)
	}
	if resp.Count != 3 || len(resp.Messages) != 2 || resp.Messages[0].OrderUUID != "a" {
		t.Errorf("error: unexpected response %+v", resp)
	}

	serve(h, http.MethodGet, "/dlq")
	if dlq.peekLimit != defaultDLQLimit {
		t.Errorf("error: expected default limit %d, got %d", defaultDLQLimit, dlq.peekLimit)
	}
	serve(h, http.MethodGet, "/dlq?limit=100000")
	if dlq.peekLimit != maxDLQLimit {
		t.Errorf("error: expected capped limit %d, got %d", maxDLQLimit, dlq.peekLimit)
	}
}

func TestPeekDeadLetters_BadRequestAndBrokerError(t *testing.T) {
	h := newTestServer(&mockOrders{}, &mockDLQ{})
	for _, target := range []string{"/dlq?limit=abc", "/dlq?limit=0", "/dlq?limit=-1"} {
		if rec := serve(h, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("error: %s expected 400, got %d", target, rec.Code)
		}
	}

	h = newTestServer(&mockOrders{}, &mockDLQ{err: errors.New("channel closed")})
	if rec := serve(h, http.MethodGet, "/dlq"); rec.Code != http.StatusBadGateway {
		t.Errorf("error: expected 502, got %d", rec.Code)
	}
}

func TestReplayDeadLetters(t *testing.T) {
	dlq := &mockDLQ{messages: []models.DeadLetterMessage{{OrderUUID: "a"}, {OrderUUID: "b"}}}
	h := newTestServer(&mockOrders{}, dlq)

	rec := serve(h, http.MethodPost, "/dlq/replay?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("error: expected 200, got %d", rec.Code)
	}
	var resp ReplayResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Replayed != 2 {
		t.Errorf("error: unexpected replay response %+v %v", resp, err)
	}

	if rec := serve(h, http.MethodGet, "/dlq/replay"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("error: expected 405, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zerolog.Nop()
	s := &Server{logger: &logger}
	h := s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	if rec := serve(h, http.MethodGet, "/"); rec.Code != http.StatusInternalServerError {
		t.Errorf("error: expected 500, got %d", rec.Code)
	}
}
