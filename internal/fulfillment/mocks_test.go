package fulfillment

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/models"
)

// spyAcknowledger records how a delivery was settled
type spyAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued []bool
}

func (s *spyAcknowledger) Ack(tag uint64, multiple bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
	return nil
}

func (s *spyAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nacks++
	s.requeued = append(s.requeued, requeue)
	return nil
}

func (s *spyAcknowledger) Reject(tag uint64, requeue bool) error {
	return s.Nack(tag, false, requeue)
}

func (s *spyAcknowledger) settlements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks + s.nacks
}

// mockLedger is an in-memory ledger with a conditional status update
type mockLedger struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	getErr    error
	updateErr error
	gets      int
	updates   int
}

func newMockLedger(orders ...*models.Order) *mockLedger {
	l := &mockLedger{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		l.orders[o.OrderUUID] = o
	}
	return l
}

func (m *mockLedger) GetOrder(ctx context.Context, orderUUID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++

	if m.getErr != nil {
		return nil, m.getErr
	}
	order, ok := m.orders[orderUUID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	c := *order
	return &c, nil
}

func (m *mockLedger) UpdateStatus(ctx context.Context, orderUUID string, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	order, ok := m.orders[orderUUID]
	if !ok || order.Status != models.StatusPending {
		return models.ErrStatusConflict
	}
	m.updates++
	order.Status = status
	return nil
}

func (m *mockLedger) status(orderUUID string) models.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderUUID].Status
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

// mockPublisher records everything sent to the broker
type mockPublisher struct {
	mu           sync.Mutex
	published    []publishedMessage
	broadcasts   []publishedMessage
	declared     []string
	publishErr   error
	broadcastErr error
	declareErr   error
}

func (m *mockPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{exchange, routingKey, msg})
	return nil
}

func (m *mockPublisher) Broadcast(ctx context.Context, exchange string, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broadcastErr != nil {
		return m.broadcastErr
	}
	m.broadcasts = append(m.broadcasts, publishedMessage{exchange, "", msg})
	return nil
}

func (m *mockPublisher) DeclareFanout(ctx context.Context, exchange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.declareErr != nil {
		return m.declareErr
	}
	m.declared = append(m.declared, exchange)
	return nil
}

// mockProcessor counts calls and fails when fail is set
type mockProcessor struct {
	mu    sync.Mutex
	calls int
	fail  error
	panic bool
}

func (m *mockProcessor) Process(ctx context.Context, msg *models.OrderMessage) error {
	m.mu.Lock()
	m.calls++
	fail, shouldPanic := m.fail, m.panic
	m.mu.Unlock()

	if shouldPanic {
		panic("gateway exploded")
	}
	return fail
}

var errGateway = errors.New("gateway unavailable")
