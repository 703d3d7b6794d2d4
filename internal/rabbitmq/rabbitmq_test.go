package rabbitmq

import (
	"errors"
	"math"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment/internal/config"
)

func TestRetryCount(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil headers", nil, 0},
		{"missing", amqp.Table{"other": "x"}, 0},
		{"int32", amqp.Table{HeaderRetryCount: int32(2)}, 2},
		{"int64", amqp.Table{HeaderRetryCount: int64(3)}, 3},
		{"uint8", amqp.Table{HeaderRetryCount: uint8(1)}, 1},
		{"float", amqp.Table{HeaderRetryCount: float64(1)}, 1},
		{"string", amqp.Table{HeaderRetryCount: " 2 "}, 2},
		{"legacy header", amqp.Table{LegacyHeaderRetryCount: int32(3)}, 3},
		{"garbage", amqp.Table{HeaderRetryCount: "many"}, 0},
		{"negative", amqp.Table{HeaderRetryCount: int32(-4)}, 0},
		{"int64 overflow", amqp.Table{HeaderRetryCount: int64(math.MaxInt64)}, 0},
		{"uint32 overflow", amqp.Table{HeaderRetryCount: uint32(math.MaxUint32)}, 0},
		{"huge float", amqp.Table{HeaderRetryCount: float64(1e300)}, 0},
		{"NaN", amqp.Table{HeaderRetryCount: math.NaN()}, 0},
		{"infinity", amqp.Table{HeaderRetryCount: float32(math.Inf(1))}, 0},
		{"huge string", amqp.Table{HeaderRetryCount: "99999999999"}, 0},
		{"bytes", amqp.Table{HeaderRetryCount: []byte("3")}, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RetryCount(tc.headers); got != tc.want {
				t.Errorf("error: expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestWithRetryCount_CopiesHeaders(t *testing.T) {
	original := amqp.Table{"trace": "abc", LegacyHeaderRetryCount: int32(1)}

	next := WithRetryCount(original, 2)

	if RetryCount(next) != 2 {
		t.Errorf("error: expected retry count 2, got %d", RetryCount(next))
	}
	if next["trace"] != "abc" {
		t.Errorf("error: expected unrelated headers to be preserved")
	}
	if _, ok := next[LegacyHeaderRetryCount]; ok {
		t.Errorf("error: expected legacy counter to be dropped")
	}
	if _, ok := original[HeaderRetryCount]; ok {
		t.Errorf("error: expected original headers to stay untouched")
	}
	if err := next.Validate(); err != nil {
		t.Errorf("error: expected valid AMQP table, got %v", err)
	}
}

func deadLetteredHeaders() amqp.Table {
	return amqp.Table{
		HeaderRetryCount:        int32(3),
		"trace":                 "abc",
		"x-first-death-reason":  "rejected",
		"x-first-death-queue":   "orders_queue",
		"x-last-death-exchange": "",
		"x-death": []interface{}{
			amqp.Table{
				"count":  int64(1),
				"reason": "rejected",
				"queue":  "orders_queue",
			},
		},
	}
}

func TestWithoutRetryState(t *testing.T) {
	out := WithoutRetryState(deadLetteredHeaders())

	if len(out) != 1 || out["trace"] != "abc" {
		t.Errorf("error: expected only unrelated headers to remain, got %v", out)
	}
}

func TestDeathInfo(t *testing.T) {
	reason, queue, count := DeathInfo(deadLetteredHeaders())
	if reason != "rejected" || queue != "orders_queue" || count != 1 {
		t.Errorf("error: unexpected death info %q %q %d", reason, queue, count)
	}

	reason, queue, count = DeathInfo(amqp.Table{})
	if reason != "" || queue != "" || count != 0 {
		t.Errorf("error: expected empty death info")
	}
}

func TestToDeadLetterMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	delivery := amqp.Delivery{
		Headers:       deadLetteredHeaders(),
		MessageId:     "m-1",
		CorrelationId: "fallback",
		Timestamp:     ts,
		Body:          []byte(`{"order_uuid":"A","customer_name":"ERROR-co"}`),
	}

	msg := ToDeadLetterMessage(delivery)

	if msg.OrderUUID != "A" {
		t.Errorf("error: expected order uuid from body, got %q", msg.OrderUUID)
	}
	if msg.RetryCount != 3 || msg.Reason != "rejected" || msg.OriginalQueue != "orders_queue" || msg.DeathCount != 1 {
		t.Errorf("error: unexpected dead-letter view %+v", msg)
	}
	if msg.MessageID != "m-1" || !msg.Timestamp.Equal(ts) {
		t.Errorf("error: unexpected metadata %+v", msg)
	}

	delivery.Body = []byte("garbage")
	if got := ToDeadLetterMessage(delivery).OrderUUID; got != "fallback" {
		t.Errorf("error: expected correlation id fallback, got %q", got)
	}
}

type declaredQueue struct {
	name    string
	durable bool
	args    amqp.Table
}

type declaredExchange struct {
	name    string
	kind    string
	durable bool
}

type binding struct {
	queue, key, exchange string
}

// A fakeChannel records topology declarations
type fakeChannel struct {
	exchanges []declaredExchange
	queues    []declaredQueue
	bindings  []binding
	failOn    string
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if f.failOn == name {
		return errors.New("exchange declare failed")
	}
	f.exchanges = append(f.exchanges, declaredExchange{name, kind, durable})
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if f.failOn == name {
		return amqp.Queue{}, errors.New("queue declare failed")
	}
	f.queues = append(f.queues, declaredQueue{name, durable, args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings = append(f.bindings, binding{name, key, exchange})
	return nil
}

func testRabbitConfig() config.RabbitMQConfig {
	return config.RabbitMQConfig{
		Queue:                "orders_queue",
		DeadLetterExchange:   "dlx_exchange",
		DeadLetterQueue:      "orders_dlq",
		DeadLetterRoutingKey: "dead_message",
	}
}

func TestDeclareTopology(t *testing.T) {
	ch := &fakeChannel{}
	if err := DeclareTopology(ch, testRabbitConfig()); err != nil {
		t.Fatalf("error: %v", err)
	}

	if len(ch.exchanges) != 1 || ch.exchanges[0] != (declaredExchange{"dlx_exchange", amqp.ExchangeDirect, true}) {
		t.Errorf("error: expected durable direct dead-letter exchange, got %+v", ch.exchanges)
	}
	if len(ch.bindings) != 1 || ch.bindings[0] != (binding{"orders_dlq", "dead_message", "dlx_exchange"}) {
		t.Errorf("error: unexpected bindings %+v", ch.bindings)
	}
	if len(ch.queues) != 2 {
		t.Fatalf("error: expected two queues, got %d", len(ch.queues))
	}

	mainQueue := ch.queues[1]
	if mainQueue.name != "orders_queue" || !mainQueue.durable {
		t.Errorf("error: expected durable main queue, got %+v", mainQueue)
	}
	if mainQueue.args["x-dead-letter-exchange"] != "dlx_exchange" || mainQueue.args["x-dead-letter-routing-key"] != "dead_message" {
		t.Errorf("error: expected dead-letter arguments on main queue, got %v", mainQueue.args)
	}
	if !ch.queues[0].durable || ch.queues[0].name != "orders_dlq" {
		t.Errorf("error: expected durable dead-letter queue, got %+v", ch.queues[0])
	}
}

func TestDeclareTopology_Errors(t *testing.T) {
	if err := DeclareTopology(nil, testRabbitConfig()); err == nil {
		t.Errorf("error: expected error for nil channel")
	}

	ch := &fakeChannel{failOn: "orders_queue"}
	if err := DeclareTopology(ch, testRabbitConfig()); err == nil {
		t.Errorf("error: expected main queue declaration error")
	}
}

func TestDeclareFanout(t *testing.T) {
	ch := &fakeChannel{}
	if err := DeclareFanout(ch, "notifications_exchange"); err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(ch.exchanges) != 1 || ch.exchanges[0].kind != amqp.ExchangeFanout || ch.exchanges[0].durable {
		t.Errorf("error: expected non-durable fanout exchange, got %+v", ch.exchanges)
	}
}
