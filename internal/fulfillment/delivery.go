package fulfillment

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// A settledDelivery lets exactly one of ack or nack reach the broker
type settledDelivery struct {
	amqp.Delivery

	mu      sync.Mutex
	settled bool
}

func newSettledDelivery(d amqp.Delivery) *settledDelivery {
	return &settledDelivery{Delivery: d}
}

func (d *settledDelivery) ack() error {
	return d.settle(func() error { return d.Delivery.Ack(false) })
}

func (d *settledDelivery) nack(requeue bool) error {
	return d.settle(func() error { return d.Delivery.Nack(false, requeue) })
}

func (d *settledDelivery) isSettled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

func (d *settledDelivery) settle(action func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return nil
	}
	d.settled = true
	return action()
}
