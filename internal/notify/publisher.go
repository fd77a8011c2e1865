// Package notify fans order events out to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/service"
)

// Exchange is the durable fanout exchange order events are published to.
const Exchange = "canteen_orders"

const (
	// publishTimeout bounds one dial plus handshake, and one publish.
	publishTimeout = 5 * time.Second
	queueSize      = 256
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a channel and returns a func closing everything it opened.
type DialFunc func() (Channel, func(), error)

// Message is the JSON body of a published event.
type Message struct {
	Type  string            `json:"type"`
	Order service.OrderView `json:"order"`
}

// Publisher publishes order events. Requests only enqueue; Run owns the
// broker connection and redials once when a publish fails.
type Publisher struct {
	dial  DialFunc
	queue chan amqp.Publishing

	mu      sync.Mutex
	ch      Channel
	closeFn func()
}

// Dial returns a DialFunc connecting to the broker at url. The TCP dial and
// the AMQP handshake are bounded by publishTimeout.
func Dial(url string) DialFunc {
	return func() (Channel, func(), error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(publishTimeout),
		})
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return ch, func() {
			_ = ch.Close()
			_ = conn.Close()
		}, nil
	}
}

// NewPublisher connects and declares the exchange.
func NewPublisher(dial DialFunc) (*Publisher, error) {
	p := &Publisher{
		dial:  dial,
		queue: make(chan amqp.Publishing, queueSize),
	}
	ch, closeFn, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.ch, p.closeFn = ch, closeFn
	return p, nil
}

// connect dials without holding p.mu.
func (p *Publisher) connect() (Channel, func(), error) {
	ch, closeFn, err := p.dial()
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "fanout", true, false, false, false, nil); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return ch, closeFn, nil
}

// channel returns the live channel, dialing a new one if needed.
func (p *Publisher) channel() (Channel, error) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch != nil {
		return ch, nil
	}

	ch, closeFn, err := p.connect()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		closeFn()
		return p.ch, nil
	}
	p.ch, p.closeFn = ch, closeFn
	return ch, nil
}

// drop discards ch if it is still the current channel.
func (p *Publisher) drop(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != ch {
		return
	}
	if p.closeFn != nil {
		p.closeFn()
	}
	p.ch = nil
	p.closeFn = nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeFn != nil {
		p.closeFn()
	}
	p.ch = nil
	p.closeFn = nil
}

func newMessage(eventType string, order database.Order) (amqp.Publishing, error) {
	body, err := json.Marshal(Message{Type: eventType, Order: service.NewOrderView(order)})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         eventType,
		Body:         body,
	}, nil
}

// Publish sends one event synchronously, retrying once on a fresh
// connection.
func (p *Publisher) Publish(ctx context.Context, eventType string, order database.Order) error {
	msg, err := newMessage(eventType, order)
	if err != nil {
		return err
	}
	return p.send(ctx, msg)
}

func (p *Publisher) send(ctx context.Context, msg amqp.Publishing) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Type, err)
		}
		ch, err := p.channel()
		if err != nil {
			lastErr = err
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = ch.PublishWithContext(pubCtx, Exchange, msg.Type, false, false, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		p.drop(ch)
	}
	return fmt.Errorf("publish %s: %w", msg.Type, lastErr)
}

// PublishOrderEvent queues the event for Run and returns immediately. A full
// queue drops the event with a warning.
func (p *Publisher) PublishOrderEvent(_ context.Context, eventType string, order database.Order) {
	msg, err := newMessage(eventType, order)
	if err != nil {
		log.Printf("WARN: rabbitmq: order %s: %v", order.ID, err)
		return
	}
	select {
	case p.queue <- msg:
	default:
		log.Printf("WARN: rabbitmq: queue full, dropping %s for order %s", eventType, order.ID)
	}
}

// Run publishes queued events until ctx is cancelled, then closes the
// connection.
func (p *Publisher) Run(ctx context.Context) {
	defer p.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.send(ctx, msg); err != nil {
				log.Printf("WARN: rabbitmq: %v", err)
			}
		}
	}
}
