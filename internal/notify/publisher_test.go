package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/smartcanteen/api/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []publishCall
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out channels in order and counts dials.
type fakeDialer struct {
	channels []*fakeChannel
	dials    int
	err      error
}

func (d *fakeDialer) dial() (Channel, func(), error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	ch := d.channels[d.dials]
	d.dials++
	return ch, func() { ch.Close() }, nil
}

func testOrder() database.Order {
	return database.Order{
		ID:         uuid.New(),
		Username:   "alice",
		Items:      []database.OrderItem{{MenuItemID: uuid.New(), Name: "Veg Noodles", Qty: 1, Price: decimal.NewFromInt(80)}},
		Preference: "No preference",
		Status:     "Pending",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestNewPublisher_DeclaresFanoutExchange(t *testing.T) {
	ch := &fakeChannel{}
	d := &fakeDialer{channels: []*fakeChannel{ch}}

	p, err := NewPublisher(d.dial)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, []string{"canteen_orders:fanout"}, ch.declared)
}

func TestNewPublisher_DialFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}

	_, err := NewPublisher(d.dial)
	assert.Error(t, err)
}

func TestPublish_Message(t *testing.T) {
	ch := &fakeChannel{}
	d := &fakeDialer{channels: []*fakeChannel{ch}}
	p, err := NewPublisher(d.dial)
	require.NoError(t, err)

	order := testOrder()
	require.NoError(t, p.Publish(context.Background(), "order.created", order))

	require.Len(t, ch.published, 1)
	call := ch.published[0]
	assert.Equal(t, Exchange, call.exchange)
	assert.Equal(t, "order.created", call.key)
	assert.Equal(t, "application/json", call.msg.ContentType)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.NotEmpty(t, call.msg.MessageId)

	var msg Message
	require.NoError(t, json.Unmarshal(call.msg.Body, &msg))
	assert.Equal(t, "order.created", msg.Type)
	assert.Equal(t, order.ID.String(), msg.Order.ID)
	assert.Equal(t, "80.00", msg.Order.Total)
}

func TestPublish_RedialsOnce(t *testing.T) {
	broken := &fakeChannel{publishErr: amqp.ErrClosed}
	fresh := &fakeChannel{}
	d := &fakeDialer{channels: []*fakeChannel{broken, fresh}}
	p, err := NewPublisher(d.dial)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "order.updated", testOrder()))

	assert.True(t, broken.closed)
	assert.Equal(t, 2, d.dials)
	assert.Len(t, fresh.published, 1)
}

func TestPublish_GivesUpAfterRetry(t *testing.T) {
	first := &fakeChannel{publishErr: amqp.ErrClosed}
	second := &fakeChannel{publishErr: amqp.ErrClosed}
	d := &fakeDialer{channels: []*fakeChannel{first, second}}
	p, err := NewPublisher(d.dial)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "order.updated", testOrder())
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, 2, d.dials)
}

func TestPublishOrderEvent_QueuesWithoutPublishing(t *testing.T) {
	ch := &fakeChannel{}
	d := &fakeDialer{channels: []*fakeChannel{ch}}
	p, err := NewPublisher(d.dial)
	require.NoError(t, err)

	p.PublishOrderEvent(context.Background(), "order.created", testOrder())

	assert.Len(t, p.queue, 1)
	assert.Equal(t, 0, ch.publishedCount())
}

func TestPublishOrderEvent_DropsWhenQueueFull(t *testing.T) {
	p := &Publisher{queue: make(chan amqp.Publishing, 1)}

	p.PublishOrderEvent(context.Background(), "order.created", testOrder())
	p.PublishOrderEvent(context.Background(), "order.updated", testOrder())

	require.Len(t, p.queue, 1)
	assert.Equal(t, "order.created", (<-p.queue).Type)
}

func TestRun_PublishesQueuedEvents(t *testing.T) {
	ch := &fakeChannel{}
	d := &fakeDialer{channels: []*fakeChannel{ch}}
	p, err := NewPublisher(d.dial)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.PublishOrderEvent(context.Background(), "order.created", testOrder())
	p.PublishOrderEvent(context.Background(), "order.updated", testOrder())

	assert.Eventually(t, func() bool { return ch.publishedCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, ch.isClosed())
}

func TestPublishOrderEvent_BrokerHangDoesNotBlockCallers(t *testing.T) {
	release := make(chan struct{})
	var dials sync.WaitGroup
	dials.Add(1)
	var once sync.Once
	hanging := func() (Channel, func(), error) {
		once.Do(dials.Done)
		<-release
		return nil, nil, errors.New("broker unreachable")
	}
	p := &Publisher{dial: hanging, queue: make(chan amqp.Publishing, queueSize)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer close(release)

	p.PublishOrderEvent(context.Background(), "order.created", testOrder())
	dials.Wait()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.PublishOrderEvent(context.Background(), "order.updated", testOrder())
		}()
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDial_HandshakeTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the handshake timeout")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept connections and never answer the AMQP handshake.
	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	}()

	start := time.Now()
	_, _, err = Dial("amqp://guest:guest@" + ln.Addr().String() + "/")()

	assert.Error(t, err)
	assert.Less(t, time.Since(start), publishTimeout+2*time.Second)
}
