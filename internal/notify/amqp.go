package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPBus is the multi-process Bus: change events flow through a topic
// exchange so every server instance sees mutations made by the others.
// Routing keys are "expense.<owner>.<trip|casual>", which lets a
// subscription bind exactly its (owner, trip-context) pair.
type AMQPBus struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewAMQPBus(url, exchangeName string) (*AMQPBus, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	bus := &AMQPBus{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return bus, nil
}

func routingKey(owner, tripID string) string {
	ctx := "casual"
	if tripID != "" {
		ctx = tripID
	}
	return "expense." + owner + "." + ctx
}

func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = b.channel.PublishWithContext(
		ctx,
		b.exchangeName,
		routingKey(ev.Expense.Owner, ev.Expense.TripID),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe binds an exclusive, auto-deleting queue for one view context.
// The stream ends when ctx is cancelled or Close is called.
func (b *AMQPBus) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	q, err := b.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := b.channel.QueueBind(q.Name, routingKey(f.Owner, f.TripID), b.exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := b.channel.Consume(
		q.Name,
		"",    // consumer
		true,  // auto-ack: a lost view event is recovered by the next bulk load
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &amqpSub{ch: make(chan Event, subscriberBuffer), cancel: cancel}

	go func() {
		defer close(s.ch)
		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					slog.Error("notify: failed to decode AMQP event", "error", err)
					continue
				}
				select {
				case s.ch <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return s, nil
}

type amqpSub struct {
	ch     chan Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *amqpSub) Events() <-chan Event { return s.ch }

func (s *amqpSub) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func (b *AMQPBus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
