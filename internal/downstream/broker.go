// broker.go
//
// Message broker adapters. Published editions are broadcast on a topic
// exchange with routing key <schema_name>.<update_type>; subscribers are
// independent and delivery is at-least-once.

package downstream

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker publishes version-stamped messages for independent subscribers.
type Broker interface {
	Publish(routingKey string, body []byte) error
	Close() error
}

// AMQPBroker broadcasts on a durable topic exchange.
type AMQPBroker struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	timeout  time.Duration
}

func NewAMQPBroker(url, exchange string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPBroker{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		timeout:  5 * time.Second,
	}, nil
}

func (b *AMQPBroker) Publish(routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	return b.channel.PublishWithContext(ctx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (b *AMQPBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}

// BrokerMessage is one recorded broadcast.
type BrokerMessage struct {
	RoutingKey string
	Body       []byte
}

// MemoryBroker records broadcasts in process. Default when no AMQP URL is
// configured, and the observer used by the tests.
type MemoryBroker struct {
	mu       sync.Mutex
	messages []BrokerMessage
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

func (b *MemoryBroker) Publish(routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, BrokerMessage{RoutingKey: routingKey, Body: body})
	return nil
}

func (b *MemoryBroker) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (b *MemoryBroker) Messages() []BrokerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BrokerMessage, len(b.messages))
	copy(out, b.messages)
	return out
}
