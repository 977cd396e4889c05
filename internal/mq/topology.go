package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeNotifications Exchange = "deployer.notifications"
	ExchangeDLQ           Exchange = "deployer.dlq"
)

// Queues.
const (
	QueueNotificationsRelay Queue = "notifications.relay"
	QueueDLQNotifications   Queue = "dlq.notifications"
)

// Routing keys.
const (
	// RoutingKeyAllChannels — relay получает уведомления всех каналов.
	RoutingKeyAllChannels RoutingKey = "#"
	RoutingKeyDLQ         RoutingKey = "notifications"
)

// ExchangeDecl — объявление обменника.
type ExchangeDecl struct {
	Name Exchange
	Kind string
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name Queue
	Args amqp.Table
}

// BindingDecl — привязка очереди к обменнику.
type BindingDecl struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — полное описание объектов RabbitMQ деплойщика.
type Topology struct {
	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []BindingDecl
}

// DefaultTopology возвращает топологию:
//
//	deployer.notifications (topic)
//	└── notifications.relay [routing: #], DLQ: dlq.notifications
//	deployer.dlq (direct)
//	└── dlq.notifications [routing: notifications]
func DefaultTopology() Topology {
	return Topology{
		Exchanges: []ExchangeDecl{
			{ExchangeNotifications, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		Queues: []QueueDecl{
			{QueueNotificationsRelay, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQ),
			}},
			{QueueDLQNotifications, nil},
		},
		Bindings: []BindingDecl{
			{QueueNotificationsRelay, RoutingKeyAllChannels, ExchangeNotifications},
			{QueueDLQNotifications, RoutingKeyDLQ, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет DefaultTopology.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return DefaultTopology().Declare(ch)
	})
}

// Declare объявляет обменники, очереди и привязки (идемпотентно).
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range t.Exchanges {
		err := ch.ExchangeDeclare(
			string(ex.Name), // name
			ex.Kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}

	for _, q := range t.Queues {
		_, err := ch.QueueDeclare(
			string(q.Name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.Args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}

	for _, b := range t.Bindings {
		err := ch.QueueBind(
			string(b.Queue),      // queue name
			string(b.RoutingKey), // routing key
			string(b.Exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}
	return nil
}
