// Package queue carries complaint events over RabbitMQ.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange every complaint event is published on. Routing keys are
// the event types, e.g. complaint.created.
const Exchange = "complaints"

func ConnectRabbitMQ(uri string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// DeclareExchange makes sure the durable topic exchange exists.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
