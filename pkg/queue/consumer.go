package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"civicfix/pkg/logger"
	"civicfix/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Handler processes one decoded event. Returning an error requeues the message once.
type Handler func(ctx context.Context, event models.ComplaintEvent) error

// Subscribe declares a durable queue bound to the given event types and starts a
// manual-ack consumer on it.
func Subscribe(ch *amqp.Channel, exchange, queueName string, types ...models.EventType) (<-chan amqp.Delivery, error) {
	if err := DeclareExchange(ch, exchange); err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, t := range types {
		if err := ch.QueueBind(q.Name, string(t), exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

// Consume feeds deliveries to handle until ctx is done or the channel closes.
// Undecodable messages are dropped; failed ones are retried once, then dropped.
func Consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle Handler, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			process(ctx, d, handle, log)
		}
	}
}

func process(ctx context.Context, d amqp.Delivery, handle Handler, log *logger.Logger) {
	var event models.ComplaintEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		log.WithError(err).Warn("Failed to parse event")
		_ = d.Nack(false, false)
		return
	}

	entry := log.WithFields(logrus.Fields{
		"event":        event.Type,
		"complaint_id": event.ComplaintID,
	})
	if err := handle(ctx, event); err != nil {
		entry.WithError(err).WithField("redelivered", d.Redelivered).Error("Failed to handle event")
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	entry.Debug("Event handled")
	_ = d.Ack(false)
}
