package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"civicfix/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
)

var eventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "complaint_events_published_total",
		Help: "Complaint events handed to the broker, by type and result",
	},
	[]string{"type", "result"},
)

// Publisher announces complaint mutations to other services.
type Publisher interface {
	Publish(ctx context.Context, event models.ComplaintEvent) error
}

// AMQPPublisher publishes events as persistent JSON messages. amqp channels are not
// safe for concurrent publishing, so calls are serialized.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(ch *amqp.Channel, exchange string) (*AMQPPublisher, error) {
	if err := DeclareExchange(ch, exchange); err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event models.ComplaintEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		string(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		})
	p.mu.Unlock()

	if err != nil {
		eventsPublished.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	eventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ComplaintEvent) error {
	return nil
}
