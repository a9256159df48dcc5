package main

import (
	"context"
	"time"

	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/models"
	"civicfix/pkg/security"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_connected_clients",
		Help: "Number of open notification streams",
	})
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications delivered to subscribers, by event type and result",
		},
		[]string{"type", "result"},
	)
)

const (
	broadcastBuffer = 100
	clientBuffer    = 10
)

// Notification is what subscribers receive. Owner ids never leave the service.
type Notification struct {
	ID          string           `json:"id"`
	Type        models.EventType `json:"type"`
	ComplaintID int64            `json:"complaintId"`
	Title       string           `json:"title"`
	Message     string           `json:"message,omitempty"`
	Status      models.Status    `json:"status,omitempty"`
	Category    models.Category  `json:"category,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`

	recipient func(auth.Actor) bool
}

type Client struct {
	Actor auth.Actor
	Send  chan Notification
}

func NewClient(actor auth.Actor) *Client {
	return &Client{Actor: actor, Send: make(chan Notification, clientBuffer)}
}

// Hub fans notifications out to the subscribed clients. All client bookkeeping happens
// on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Notification
	count      chan chan int
	done       chan struct{}
	sealer     *security.Sealer
	log        *logger.Logger
}

func NewHub(sealer *security.Sealer, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Notification, broadcastBuffer),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		sealer:     sealer,
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled, then closes every stream.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.Send)
			}
			connectedClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			connectedClients.Set(float64(len(h.clients)))
			h.log.WithUserID(c.Actor.ID).Infof("[INFO] Client registered (total clients: %d)", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.Send)
			}
			connectedClients.Set(float64(len(h.clients)))
			h.log.WithUserID(c.Actor.ID).Infof("[INFO] Client unregistered (total clients: %d)", len(h.clients))

		case n := <-h.broadcast:
			for c := range h.clients {
				if !n.recipient(c.Actor) {
					continue
				}
				select {
				case c.Send <- n:
					notificationsSent.WithLabelValues(string(n.Type), "sent").Inc()
				default:
					notificationsSent.WithLabelValues(string(n.Type), "dropped").Inc()
					h.log.WithUserID(c.Actor.ID).Warn("[WARN] Client buffer full, notification dropped")
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Register adds c to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients reports how many subscribers are connected.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// owner resolves the reporter of the complaint an event is about. Anonymous complaints
// carry the id encrypted.
func (h *Hub) owner(event models.ComplaintEvent) int64 {
	if event.OwnerID != 0 {
		return event.OwnerID
	}
	if event.OwnerIDEnc == "" || h.sealer == nil {
		return 0
	}
	id, err := h.sealer.OpenID(event.OwnerIDEnc)
	if err != nil {
		h.log.WithError(err).WithField("complaint_id", event.ComplaintID).Warn("[WARN] Failed to open owner id")
		return 0
	}
	return id
}

// recipients decides who hears about event. New complaints go to staff; everything
// else goes to the reporter, unless the reporter caused it.
func (h *Hub) recipients(event models.ComplaintEvent) func(auth.Actor) bool {
	if event.Type == models.EventCreated {
		return func(a auth.Actor) bool { return a.Staff() }
	}
	owner := h.owner(event)
	if owner == 0 || event.ByOwner {
		return func(auth.Actor) bool { return false }
	}
	return func(a auth.Actor) bool { return a.ID == owner }
}

// HandleEvent is the queue handler. It never fails: an event nobody should see is simply
// not delivered.
func (h *Hub) HandleEvent(ctx context.Context, event models.ComplaintEvent) error {
	n := Notification{
		ID:          uuid.NewString(),
		Type:        event.Type,
		ComplaintID: event.ComplaintID,
		Title:       event.Title,
		Message:     event.Message,
		Status:      event.Status,
		Category:    event.Category,
		CreatedAt:   event.CreatedAt,
		recipient:   h.recipients(event),
	}

	h.log.WithFields(logrus.Fields{
		"event":        event.Type,
		"complaint_id": event.ComplaintID,
	}).Info("[OK] Notification received")

	select {
	case h.broadcast <- n:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
