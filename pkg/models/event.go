package models

import "time"

type EventType string

const (
	EventCreated      EventType = "complaint.created"
	EventUpdated      EventType = "complaint.updated"
	EventStatusUpdate EventType = "complaint.status_update"
	EventCommented    EventType = "complaint.commented"
	EventDeleted      EventType = "complaint.deleted"
)

// ComplaintEvent is published on the message queue after every successful mutation.
// For anonymous complaints OwnerID is zero and OwnerIDEnc carries the encrypted id.
// ByOwner is set when the reporter made the change.
type ComplaintEvent struct {
	Type        EventType `json:"type"`
	ComplaintID int64     `json:"complaint_id"`
	Title       string    `json:"title"`
	Category    Category  `json:"category,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	OwnerID     int64     `json:"owner_id,omitempty"`
	OwnerIDEnc  string    `json:"owner_id_enc,omitempty"`
	ActorID     int64     `json:"actor_id,omitempty"`
	ByOwner     bool      `json:"by_owner,omitempty"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
