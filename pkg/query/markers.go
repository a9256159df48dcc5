package query

import (
	"time"

	"civicfix/pkg/models"
)

// Marker is what the map collaborator needs to place and describe one complaint.
type Marker struct {
	ID          int64              `json:"id"`
	Coordinates models.Coordinates `json:"coordinates"`
	Status      models.Status      `json:"status"`
	Priority    models.Priority    `json:"priority"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Address     string             `json:"address"`
	ReportedAt  time.Time          `json:"reportedAt"`
}

// Markers keeps complaints that match the category, status and priority filters of spec
// and have coordinates. Search and date range do not apply to the map.
func Markers(items []models.Complaint, spec Spec) []Marker {
	out := make([]Marker, 0, len(items))
	for _, c := range items {
		if c.Location.Coordinates == nil {
			continue
		}
		if !selected(spec.Category, string(c.Category)) ||
			!selected(spec.Status, string(c.Status)) ||
			!selected(spec.Priority, string(c.Priority)) {
			continue
		}
		out = append(out, Marker{
			ID:          c.ID,
			Coordinates: *c.Location.Coordinates,
			Status:      c.Status,
			Priority:    c.Priority,
			Title:       c.Title,
			Description: c.Description,
			Address:     c.Location.Address,
			ReportedAt:  c.ReportedAt,
		})
	}
	return out
}
