package main

import (
	"context"
	"errors"
	"fmt"

	"civicfix/pkg/apperror"
	"civicfix/pkg/logger"
	"civicfix/pkg/models"
	"civicfix/pkg/query"
	"civicfix/pkg/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var complaintsDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "complaints_dispatched_total",
		Help: "Complaints routed to a department, by department and result",
	},
	[]string{"department", "result"},
)

// routes maps each category to the team that handles it.
var routes = map[models.Category]models.Assignee{
	models.CategoryRoads:           {ID: 101, Name: "Road Maintenance Crew", Department: "Public Works"},
	models.CategoryStreetLights:    {ID: 3, Name: "City Maintenance Team", Department: "Public Works"},
	models.CategorySanitation:      {ID: 4, Name: "Sanitation Department", Department: "Public Works"},
	models.CategoryWaterSupply:     {ID: 102, Name: "Water Utility Crew", Department: "Water & Sewer"},
	models.CategoryElectricity:     {ID: 103, Name: "Electrical Services", Department: "Utilities"},
	models.CategoryPublicTransport: {ID: 104, Name: "Transit Operations", Department: "Transportation"},
	models.CategoryParks:           {ID: 105, Name: "Parks Maintenance", Department: "Parks & Recreation"},
	models.CategoryNoisePollution:  {ID: 106, Name: "Noise Control Unit", Department: "Environmental Health"},
	models.CategoryAirPollution:    {ID: 107, Name: "Air Quality Unit", Department: "Environmental Health"},
}

// fallbackRoute handles Other and any category added later.
var fallbackRoute = models.Assignee{ID: 100, Name: "Citizen Services Desk", Department: "City Administration"}

// routeFor returns the team a complaint of category c goes to.
func routeFor(c models.Category) models.Assignee {
	if a, ok := routes[c]; ok {
		return a
	}
	return fallbackRoute
}

// assigner records an assignment on the complaint service. Satisfied by *client.Client.
type assigner interface {
	Assign(ctx context.Context, complaintID int64, assignee models.Assignee) (models.Complaint, error)
}

type dispatcher struct {
	api  assigner
	view *state.Container
	log  *logger.Logger
}

// handle routes new complaints and keeps the local view in step with every other event.
func (d *dispatcher) handle(ctx context.Context, event models.ComplaintEvent) error {
	switch event.Type {
	case models.EventCreated:
		return d.dispatch(ctx, event)
	case models.EventDeleted:
		d.view.Remove(event.ComplaintID)
		return nil
	default:
		return d.view.Refresh(ctx, event.ComplaintID)
	}
}

func (d *dispatcher) dispatch(ctx context.Context, event models.ComplaintEvent) error {
	team := routeFor(event.Category)
	entry := d.log.WithFields(logrus.Fields{
		"complaint_id": event.ComplaintID,
		"category":     event.Category,
		"department":   team.Department,
	})

	updated, err := d.api.Assign(ctx, event.ComplaintID, team)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		// Deleted before we got to it.
		entry.Warn("[WARN] Complaint no longer exists, skipping")
		complaintsDispatched.WithLabelValues(team.Department, "skipped").Inc()
		d.view.Remove(event.ComplaintID)
		return nil
	case err != nil:
		complaintsDispatched.WithLabelValues(team.Department, "failed").Inc()
		return fmt.Errorf("assign complaint %d: %w", event.ComplaintID, err)
	}

	complaintsDispatched.WithLabelValues(team.Department, "assigned").Inc()
	d.view.Apply(updated)
	entry.Infof("[ROUTING] %q forwarded to %s (%s)", event.Title, team.Name, team.Department)
	return nil
}

// summary counts the tracked complaints per status, bucketed like the dashboard.
func (d *dispatcher) summary() map[string]interface{} {
	items := d.view.Complaints()
	unassigned := 0
	for _, c := range items {
		if c.AssignedTo == nil {
			unassigned++
		}
	}
	return map[string]interface{}{
		"tracked":    len(items),
		"byStatus":   query.CountByStatus(items),
		"unassigned": unassigned,
	}
}
