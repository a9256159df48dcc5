// Package service holds the complaint use cases shared by the HTTP handlers: access
// control, reporter masking, event publication and the cached dashboard.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/models"
	"civicfix/pkg/query"
	"civicfix/pkg/queue"
	"civicfix/pkg/security"
	"civicfix/pkg/store"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	dashboardCacheSize = 256
	dashboardTTL       = time.Minute
)

type cachedDashboard struct {
	data      query.Dashboard
	expiresAt time.Time
}

type ComplaintService struct {
	repo   store.ComplaintRepository
	events queue.Publisher
	sealer *security.Sealer
	log    *logger.Logger
	now    func() time.Time

	revision   atomic.Uint64
	dashboards *lru.Cache[string, cachedDashboard]
}

type Option func(*ComplaintService)

func WithPublisher(p queue.Publisher) Option {
	return func(s *ComplaintService) { s.events = p }
}

// WithSealer encrypts the owner id of anonymous complaints in published events.
func WithSealer(sealer *security.Sealer) Option {
	return func(s *ComplaintService) { s.sealer = sealer }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *ComplaintService) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *ComplaintService) { s.now = now }
}

func NewComplaintService(repo store.ComplaintRepository, opts ...Option) (*ComplaintService, error) {
	cache, err := lru.New[string, cachedDashboard](dashboardCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard cache: %w", err)
	}

	s := &ComplaintService{
		repo:       repo,
		events:     queue.NopPublisher{},
		log:        logger.Nop(),
		now:        time.Now,
		dashboards: cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func viewer(a auth.Actor) query.Viewer {
	return query.Viewer{ID: a.ID, Role: a.Role}
}

func mask(items []models.Complaint, actor auth.Actor) []models.Complaint {
	v := viewer(actor)
	for i := range items {
		items[i] = query.MaskReporter(items[i], v)
	}
	return items
}

// List returns the store's list, filtered the way the mock API filters it.
func (s *ComplaintService) List(ctx context.Context, actor auth.Actor, filter store.ListFilter) ([]models.Complaint, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return mask(items, actor), nil
}

// Query runs the full search, filter, sort and paginate pipeline over every complaint.
func (s *ComplaintService) Query(ctx context.Context, actor auth.Actor, spec query.Spec) (query.View, error) {
	if spec.Scope == query.ScopeMine && !actor.Authenticated() {
		return query.View{}, apperror.Unauthorized("Authentication required")
	}
	items, err := s.repo.List(ctx, store.ListFilter{})
	if err != nil {
		return query.View{}, err
	}
	return query.Run(items, spec, viewer(actor), s.now()), nil
}

// Mine lists the complaints the actor reported.
func (s *ComplaintService) Mine(ctx context.Context, actor auth.Actor) ([]models.Complaint, error) {
	if !actor.Authenticated() {
		return nil, apperror.Unauthorized("Authentication required")
	}
	return s.repo.ListByReporter(ctx, actor.ID)
}

// ByReporter lists the complaints userID reported. Users may only list their own; staff
// may list anyone's.
func (s *ComplaintService) ByReporter(ctx context.Context, actor auth.Actor, userID int64) ([]models.Complaint, error) {
	if !actor.Authenticated() {
		return nil, apperror.Unauthorized("Authentication required")
	}
	if actor.ID != userID && !actor.Staff() {
		return nil, apperror.Forbidden("You can only list your own complaints")
	}
	return s.repo.ListByReporter(ctx, userID)
}

func (s *ComplaintService) Get(ctx context.Context, actor auth.Actor, id int64) (models.Complaint, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Complaint{}, err
	}
	return query.MaskReporter(c, viewer(actor)), nil
}

// Create files a complaint on behalf of actor. The reporter always comes from the token.
func (s *ComplaintService) Create(ctx context.Context, actor auth.Actor, in models.NewComplaint) (models.Complaint, error) {
	if err := auth.Authorize(actor, 0, auth.ActionCreate); err != nil {
		return models.Complaint{}, err
	}
	in.ReportedBy = actor.Reporter()

	c, err := s.repo.Create(ctx, in)
	if err != nil {
		return models.Complaint{}, err
	}
	s.changed()
	s.publish(ctx, models.EventCreated, c, actor, "New complaint: "+c.Title)
	return c, nil
}

func requiredActions(p models.ComplaintPatch) []auth.Action {
	var actions []auth.Action
	rest := p
	rest.Status = nil
	rest.AssignedTo = nil
	if !rest.Empty() {
		actions = append(actions, auth.ActionEdit)
	}
	if p.Status != nil {
		actions = append(actions, auth.ActionUpdateStatus)
	}
	if p.AssignedTo != nil {
		actions = append(actions, auth.ActionAssign)
	}
	return actions
}

// Update applies patch. Content edits need ownership, status and assignment changes need
// a staff role, and admins may do everything.
func (s *ComplaintService) Update(ctx context.Context, actor auth.Actor, id int64, patch models.ComplaintPatch) (models.Complaint, error) {
	if !actor.Authenticated() {
		return models.Complaint{}, apperror.Unauthorized("Authentication required")
	}
	if patch.Empty() {
		return models.Complaint{}, apperror.Validation("Nothing to update")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Complaint{}, err
	}
	for _, action := range requiredActions(patch) {
		if err := auth.Authorize(actor, current.ReportedBy.ID, action); err != nil {
			return models.Complaint{}, err
		}
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return models.Complaint{}, err
	}
	s.changed()

	if patch.Status != nil && current.Status != updated.Status {
		s.publish(ctx, models.EventStatusUpdate, updated, actor,
			fmt.Sprintf("Status of %q changed to %s", updated.Title, updated.Status))
	} else {
		s.publish(ctx, models.EventUpdated, updated, actor, "Complaint updated: "+updated.Title)
	}
	return updated, nil
}

func (s *ComplaintService) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(actor, current.ReportedBy.ID, auth.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.changed()
	s.publish(ctx, models.EventDeleted, current, actor, "Complaint deleted: "+current.Title)
	return nil
}

func (s *ComplaintService) AddComment(ctx context.Context, actor auth.Actor, id int64, text string) (models.Complaint, error) {
	if err := auth.Authorize(actor, 0, auth.ActionComment); err != nil {
		return models.Complaint{}, err
	}
	if strings.TrimSpace(text) == "" {
		return models.Complaint{}, apperror.Validation("comment text is required")
	}

	c, err := s.repo.AddComment(ctx, id, text, actor.Name)
	if err != nil {
		return models.Complaint{}, err
	}
	s.changed()
	s.publish(ctx, models.EventCommented, c, actor, actor.Name+" commented on "+c.Title)
	return query.MaskReporter(c, viewer(actor)), nil
}

// Assignment routes a complaint to a team. It is issued by the dispatcher, not by users.
type Assignment struct {
	ComplaintID int64           `json:"complaintId" validate:"required,gt=0"`
	Assignee    models.Assignee `json:"assignee"`
}

// Assign records the assignee and moves a pending complaint to in_progress.
func (s *ComplaintService) Assign(ctx context.Context, a Assignment) (models.Complaint, error) {
	if err := models.Validate(a); err != nil {
		return models.Complaint{}, err
	}
	if strings.TrimSpace(a.Assignee.Department) == "" && strings.TrimSpace(a.Assignee.Name) == "" {
		return models.Complaint{}, apperror.Validation("assignee is required")
	}

	current, err := s.repo.GetByID(ctx, a.ComplaintID)
	if err != nil {
		return models.Complaint{}, err
	}

	patch := models.ComplaintPatch{AssignedTo: &a.Assignee}
	if current.Status == models.StatusPending {
		inProgress := models.StatusInProgress
		patch.Status = &inProgress
	}

	updated, err := s.repo.Update(ctx, a.ComplaintID, patch)
	if err != nil {
		return models.Complaint{}, err
	}
	s.changed()

	msg := fmt.Sprintf("%q was assigned to %s", updated.Title, a.Assignee.Department)
	if patch.Status != nil {
		s.publish(ctx, models.EventStatusUpdate, updated, auth.Actor{}, msg)
	} else {
		s.publish(ctx, models.EventUpdated, updated, auth.Actor{}, msg)
	}
	return updated, nil
}

func dashboardKey(rev uint64, actor auth.Actor) string {
	switch {
	case actor.Staff():
		return fmt.Sprintf("%d:staff", rev)
	case actor.Authenticated():
		return fmt.Sprintf("%d:user:%d", rev, actor.ID)
	default:
		return fmt.Sprintf("%d:visitor", rev)
	}
}

// Dashboard returns the summary stats. Results are cached per store revision and viewer
// class, and expire after a minute so the week and month windows keep moving.
func (s *ComplaintService) Dashboard(ctx context.Context, actor auth.Actor) (query.Dashboard, error) {
	now := s.now()
	key := dashboardKey(s.revision.Load(), actor)
	if hit, ok := s.dashboards.Get(key); ok && now.Before(hit.expiresAt) {
		return hit.data, nil
	}

	items, err := s.repo.List(ctx, store.ListFilter{})
	if err != nil {
		return query.Dashboard{}, err
	}
	d := query.BuildDashboard(items, viewer(actor), now)
	s.dashboards.Add(key, cachedDashboard{data: d, expiresAt: now.Add(dashboardTTL)})
	return d, nil
}

// Markers returns the map payload for the complaints matching spec's category, status and
// priority.
func (s *ComplaintService) Markers(ctx context.Context, spec query.Spec) ([]query.Marker, error) {
	items, err := s.repo.List(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}
	return query.Markers(items, spec), nil
}

func (s *ComplaintService) changed() {
	s.revision.Add(1)
}

func (s *ComplaintService) publish(ctx context.Context, t models.EventType, c models.Complaint, actor auth.Actor, message string) {
	event := models.ComplaintEvent{
		Type:        t,
		ComplaintID: c.ID,
		Title:       c.Title,
		Category:    c.Category,
		Status:      c.Status,
		Priority:    c.Priority,
		OwnerID:     c.ReportedBy.ID,
		ActorID:     actor.ID,
		ByOwner:     actor.Authenticated() && actor.ID == c.ReportedBy.ID,
		Message:     message,
		CreatedAt:   s.now().UTC(),
	}

	if c.Anonymous {
		event.OwnerID = 0
		if s.sealer != nil {
			sealed, err := s.sealer.SealID(c.ReportedBy.ID)
			if err != nil {
				s.log.WithError(err).Warn("Failed to seal owner id")
			}
			event.OwnerIDEnc = sealed
		}
		if event.ByOwner {
			event.ActorID = 0
		}
	}

	entry := s.log.WithFields(logrus.Fields{"event": t, "complaint_id": c.ID})
	if err := s.events.Publish(ctx, event); err != nil {
		entry.WithError(err).Warn("Complaint saved but failed to publish event")
		return
	}
	entry.Debug("Event published")
}
