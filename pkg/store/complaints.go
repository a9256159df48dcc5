// Package store holds the complaint and user repositories: the seeded in-memory mock API
// with simulated latency, and the MongoDB and PostgreSQL backed variants.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
)

// ListFilter narrows List. Empty fields and "all" disable a filter.
type ListFilter struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Location string `json:"location"`
}

func (f ListFilter) match(c models.Complaint) bool {
	if f.Status != "" && f.Status != "all" && string(c.Status) != f.Status {
		return false
	}
	if f.Category != "" && f.Category != "all" && string(c.Category) != f.Category {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(c.Location.Address), strings.ToLower(f.Location)) {
		return false
	}
	return true
}

// ComplaintRepository is implemented by every complaint backend.
type ComplaintRepository interface {
	List(ctx context.Context, filter ListFilter) ([]models.Complaint, error)
	GetByID(ctx context.Context, id int64) (models.Complaint, error)
	Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error)
	Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error)
	Delete(ctx context.Context, id int64) error
	ListByReporter(ctx context.Context, userID int64) ([]models.Complaint, error)
	AddComment(ctx context.Context, id int64, text, author string) (models.Complaint, error)
}

var errComplaintNotFound = apperror.NotFound("Complaint not found")

var _ ComplaintRepository = (*ComplaintStore)(nil)

// ComplaintStore is the in-memory complaint collection. Records are kept newest first.
type ComplaintStore struct {
	mu            sync.RWMutex
	items         []models.Complaint
	nextID        int64
	nextCommentID int64
	latency       Latency
	now           func() time.Time
}

type ComplaintOption func(*ComplaintStore)

func WithLatency(l Latency) ComplaintOption {
	return func(s *ComplaintStore) { s.latency = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ComplaintOption {
	return func(s *ComplaintStore) { s.now = now }
}

// WithComplaints replaces the seed dataset. Items are expected newest first.
func WithComplaints(items []models.Complaint) ComplaintOption {
	return func(s *ComplaintStore) { s.items = items }
}

func NewComplaintStore(opts ...ComplaintOption) *ComplaintStore {
	s := &ComplaintStore{
		items:   SeedComplaints(),
		latency: DefaultLatency(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	items := make([]models.Complaint, len(s.items))
	for i, c := range s.items {
		items[i] = c.Clone()
		s.nextID = max(s.nextID, c.ID)
		for _, cm := range c.Comments {
			s.nextCommentID = max(s.nextCommentID, cm.ID)
		}
	}
	s.items = items
	s.nextID++
	s.nextCommentID++
	return s
}

func (s *ComplaintStore) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(c models.Complaint) bool { return c.ID == id })
}

func (s *ComplaintStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *ComplaintStore) List(ctx context.Context, filter ListFilter) ([]models.Complaint, error) {
	if err := wait(ctx, s.latency.List); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Complaint, 0, len(s.items))
	for _, c := range s.items {
		if filter.match(c) {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *ComplaintStore) GetByID(ctx context.Context, id int64) (models.Complaint, error) {
	if err := wait(ctx, s.latency.Get); err != nil {
		return models.Complaint{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Complaint{}, errComplaintNotFound
	}
	return s.items[i].Clone(), nil
}

func (s *ComplaintStore) Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error) {
	in = in.Normalized()
	if err := models.Validate(in); err != nil {
		return models.Complaint{}, err
	}
	if err := wait(ctx, s.latency.Create); err != nil {
		return models.Complaint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	c := newRecord(in, s.nextID, now)
	s.nextID++

	s.items = slices.Insert(s.items, 0, c)
	return c.Clone(), nil
}

func (s *ComplaintStore) Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error) {
	patch = patch.Normalized()
	if err := models.Validate(patch); err != nil {
		return models.Complaint{}, err
	}
	if err := wait(ctx, s.latency.Update); err != nil {
		return models.Complaint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Complaint{}, errComplaintNotFound
	}

	c := s.items[i].Clone()
	patch.Apply(&c)
	c.UpdatedAt = touch(c, s.now())

	s.items[i] = c
	return c.Clone(), nil
}

func (s *ComplaintStore) Delete(ctx context.Context, id int64) error {
	if err := wait(ctx, s.latency.Delete); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return errComplaintNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *ComplaintStore) ListByReporter(ctx context.Context, userID int64) ([]models.Complaint, error) {
	if err := wait(ctx, s.latency.ByReporter); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Complaint{}
	for _, c := range s.items {
		if c.ReportedBy.ID == userID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *ComplaintStore) AddComment(ctx context.Context, id int64, text, author string) (models.Complaint, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Complaint{}, apperror.Validation("comment text is required")
	}
	if err := wait(ctx, s.latency.Comment); err != nil {
		return models.Complaint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Complaint{}, errComplaintNotFound
	}

	now := s.now().UTC()
	c := s.items[i].Clone()
	c.Comments = append(c.Comments, models.Comment{
		ID:        s.nextCommentID,
		Text:      text,
		Author:    author,
		Timestamp: now,
	})
	s.nextCommentID++
	c.UpdatedAt = touch(c, now)

	s.items[i] = c
	return c.Clone(), nil
}

func newRecord(in models.NewComplaint, id int64, now time.Time) models.Complaint {
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	images := slices.Clone(in.Images)
	if images == nil {
		images = []string{}
	}
	c := models.Complaint{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Status:      models.StatusPending,
		Priority:    priority,
		Location:    in.Location,
		Images:      images,
		ReportedBy:  in.ReportedBy,
		AssignedTo:  nil,
		Comments:    []models.Comment{},
		Anonymous:   in.Anonymous,
		ReportedAt:  now,
		UpdatedAt:   now,
	}
	return c.Clone()
}

// touch returns the new updatedAt for c, never earlier than its reportedAt.
func touch(c models.Complaint, now time.Time) time.Time {
	now = now.UTC()
	if now.Before(c.ReportedAt) {
		return c.ReportedAt
	}
	return now
}
