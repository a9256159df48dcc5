// Package state keeps a client-side view of the complaint collection in sync with a
// complaint API, the way a dashboard or the dispatcher consumes it.
package state

import (
	"context"
	"errors"
	"slices"
	"sync"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
	"civicfix/pkg/store"
)

// ComplaintAPI is the remote or local source the container reads and writes through.
// Both *store.ComplaintStore and *client.Client satisfy it.
type ComplaintAPI interface {
	List(ctx context.Context, filter store.ListFilter) ([]models.Complaint, error)
	GetByID(ctx context.Context, id int64) (models.Complaint, error)
	Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error)
	Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error)
	Delete(ctx context.Context, id int64) error
	ListByReporter(ctx context.Context, userID int64) ([]models.Complaint, error)
	AddComment(ctx context.Context, id int64, text, author string) (models.Complaint, error)
}

// DefaultFilters is the filter set a fresh container starts with.
func DefaultFilters() store.ListFilter {
	return store.ListFilter{Status: "all", Category: "all"}
}

// Snapshot is a copy of the container contents at one point in time.
type Snapshot struct {
	Complaints     []models.Complaint
	UserComplaints []models.Complaint
	Current        *models.Complaint
	Loading        bool
	Error          string
	Filters        store.ListFilter
}

// Container holds the fetched complaints. A failed call records its message in Error and
// leaves the collections as they were.
type Container struct {
	api ComplaintAPI

	mu             sync.RWMutex
	complaints     []models.Complaint
	userComplaints []models.Complaint
	current        *models.Complaint
	pending        int
	err            string
	filters        store.ListFilter
}

func New(api ComplaintAPI) *Container {
	return &Container{
		api:            api,
		complaints:     []models.Complaint{},
		userComplaints: []models.Complaint{},
		filters:        DefaultFilters(),
	}
}

func cloneAll(items []models.Complaint) []models.Complaint {
	out := make([]models.Complaint, len(items))
	for i, c := range items {
		out[i] = c.Clone()
	}
	return out
}

func (c *Container) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Complaints:     cloneAll(c.complaints),
		UserComplaints: cloneAll(c.userComplaints),
		Loading:        c.pending > 0,
		Error:          c.err,
		Filters:        c.filters,
	}
	if c.current != nil {
		cur := c.current.Clone()
		s.Current = &cur
	}
	return s
}

func (c *Container) Complaints() []models.Complaint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.complaints)
}

func (c *Container) UserComplaints() []models.Complaint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.userComplaints)
}

func (c *Container) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending > 0
}

func (c *Container) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Container) Filters() store.ListFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters
}

// begin marks a call in flight and clears the previous error.
func (c *Container) begin() {
	c.mu.Lock()
	c.pending++
	c.err = ""
	c.mu.Unlock()
}

// finish must be called with c.mu held.
func (c *Container) finish(err error, fallback string) {
	c.pending--
	if err != nil {
		c.err = message(err, fallback)
	}
}

func message(err error, fallback string) string {
	if apperror.KindOf(err) == apperror.KindInternal {
		return fallback
	}
	if msg := apperror.Message(err); msg != "" {
		return msg
	}
	return fallback
}

// FetchAll replaces Complaints with the API's list for filters.
func (c *Container) FetchAll(ctx context.Context, filters store.ListFilter) error {
	c.begin()
	items, err := c.api.List(ctx, filters)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to fetch complaints")
	if err != nil {
		return err
	}
	c.complaints = items
	return nil
}

// FetchUserComplaints replaces UserComplaints with the complaints userID reported.
func (c *Container) FetchUserComplaints(ctx context.Context, userID int64) error {
	c.begin()
	items, err := c.api.ListByReporter(ctx, userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to fetch your complaints")
	if err != nil {
		return err
	}
	c.userComplaints = items
	return nil
}

// FetchByID loads one complaint into Current.
func (c *Container) FetchByID(ctx context.Context, id int64) (models.Complaint, error) {
	c.begin()
	item, err := c.api.GetByID(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to fetch complaint")
	if err != nil {
		return models.Complaint{}, err
	}
	c.current = &item
	return item.Clone(), nil
}

// Create submits in and puts the result at the front of both collections.
func (c *Container) Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error) {
	c.begin()
	created, err := c.api.Create(ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to create complaint")
	if err != nil {
		return models.Complaint{}, err
	}
	c.complaints = slices.Insert(c.complaints, 0, created.Clone())
	c.userComplaints = slices.Insert(c.userComplaints, 0, created.Clone())
	return created, nil
}

// Update applies patch and swaps the returned record into whichever collections hold it.
func (c *Container) Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error) {
	c.begin()
	updated, err := c.api.Update(ctx, id, patch)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to update complaint")
	if err != nil {
		return models.Complaint{}, err
	}
	c.replace(updated)
	return updated, nil
}

// AddComment posts a comment and refreshes the complaint in place.
func (c *Container) AddComment(ctx context.Context, id int64, text, author string) (models.Complaint, error) {
	c.begin()
	updated, err := c.api.AddComment(ctx, id, text, author)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to add comment")
	if err != nil {
		return models.Complaint{}, err
	}
	c.replace(updated)
	return updated, nil
}

// Delete removes id through the API and then from both collections.
func (c *Container) Delete(ctx context.Context, id int64) error {
	c.begin()
	err := c.api.Delete(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(err, "Failed to delete complaint")
	if err != nil {
		return err
	}
	c.remove(id)
	return nil
}

// Apply stores a record received from elsewhere, such as a queue event. It replaces the
// record where present and otherwise puts it at the front of Complaints.
func (c *Container) Apply(item models.Complaint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.ContainsFunc(c.complaints, func(x models.Complaint) bool { return x.ID == item.ID }) {
		c.complaints = slices.Insert(c.complaints, 0, item.Clone())
	}
	c.replace(item)
}

// Remove drops id from both collections without calling the API.
func (c *Container) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(id)
}

// Refresh reloads one complaint from the API. A complaint that no longer exists is removed.
func (c *Container) Refresh(ctx context.Context, id int64) error {
	item, err := c.api.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		c.Remove(id)
		return nil
	}
	if err != nil {
		return err
	}
	c.Apply(item)
	return nil
}

// remove must be called with c.mu held.
func (c *Container) remove(id int64) {
	byID := func(x models.Complaint) bool { return x.ID == id }
	c.complaints = slices.DeleteFunc(c.complaints, byID)
	c.userComplaints = slices.DeleteFunc(c.userComplaints, byID)
	if c.current != nil && c.current.ID == id {
		c.current = nil
	}
}

// replace must be called with c.mu held.
func (c *Container) replace(item models.Complaint) {
	for _, list := range [][]models.Complaint{c.complaints, c.userComplaints} {
		if i := slices.IndexFunc(list, func(x models.Complaint) bool { return x.ID == item.ID }); i >= 0 {
			list[i] = item.Clone()
		}
	}
	if c.current != nil && c.current.ID == item.ID {
		cur := item.Clone()
		c.current = &cur
	}
}

// SetFilters merges f into the current filters. Empty fields keep their value.
func (c *Container) SetFilters(f store.ListFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Status != "" {
		c.filters.Status = f.Status
	}
	if f.Category != "" {
		c.filters.Category = f.Category
	}
	if f.Location != "" {
		c.filters.Location = f.Location
	}
}

func (c *Container) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = DefaultFilters()
}

func (c *Container) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = ""
}

func (c *Container) SetCurrent(item models.Complaint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := item.Clone()
	c.current = &cur
}

func (c *Container) ClearCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
