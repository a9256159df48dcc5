package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
	"civicfix/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newStore(t *testing.T) (*store.ComplaintStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
	return store.NewComplaintStore(store.WithLatency(store.NoLatency()), store.WithClock(clock.Now)), clock
}

func newComplaint() models.NewComplaint {
	return models.NewComplaint{
		Title:       "Overflowing drain",
		Description: "Storm drain overflows every time it rains on this corner",
		Category:    models.CategoryWaterSupply,
		Location:    models.Location{Address: "12 River Road"},
		ReportedBy:  models.Reporter{ID: 1, Name: "John Doe", Email: "john@example.com"},
	}
}

func TestComplaintStore_List(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	all, err := s.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byStatus, err := s.List(ctx, store.ListFilter{Status: "resolved", Category: "all"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, int64(3), byStatus[0].ID)

	byCategory, err := s.List(ctx, store.ListFilter{Status: "all", Category: "Street Lights"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, int64(2), byCategory[0].ID)

	byLocation, err := s.List(ctx, store.ListFilter{Location: "main STREET"})
	require.NoError(t, err)
	require.Len(t, byLocation, 1)
	assert.Equal(t, int64(1), byLocation[0].ID)
}

func TestComplaintStore_ListReturnsCopies(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	first[0].Title = "changed"
	first[0].Images[0] = "changed"
	first = first[:0]

	again, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Pothole on Main Street", again.Title)
	assert.NotEqual(t, "changed", again.Images[0])
	assert.Equal(t, 3, s.Len())
}

func TestComplaintStore_GetByID(t *testing.T) {
	s, _ := newStore(t)

	c, err := s.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Broken Street Light", c.Title)

	_, err = s.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestComplaintStore_CreateDefaults(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	c, err := s.Create(ctx, newComplaint())
	require.NoError(t, err)

	assert.Equal(t, int64(4), c.ID)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, models.PriorityMedium, c.Priority)
	assert.NotNil(t, c.Comments)
	assert.Empty(t, c.Comments)
	assert.Nil(t, c.AssignedTo)
	assert.Equal(t, clock.Now(), c.ReportedAt)
	assert.Equal(t, c.ReportedAt, c.UpdatedAt)

	all, err := s.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all[0].ID, "new complaints go to the front")
}

func TestComplaintStore_CreateValidates(t *testing.T) {
	s, _ := newStore(t)

	in := newComplaint()
	in.Location.Address = ""
	_, err := s.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, 3, s.Len())
}

func TestComplaintStore_BlankFieldsRejected(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	blank := models.NewComplaint{
		Title:       "        ",
		Description: "                        ",
		Category:    models.CategoryOther,
		Location:    models.Location{Address: "   "},
	}
	_, err := s.Create(ctx, blank)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	in := newComplaint()
	in.Location.Address = "   "
	_, err = s.Create(ctx, in)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, 3, s.Len())

	spaces := "      "
	_, err = s.Update(ctx, 1, models.ComplaintPatch{Title: &spaces})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = s.Update(ctx, 1, models.ComplaintPatch{Location: &models.Location{Address: "  "}})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	c, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, spaces, c.Title)
	assert.NotEmpty(t, c.Location.Address)
}

func TestComplaintStore_TrimsText(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	in := newComplaint()
	in.Title = "  " + in.Title + "  "
	in.Location.Address = " 12 River Road\n"
	c, err := s.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Overflowing drain", c.Title)
	assert.Equal(t, "12 River Road", c.Location.Address)

	title := "  Drain fixed badly  "
	updated, err := s.Update(ctx, c.ID, models.ComplaintPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Drain fixed badly", updated.Title)
	assert.Equal(t, "  Drain fixed badly  ", title, "caller's value untouched")
}

func TestComplaintStore_IDsAreNeverReused(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	c, err := s.Create(ctx, newComplaint())
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, c.ID))

	next, err := s.Create(ctx, newComplaint())
	require.NoError(t, err)
	assert.Equal(t, c.ID+1, next.ID)
}

func TestComplaintStore_UpdateStatusScenario(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	before, err := s.GetByID(ctx, 2)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	resolved := models.StatusResolved
	after, err := s.Update(ctx, 2, models.ComplaintPatch{Status: &resolved})
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, after.Status)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	after.Status = before.Status
	after.UpdatedAt = before.UpdatedAt
	assert.Equal(t, before, after, "all other fields unchanged")
}

func TestComplaintStore_UpdateErrors(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	resolved := models.StatusResolved
	_, err := s.Update(ctx, 42, models.ComplaintPatch{Status: &resolved})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	bogus := models.Status("closed")
	_, err = s.Update(ctx, 1, models.ComplaintPatch{Status: &bogus})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	c, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)
}

func TestComplaintStore_UpdatedAtNeverBeforeReportedAt(t *testing.T) {
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []models.Complaint{{ID: 1, Status: models.StatusPending, ReportedAt: future, UpdatedAt: future}}
	s := store.NewComplaintStore(store.WithLatency(store.NoLatency()), store.WithComplaints(seed))

	title := "Renamed complaint"
	c, err := s.Update(context.Background(), 1, models.ComplaintPatch{Title: &title})
	require.NoError(t, err)
	assert.False(t, c.UpdatedAt.Before(c.ReportedAt))
}

func TestComplaintStore_DeleteScenario(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	err := s.Delete(ctx, 99)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Delete(ctx, 2))
	assert.Equal(t, 2, s.Len())
	_, err = s.GetByID(ctx, 2)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestComplaintStore_ListByReporter(t *testing.T) {
	s, _ := newStore(t)

	mine, err := s.ListByReporter(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, int64(1), mine[0].ID)
	assert.Equal(t, int64(3), mine[1].ID)

	none, err := s.ListByReporter(context.Background(), 77)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestComplaintStore_AddComment(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	clock.Advance(time.Minute)
	c, err := s.AddComment(ctx, 1, "  Still there this morning  ", "Jane Smith")
	require.NoError(t, err)
	require.Len(t, c.Comments, 2)

	last := c.Comments[1]
	assert.Equal(t, int64(4), last.ID)
	assert.Equal(t, "Still there this morning", last.Text)
	assert.Equal(t, clock.Now(), last.Timestamp)
	assert.Equal(t, clock.Now(), c.UpdatedAt)

	_, err = s.AddComment(ctx, 1, "   ", "Jane Smith")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = s.AddComment(ctx, 99, "hello", "Jane Smith")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestComplaintStore_SimulatedLatencyHonoursContext(t *testing.T) {
	s := store.NewComplaintStore(store.WithLatency(store.Latency{List: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.List(ctx, store.ListFilter{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestComplaintStore_SimulatedLatencyDelays(t *testing.T) {
	s := store.NewComplaintStore(store.WithLatency(store.Latency{Get: 30 * time.Millisecond}))

	start := time.Now()
	_, err := s.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestComplaintStore_ConcurrentUpdatesLastWriteWins(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := models.Statuses[i%len(models.Statuses)]
			_, err := s.Update(ctx, 1, models.ComplaintPatch{Status: &st})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, c.Status.Valid())
}
