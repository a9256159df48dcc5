package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"civicfix/pkg/apperror"
	"civicfix/pkg/client"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/response"
	"civicfix/pkg/state"
	"civicfix/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.Handler, cfg client.Config) *client.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	c, err := client.New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := client.New(client.Config{})
	assert.Error(t, err)
}

func TestList_EncodesFilter(t *testing.T) {
	var got *http.Request
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		response.Success(w, http.StatusOK, "", []models.Complaint{{ID: 2, Title: "Broken Street Light"}})
	})
	c := newClient(t, h, client.Config{})

	items, err := c.List(context.Background(), store.ListFilter{Status: "in_progress", Location: "oak ave"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ID)

	assert.Equal(t, "/api/complaints", got.URL.Path)
	assert.Equal(t, "in_progress", got.URL.Query().Get("status"))
	assert.Equal(t, "oak ave", got.URL.Query().Get("location"))
	assert.False(t, got.URL.Query().Has("category"))
	assert.Empty(t, got.Header.Get("Authorization"))
}

func TestList_EmptyData(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, http.StatusOK, "", []models.Complaint{})
	})
	c := newClient(t, h, client.Config{})

	items, err := c.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestErrorsMapToKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind *apperror.Error
	}{
		{apperror.NotFound("Complaint not found"), apperror.ErrNotFound},
		{apperror.Validation("title is required"), apperror.ErrValidation},
		{apperror.Unauthorized("Invalid token"), apperror.ErrUnauthorized},
		{apperror.Forbidden("nope"), apperror.ErrForbidden},
		{apperror.Conflict("User already exists"), apperror.ErrConflict},
	}
	for _, tc := range cases {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response.FromError(w, tc.err)
		})
		c := newClient(t, h, client.Config{})

		_, err := c.GetByID(context.Background(), 1)
		assert.ErrorIs(t, err, tc.kind)
		assert.Equal(t, apperror.Message(tc.err), apperror.Message(err))
	}
}

func TestServerErrorIsInternal(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newClient(t, h, client.Config{})

	err := c.Delete(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestHeadersPropagated(t *testing.T) {
	var got http.Header
	var body map[string]interface{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		response.Success(w, http.StatusCreated, "Complaint created", models.Complaint{ID: 4})
	})
	c := newClient(t, h, client.Config{Token: "tok-123"})

	ctx := middleware.WithTraceID(context.Background(), "trace-abc")
	created, err := c.Create(ctx, models.NewComplaint{Title: "Flooded underpass"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), created.ID)

	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "trace-abc", got.Get(middleware.TraceHeader))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "Flooded underpass", body["title"])
}

func TestWithToken(t *testing.T) {
	var auths []string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		response.Success(w, http.StatusOK, "", []models.Complaint{})
	})
	base := newClient(t, h, client.Config{})

	_, err := base.WithToken("user-token").ListByReporter(context.Background(), 1)
	require.NoError(t, err)
	_, err = base.ListByReporter(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer user-token", ""}, auths)
}

func TestAssign(t *testing.T) {
	var path, internal string
	var body struct {
		ComplaintID int64           `json:"complaintId"`
		Assignee    models.Assignee `json:"assignee"`
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		internal = r.Header.Get(middleware.InternalTokenHeader)
		_ = json.NewDecoder(r.Body).Decode(&body)
		response.Success(w, http.StatusOK, "", models.Complaint{ID: body.ComplaintID, Status: models.StatusInProgress, AssignedTo: &body.Assignee})
	})
	c := newClient(t, h, client.Config{InternalToken: "s3cret"})

	out, err := c.Assign(context.Background(), 7, models.Assignee{Name: "Roads Crew", Department: "Public Works"})
	require.NoError(t, err)

	assert.Equal(t, "/internal/assign", path)
	assert.Equal(t, "s3cret", internal)
	assert.Equal(t, int64(7), body.ComplaintID)
	require.NotNil(t, out.AssignedTo)
	assert.Equal(t, "Public Works", out.AssignedTo.Department)
	assert.Equal(t, models.StatusInProgress, out.Status)
}

func TestAddComment_Path(t *testing.T) {
	var path string
	var body map[string]string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		response.Success(w, http.StatusCreated, "", models.Complaint{ID: 3})
	})
	c := newClient(t, h, client.Config{Token: "t"})

	_, err := c.AddComment(context.Background(), 3, "On it", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "/api/complaints/3/comments", path)
	assert.Equal(t, map[string]string{"text": "On it"}, body)
}

func TestContainerOverClient(t *testing.T) {
	seed := []models.Complaint{{ID: 2, Title: "Two"}, {ID: 1, Title: "One"}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/complaints", func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, http.StatusOK, "", seed)
	})
	mux.HandleFunc("DELETE /api/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			response.FromError(w, apperror.NotFound("Complaint not found"))
			return
		}
		response.Success(w, http.StatusOK, "Complaint deleted", nil)
	})
	c := newClient(t, mux, client.Config{Token: "t"})
	s := state.New(c)
	ctx := context.Background()

	require.NoError(t, s.FetchAll(ctx, store.ListFilter{}))
	assert.Len(t, s.Complaints(), 2)

	require.NoError(t, s.Delete(ctx, 1))
	assert.Len(t, s.Complaints(), 1)

	require.Error(t, s.Delete(ctx, 9))
	assert.Equal(t, "Complaint not found", s.Err())
	assert.Len(t, s.Complaints(), 1)
}
