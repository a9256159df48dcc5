package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/models"
	"civicfix/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	john  = auth.Actor{ID: 1, Name: "John Doe", Role: models.RoleUser}
	jane  = auth.Actor{ID: 2, Name: "Jane Smith", Role: models.RoleUser}
	mod   = auth.Actor{ID: 3, Name: "Maintenance", Role: models.RoleModerator}
	admin = auth.Actor{ID: 9, Name: "Admin", Role: models.RoleAdmin}
)

func newHub(t *testing.T) (*Hub, *security.Sealer) {
	t.Helper()
	key, err := security.DeriveKey("", "test-secret")
	require.NoError(t, err)
	sealer, err := security.NewSealer(key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(sealer, logger.Nop())
	go hub.Run(ctx)
	return hub, sealer
}

func connect(t *testing.T, hub *Hub, actors ...auth.Actor) []*Client {
	t.Helper()
	clients := make([]*Client, len(actors))
	for i, a := range actors {
		clients[i] = NewClient(a)
		require.True(t, hub.Register(clients[i]))
	}
	return clients
}

func received(c *Client) []Notification {
	var out []Notification
	for {
		select {
		case n := <-c.Send:
			out = append(out, n)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestHandleEvent_CreatedGoesToStaff(t *testing.T) {
	hub, _ := newHub(t)
	clients := connect(t, hub, john, jane, mod, admin)

	require.NoError(t, hub.HandleEvent(context.Background(), models.ComplaintEvent{
		Type:        models.EventCreated,
		ComplaintID: 4,
		Title:       "Broken bench",
		OwnerID:     john.ID,
		ActorID:     john.ID,
		ByOwner:     true,
	}))

	assert.Empty(t, received(clients[0]))
	assert.Empty(t, received(clients[1]))
	got := received(clients[2])
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].ComplaintID)
	assert.NotEmpty(t, got[0].ID)
	assert.Len(t, received(clients[3]), 1)
}

func TestHandleEvent_StatusUpdateGoesToOwner(t *testing.T) {
	hub, _ := newHub(t)
	clients := connect(t, hub, john, jane, mod)

	require.NoError(t, hub.HandleEvent(context.Background(), models.ComplaintEvent{
		Type:        models.EventStatusUpdate,
		ComplaintID: 1,
		Status:      models.StatusResolved,
		OwnerID:     john.ID,
		ActorID:     mod.ID,
	}))

	got := received(clients[0])
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusResolved, got[0].Status)
	assert.Empty(t, received(clients[1]))
	assert.Empty(t, received(clients[2]))
}

func TestHandleEvent_AnonymousOwnerResolved(t *testing.T) {
	hub, sealer := newHub(t)
	clients := connect(t, hub, john, jane)

	sealed, err := sealer.SealID(jane.ID)
	require.NoError(t, err)

	require.NoError(t, hub.HandleEvent(context.Background(), models.ComplaintEvent{
		Type:        models.EventStatusUpdate,
		ComplaintID: 3,
		OwnerIDEnc:  sealed,
	}))

	assert.Empty(t, received(clients[0]))
	assert.Len(t, received(clients[1]), 1)
}

func TestHandleEvent_OwnerActionsNotEchoed(t *testing.T) {
	hub, sealer := newHub(t)
	clients := connect(t, hub, john)

	sealed, err := sealer.SealID(john.ID)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, hub.HandleEvent(ctx, models.ComplaintEvent{
		Type: models.EventUpdated, ComplaintID: 1, OwnerID: john.ID, ActorID: john.ID, ByOwner: true,
	}))
	require.NoError(t, hub.HandleEvent(ctx, models.ComplaintEvent{
		Type: models.EventCommented, ComplaintID: 3, OwnerIDEnc: sealed, ByOwner: true,
	}))
	require.NoError(t, hub.HandleEvent(ctx, models.ComplaintEvent{
		Type: models.EventCommented, ComplaintID: 3, OwnerIDEnc: "garbage", ActorID: jane.ID,
	}))
	assert.Empty(t, received(clients[0]))

	require.NoError(t, hub.HandleEvent(ctx, models.ComplaintEvent{
		Type: models.EventCommented, ComplaintID: 3, OwnerIDEnc: sealed, ActorID: jane.ID,
	}))
	assert.Len(t, received(clients[0]), 1)
}

func TestHub_ClientsAndShutdown(t *testing.T) {
	key, err := security.DeriveKey("", "test-secret")
	require.NoError(t, err)
	sealer, err := security.NewSealer(key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(sealer, logger.Nop())
	go hub.Run(ctx)

	clients := connect(t, hub, john, jane)
	assert.Equal(t, 2, hub.Clients())

	hub.Unregister(clients[0])
	assert.Equal(t, 1, hub.Clients())
	_, open := <-clients[0].Send
	assert.False(t, open)

	cancel()
	_, open = <-clients[1].Send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Clients())
	assert.False(t, hub.Register(NewClient(john)))
	assert.NoError(t, hub.HandleEvent(context.Background(), models.ComplaintEvent{Type: models.EventCreated}))
}

func TestSubscribeHandler(t *testing.T) {
	hub, _ := newHub(t)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	srv := &server{hub: hub, authn: auth.NewVerifier(tokens, nil), log: logger.Nop()}

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	t.Run("missing token", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/subscribe")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/notifications/subscribe?token=nope")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("stream", func(t *testing.T) {
		token, _, err := tokens.Issue(models.User{ID: john.ID, Name: john.Name, Email: "john@example.com", Role: models.RoleUser})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/notifications/subscribe", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
		assert.NotEmpty(t, res.Header.Get("X-Trace-Id"))

		lines := bufio.NewScanner(res.Body)
		next := func() string {
			for lines.Scan() {
				if line := lines.Text(); strings.HasPrefix(line, "data: ") {
					return strings.TrimPrefix(line, "data: ")
				}
			}
			return ""
		}

		assert.JSONEq(t, connectedMessage, next())
		assert.Equal(t, 1, hub.Clients())

		require.NoError(t, hub.HandleEvent(context.Background(), models.ComplaintEvent{
			Type:        models.EventStatusUpdate,
			ComplaintID: 1,
			Title:       "Pothole on Main Street",
			Status:      models.StatusInProgress,
			OwnerID:     john.ID,
			ActorID:     mod.ID,
		}))

		var n Notification
		require.NoError(t, json.Unmarshal([]byte(next()), &n))
		assert.Equal(t, models.EventStatusUpdate, n.Type)
		assert.Equal(t, "Pothole on Main Street", n.Title)
		assert.Equal(t, models.StatusInProgress, n.Status)
	})

	t.Run("health", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		assert.Equal(t, "notification-service", body["service"])
		assert.Contains(t, body, "connected_clients")
	})
}
