package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pubsub"
)

type stubHealth pubsub.State

func (s stubHealth) Health(context.Context) pubsub.State { return pubsub.State(s) }

type stubConnections int

func (s stubConnections) ConnectionCount() int { return int(s) }

func TestHealth(t *testing.T) {
	tests := []struct {
		state  pubsub.State
		status int
	}{
		{pubsub.StateHealthy, http.StatusOK},
		{pubsub.StateDegraded, http.StatusOK},
		{pubsub.StateUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			h := NewHealthHandler(stubHealth(tt.state), stubConnections(3), "node-a", "test")
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.state, body.Status)
			assert.Equal(t, "node-a", body.InstanceID)
			assert.Equal(t, 3, body.Connections)
		})
	}
}

type stubPresence struct {
	presence map[string]*models.Presence
	typing   []models.TypingIndicator
	unread   int64
	err      error
}

func (s *stubPresence) GetPresence(_ context.Context, userID string) (*models.Presence, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.presence[userID]; ok {
		return p, nil
	}
	return &models.Presence{UserID: userID, Status: models.UserStatusOffline}, nil
}

func (s *stubPresence) GetTypingForRoom(context.Context, string) ([]models.TypingIndicator, error) {
	return s.typing, s.err
}

func (s *stubPresence) GetUnreadCount(context.Context, string, string) (int64, error) {
	return s.unread, s.err
}

type stubMembers map[string]bool

func (s stubMembers) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	return s[userID+"/"+roomID], nil
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestGetPresence(t *testing.T) {
	presence := &stubPresence{presence: map[string]*models.Presence{
		"alice": {UserID: "alice", Status: models.UserStatusDND, LastSeen: time.Now()},
	}}
	h := NewPresenceHandler(presence, stubMembers{})

	req := httptest.NewRequest(http.MethodGet, "/api/presence/alice", nil)
	req.SetPathValue("userId", "alice")
	rec := httptest.NewRecorder()
	h.GetPresence(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Presence
	decodeData(t, rec, &p)
	assert.Equal(t, models.UserStatusDND, p.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/presence/ghost", nil)
	req.SetPathValue("userId", "ghost")
	rec = httptest.NewRecorder()
	h.GetPresence(rec, req)
	decodeData(t, rec, &p)
	assert.Equal(t, models.UserStatusOffline, p.Status)

	presence.err = fmt.Errorf("%w: get", pkg.ErrStoreUnavailable)
	rec = httptest.NewRecorder()
	h.GetPresence(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoomState(t *testing.T) {
	presence := &stubPresence{
		typing: []models.TypingIndicator{{RoomID: "R1", UserID: "bob", UserName: "bob"}},
		unread: 4,
	}
	h := NewPresenceHandler(presence, stubMembers{"alice/R1": true})

	request := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms/R1/state", nil)
		req.SetPathValue("roomId", "R1")
		claims := &models.TokenClaims{UserID: userID}
		req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, claims))
		rec := httptest.NewRecorder()
		h.RoomState(rec, req)
		return rec
	}

	rec := request("alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		RoomID      string                   `json:"room_id"`
		Typing      []models.TypingIndicator `json:"typing"`
		UnreadCount int64                    `json:"unread_count"`
	}
	decodeData(t, rec, &state)
	assert.Equal(t, "R1", state.RoomID)
	assert.Equal(t, int64(4), state.UnreadCount)
	require.Len(t, state.Typing, 1)
	assert.Equal(t, "bob", state.Typing[0].UserID)

	assert.Equal(t, http.StatusForbidden, request("mallory").Code)
}

func TestRoomState_NoClaims(t *testing.T) {
	h := NewPresenceHandler(&stubPresence{}, stubMembers{})
	rec := httptest.NewRecorder()
	h.RoomState(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/R1/state", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
