package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pkg/logger"
	"github.com/akinalp/mqvi-gateway/repository"
)

func TestMessageService_CreatePersistsAndTouchesRoom(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)
	users := repository.NewSQLiteUserRepo(db.Conn)
	rooms := repository.NewSQLiteRoomRepo(db.Conn)
	msgRepo := repository.NewSQLiteMessageRepo(db.Conn)

	alice := seedUser(t, users, "alice", "pw")
	room := &models.Room{Name: "general"}
	require.NoError(t, rooms.Create(ctx, room))

	svc := NewMessageService(db.Conn, msgRepo, logger.Discard())

	msg, err := svc.Create(ctx, alice.ID, "alice", &models.SendMessageRequest{RoomID: room.ID, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, "alice", msg.Username)

	roomID, err := svc.RoomOf(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, roomID)

	got, err := rooms.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastMessageAt)

	_, err = svc.RoomOf(ctx, "missing")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestMessageService_CreateValidates(t *testing.T) {
	ctx := t.Context()
	db := newTestDB(t)
	svc := NewMessageService(db.Conn, repository.NewSQLiteMessageRepo(db.Conn), logger.Discard())

	cases := []*models.SendMessageRequest{
		{RoomID: "r1", Content: "   "},
		{RoomID: "", Content: "hi"},
		{RoomID: "r1", Content: strings.Repeat("x", models.MaxMessageLength+1)},
		{RoomID: "r1", Content: "hi", Type: models.MessageTypeSystem},
	}
	for _, req := range cases {
		_, err := svc.Create(ctx, "u1", "alice", req)
		assert.ErrorIs(t, err, pkg.ErrBadRequest)
	}
}
