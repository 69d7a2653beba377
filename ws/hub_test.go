package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pubsub"
)

func TestHub_OfflineBroadcastExactlyOnce(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)

	observer := th.connect(t, "watcher", "")
	tab1 := th.connect(t, "u1", "")
	tab2 := th.connect(t, "u1", "")

	assert.Equal(t, []models.UserStatus{models.UserStatusOnline}, statusEvents(t, frames(t, observer), "u1"))

	th.disconnect(tab1)
	assert.Empty(t, statusEvents(t, frames(t, observer), "u1"), "first tab closing must not flip presence")

	p, err := th.presence.GetPresence(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOnline, p.Status)

	th.disconnect(tab2)
	assert.Equal(t, []models.UserStatus{models.UserStatusOffline}, statusEvents(t, frames(t, observer), "u1"))

	p, err = th.presence.GetPresence(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOffline, p.Status)

	// İkinci unregister no-op.
	th.disconnect(tab2)
	assert.Empty(t, statusEvents(t, frames(t, observer), "u1"))
}

func TestHub_ConcurrentDisconnectsGoOfflineOnce(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)
	observer := th.connect(t, "watcher", "")

	const tabs = 8
	clients := make([]*Client, tabs)
	for i := range clients {
		clients[i] = th.connect(t, "u1", "")
	}
	frames(t, observer)

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			th.disconnect(c)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, []models.UserStatus{models.UserStatusOffline}, statusEvents(t, frames(t, observer), "u1"))
	assert.False(t, th.IsUserConnected("u1"))
	assert.Equal(t, 1, th.ConnectionCount())
}

func TestHub_PresenceAcrossNodes(t *testing.T) {
	a := newTestHub(t, nil, "node-a", nil)
	b := newTestHub(t, a.store, "node-b", nil)

	observer := a.connect(t, "watcher", "")
	onA := a.connect(t, "u1", "")
	frames(t, observer)

	onB := b.connect(t, "u1", "")
	a.disconnect(onA)
	assert.Empty(t, statusEvents(t, frames(t, observer), "u1"), "user still connected on node-b")

	p, err := a.presence.GetPresence(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOnline, p.Status)

	b.disconnect(onB)
	p, err = a.presence.GetPresence(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOffline, p.Status)
}

func TestHub_EmitToRoomSkipsExceptAndNonMembers(t *testing.T) {
	fanout := &recordingFanout{}
	th := newTestHub(t, nil, "node-a", fanout)

	alice := th.connect(t, "alice", "")
	bob := th.connect(t, "bob", "")
	carol := th.connect(t, "carol", "")

	require.NoError(t, th.JoinUserToRoom(t.Context(), "alice", "r1"))
	require.NoError(t, th.JoinUserToRoom(t.Context(), "bob", "r1"))
	for _, c := range []*Client{alice, bob, carol} {
		frames(t, c)
	}

	ev := Event{Op: OpUserJoined, Data: RoomUserData{RoomID: "r1", UserID: "alice"}}
	require.NoError(t, th.EmitToRoom(t.Context(), "r1", ev, "alice"))

	assert.Empty(t, frames(t, alice))
	assert.Equal(t, []string{OpUserJoined}, ops(frames(t, bob)))
	assert.Empty(t, frames(t, carol))

	assert.Equal(t, []pubsub.Kind{pubsub.KindRoomJoin, pubsub.KindRoomJoin, pubsub.KindRoomEmit}, fanout.kinds())
	last := fanout.envs[len(fanout.envs)-1]
	assert.Equal(t, "r1", last.Room)
	assert.Equal(t, "alice", last.ExceptUserID)
}

func TestHub_JoinCoversAllUserConnections(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)
	tab1 := th.connect(t, "alice", "")
	tab2 := th.connect(t, "alice", "")

	require.NoError(t, th.JoinUserToRoom(t.Context(), "alice", "r1"))
	assert.True(t, tab1.inRoom("r1"))
	assert.True(t, tab2.inRoom("r1"))
	assert.Equal(t, 2, th.RoomConnectionCount("r1"))

	require.NoError(t, th.RemoveUserFromRoom(t.Context(), "alice", "r1"))
	assert.False(t, tab1.inRoom("r1"))
	assert.Equal(t, 0, th.RoomConnectionCount("r1"))
}

func TestHub_DisconnectLeavesRooms(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)
	c := th.connect(t, "alice", "")
	require.NoError(t, th.JoinUserToRoom(t.Context(), "alice", "r1"))
	require.Equal(t, 1, th.RoomConnectionCount("r1"))

	th.disconnect(c)
	assert.Equal(t, 0, th.RoomConnectionCount("r1"))
}

func TestHub_HandleEnvelope(t *testing.T) {
	th := newTestHub(t, nil, "node-b", nil)
	alice := th.connect(t, "alice", "")
	bob := th.connect(t, "bob", "")
	frames(t, alice)
	frames(t, bob)

	ctx := t.Context()
	th.HandleEnvelope(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomJoin, Room: "r1", UserID: "bob"})
	assert.True(t, bob.inRoom("r1"))

	event, err := encodeEvent(Event{Op: OpMessageReceived, Data: map[string]string{"content": "hi"}})
	require.NoError(t, err)

	th.HandleEnvelope(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomEmit, Room: "r1", Event: event})
	got := frames(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, OpMessageReceived, got[0].Op)
	assert.Positive(t, got[0].Seq)
	assert.Empty(t, frames(t, alice))

	th.HandleEnvelope(ctx, &pubsub.Envelope{Kind: pubsub.KindUserEmit, UserID: "alice", Event: event})
	assert.Len(t, frames(t, alice), 1)
	assert.Empty(t, frames(t, bob))

	th.HandleEnvelope(ctx, &pubsub.Envelope{Kind: pubsub.KindBroadcast, ExceptUserID: "alice", Event: event})
	assert.Empty(t, frames(t, alice))
	assert.Len(t, frames(t, bob), 1)

	th.HandleEnvelope(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomLeave, Room: "r1", UserID: "bob"})
	assert.False(t, bob.inRoom("r1"))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)
	slow := th.connect(t, "slow", "")
	require.NoError(t, th.JoinUserToRoom(t.Context(), "slow", "r1"))

	event, err := encodeEvent(Event{Op: OpTypingIndicator})
	require.NoError(t, err)
	for i := 0; i < sendBufferSize+1; i++ {
		th.deliverRoom("r1", event, "")
	}

	assert.True(t, slow.isClosed())
	assert.Equal(t, closePolicyViolated, slow.closeCode)
}

func TestHub_SeqIncreases(t *testing.T) {
	th := newTestHub(t, nil, "node-a", nil)
	c := th.connect(t, "alice", "")
	frames(t, c)

	c.sendEvent(Event{Op: OpHeartbeatAck})
	c.sendEvent(Event{Op: OpHeartbeatAck})
	got := frames(t, c)
	require.Len(t, got, 2)
	assert.Less(t, got[0].Seq, got[1].Seq)
}
