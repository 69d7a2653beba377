package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pkg/logger"
	"github.com/akinalp/mqvi-gateway/pubsub"
	"github.com/akinalp/mqvi-gateway/services"
	"github.com/akinalp/mqvi-gateway/store"
)

const testChannel = "gateway:test"

// fakeRooms, durable üyelik kaynağı.
type fakeRooms struct {
	mu      sync.Mutex
	members map[string][]string
	err     error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{members: make(map[string][]string)}
}

func (f *fakeRooms) add(roomID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[roomID] = append(f.members[roomID], userIDs...)
}

func (f *fakeRooms) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.members[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRooms) ListMembers(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.members[roomID]...), nil
}

type fakeMessages struct {
	mu    sync.Mutex
	saved []*models.Message
}

func (f *fakeMessages) Create(_ context.Context, userID, username string, req *models.SendMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &models.Message{
		ID:        fmt.Sprintf("m%d", len(f.saved)+1),
		RoomID:    req.RoomID,
		UserID:    userID,
		Username:  username,
		Content:   req.Content,
		Type:      req.Type,
		ReplyToID: req.ReplyToID,
		CreatedAt: time.Now().UTC(),
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMessages) RoomOf(_ context.Context, messageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.saved {
		if m.ID == messageID {
			return m.RoomID, nil
		}
	}
	return "", fmt.Errorf("%w: message", pkg.ErrNotFound)
}

type fakeSessions struct {
	mu      sync.Mutex
	expired map[string]bool
	err     error
}

func (f *fakeSessions) ValidateSession(_ context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.expired[sessionID] {
		return nil, services.ErrSessionNotFound
	}
	return &models.Session{ID: sessionID}, nil
}

type recordingFanout struct {
	mu   sync.Mutex
	envs []*pubsub.Envelope
	err  error
}

func (f *recordingFanout) Publish(_ context.Context, _ string, env *pubsub.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envs = append(f.envs, env)
	return nil
}

func (f *recordingFanout) kinds() []pubsub.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pubsub.Kind, 0, len(f.envs))
	for _, env := range f.envs {
		out = append(out, env.Kind)
	}
	return out
}

type testHub struct {
	*Hub
	store    *store.MemoryStore
	presence services.PresenceService
	rooms    *fakeRooms
	messages *fakeMessages
	sessions *fakeSessions
}

func testRegistryConfig() services.RegistryConfig {
	return services.RegistryConfig{
		SessionTTL:         time.Hour,
		MaxSessionsPerUser: 5,
		PresenceTTL:        300 * time.Second,
		TypingTTL:          5 * time.Second,
		RoomMembersTTL:     time.Hour,
		OpTimeout:          time.Second,
	}
}

// newTestHub, verilen store'u paylaşan bir Hub kurar. st nil ise yeni MemoryStore açılır.
func newTestHub(t *testing.T, st *store.MemoryStore, instanceID string, fanout FanoutPublisher) *testHub {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
		t.Cleanup(func() { _ = st.Close() })
	}

	th := &testHub{
		store:    st,
		presence: services.NewPresenceService(st, testRegistryConfig(), logger.Discard()),
		rooms:    newFakeRooms(),
		messages: &fakeMessages{},
		sessions: &fakeSessions{expired: make(map[string]bool)},
	}
	th.Hub = NewHub(HubConfig{InstanceID: instanceID, Channel: testChannel, Shards: 4}, HubDeps{
		Sessions: th.sessions,
		Presence: th.presence,
		Rooms:    th.rooms,
		Messages: th.messages,
		Fanout:   fanout,
	}, logger.Discard())
	return th
}

// connect, gerçek soket olmadan bir client'ı kaydeder.
func (th *testHub) connect(t *testing.T, userID, sessionID string) *Client {
	t.Helper()
	c := newClient(uuid.NewString(), th.Hub, nil, &models.TokenClaims{
		UserID:    userID,
		Username:  "user-" + userID,
		SessionID: sessionID,
	})
	th.register(t.Context(), c)
	return c
}

func (th *testHub) disconnect(c *Client) {
	c.closeWithReason(closeNormal, "")
	th.unregister(c)
}

// frames, client'ın buffer'ındaki tüm frame'leri okur.
func frames(t *testing.T, c *Client) []rawEvent {
	t.Helper()
	var out []rawEvent
	for {
		select {
		case data := <-c.send:
			var ev rawEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ops(evs []rawEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Op)
	}
	return out
}

func find(evs []rawEvent, op string) (rawEvent, bool) {
	for _, ev := range evs {
		if ev.Op == op {
			return ev, true
		}
	}
	return rawEvent{}, false
}

func send(th *testHub, c *Client, op string, data any) {
	payload, _ := json.Marshal(data)
	th.dispatch(c, rawEvent{Op: op, Data: payload})
}

func statusEvents(t *testing.T, evs []rawEvent, userID string) []models.UserStatus {
	t.Helper()
	var out []models.UserStatus
	for _, ev := range evs {
		if ev.Op != OpStatusUpdated {
			continue
		}
		var d StatusUpdatedData
		require.NoError(t, json.Unmarshal(ev.Data, &d))
		if d.UserID == userID {
			out = append(out, d.Status)
		}
	}
	return out
}
