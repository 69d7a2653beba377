package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(t.Context(), RedisOptions{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStore_GetMissingReturnsErrNil(t *testing.T) {
	s, _ := newTestRedisStore(t)

	_, err := s.Get(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNil)
}

func TestRedisStore_SetTTLExpires(t *testing.T) {
	ctx := t.Context()
	s, mr := newTestRedisStore(t)

	require.NoError(t, s.Set(ctx, "session:1", `{"id":"1"}`, 10*time.Second))
	got, err := s.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, got)

	mr.FastForward(11 * time.Second)

	_, err = s.Get(ctx, "session:1")
	assert.ErrorIs(t, err, ErrNil)
}

func TestRedisStore_IncrSetsHashes(t *testing.T) {
	ctx := t.Context()
	s, _ := newTestRedisStore(t)

	n, err := s.Incr(ctx, "unread:u1:r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr(ctx, "unread:u1:r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SAdd(ctx, "user_sessions:u1", "a", "b"))
	require.NoError(t, s.SRem(ctx, "user_sessions:u1", "a"))
	members, err := s.SMembers(ctx, "user_sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	require.NoError(t, s.HSet(ctx, "typing:r1", "u1", "x"))
	all, err := s.HGetAll(ctx, "typing:r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "x"}, all)
	require.NoError(t, s.HDel(ctx, "typing:r1", "u1"))

	require.NoError(t, s.Del(ctx, "unread:u1:r1"))
	_, err = s.Get(ctx, "unread:u1:r1")
	assert.ErrorIs(t, err, ErrNil)
}

func TestRedisStore_PubSub(t *testing.T) {
	ctx := t.Context()
	s, _ := newTestRedisStore(t)

	sub, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "events", []byte("hello")))

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "events", msg.Channel)
	assert.Equal(t, "hello", string(msg.Payload))
}

func TestRedisStore_ClosedSubscription(t *testing.T) {
	ctx := t.Context()
	s, _ := newTestRedisStore(t)

	sub, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, err = sub.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRedisStore_UnreachableFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(t.Context(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}

func TestNewRedisStoreFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client)
	defer s.Close()

	assert.NoError(t, s.Ping(t.Context()))
}

func TestRedisStore_SetXX(t *testing.T) {
	ctx := t.Context()
	s, mr := newTestRedisStore(t)

	ok, err := s.SetXX(ctx, "session:1", "v1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("session:1"))

	require.NoError(t, s.Set(ctx, "session:1", "v1", time.Minute))
	ok, err = s.SetXX(ctx, "session:1", "v2", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := mr.Get("session:1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2*time.Minute, mr.TTL("session:1"))
}

func TestRedisStore_SetCardinality(t *testing.T) {
	ctx := t.Context()
	s, mr := newTestRedisStore(t)

	n, err := s.SAddCard(ctx, "presence_nodes:u1", "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.SAddCard(ctx, "presence_nodes:u1", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Minute, mr.TTL("presence_nodes:u1"))

	n, err = s.SRemSetIfEmpty(ctx, "presence_nodes:u1", "a", "presence:u1", "offline", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, mr.Exists("presence:u1"))

	n, err = s.SRemSetIfEmpty(ctx, "presence_nodes:u1", "b", "presence:u1", "offline", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := mr.Get("presence:u1")
	require.NoError(t, err)
	assert.Equal(t, "offline", got)
	assert.Equal(t, time.Minute, mr.TTL("presence:u1"))
}
