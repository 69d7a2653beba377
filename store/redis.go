package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions, Redis bağlantı ayarları.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// sremSetIfEmpty, SRem + SCard + koşullu SET'i tek atomik adımda yapar.
// KEYS[1]=set, KEYS[2]=valueKey; ARGV[1]=member, ARGV[2]=value, ARGV[3]=ttl (ms).
var sremSetIfEmpty = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
local n = redis.call('SCARD', KEYS[1])
if n == 0 then
	if tonumber(ARGV[3]) > 0 then
		redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	else
		redis.call('SET', KEYS[2], ARGV[2])
	end
end
return n
`)

// RedisStore, Store interface'inin go-redis implementasyonu.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore, Redis'e bağlanır ve 5 saniyelik timeout ile ping atar.
// Ping başarısızsa client kapatılır ve hata döner.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient, hazır bir client'ı sarar (test ve özel kurulumlar için).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetXX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.client.SetXX(ctx, key, value, ttl).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return ok, err
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SAdd(ctx, key, toInterfaces(members)...).Err()
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SRem(ctx, key, toInterfaces(members)...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SAddCard(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, member)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (s *RedisStore) SRemSetIfEmpty(ctx context.Context, key, member, valueKey, value string, ttl time.Duration) (int64, error) {
	return sremSetIfEmpty.Run(ctx, s.client, []string{key, valueKey}, member, value, ttl.Milliseconds()).Int64()
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HDel(ctx, key, fields...).Err()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe, kanallara abone olur ve Redis'in abonelik onayını bekler.
// Onay gelmezse bağlantı sorunu erken yakalanır.
func (s *RedisStore) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := s.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
	}
	return &redisSubscription{ps: ps}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisSubscription, go-redis PubSub'ı sarar.
// go-redis bir sonraki Receive çağrısında kopan bağlantıyı kendisi yeniler
// ve kanallara tekrar abone olur.
type redisSubscription struct {
	ps *redis.PubSub
}

func (r *redisSubscription) Receive(ctx context.Context) (Message, error) {
	msg, err := r.ps.ReceiveMessage(ctx)
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	return Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}, nil
}

func (r *redisSubscription) Close() error {
	return r.ps.Close()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
