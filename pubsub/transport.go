package pubsub

import (
	"context"

	"github.com/akinalp/mqvi-gateway/store"
)

// Transport, Adapter'ın altındaki broker.
type Transport interface {
	Name() string
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Receiver, error)
	Ping(ctx context.Context) error
	Close() error
}

// Receiver, tek bir kanala açılmış abonelik.
// Receive hata dönerse aynı Receiver üzerinde tekrar denenebilir.
type Receiver interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// StoreTransport, shared store'un pub/sub'ını kullanır (Redis veya MemoryStore).
type StoreTransport struct {
	store store.Store
}

// NewStoreTransport, constructor. Store'un yaşam döngüsü çağırana aittir.
func NewStoreTransport(st store.Store) *StoreTransport {
	return &StoreTransport{store: st}
}

func (t *StoreTransport) Name() string { return "store" }

func (t *StoreTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.store.Publish(ctx, channel, payload)
}

func (t *StoreTransport) Subscribe(ctx context.Context, channel string) (Receiver, error) {
	sub, err := t.store.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return &storeReceiver{sub: sub}, nil
}

func (t *StoreTransport) Ping(ctx context.Context) error {
	return t.store.Ping(ctx)
}

func (t *StoreTransport) Close() error { return nil }

type storeReceiver struct {
	sub store.Subscription
}

func (r *storeReceiver) Receive(ctx context.Context) ([]byte, error) {
	msg, err := r.sub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

func (r *storeReceiver) Close() error { return r.sub.Close() }
