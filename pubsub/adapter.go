package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/pkg/cache"
)

// State, Adapter sağlık durumu.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// HandlerFunc, alınan bir envelope'u işler.
type HandlerFunc func(ctx context.Context, env *Envelope)

// Options, Adapter ayarları. Sıfır değerler default'a döner.
type Options struct {
	// Origin, bu process'in instance ID'si. Boşsa uuid üretilir.
	Origin string

	QueueSize      int           // default 1024
	PublishTimeout time.Duration // tek transport çağrısı, default 2s
	PublishRetries uint64        // default 2

	DedupeTTL time.Duration // default 1m

	ReconnectInitial time.Duration // default 100ms
	ReconnectMax     time.Duration // default 10s
}

func (o Options) withDefaults() Options {
	if o.Origin == "" {
		o.Origin = uuid.NewString()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
	if o.PublishRetries == 0 {
		o.PublishRetries = 2
	}
	if o.DedupeTTL <= 0 {
		o.DedupeTTL = time.Minute
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 100 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 10 * time.Second
	}
	return o
}

type outbound struct {
	channel string
	id      string
	payload []byte
}

// Adapter, Transport üzerinde non-blocking publish ve otomatik yeniden
// bağlanan subscribe sağlar.
//
// Publish sırası: tek publisher goroutine kuyruğu FIFO boşaltır, bu yüzden
// aynı process'ten aynı kanala giden envelope'lar yayın sırasını korur.
type Adapter struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	queue chan outbound
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	started   bool
	closed    bool
	subs      map[*subscription]struct{}
	closeOnce sync.Once
}

type subscribeOptions struct {
	selfDelivery bool
}

// SubscribeOption, Subscribe davranışını değiştirir.
type SubscribeOption func(*subscribeOptions)

// WithSelfDelivery, bu process'in kendi yayınladığı envelope'ları da teslim eder.
func WithSelfDelivery() SubscribeOption {
	return func(o *subscribeOptions) { o.selfDelivery = true }
}

type subscription struct {
	channel  string
	fn       HandlerFunc
	opts     subscribeOptions
	receiver Receiver
	seen     *cache.TTLCache[string, struct{}]

	mu           sync.Mutex
	reconnecting bool
}

func (s *subscription) setReconnecting(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.reconnecting != v
	s.reconnecting = v
	return changed
}

func (s *subscription) isReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// New, constructor. Publisher goroutine'i Start ile başlar.
func New(transport Transport, opts Options, logger *slog.Logger) *Adapter {
	opts = opts.withDefaults()
	return &Adapter{
		transport: transport,
		opts:      opts,
		logger:    logger.With("component", "pubsub", "transport", transport.Name()),
		queue:     make(chan outbound, opts.QueueSize),
		done:      make(chan struct{}),
		subs:      make(map[*subscription]struct{}),
	}
}

// Origin, bu adapter'ın instance ID'si.
func (a *Adapter) Origin() string { return a.opts.Origin }

// Start, publisher goroutine'ini başlatır. Birden fazla çağrı güvenlidir.
func (a *Adapter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started || a.closed {
		return
	}
	a.started = true

	a.wg.Add(1)
	go a.publishLoop()
}

// Publish, envelope'u yayın kuyruğuna ekler ve hemen döner.
// ID, Origin ve SentAt boşsa doldurulur. Kuyruk doluysa veya adapter
// kapalıysa pkg.ErrStoreUnavailable döner; yerel teslimat etkilenmez.
func (a *Adapter) Publish(ctx context.Context, channel string, env *Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Origin == "" {
		env.Origin = a.opts.Origin
	}
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		metrics.FanoutPublishFailures.WithLabelValues("closed").Inc()
		return fmt.Errorf("%w: fan-out adapter closed", pkg.ErrStoreUnavailable)
	}

	select {
	case a.queue <- outbound{channel: channel, id: env.ID, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		metrics.FanoutPublishFailures.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("%w: fan-out publish queue full", pkg.ErrStoreUnavailable)
	}
}

func (a *Adapter) publishLoop() {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.queue:
			a.publish(msg)
		case <-a.done:
			// Kapanışta kuyrukta kalanları boşalt.
			for {
				select {
				case msg := <-a.queue:
					a.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (a *Adapter) publish(msg outbound) {
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.PublishTimeout)
		defer cancel()
		return a.transport.Publish(ctx, msg.channel, msg.payload)
	}

	strategy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(time.Second),
		),
		a.opts.PublishRetries,
	)

	err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		a.logger.Warn("retrying publish", "envelope_id", msg.id, "error", err, "next_attempt_in", d)
	})
	if err != nil {
		metrics.FanoutPublishFailures.WithLabelValues("transport").Inc()
		a.logger.Error("failed to publish envelope", "envelope_id", msg.id, "channel", msg.channel, "error", err)
		return
	}
	metrics.FanoutPublished.WithLabelValues(a.transport.Name()).Inc()
}

// Subscribe, kanala abone olur ve alınan envelope'ları fn'e iletir.
// fn tek bir goroutine'den sırayla çağrılır. İlk abonelik başarısızsa hata döner;
// sonraki kopmalar arka planda backoff ile yeniden denenir.
func (a *Adapter) Subscribe(ctx context.Context, channel string, fn HandlerFunc, opts ...SubscribeOption) error {
	var so subscribeOptions
	for _, opt := range opts {
		opt(&so)
	}

	receiver, err := a.transport.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", pkg.ErrStoreUnavailable, channel, err)
	}

	sub := &subscription{
		channel:  channel,
		fn:       fn,
		opts:     so,
		receiver: receiver,
		seen:     cache.New[string, struct{}](a.opts.DedupeTTL, a.opts.DedupeTTL),
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = receiver.Close()
		sub.seen.Close()
		return fmt.Errorf("%w: fan-out adapter closed", pkg.ErrStoreUnavailable)
	}
	a.subs[sub] = struct{}{}
	a.wg.Add(1)
	a.mu.Unlock()

	go a.receiveLoop(ctx, sub)

	a.logger.Info("subscribed", "channel", channel, "origin", a.opts.Origin)
	return nil
}

func (a *Adapter) receiveLoop(ctx context.Context, sub *subscription) {
	defer a.wg.Done()
	defer func() {
		_ = sub.receiver.Close()
		sub.seen.Close()
		a.mu.Lock()
		delete(a.subs, sub)
		a.mu.Unlock()
	}()

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(a.opts.ReconnectInitial),
		backoff.WithMaxInterval(a.opts.ReconnectMax),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		payload, err := sub.receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || a.isClosed() {
				return
			}

			if sub.setReconnecting(true) {
				a.logger.Warn("subscription degraded", "channel", sub.channel, "error", err)
			}
			metrics.FanoutReconnects.Inc()

			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return
			case <-a.done:
				return
			}

			// Sessiz bir kanalda mesaj gelmeyebilir; broker'a ulaşılıyorsa iyileşmiş say.
			if a.transport.Ping(ctx) == nil {
				a.markRecovered(sub, bo)
			}
			continue
		}

		a.markRecovered(sub, bo)
		a.deliver(ctx, sub, payload)
	}
}

func (a *Adapter) markRecovered(sub *subscription, bo *backoff.ExponentialBackOff) {
	if sub.setReconnecting(false) {
		bo.Reset()
		a.logger.Info("subscription recovered", "channel", sub.channel)
	}
}

func (a *Adapter) deliver(ctx context.Context, sub *subscription, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		metrics.FanoutSkipped.WithLabelValues("malformed").Inc()
		a.logger.Warn("malformed envelope", "channel", sub.channel, "error", err)
		return
	}
	if err := env.Validate(); err != nil {
		metrics.FanoutSkipped.WithLabelValues("invalid").Inc()
		a.logger.Warn("invalid envelope", "envelope_id", env.ID, "error", err)
		return
	}

	if env.Origin == a.opts.Origin && !sub.opts.selfDelivery {
		metrics.FanoutSkipped.WithLabelValues("self").Inc()
		return
	}
	if env.ID != "" && !sub.seen.Add(env.ID, struct{}{}) {
		metrics.FanoutSkipped.WithLabelValues("duplicate").Inc()
		return
	}

	metrics.FanoutReceived.Inc()
	sub.fn(ctx, &env)
}

// Health, transport erişimi ve abonelik durumuna göre sağlık döner.
func (a *Adapter) Health(ctx context.Context) State {
	if err := a.transport.Ping(ctx); err != nil {
		return StateUnhealthy
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for sub := range a.subs {
		if sub.isReconnecting() {
			return StateDegraded
		}
	}
	return StateHealthy
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Close, yeni publish'leri reddeder, kuyruğu boşaltır ve abonelikleri kapatır.
// Transport'u kapatmaz.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		subs := make([]*subscription, 0, len(a.subs))
		for sub := range a.subs {
			subs = append(subs, sub)
		}
		a.mu.Unlock()

		close(a.done)
		for _, sub := range subs {
			_ = sub.receiver.Close()
		}
		a.wg.Wait()
		a.logger.Info("fan-out adapter closed")
	})
	return nil
}
