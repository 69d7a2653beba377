package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pubsub"
)

// SessionValidator, her authenticated event'te session'ı doğrular ve yeniler.
// Session yoksa pkg.ErrNotFound'u wrap eden bir hata dönmelidir.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// PresenceRegistry, shared store'daki presence/typing/unread state'i.
type PresenceRegistry interface {
	SetPresence(ctx context.Context, userID string, status models.UserStatus) error
	MarkOnline(ctx context.Context, userID, nodeID string) (bool, error)
	MarkOffline(ctx context.Context, userID, nodeID string) (bool, error)
	RefreshPresence(ctx context.Context, userIDs []string, nodeID string) error

	SetTyping(ctx context.Context, roomID, userID, userName string) error
	ClearTyping(ctx context.Context, roomID, userID string) error

	IncrementUnreadCount(ctx context.Context, userID, roomID string) (int64, error)
	ResetUnreadCount(ctx context.Context, userID, roomID string) error
	GetUnreadCount(ctx context.Context, userID, roomID string) (int64, error)
}

// RoomAuthorizer, oda üyeliğini sorgular. IsMember durable kaynaktan okur;
// ListMembers cache'lenmiş olabilir.
type RoomAuthorizer interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]string, error)
}

// MessageStore, mesajları kalıcı olarak yazar.
type MessageStore interface {
	Create(ctx context.Context, userID, username string, req *models.SendMessageRequest) (*models.Message, error)
	RoomOf(ctx context.Context, messageID string) (string, error)
}

// FanoutPublisher, event'leri diğer gateway process'lerine iletir.
type FanoutPublisher interface {
	Publish(ctx context.Context, channel string, env *pubsub.Envelope) error
}

// MessageLimiter, send_message flood koruması.
type MessageLimiter interface {
	Allow(userID string) bool
	CooldownSeconds(userID string) int
}

// HubConfig, Hub ayarları. Sıfır değerler default'a döner.
type HubConfig struct {
	InstanceID string
	// Channel, fan-out envelope'larının yayınlandığı kanal.
	Channel string
	// Shards, kullanıcı bucket sayısı. Default 64.
	Shards int
	// PresenceRefreshInterval, bağlı kullanıcıların presence TTL'ini uzatma
	// periyodu. PresenceTTL'den kısa olmalı. Default 100s.
	PresenceRefreshInterval time.Duration
	// OpTimeout, tek bir client event'inin işlenmesi için üst sınır. Default 5s.
	OpTimeout time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.Shards <= 0 {
		c.Shards = 64
	}
	if c.PresenceRefreshInterval <= 0 {
		c.PresenceRefreshInterval = 100 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// HubDeps, Hub'ın dış bağımlılıkları. Fanout ve Limiter opsiyoneldir;
// Fanout nil ise Hub tek process modunda çalışır.
type HubDeps struct {
	Sessions SessionValidator
	Presence PresenceRegistry
	Rooms    RoomAuthorizer
	Messages MessageStore
	Fanout   FanoutPublisher
	Limiter  MessageLimiter
}

// userBucket, hash'i aynı bucket'a düşen kullanıcıların bağlantıları.
// Presence geçişleri (ilk bağlantı / son bağlantı) bucket kilidi altında yapılır;
// böylece aynı kullanıcı için online/offline yazımları yer değiştiremez.
type userBucket struct {
	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

// Hub, process-local bağlantı ve oda kayıtlarını tutar, event'leri yerel
// bağlantılara teslim eder ve FanoutPublisher üzerinden diğer process'lere yayar.
type Hub struct {
	cfg    HubConfig
	deps   HubDeps
	logger *slog.Logger

	buckets    []*userBucket
	handlerMap map[string]eventHandler

	roomsMu sync.RWMutex
	rooms   map[string]map[*Client]struct{}

	// seq: Her outbound frame'e verilen artan sayaç.
	seq atomic.Int64

	active sync.WaitGroup
	count  atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewHub, yeni bir Hub oluşturur.
func NewHub(cfg HubConfig, deps HubDeps, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()

	buckets := make([]*userBucket, cfg.Shards)
	for i := range buckets {
		buckets[i] = &userBucket{clients: make(map[string]map[*Client]struct{})}
	}

	h := &Hub{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "ws", "instance_id", cfg.InstanceID),
		buckets: buckets,
		rooms:   make(map[string]map[*Client]struct{}),
		stop:    make(chan struct{}),
	}
	h.handlerMap = h.handlers()
	return h
}

// InstanceID, bu process'in id'si.
func (h *Hub) InstanceID() string { return h.cfg.InstanceID }

func (h *Hub) bucket(userID string) *userBucket {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.buckets[f.Sum32()%uint32(len(h.buckets))]
}

// Run, presence heartbeat döngüsüdür. main.go'da `go hub.Run(ctx)` ile başlatılır;
// ctx iptal edilince veya Shutdown çağrılınca döner.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PresenceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.refreshPresence(ctx)
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) refreshPresence(ctx context.Context) {
	userIDs := h.OnlineUserIDs()
	if len(userIDs) == 0 {
		return
	}
	if err := h.deps.Presence.RefreshPresence(ctx, userIDs, h.cfg.InstanceID); err != nil {
		h.logger.Warn("failed to refresh presence", "users", len(userIDs), "error", err)
	}
}

// register, client'ı kullanıcı bucket'ına ekler. Kullanıcının bu process'teki
// ilk bağlantısıysa presence online yazılır; kullanıcının hiçbir process'te
// başka bağlantısı yoksa status_updated{online} yayınlanır.
func (h *Hub) register(ctx context.Context, c *Client) {
	h.active.Add(1)
	h.count.Add(1)
	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()

	b := h.bucket(c.userID)
	b.mu.Lock()

	set, ok := b.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		b.clients[c.userID] = set
	}
	set[c] = struct{}{}
	local := len(set)

	// Presence yazısı bucket kilidi altında yapılır; aynı kullanıcının
	// online/offline geçişleri store'a sırayla ulaşır. Her çağrı store op
	// timeout'u ile sınırlıdır.
	firstOnline := false
	if local == 1 {
		first, err := h.deps.Presence.MarkOnline(ctx, c.userID, h.cfg.InstanceID)
		if err != nil {
			h.logger.Warn("failed to mark user online", "user_id", c.userID, "error", err)
		}
		firstOnline = first
	}
	b.mu.Unlock()

	h.logger.Info("client connected", "user_id", c.userID, "connection_id", c.id, "user_connections", local)

	if firstOnline {
		h.emitStatus(ctx, c.userID, models.UserStatusOnline)
	}
}

// unregister, client'ı bucket'tan ve yerel odalardan çıkarır. İdempotenttir.
// Kullanıcının bu process'teki son bağlantısıysa MarkOffline çağrılır;
// hiçbir process'te bağlantı kalmadıysa status_updated{offline} tam bir kez yayınlanır.
func (h *Hub) unregister(c *Client) {
	b := h.bucket(c.userID)
	b.mu.Lock()

	set := b.clients[c.userID]
	if _, ok := set[c]; !ok {
		b.mu.Unlock()
		return
	}
	delete(set, c)
	remaining := len(set)

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.OpTimeout)
	defer cancel()

	wentOffline := false
	if remaining == 0 {
		delete(b.clients, c.userID)
		offline, err := h.deps.Presence.MarkOffline(ctx, c.userID, h.cfg.InstanceID)
		if err != nil {
			h.logger.Warn("failed to mark user offline", "user_id", c.userID, "error", err)
		}
		wentOffline = offline
	}
	b.mu.Unlock()

	h.leaveAllRooms(c)

	metrics.ActiveConnections.Dec()
	h.count.Add(-1)
	h.active.Done()

	h.logger.Info("client disconnected", "user_id", c.userID, "connection_id", c.id, "user_connections", remaining)

	if wentOffline {
		h.emitStatus(ctx, c.userID, models.UserStatusOffline)
	}
}

func (h *Hub) emitStatus(ctx context.Context, userID string, status models.UserStatus) {
	ev := Event{Op: OpStatusUpdated, Data: StatusUpdatedData{UserID: userID, Status: status}}
	if err := h.Broadcast(ctx, ev, ""); err != nil {
		h.logger.Warn("failed to fan out status update", "user_id", userID, "status", status, "error", err)
	}
}

// ─── Yerel oda kayıtları ───

func (h *Hub) joinLocal(userID, roomID string) int {
	clients := h.userClients(userID)
	if len(clients) == 0 {
		return 0
	}

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[roomID] = set
	}
	for _, c := range clients {
		if c.isClosed() {
			continue
		}
		set[c] = struct{}{}
		c.addRoom(roomID)
	}
	return len(clients)
}

func (h *Hub) leaveLocal(userID, roomID string) {
	clients := h.userClients(userID)
	if len(clients) == 0 {
		return
	}

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	set := h.rooms[roomID]
	for _, c := range clients {
		delete(set, c)
		c.removeRoom(roomID)
	}
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) leaveAllRooms(c *Client) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	for _, roomID := range c.roomIDs() {
		if set, ok := h.rooms[roomID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.rooms, roomID)
			}
		}
		c.removeRoom(roomID)
	}
}

// ─── Emit API ───

// EmitToRoom, event'i odadaki yerel bağlantılara teslim eder ve diğer
// process'lere yayınlar. exceptUserID boş değilse o kullanıcı atlanır.
// Dönen hata sadece fan-out hatasıdır; yerel teslimat her durumda yapılmıştır.
func (h *Hub) EmitToRoom(ctx context.Context, roomID string, event Event, exceptUserID string) error {
	raw, err := encodeEvent(event)
	if err != nil {
		return err
	}
	h.deliverRoom(roomID, raw, exceptUserID)
	return h.publish(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomEmit, Room: roomID, ExceptUserID: exceptUserID, Event: raw})
}

// EmitToUser, event'i kullanıcının tüm bağlantılarına (tüm process'lerde) iletir.
func (h *Hub) EmitToUser(ctx context.Context, userID string, event Event) error {
	raw, err := encodeEvent(event)
	if err != nil {
		return err
	}
	h.deliverUser(userID, raw)
	return h.publish(ctx, &pubsub.Envelope{Kind: pubsub.KindUserEmit, UserID: userID, Event: raw})
}

// Broadcast, event'i tüm bağlantılara iletir. exceptUserID boş değilse o kullanıcı atlanır.
func (h *Hub) Broadcast(ctx context.Context, event Event, exceptUserID string) error {
	raw, err := encodeEvent(event)
	if err != nil {
		return err
	}
	h.deliverAll(raw, exceptUserID)
	return h.publish(ctx, &pubsub.Envelope{Kind: pubsub.KindBroadcast, ExceptUserID: exceptUserID, Event: raw})
}

// JoinUserToRoom, kullanıcının tüm bağlantılarını (tüm process'lerde) odaya ekler.
func (h *Hub) JoinUserToRoom(ctx context.Context, userID, roomID string) error {
	h.joinLocal(userID, roomID)
	return h.publish(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomJoin, Room: roomID, UserID: userID})
}

// RemoveUserFromRoom, kullanıcının tüm bağlantılarını (tüm process'lerde) odadan çıkarır.
func (h *Hub) RemoveUserFromRoom(ctx context.Context, userID, roomID string) error {
	h.leaveLocal(userID, roomID)
	return h.publish(ctx, &pubsub.Envelope{Kind: pubsub.KindRoomLeave, Room: roomID, UserID: userID})
}

func (h *Hub) publish(ctx context.Context, env *pubsub.Envelope) error {
	if h.deps.Fanout == nil {
		return nil
	}
	return h.deps.Fanout.Publish(ctx, h.cfg.Channel, env)
}

// HandleEnvelope, başka bir process'ten gelen envelope'u yerel bağlantılara uygular.
// pubsub.Adapter.Subscribe callback'i olarak kullanılır.
func (h *Hub) HandleEnvelope(_ context.Context, env *pubsub.Envelope) {
	switch env.Kind {
	case pubsub.KindRoomEmit:
		h.deliverRoom(env.Room, env.Event, env.ExceptUserID)
	case pubsub.KindUserEmit:
		h.deliverUser(env.UserID, env.Event)
	case pubsub.KindBroadcast:
		h.deliverAll(env.Event, env.ExceptUserID)
	case pubsub.KindRoomJoin:
		h.joinLocal(env.UserID, env.Room)
	case pubsub.KindRoomLeave:
		h.leaveLocal(env.UserID, env.Room)
	default:
		h.logger.Warn("unknown envelope kind", "kind", env.Kind, "envelope_id", env.ID)
	}
}

// ─── Yerel teslimat ───

func encodeEvent(event Event) (json.RawMessage, error) {
	event.Seq = 0
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Op, err)
	}
	return data, nil
}

// frame, seq numarasını ekleyerek client'a gidecek byte'ları üretir.
func (h *Hub) frame(raw json.RawMessage) ([]byte, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	ev.Seq = h.seq.Add(1)
	return json.Marshal(ev)
}

func (h *Hub) deliver(clients []*Client, raw json.RawMessage) {
	if len(clients) == 0 {
		return
	}
	data, err := h.frame(raw)
	if err != nil {
		h.logger.Error("failed to frame event", "error", err)
		return
	}
	for _, c := range clients {
		c.sendRaw(data)
	}
}

func (h *Hub) deliverRoom(roomID string, raw json.RawMessage, exceptUserID string) {
	h.roomsMu.RLock()
	set := h.rooms[roomID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		if exceptUserID != "" && c.userID == exceptUserID {
			continue
		}
		clients = append(clients, c)
	}
	h.roomsMu.RUnlock()

	h.deliver(clients, raw)
}

func (h *Hub) deliverUser(userID string, raw json.RawMessage) {
	h.deliver(h.userClients(userID), raw)
}

func (h *Hub) deliverAll(raw json.RawMessage, exceptUserID string) {
	var clients []*Client
	for _, b := range h.buckets {
		b.mu.Lock()
		for userID, set := range b.clients {
			if exceptUserID != "" && userID == exceptUserID {
				continue
			}
			for c := range set {
				clients = append(clients, c)
			}
		}
		b.mu.Unlock()
	}
	h.deliver(clients, raw)
}

func (h *Hub) userClients(userID string) []*Client {
	b := h.bucket(userID)
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.clients[userID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// ─── Sorgular ───

// OnlineUserIDs, bu process'te en az bir bağlantısı olan kullanıcılar.
func (h *Hub) OnlineUserIDs() []string {
	var ids []string
	for _, b := range h.buckets {
		b.mu.Lock()
		for userID := range b.clients {
			ids = append(ids, userID)
		}
		b.mu.Unlock()
	}
	return ids
}

// ConnectionCount, bu process'teki canlı bağlantı sayısı.
func (h *Hub) ConnectionCount() int {
	return int(h.count.Load())
}

// IsUserConnected, kullanıcının bu process'te bağlantısı var mı.
func (h *Hub) IsUserConnected(userID string) bool {
	return len(h.userClients(userID)) > 0
}

// RoomConnectionCount, odaya katılmış yerel bağlantı sayısı.
func (h *Hub) RoomConnectionCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// Shutdown, heartbeat döngüsünü durdurur, tüm bağlantıları kapatır ve
// unregister'ların (MarkOffline dahil) bitmesini ctx süresince bekler.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })

	var clients []*Client
	for _, b := range h.buckets {
		b.mu.Lock()
		for _, set := range b.clients {
			for c := range set {
				clients = append(clients, c)
			}
		}
		b.mu.Unlock()
	}
	for _, c := range clients {
		c.closeWithReason(closeGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shut down", "closed_connections", len(clients))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}
