package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/store"
)

// PresenceService, presence, typing ve unread state'ini shared store'da tutar.
//
// Kullanıcı, presence_nodes:{userId} set'i boş değilse online'dır. Her gateway
// process'i kendi instance id'sini set'e ekler/çıkarır; offline geçişi sadece
// set boşaldığında olur.
type PresenceService interface {
	SetPresence(ctx context.Context, userID string, status models.UserStatus) error
	// GetPresence, kayıt yoksa offline döner.
	GetPresence(ctx context.Context, userID string) (*models.Presence, error)
	// MarkOnline, nodeID'yi kullanıcının node set'ine ekler. Başka node yoksa first=true.
	MarkOnline(ctx context.Context, userID, nodeID string) (first bool, err error)
	// MarkOffline, nodeID'yi çıkarır. Set boşaldıysa offline yazar ve true döner.
	MarkOffline(ctx context.Context, userID, nodeID string) (offline bool, err error)
	// RefreshPresence, heartbeat ile bağlı kullanıcıların TTL'lerini uzatır.
	RefreshPresence(ctx context.Context, userIDs []string, nodeID string) error

	SetTyping(ctx context.Context, roomID, userID, userName string) error
	ClearTyping(ctx context.Context, roomID, userID string) error
	GetTypingForRoom(ctx context.Context, roomID string) ([]models.TypingIndicator, error)

	IncrementUnreadCount(ctx context.Context, userID, roomID string) (int64, error)
	ResetUnreadCount(ctx context.Context, userID, roomID string) error
	GetUnreadCount(ctx context.Context, userID, roomID string) (int64, error)
}

type presenceService struct {
	store  store.Store
	cfg    RegistryConfig
	logger *slog.Logger
}

// typingEntry, typing:{roomId} hash'indeki değer.
type typingEntry struct {
	UserName  string `json:"user_name"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// NewPresenceService, constructor.
func NewPresenceService(st store.Store, cfg RegistryConfig, logger *slog.Logger) PresenceService {
	return &presenceService{
		store:  st,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "presence"),
	}
}

func (s *presenceService) SetPresence(ctx context.Context, userID string, status models.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid status %q", pkg.ErrBadRequest, status)
	}

	data, err := json.Marshal(models.Presence{UserID: userID, Status: status, LastSeen: s.cfg.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.Set(opCtx, presenceKey(userID), string(data), s.cfg.PresenceTTL); err != nil {
		return storeError("presence.set", err)
	}
	return nil
}

func (s *presenceService) GetPresence(ctx context.Context, userID string) (*models.Presence, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	raw, err := s.store.Get(opCtx, presenceKey(userID))
	if errors.Is(err, store.ErrNil) {
		return &models.Presence{UserID: userID, Status: models.UserStatusOffline}, nil
	}
	if err != nil {
		return nil, storeError("presence.get", err)
	}

	var p models.Presence
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("corrupt presence record", "user_id", userID, "error", err)
		return &models.Presence{UserID: userID, Status: models.UserStatusOffline}, nil
	}
	return &p, nil
}

// MarkOnline, node'u ekler ve kardinaliteyi aynı atomik adımda okur.
// Kardinalite 1 ise bu node kullanıcının tek node'udur: first=true.
func (s *presenceService) MarkOnline(ctx context.Context, userID, nodeID string) (bool, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	n, err := s.store.SAddCard(opCtx, presenceNodesKey(userID), nodeID, s.cfg.PresenceTTL)
	if err != nil {
		return false, storeError("presence.nodes_add", err)
	}

	if n == 1 {
		return true, s.SetPresence(ctx, userID, models.UserStatusOnline)
	}
	// Başka bir node zaten online yazdı; idle/dnd gibi seçilmiş durumu ezme.
	return false, s.touchPresence(ctx, userID)
}

// MarkOffline, node'u çıkarır. Set boşaldıysa offline kaydı aynı atomik
// adımda yazılır; böylece araya giren bir MarkOnline'ın online yazısı
// her zaman bu yazıdan sonra gelir.
func (s *presenceService) MarkOffline(ctx context.Context, userID, nodeID string) (bool, error) {
	data, err := json.Marshal(models.Presence{UserID: userID, Status: models.UserStatusOffline, LastSeen: s.cfg.Now()})
	if err != nil {
		return false, fmt.Errorf("failed to marshal presence: %w", err)
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	remaining, err := s.store.SRemSetIfEmpty(opCtx, presenceNodesKey(userID), nodeID,
		presenceKey(userID), string(data), s.cfg.PresenceTTL)
	if err != nil {
		return false, storeError("presence.nodes_remove", err)
	}
	return remaining == 0, nil
}

func (s *presenceService) RefreshPresence(ctx context.Context, userIDs []string, nodeID string) error {
	var errs []error
	for _, userID := range userIDs {
		if err := s.refreshOne(ctx, userID, nodeID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *presenceService) refreshOne(ctx context.Context, userID, nodeID string) error {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	// Set TTL ile kaybolmuş olabilir; SAddCard yeniden oluşturur.
	if _, err := s.store.SAddCard(opCtx, presenceNodesKey(userID), nodeID, s.cfg.PresenceTTL); err != nil {
		return storeError("presence.nodes_add", err)
	}
	return s.touchPresence(ctx, userID)
}

// touchPresence, mevcut kaydın TTL'ini uzatır; kayıt yoksa online yazar.
func (s *presenceService) touchPresence(ctx context.Context, userID string) error {
	p, err := s.GetPresence(ctx, userID)
	if err != nil {
		return err
	}
	status := p.Status
	if status == models.UserStatusOffline {
		status = models.UserStatusOnline
	}
	return s.SetPresence(ctx, userID, status)
}

// ─── Typing ───

func (s *presenceService) SetTyping(ctx context.Context, roomID, userID, userName string) error {
	data, err := json.Marshal(typingEntry{UserName: userName, Timestamp: s.cfg.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal typing entry: %w", err)
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.HSet(opCtx, typingKey(roomID), userID, string(data)); err != nil {
		return storeError("typing.set", err)
	}
	if err := s.store.Expire(opCtx, typingKey(roomID), s.cfg.TypingTTL); err != nil {
		return storeError("typing.expire", err)
	}
	return nil
}

func (s *presenceService) ClearTyping(ctx context.Context, roomID, userID string) error {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.HDel(opCtx, typingKey(roomID), userID); err != nil {
		return storeError("typing.clear", err)
	}
	return nil
}

// GetTypingForRoom, TypingTTL içinde güncellenmiş girişleri döner.
// Hash key TTL'i her SetTyping'de yenilendiği için eski girişler hash'te
// kalabilir; bunlar burada ayıklanır ve silinir.
func (s *presenceService) GetTypingForRoom(ctx context.Context, roomID string) ([]models.TypingIndicator, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	entries, err := s.store.HGetAll(opCtx, typingKey(roomID))
	if err != nil {
		return nil, storeError("typing.list", err)
	}

	now := s.cfg.Now()
	result := make([]models.TypingIndicator, 0, len(entries))
	var stale []string

	for userID, raw := range entries {
		var e typingEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			stale = append(stale, userID)
			continue
		}
		ts := time.UnixMilli(e.Timestamp)
		if now.Sub(ts) >= s.cfg.TypingTTL {
			stale = append(stale, userID)
			continue
		}
		result = append(result, models.TypingIndicator{
			RoomID:    roomID,
			UserID:    userID,
			UserName:  e.UserName,
			Timestamp: ts,
		})
	}

	if len(stale) > 0 {
		if err := s.store.HDel(opCtx, typingKey(roomID), stale...); err != nil {
			s.logger.Warn("failed to prune stale typing entries", "room_id", roomID, "error", err)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// ─── Unread ───

func (s *presenceService) IncrementUnreadCount(ctx context.Context, userID, roomID string) (int64, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	n, err := s.store.Incr(opCtx, unreadKey(userID, roomID))
	if err != nil {
		return 0, storeError("unread.incr", err)
	}
	return n, nil
}

func (s *presenceService) ResetUnreadCount(ctx context.Context, userID, roomID string) error {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.Del(opCtx, unreadKey(userID, roomID)); err != nil {
		return storeError("unread.reset", err)
	}
	return nil
}

func (s *presenceService) GetUnreadCount(ctx context.Context, userID, roomID string) (int64, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	raw, err := s.store.Get(opCtx, unreadKey(userID, roomID))
	if errors.Is(err, store.ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, storeError("unread.get", err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid unread counter %q: %w", raw, err)
	}
	return n, nil
}
