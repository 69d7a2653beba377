package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/store"
)

// ErrSessionNotFound, session yok, süresi dolmuş veya silinmiş.
// Çağıran taraf bunu "hiç login olmamış" gibi ele alır.
var ErrSessionNotFound = fmt.Errorf("%w: session", pkg.ErrNotFound)

// SessionService, kullanıcı başına sınırlı sayıda logical session yönetir.
type SessionService interface {
	CreateSession(ctx context.Context, userID string, info models.SessionInfo) (*models.Session, error)
	// ValidateSession, session'ı doğrular ve lastActivity/expiresAt'i yeniler.
	ValidateSession(ctx context.Context, sessionID string) (*models.Session, error)
	// GetSession, yenileme yapmadan okur.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteAllSessionsForUser(ctx context.Context, userID string) (int, error)
	DeleteOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error)
	// GetActiveUserSessions, lastActivity'ye göre yeniden eskiye sıralı döner.
	GetActiveUserSessions(ctx context.Context, userID string) ([]models.Session, error)
}

type sessionService struct {
	store  store.Store
	cfg    RegistryConfig
	logger *slog.Logger
}

// NewSessionService, constructor.
func NewSessionService(st store.Store, cfg RegistryConfig, logger *slog.Logger) SessionService {
	return &sessionService{
		store:  st,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "session"),
	}
}

func (s *sessionService) CreateSession(ctx context.Context, userID string, info models.SessionInfo) (*models.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", pkg.ErrBadRequest)
	}

	now := s.cfg.Now()
	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        info.Email,
		Role:         info.Role,
		DeviceInfo:   info.DeviceInfo,
		IPAddress:    info.IPAddress,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	metrics.SessionsCreated.Inc()

	// Cap aşımı session oluşturmayı geri almaz; bir sonraki login'de tekrar uygulanır.
	if err := s.enforceLimit(ctx, userID, sess.ID); err != nil {
		s.logger.Warn("failed to enforce session limit", "user_id", userID, "error", err)
	}

	s.logger.Debug("session created", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

func (s *sessionService) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	if sess.Expired(now) {
		s.remove(ctx, sess)
		return nil, ErrSessionNotFound
	}

	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.cfg.SessionTTL)
	if err := s.refresh(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.cfg.Now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *sessionService) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := s.load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.deleteIDs(ctx, sess.UserID, []string{sess.ID})
}

func (s *sessionService) DeleteAllSessionsForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.sessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := s.store.Del(opCtx, keys...); err != nil {
		return 0, storeError("session.delete_all", err)
	}
	return len(ids), nil
}

func (s *sessionService) DeleteOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	ids, err := s.sessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	var others []string
	for _, id := range ids {
		if id != currentSessionID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return 0, nil
	}

	if err := s.deleteIDs(ctx, userID, others); err != nil {
		return 0, err
	}
	return len(others), nil
}

func (s *sessionService) GetActiveUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	ids, err := s.sessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	sessions := make([]models.Session, 0, len(ids))
	var orphaned []string

	for _, id := range ids {
		sess, err := s.load(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			orphaned = append(orphaned, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Expired(now) {
			orphaned = append(orphaned, id)
			continue
		}
		sessions = append(sessions, *sess)
	}

	if len(orphaned) > 0 {
		if err := s.deleteIDs(ctx, userID, orphaned); err != nil {
			s.logger.Warn("failed to prune orphaned sessions", "user_id", userID, "error", err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

// ─── Private Helpers ───

// enforceLimit, cap aşılmışsa en eski lastActivity'li session'ları siler.
// keepID (az önce oluşturulan session) asla aday değildir.
func (s *sessionService) enforceLimit(ctx context.Context, userID, keepID string) error {
	sessions, err := s.GetActiveUserSessions(ctx, userID)
	if err != nil {
		return err
	}

	excess := len(sessions) - s.cfg.MaxSessionsPerUser
	if excess <= 0 {
		return nil
	}

	candidates := make([]models.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ID != keepID {
			candidates = append(candidates, sess)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastActivity.Before(candidates[j].LastActivity)
	})
	if excess > len(candidates) {
		excess = len(candidates)
	}

	evict := make([]string, 0, excess)
	for _, sess := range candidates[:excess] {
		evict = append(evict, sess.ID)
	}

	if err := s.deleteIDs(ctx, userID, evict); err != nil {
		return err
	}
	metrics.SessionsEvicted.Add(float64(len(evict)))
	s.logger.Info("sessions evicted", "user_id", userID, "count", len(evict))
	return nil
}

func (s *sessionService) save(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.Set(opCtx, sessionKey(sess.ID), string(data), s.cfg.SessionTTL); err != nil {
		return storeError("session.set", err)
	}
	if err := s.store.SAdd(opCtx, userSessionsKey(sess.UserID), sess.ID); err != nil {
		return storeError("session.index_add", err)
	}
	// Index en son yenilenen session kadar yaşar.
	if err := s.store.Expire(opCtx, userSessionsKey(sess.UserID), s.cfg.SessionTTL); err != nil {
		return storeError("session.index_expire", err)
	}
	return nil
}

// refresh, kaydı sadece key hâlâ varsa yeniden yazar. Okuma ile yazma
// arasında logout veya eviction olduysa session geri gelmez.
// Index'e ekleme yapılmaz; sadece TTL'i uzatılır.
func (s *sessionService) refresh(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	ok, err := s.store.SetXX(opCtx, sessionKey(sess.ID), string(data), s.cfg.SessionTTL)
	if err != nil {
		return storeError("session.refresh", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.store.Expire(opCtx, userSessionsKey(sess.UserID), s.cfg.SessionTTL); err != nil {
		return storeError("session.index_expire", err)
	}
	return nil
}

func (s *sessionService) load(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	raw, err := s.store.Get(opCtx, sessionKey(sessionID))
	if errors.Is(err, store.ErrNil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, storeError("session.get", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		// Bozuk kayıt geri kazanılamaz; yokmuş gibi davran.
		s.logger.Warn("corrupt session record", "session_id", sessionID, "error", err)
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// remove, süresi dolmuş session'ı best-effort siler.
func (s *sessionService) remove(ctx context.Context, sess *models.Session) {
	if err := s.deleteIDs(ctx, sess.UserID, []string{sess.ID}); err != nil {
		s.logger.Warn("failed to delete expired session", "session_id", sess.ID, "error", err)
	}
}

func (s *sessionService) deleteIDs(ctx context.Context, userID string, ids []string) error {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	if err := s.store.Del(opCtx, keys...); err != nil {
		return storeError("session.delete", err)
	}
	if err := s.store.SRem(opCtx, userSessionsKey(userID), ids...); err != nil {
		return storeError("session.index_remove", err)
	}
	return nil
}

func (s *sessionService) sessionIDs(ctx context.Context, userID string) ([]string, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	ids, err := s.store.SMembers(opCtx, userSessionsKey(userID))
	if err != nil {
		return nil, storeError("session.index_list", err)
	}
	return ids, nil
}
