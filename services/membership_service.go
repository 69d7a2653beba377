package services

import (
	"context"
	"log/slog"

	"github.com/akinalp/mqvi-gateway/store"
)

// MemberLister, durable collaborator'ın üyelik sorguları.
// repository.RoomRepository bunu karşılar.
type MemberLister interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]string, error)
}

// MembershipService, oda üyeliğini sorgular.
//
// IsMember her zaman durable kaynağa gider (yetkilendirme). ListMembers
// sadece fan-out amaçlıdır (unread artırma) ve shared store cache'ini
// kullanır; bu yüzden RoomMembersTTL kadar bayat olabilir.
type MembershipService interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]string, error)
	Invalidate(ctx context.Context, roomID string) error
}

type membershipService struct {
	durable MemberLister
	store   store.Store
	cfg     RegistryConfig
	logger  *slog.Logger
}

// NewMembershipService, constructor.
func NewMembershipService(durable MemberLister, st store.Store, cfg RegistryConfig, logger *slog.Logger) MembershipService {
	return &membershipService{
		durable: durable,
		store:   st,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "membership"),
	}
}

func (s *membershipService) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	return s.durable.IsMember(ctx, userID, roomID)
}

func (s *membershipService) ListMembers(ctx context.Context, roomID string) ([]string, error) {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	cached, err := s.store.SMembers(opCtx, roomMembersKey(roomID))
	if err != nil {
		// Cache okunamıyorsa durable kaynağa düş; cache'i doldurmayı deneme.
		s.logger.Warn("membership cache unavailable, using durable store", "room_id", roomID, "error", storeError("members.get", err))
		return s.durable.ListMembers(ctx, roomID)
	}
	if len(cached) > 0 {
		return cached, nil
	}

	members, err := s.durable.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return members, nil
	}

	if err := s.store.SAdd(opCtx, roomMembersKey(roomID), members...); err != nil {
		s.logger.Warn("failed to populate membership cache", "room_id", roomID, "error", err)
		return members, nil
	}
	if err := s.store.Expire(opCtx, roomMembersKey(roomID), s.cfg.RoomMembersTTL); err != nil {
		s.logger.Warn("failed to set membership cache ttl", "room_id", roomID, "error", err)
	}
	return members, nil
}

func (s *membershipService) Invalidate(ctx context.Context, roomID string) error {
	opCtx, cancel := s.cfg.opContext(ctx)
	defer cancel()

	if err := s.store.Del(opCtx, roomMembersKey(roomID)); err != nil {
		return storeError("members.invalidate", err)
	}
	return nil
}
