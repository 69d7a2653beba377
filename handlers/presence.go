package handlers

import (
	"context"
	"net/http"

	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

// PresenceReader, presence handler'ın ihtiyaç duyduğu registry sorguları.
type PresenceReader interface {
	GetPresence(ctx context.Context, userID string) (*models.Presence, error)
	GetTypingForRoom(ctx context.Context, roomID string) ([]models.TypingIndicator, error)
	GetUnreadCount(ctx context.Context, userID, roomID string) (int64, error)
}

// MembershipChecker, oda üyeliği kontrolü.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
}

// PresenceHandler, shared store'daki ephemeral state için okuma endpoint'leri.
type PresenceHandler struct {
	presence PresenceReader
	members  MembershipChecker
}

// NewPresenceHandler, constructor.
func NewPresenceHandler(presence PresenceReader, members MembershipChecker) *PresenceHandler {
	return &PresenceHandler{presence: presence, members: members}
}

// GetPresence godoc
// GET /api/presence/{userId}
// Kayıt yoksa kullanıcı offline döner.
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "userId is required")
		return
	}

	p, err := h.presence.GetPresence(r.Context(), userID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, p)
}

// RoomState godoc
// GET /api/rooms/{roomId}/state
// Odada yazanlar ve çağıranın unread sayısı. Sadece oda üyeleri erişebilir.
func (h *PresenceHandler) RoomState(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "claims not found in context")
		return
	}

	roomID := r.PathValue("roomId")
	member, err := h.members.IsMember(r.Context(), claims.UserID, roomID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	if !member {
		pkg.ErrorWithMessage(w, http.StatusForbidden, "not a member of this room")
		return
	}

	typing, err := h.presence.GetTypingForRoom(r.Context(), roomID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	unread, err := h.presence.GetUnreadCount(r.Context(), claims.UserID, roomID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	if typing == nil {
		typing = []models.TypingIndicator{}
	}
	pkg.JSON(w, http.StatusOK, map[string]any{
		"room_id":      roomID,
		"typing":       typing,
		"unread_count": unread,
	})
}
