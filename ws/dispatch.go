package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage)

func (h *Hub) handlers() map[string]eventHandler {
	return map[string]eventHandler{
		OpJoinRoom:     h.handleJoinRoom,
		OpLeaveRoom:    h.handleLeaveRoom,
		OpSendMessage:  h.handleSendMessage,
		OpTyping:       h.handleTyping,
		OpMarkAsRead:   h.handleMarkAsRead,
		OpUpdateStatus: h.handleUpdateStatus,
	}
}

// dispatch, client'tan gelen tek bir event'i işler. Bağlantının ReadPump
// goroutine'inden çağrılır; aynı bağlantının event'leri sırayla işlenir.
func (h *Hub) dispatch(c *Client, ev rawEvent) {
	if ev.Op == OpHeartbeat {
		metrics.EventsReceived.WithLabelValues(ev.Op).Inc()
		c.sendEvent(Event{Op: OpHeartbeatAck})
		return
	}

	handler, ok := h.handlerMap[ev.Op]
	if !ok {
		metrics.EventsReceived.WithLabelValues("unknown").Inc()
		c.sendError(ev.Op, pkg.CodeValidation, fmt.Sprintf("unknown op %q", ev.Op))
		return
	}
	metrics.EventsReceived.WithLabelValues(ev.Op).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.OpTimeout)
	defer cancel()

	// Session'a bağlı token'larda her event session'ı doğrular (ve yeniler).
	// Logout veya eviction sonrası bağlantı kapatılır.
	if c.sessionID != "" && h.deps.Sessions != nil {
		if _, err := h.deps.Sessions.ValidateSession(ctx, c.sessionID); err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				c.sendError(ev.Op, pkg.CodeSessionExpired, "session expired")
				c.closeAfterFlush(closePolicyViolated, "session expired")
				return
			}
			c.logger.Warn("session validation unavailable, dropping event", "op", ev.Op, "error", err)
			c.sendError(ev.Op, pkg.CodeStoreUnavailable, "session could not be verified, try again")
			return
		}
	}

	handler(ctx, c, ev.Data)
}

// replyError, domain error'ı error event'ine çevirir. Internal hatalar
// client'a detay vermeden loglanır.
func (h *Hub) replyError(c *Client, op string, err error) {
	code := pkg.ErrorCode(err)
	message := err.Error()
	switch code {
	case pkg.CodeInternal:
		c.logger.Error("event failed", "op", op, "error", err)
		message = "internal error"
	case pkg.CodeStoreUnavailable:
		c.logger.Warn("event degraded", "op", op, "error", err)
	}
	c.sendError(op, code, message)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", pkg.ErrBadRequest)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload", pkg.ErrBadRequest)
	}
	return nil
}

func (h *Hub) requireMember(ctx context.Context, userID, roomID string) error {
	ok, err := h.deps.Rooms.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of room %s", pkg.ErrForbidden, roomID)
	}
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) {
	var d RoomData
	if err := decode(data, &d); err != nil {
		h.replyError(c, OpJoinRoom, err)
		return
	}
	d.RoomID = strings.TrimSpace(d.RoomID)
	if d.RoomID == "" {
		h.replyError(c, OpJoinRoom, fmt.Errorf("%w: room_id is required", pkg.ErrBadRequest))
		return
	}

	if err := h.requireMember(ctx, c.userID, d.RoomID); err != nil {
		h.replyError(c, OpJoinRoom, err)
		return
	}

	if err := h.JoinUserToRoom(ctx, c.userID, d.RoomID); err != nil {
		c.logger.Warn("room join not fanned out", "room_id", d.RoomID, "error", err)
	}

	unread, err := h.deps.Presence.GetUnreadCount(ctx, c.userID, d.RoomID)
	if err != nil {
		c.logger.Warn("failed to read unread count", "room_id", d.RoomID, "error", err)
	}
	c.sendEvent(Event{Op: OpRoomJoined, Data: RoomJoinedData{RoomID: d.RoomID, UnreadCount: unread}})

	joined := Event{Op: OpUserJoined, Data: RoomUserData{RoomID: d.RoomID, UserID: c.userID, Username: c.username}}
	if err := h.EmitToRoom(ctx, d.RoomID, joined, c.userID); err != nil {
		c.logger.Warn("user_joined not fanned out", "room_id", d.RoomID, "error", err)
	}
}

func (h *Hub) handleLeaveRoom(ctx context.Context, c *Client, data json.RawMessage) {
	var d RoomData
	if err := decode(data, &d); err != nil {
		h.replyError(c, OpLeaveRoom, err)
		return
	}
	d.RoomID = strings.TrimSpace(d.RoomID)
	if d.RoomID == "" {
		h.replyError(c, OpLeaveRoom, fmt.Errorf("%w: room_id is required", pkg.ErrBadRequest))
		return
	}

	if err := h.RemoveUserFromRoom(ctx, c.userID, d.RoomID); err != nil {
		c.logger.Warn("room leave not fanned out", "room_id", d.RoomID, "error", err)
	}
	c.sendEvent(Event{Op: OpRoomLeft, Data: RoomData{RoomID: d.RoomID}})

	left := Event{Op: OpUserLeft, Data: RoomUserData{RoomID: d.RoomID, UserID: c.userID, Username: c.username}}
	if err := h.EmitToRoom(ctx, d.RoomID, left, c.userID); err != nil {
		c.logger.Warn("user_left not fanned out", "room_id", d.RoomID, "error", err)
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var req models.SendMessageRequest
	if err := decode(data, &req); err != nil {
		h.replyError(c, OpSendMessage, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.replyError(c, OpSendMessage, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error()))
		return
	}

	if h.deps.Limiter != nil && !h.deps.Limiter.Allow(c.userID) {
		h.replyError(c, OpSendMessage, fmt.Errorf("%w: slow down, try again in %d seconds",
			pkg.ErrRateLimited, h.deps.Limiter.CooldownSeconds(c.userID)))
		return
	}

	if err := h.requireMember(ctx, c.userID, req.RoomID); err != nil {
		h.replyError(c, OpSendMessage, err)
		return
	}

	msg, err := h.deps.Messages.Create(ctx, c.userID, c.username, &req)
	if err != nil {
		h.replyError(c, OpSendMessage, err)
		return
	}

	// Mesaj kalıcı; bundan sonraki hatalar sadece teslimatı/sayaçları etkiler.
	if err := h.EmitToRoom(ctx, req.RoomID, Event{Op: OpMessageReceived, Data: msg}, ""); err != nil {
		h.replyError(c, OpSendMessage, fmt.Errorf("%w: message %s saved but not delivered to other gateways",
			pkg.ErrStoreUnavailable, msg.ID))
	}

	h.bumpUnread(ctx, c, req.RoomID)

	if err := h.deps.Presence.ClearTyping(ctx, req.RoomID, c.userID); err != nil {
		c.logger.Debug("failed to clear typing after send", "room_id", req.RoomID, "error", err)
	}
}

// unreadConcurrency, tek bir mesaj için paralel INCR üst sınırı.
const unreadConcurrency = 8

// bumpUnread, gönderen hariç odanın (cache'lenmiş) üyelerinin unread
// sayaçlarını artırır. İlk hata kalan artırmaları iptal eder; hata loglanır,
// event başarısız sayılmaz.
func (h *Hub) bumpUnread(ctx context.Context, c *Client, roomID string) {
	members, err := h.deps.Rooms.ListMembers(ctx, roomID)
	if err != nil {
		c.logger.Warn("failed to list room members for unread", "room_id", roomID, "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(unreadConcurrency)
	for _, memberID := range members {
		if memberID == c.userID {
			continue
		}
		g.Go(func() error {
			if _, err := h.deps.Presence.IncrementUnreadCount(gctx, memberID, roomID); err != nil {
				return fmt.Errorf("member %s: %w", memberID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("failed to increment unread counts", "room_id", roomID, "error", err)
	}
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, data json.RawMessage) {
	var d TypingData
	if err := decode(data, &d); err != nil {
		h.replyError(c, OpTyping, err)
		return
	}
	if d.RoomID == "" {
		h.replyError(c, OpTyping, fmt.Errorf("%w: room_id is required", pkg.ErrBadRequest))
		return
	}
	if !c.inRoom(d.RoomID) {
		h.replyError(c, OpTyping, fmt.Errorf("%w: join room %s first", pkg.ErrForbidden, d.RoomID))
		return
	}

	var err error
	if d.IsTyping {
		err = h.deps.Presence.SetTyping(ctx, d.RoomID, c.userID, c.username)
	} else {
		err = h.deps.Presence.ClearTyping(ctx, d.RoomID, c.userID)
	}
	if err != nil {
		h.replyError(c, OpTyping, err)
		return
	}

	ev := Event{Op: OpTypingIndicator, Data: TypingIndicatorData{
		RoomID:   d.RoomID,
		UserID:   c.userID,
		Username: c.username,
		IsTyping: d.IsTyping,
	}}
	if err := h.EmitToRoom(ctx, d.RoomID, ev, c.userID); err != nil {
		c.logger.Debug("typing indicator not fanned out", "room_id", d.RoomID, "error", err)
	}
}

func (h *Hub) handleMarkAsRead(ctx context.Context, c *Client, data json.RawMessage) {
	var d MarkAsReadData
	if err := decode(data, &d); err != nil {
		h.replyError(c, OpMarkAsRead, err)
		return
	}

	roomID := strings.TrimSpace(d.RoomID)
	if roomID == "" {
		if d.MessageID == "" {
			h.replyError(c, OpMarkAsRead, fmt.Errorf("%w: room_id or message_id is required", pkg.ErrBadRequest))
			return
		}
		resolved, err := h.deps.Messages.RoomOf(ctx, d.MessageID)
		if err != nil {
			h.replyError(c, OpMarkAsRead, err)
			return
		}
		roomID = resolved
	}

	if err := h.requireMember(ctx, c.userID, roomID); err != nil {
		h.replyError(c, OpMarkAsRead, err)
		return
	}
	if err := h.deps.Presence.ResetUnreadCount(ctx, c.userID, roomID); err != nil {
		h.replyError(c, OpMarkAsRead, err)
		return
	}

	receipt := Event{Op: OpReadReceipt, Data: ReadReceiptData{
		RoomID:    roomID,
		UserID:    c.userID,
		MessageID: d.MessageID,
		ReadAt:    time.Now().UTC(),
	}}
	if err := h.EmitToRoom(ctx, roomID, receipt, ""); err != nil {
		c.logger.Warn("read receipt not fanned out", "room_id", roomID, "error", err)
	}
}

func (h *Hub) handleUpdateStatus(ctx context.Context, c *Client, data json.RawMessage) {
	var d UpdateStatusData
	if err := decode(data, &d); err != nil {
		h.replyError(c, OpUpdateStatus, err)
		return
	}
	if !d.Status.Valid() {
		h.replyError(c, OpUpdateStatus, fmt.Errorf("%w: invalid status %q", pkg.ErrBadRequest, d.Status))
		return
	}

	if err := h.deps.Presence.SetPresence(ctx, c.userID, d.Status); err != nil {
		c.logger.Warn("failed to persist status", "status", d.Status, "error", err)
	}

	ev := Event{Op: OpStatusUpdated, Data: StatusUpdatedData{UserID: c.userID, Status: d.Status}}
	if err := h.Broadcast(ctx, ev, ""); err != nil {
		c.logger.Warn("status update not fanned out", "status", d.Status, "error", err)
	}
}
