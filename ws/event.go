// Package ws, WebSocket gateway'ini barındırır: bağlantı kabulü, event
// dispatch'i, process-local bağlantı/oda kayıtları ve pubsub üzerinden
// diğer gateway process'lerine fan-out.
//
// Her bağlantı için iki goroutine vardır (ReadPump, WritePump). Event handler'ları
// bağlantının ReadPump goroutine'inde sırayla çalışır.
package ws

import (
	"encoding/json"
	"time"

	"github.com/akinalp/mqvi-gateway/models"
)

// Client → Gateway op'ları.
const (
	OpJoinRoom     = "join_room"
	OpLeaveRoom    = "leave_room"
	OpSendMessage  = "send_message"
	OpTyping       = "typing"
	OpMarkAsRead   = "mark_as_read"
	OpUpdateStatus = "update_status"
	OpHeartbeat    = "heartbeat"
)

// Gateway → Client op'ları.
const (
	OpReady           = "ready"
	OpRoomJoined      = "room_joined"
	OpRoomLeft        = "room_left"
	OpUserJoined      = "user_joined"
	OpUserLeft        = "user_left"
	OpMessageReceived = "message_received"
	OpTypingIndicator = "typing_indicator"
	OpReadReceipt     = "read_receipt"
	OpStatusUpdated   = "status_updated"
	OpHeartbeatAck    = "heartbeat_ack"
	OpError           = "error"
)

// Event, WebSocket üzerinden giden mesajın zarfı.
//
//	{"op": "message_received", "d": {...}, "seq": 42}
//
// Seq, gateway'den client'a giden event'lerde process-local artan sıra numarasıdır.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// rawEvent, Data'sı henüz çözülmemiş event. Client'tan gelen mesajlar ve
// diğer process'lerden gelen envelope'ların Event alanı bu şekilde okunur.
type rawEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// ─── Client → Gateway payload'ları ───

// RoomData, join_room / leave_room payload'ı.
type RoomData struct {
	RoomID string `json:"room_id"`
}

// TypingData, typing payload'ı.
type TypingData struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// MarkAsReadData, mark_as_read payload'ı. RoomID veya MessageID'den biri zorunlu.
type MarkAsReadData struct {
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// UpdateStatusData, update_status payload'ı.
type UpdateStatusData struct {
	Status models.UserStatus `json:"status"`
}

// ─── Gateway → Client payload'ları ───

// ReadyData, bağlantı kabul edildikten sonra gönderilen ilk event.
type ReadyData struct {
	ConnectionID string          `json:"connection_id"`
	InstanceID   string          `json:"instance_id"`
	UserID       string          `json:"user_id"`
	Username     string          `json:"username"`
	Role         models.UserRole `json:"role,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
}

// RoomJoinedData, room_joined payload'ı.
type RoomJoinedData struct {
	RoomID      string `json:"room_id"`
	UnreadCount int64  `json:"unread_count"`
}

// RoomUserData, user_joined / user_left payload'ı.
type RoomUserData struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TypingIndicatorData, typing_indicator payload'ı.
type TypingIndicatorData struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// ReadReceiptData, read_receipt payload'ı.
type ReadReceiptData struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id,omitempty"`
	ReadAt    time.Time `json:"read_at"`
}

// StatusUpdatedData, status_updated payload'ı.
type StatusUpdatedData struct {
	UserID string            `json:"user_id"`
	Status models.UserStatus `json:"status"`
}

// ErrorData, error payload'ı. Op, hataya yol açan client op'udur.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}
