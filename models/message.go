package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType, mesaj içeriğinin türü.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// MaxMessageLength, bir mesajın rune cinsinden üst sınırı.
const MaxMessageLength = 4000

// Room, durable sohbet odası.
type Room struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Message, kalıcı olarak saklanan bir oda mesajı.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id"`
	Username  string      `json:"username,omitempty"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	ReplyToID *string     `json:"reply_to_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// SendMessageRequest, send_message event payload'ı.
type SendMessageRequest struct {
	RoomID    string      `json:"room_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	ReplyToID *string     `json:"reply_to_id,omitempty"`
}

// Validate, payload'ı normalize eder ve kontrol eder.
// Type boşsa text kabul edilir.
func (r *SendMessageRequest) Validate() error {
	r.RoomID = strings.TrimSpace(r.RoomID)
	if r.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}

	r.Content = strings.TrimSpace(r.Content)
	n := utf8.RuneCountInString(r.Content)
	if n < 1 {
		return fmt.Errorf("message content is required")
	}
	if n > MaxMessageLength {
		return fmt.Errorf("message content must be at most %d characters", MaxMessageLength)
	}

	if r.Type == "" {
		r.Type = MessageTypeText
	}
	switch r.Type {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
	default:
		return fmt.Errorf("invalid message type %q", r.Type)
	}

	if r.ReplyToID != nil && strings.TrimSpace(*r.ReplyToID) == "" {
		r.ReplyToID = nil
	}
	return nil
}
