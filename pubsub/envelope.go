// Package pubsub, gateway process'leri arasında event fan-out'u sağlar.
//
// Her process tek bir broadcast kanalına abone olur. Bir process'te oluşan
// event önce yerel bağlantılara teslim edilir, sonra Envelope olarak yayınlanır;
// diğer process'ler envelope'u alıp kendi yerel bağlantılarına uygular.
// Yayınlayan process kendi envelope'unu (Origin ile) atlar.
//
// Teslim garantisi "at most once + dedupe"dur: transport yeniden teslim ederse
// aynı ID'li envelope ikinci kez işlenmez.
package pubsub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind, envelope'un alıcı process'te nasıl uygulanacağı.
type Kind string

const (
	// KindRoomEmit, Room'daki yerel bağlantılara Event'i iletir (ExceptUserID hariç).
	KindRoomEmit Kind = "room_emit"
	// KindUserEmit, UserID'nin yerel bağlantılarına Event'i iletir.
	KindUserEmit Kind = "user_emit"
	// KindBroadcast, tüm yerel bağlantılara Event'i iletir (ExceptUserID hariç).
	KindBroadcast Kind = "broadcast"
	// KindRoomJoin, UserID'nin yerel bağlantılarını Room'a ekler.
	KindRoomJoin Kind = "room_join"
	// KindRoomLeave, UserID'nin yerel bağlantılarını Room'dan çıkarır.
	KindRoomLeave Kind = "room_leave"
)

// Envelope, broker üzerinden taşınan tek fan-out mesajı.
type Envelope struct {
	ID           string          `json:"id"`
	Origin       string          `json:"origin"`
	Kind         Kind            `json:"kind"`
	Room         string          `json:"room,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	ExceptUserID string          `json:"except_user_id,omitempty"`
	Event        json.RawMessage `json:"event,omitempty"`
	SentAt       time.Time       `json:"sent_at"`
}

// Validate, kind'a göre zorunlu alanları kontrol eder.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindRoomEmit:
		if e.Room == "" || len(e.Event) == 0 {
			return fmt.Errorf("room_emit requires room and event")
		}
	case KindUserEmit:
		if e.UserID == "" || len(e.Event) == 0 {
			return fmt.Errorf("user_emit requires user_id and event")
		}
	case KindBroadcast:
		if len(e.Event) == 0 {
			return fmt.Errorf("broadcast requires event")
		}
	case KindRoomJoin, KindRoomLeave:
		if e.Room == "" || e.UserID == "" {
			return fmt.Errorf("%s requires room and user_id", e.Kind)
		}
	default:
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return nil
}
