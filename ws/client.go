package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'tan heartbeat, pong veya herhangi bir mesaj gelmeden
	// geçebilecek maksimum süre. 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// pingPeriod: Sunucunun ping gönderme aralığı. pongWait'ten kısa olmalı.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize: Client'ın gönderebileceği maksimum mesaj boyutu (byte).
	// 4000 rune'luk bir mesaj UTF-8'de 16KB'a kadar çıkabilir.
	maxMessageSize = 32 * 1024

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer doluysa (client yavaş) bağlantı kapatılır.
	sendBufferSize = 256
)

// Close code'ları.
const (
	closeNormal         = websocket.CloseNormalClosure
	closeGoingAway      = websocket.CloseGoingAway
	closePolicyViolated = websocket.ClosePolicyViolation
)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
//   - ReadPump: client'tan gelen event'leri okur ve sırayla işler
//   - WritePump: send buffer'ındaki frame'leri bağlantıya yazar
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	username  string
	sessionID string
	role      models.UserRole
	logger    *slog.Logger

	send chan []byte
	mu   sync.Mutex // conn.WriteMessage çağrılarını korur

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
	flush     bool

	roomsMu sync.Mutex
	rooms   map[string]struct{}
}

func newClient(id string, hub *Hub, conn *websocket.Conn, claims *models.TokenClaims) *Client {
	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		userID:    claims.UserID,
		username:  claims.Username,
		sessionID: claims.SessionID,
		role:      claims.Role,
		logger:    hub.logger.With("user_id", claims.UserID, "connection_id", id),
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
}

// ReadPump, bağlantıdan gelen event'leri okur ve Hub üzerinden işler.
// Bağlantı kapanana kadar döngüde kalır; çıkışta client Hub'dan düşürülür.
func (c *Client) ReadPump() {
	defer func() {
		c.closeWithReason(closeNormal, "")
		c.hub.unregister(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.extendDeadline(); err != nil {
		c.logger.Warn("failed to set read deadline", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.extendDeadline() })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("unexpected close", "error", err)
			}
			return
		}

		if err := c.extendDeadline(); err != nil {
			return
		}

		var ev rawEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Op == "" {
			c.sendError("", pkg.CodeValidation, "malformed event")
			continue
		}

		c.hub.dispatch(c, ev)
	}
}

func (c *Client) extendDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// WritePump, send buffer'ındaki frame'leri bağlantıya yazar ve periyodik ping
// gönderir. Client kapatıldığında close frame yazıp bağlantıyı kapatır.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				c.closeWithReason(closeNormal, "")
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				c.closeWithReason(closeNormal, "")
				return
			}

		case <-c.done:
			if c.flush {
				c.drain()
			}
			_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
			return
		}
	}
}

// drain, kapanıştan önce buffer'da kalan frame'leri yazar.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
// gorilla/websocket aynı anda birden fazla writer'a izin vermez.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// sendRaw, frame'i non-blocking olarak send buffer'ına ekler.
// Buffer doluysa client yavaş kabul edilir ve bağlantı kapatılır.
func (c *Client) sendRaw(data []byte) bool {
	if c.isClosed() {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		metrics.SlowClientsDropped.Inc()
		c.logger.Warn("send buffer full, dropping connection")
		c.closeWithReason(closePolicyViolated, "slow consumer")
		return false
	}
}

// sendEvent, event'i seq numarası ekleyerek bu bağlantıya gönderir.
func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal event", "op", event.Op, "error", err)
		return
	}
	c.sendRaw(data)
}

// sendError, bu bağlantıya error event'i gönderir.
func (c *Client) sendError(op, code, message string) {
	metrics.EventErrors.WithLabelValues(code).Inc()
	c.sendEvent(Event{Op: OpError, Data: ErrorData{Code: code, Message: message, Op: op}})
}

// closeWithReason, bağlantıyı kapatma sinyali verir. Bekleyen frame'ler yazılmaz.
func (c *Client) closeWithReason(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// closeAfterFlush, buffer'daki frame'ler (ör. son error event'i) yazıldıktan
// sonra bağlantıyı kapatır.
func (c *Client) closeAfterFlush(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		c.flush = true
		close(c.done)
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ─── Oda seti ───

func (c *Client) addRoom(roomID string) {
	c.roomsMu.Lock()
	c.rooms[roomID] = struct{}{}
	c.roomsMu.Unlock()
}

func (c *Client) removeRoom(roomID string) {
	c.roomsMu.Lock()
	delete(c.rooms, roomID)
	c.roomsMu.Unlock()
}

func (c *Client) inRoom(roomID string) bool {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) roomIDs() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}
