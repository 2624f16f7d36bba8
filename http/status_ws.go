package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StatusEvent is one training progress message pushed to subscribers.
type StatusEvent struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

type statusHub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

var trainingHub = &statusHub{clients: make(map[*wsClient]bool)}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// broadcastStatus pushes one training event to all connected
// subscribers. Slow clients are dropped rather than blocking the
// training goroutine.
func broadcastStatus(stage, message string) {
	payload, err := json.Marshal(StatusEvent{
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	trainingHub.mu.Lock()
	defer trainingHub.mu.Unlock()
	for client := range trainingHub.clients {
		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(trainingHub.clients, client)
		}
	}
}

func (h *statusHub) add(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logger.Infow("training status subscriber connected", "total", total)
}

func (h *statusHub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logger.Infow("training status subscriber disconnected", "total", total)
}

func handleTrainingSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 16)}
	trainingHub.add(client)

	go client.writePump()
	client.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains and discards client frames so pongs and close frames
// are processed; any read error tears the client down.
func (c *wsClient) readPump() {
	defer func() {
		trainingHub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
