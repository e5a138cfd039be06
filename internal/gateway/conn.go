package gateway

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"braidly/internal/infra/security"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 256
)

// Conn is one authenticated websocket connection. Room bookkeeping fields
// are owned by the Registry and must only be touched under its lock.
type Conn struct {
	ID       string
	Identity security.Identity

	ws   *websocket.Conn
	hub  *Hub
	send chan Event

	activeConversation string
	subscriptions      map[string]struct{}

	closeMu sync.RWMutex
	closed  bool
}

func newConn(hub *Hub, ws *websocket.Conn, identity security.Identity) *Conn {
	return &Conn{
		ID:            uuid.NewString(),
		Identity:      identity,
		ws:            ws,
		hub:           hub,
		send:          make(chan Event, sendBufSize),
		subscriptions: make(map[string]struct{}),
	}
}

// Enqueue hands an event to the write pump without blocking. A connection
// that cannot keep up with its outbound queue is disconnected rather than
// allowed to stall the sender.
func (c *Conn) Enqueue(ev Event) {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return
	}
	select {
	case c.send <- ev:
		c.closeMu.RUnlock()
	default:
		c.closeMu.RUnlock()
		if c.hub != nil && c.hub.logger != nil {
			c.hub.logger.Warn("outbound queue full, dropping connection", "conn_id", c.ID, "user_id", c.Identity.UserID)
		}
		c.close()
	}
}

func (c *Conn) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
					c.hub.logger.Debug("read failed", "conn_id", c.ID, "error", err)
				}
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.hub.logger.Debug("undecodable frame", "conn_id", c.ID, "error", err)
			continue
		}
		// dispatching inline keeps each sender's events in acceptance order
		c.hub.dispatch(c, ev)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
