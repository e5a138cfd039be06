// Package client implements the connection-facing half of the chat system:
// a websocket transport plus the synchronizer that keeps a local view of
// conversations consistent with the gateway.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"braidly/internal/gateway"
)

// EventHandler receives every decoded server event.
type EventHandler func(ev gateway.Event)

// Client is a single websocket session with the gateway.
type Client struct {
	url     string
	token   string
	logger  *slog.Logger
	handler EventHandler

	mu sync.Mutex
	ws *websocket.Conn
}

func New(gatewayURL, token string, handler EventHandler, logger *slog.Logger) *Client {
	return &Client{
		url:     gatewayURL,
		token:   token,
		handler: handler,
		logger:  logger,
	}
}

// Connect dials the gateway and starts the read loop. The read loop stops
// when the context is cancelled or the peer closes the socket.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("client: parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("client: dial gateway: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ctx, ws)
	return nil
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		var ev gateway.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("gateway connection lost", "error", err)
			}
			return
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

// Send writes one event to the gateway.
func (c *Client) Send(ev gateway.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("client: not connected")
	}
	return c.ws.WriteJSON(ev)
}

// Close shuts the socket down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws = nil
	return err
}
