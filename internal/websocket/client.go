package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one authenticated feed subscriber. A user may hold several.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	userID int64
	admin  bool
}

func NewClient(hub *Hub, conn *ws.Conn, userID int64, admin bool) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		admin:  admin,
	}
}

// Serve registers c and pumps hub messages to the peer until either side
// goes away. The feed is one-way, so inbound frames are discarded by
// CloseRead, which also cancels ctx when the peer disconnects.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.Close(ws.StatusGoingAway, "")
			return
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.hub.logger.Debug("websocket ping failed", "user_id", c.userID, "error", err)
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
