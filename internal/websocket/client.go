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
	readLimit      = 512
)

// Client is one dashboard or kiosk connection, subscribed to a single family.
// The feed is one-way: anything the client sends closes the connection.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	familyID int64
	send     chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, familyID int64) *Client {
	conn.SetReadLimit(readLimit)
	return &Client{
		hub:      hub,
		conn:     conn,
		familyID: familyID,
		send:     make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and writes family events until the peer goes
// away or ctx ends, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead handles control frames and cancels ctx when the peer closes.
	ctx = c.conn.CloseRead(ctx)
	c.writeLoop(ctx)
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusGoingAway, "feed closed")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			c.conn.Close(ws.StatusNormalClosure, "")
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
