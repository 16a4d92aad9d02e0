package chat

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 512
)

// Client is one websocket connection bound to one subscription. The push
// channel is one-way; inbound frames only keep the connection alive.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Sub  *Subscription
	log  *logrus.Entry
}

func NewClient(hub *Hub, conn *websocket.Conn, channel string) *Client {
	sub := hub.Subscribe(channel)
	return &Client{
		Conn: conn,
		Hub:  hub,
		Sub:  sub,
		log:  logrus.WithFields(logrus.Fields{"component": "ws", "channel": channel, "subscription": sub.ID}),
	}
}

// Serve runs both pumps and returns when the connection ends.
func (c *Client) Serve() {
	go c.WritePump()
	c.ReadPump()
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Sub.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain what is already queued without reordering.
			n := len(c.Sub.Send)
			for i := 0; i < n; i++ {
				msg, ok := <-c.Sub.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unsubscribe(c.Sub)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Info("[CLIENT] Unexpected close")
			}
			return
		}
	}
}
