package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"backfeed/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

type Client struct {
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	remote string
	// contribution filter, 0 for all
	contributionID atomic.Int64

	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, hub *Hub, contributionID int64) *Client {
	c := &Client{
		Conn:   conn,
		Send:   make(chan []byte, 64),
		Hub:    hub,
		remote: conn.RemoteAddr().String(),
	}
	c.contributionID.Store(contributionID)
	return c
}

func (c *Client) wants(contributionID int64) bool {
	f := c.contributionID.Load()
	return f == 0 || f == contributionID
}

// enqueue must be called with the hub lock held so Send is not closed concurrently.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Run registers the client and blocks until the connection is closed.
func (c *Client) Run() {
	go c.writePump()
	c.Hub.register(c)
	c.reply(MsgReady, nil)
	c.readPump()
}

func (c *Client) reply(typ string, payload any) {
	env := Envelope{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		env.Payload = b
	}
	msg, _ := json.Marshal(env)

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if _, ok := c.Hub.clients[c]; ok {
		c.enqueue(msg)
	}
}

//read
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws: read error", "remote", c.remote, "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(MsgError, ErrorPayload{Message: "invalid message"})
		return
	}
	switch env.Type {
	case MsgPing:
		c.reply(MsgPong, nil)
	case MsgSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ContributionID < 0 {
			c.reply(MsgError, ErrorPayload{Message: "invalid subscribe payload"})
			return
		}
		c.contributionID.Store(p.ContributionID)
		c.reply(MsgSubscribe, p)
	default:
		c.reply(MsgError, ErrorPayload{Message: "unknown message type " + env.Type})
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws: write error", "remote", c.remote, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
