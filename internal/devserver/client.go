package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"ai-dashboard-client/internal/dto"

	ws "github.com/fasthttp/websocket"
	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256

	CloseGoingAway = 1001
)

type closeFrame struct {
	code   int
	reason string
}

// Client is one accepted gateway connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	UserID       string
	Username     string
	ConnectionID string

	mu             sync.Mutex
	conversationID string

	send     chan []byte
	closeReq chan closeFrame
	done     chan struct{}
	doneOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID, username, conversationID string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		UserID:         userID,
		Username:       username,
		ConnectionID:   "conn_" + randomSuffix(),
		conversationID: conversationID,
		send:           make(chan []byte, sendBufferSize),
		closeReq:       make(chan closeFrame, 1),
		done:           make(chan struct{}),
	}
}

func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Client) setConversationID(id string) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// enqueue queues a frame for the writer. It reports false once the
// connection is gone.
func (c *Client) enqueue(frame dto.Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.hub.logger.Error("Client", "Failed to encode frame", map[string]interface{}{"type": frame.Type, "error": err.Error()})
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) closeWith(code int, reason string) {
	select {
	case c.closeReq <- closeFrame{code: code, reason: reason}:
	default:
	}
}

func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// readPump runs in the handler goroutine until the peer goes away.
func (c *Client) readPump(handle func(*Client, dto.Frame)) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.hub.logger.Warn("Client", "Connection closed unexpectedly", map[string]interface{}{
					"connection_id": c.ConnectionID,
					"error":         err.Error(),
				})
			}
			return
		}

		var frame dto.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Type == "" {
			c.enqueue(errorFrame("Invalid message format", ""))
			continue
		}
		handle(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closing := false
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			if closing {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.conn.Close()
				return
			}
		case req := <-c.closeReq:
			if closing {
				continue
			}
			closing = true
			// The reader exits once the peer echoes the close.
			c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(req.code, req.reason), time.Now().Add(writeWait))
			c.conn.SetReadDeadline(time.Now().Add(writeWait))
		case <-ticker.C:
			if closing {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
