package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/pkg/logger"

	ws "github.com/fasthttp/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// ErrNotOpen is returned by Send once the channel has begun closing.
var ErrNotOpen = errors.New("websocket channel is not open")

// Conn is what the supervisor holds on to after a successful open.
type Conn interface {
	Send(frame dto.Frame) error
	Close(code int, reason string) error
}

// Sink receives the lifecycle of one physical connection. OnOpen is
// delivered before any OnMessage; OnClose is delivered exactly once and
// last. Calls arrive on the channel's reader goroutine.
type Sink interface {
	OnOpen(conn Conn)
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string, clean bool)
}

// Channel wraps one physical websocket connection. It has no retry logic.
type Channel struct {
	conn *ws.Conn
	sink Sink

	send chan []byte
	stop chan struct{}

	mu          sync.Mutex
	closing     bool
	localCode   int
	localReason string
	writeErr    error
	stopOnce    sync.Once

	logger     logger.ILogger
	wireLogger logger.ILogger
}

var _ Conn = (*Channel)(nil)

func newChannel(conn *ws.Conn, sink Sink, log, wire logger.ILogger) *Channel {
	return &Channel{
		conn:       conn,
		sink:       sink,
		send:       make(chan []byte, sendBufferSize),
		stop:       make(chan struct{}),
		logger:     log,
		wireLogger: wire,
	}
}

// start announces the open and launches the pumps.
func (c *Channel) start() {
	c.sink.OnOpen(c)
	go c.writePump()
	go c.readPump()
}

// Send queues a frame for writing. When the channel is not open it logs
// a warning and drops the frame.
func (c *Channel) Send(frame dto.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		c.logger.Warn("Channel", "Send on closed channel ignored", map[string]interface{}{"type": frame.Type})
		return ErrNotOpen
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		c.wireLogger.Info("Wire", "outbound", map[string]interface{}{"type": frame.Type, "bytes": len(data)})
		return nil
	default:
		c.logger.Warn("Channel", "Send buffer full, dropping frame", map[string]interface{}{"type": frame.Type})
		return ErrNotOpen
	}
}

// Close starts the close handshake with the given code. The peer's echo
// (or the read deadline) ends the reader, which reports OnClose.
func (c *Channel) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.localCode = code
	c.localReason = reason
	c.mu.Unlock()

	c.stopWriter()
	err := c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.conn.SetReadDeadline(time.Now().Add(writeWait))
	if err != nil {
		// Peer is gone; unblock the reader right away.
		c.conn.Close()
	}
	return err
}

// readPump pumps messages from the websocket connection to the sink.
func (c *Channel) readPump() {
	code, reason, clean := constant.CloseAbnormal, "", false
	defer func() {
		c.stopWriter()
		c.conn.Close()

		c.mu.Lock()
		c.closing = true
		if c.localCode != 0 {
			// Locally initiated: report what we asked for.
			code, reason, clean = c.localCode, c.localReason, true
		}
		c.mu.Unlock()

		c.sink.OnClose(code, reason, clean)
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
			var closeErr *ws.CloseError
			if errors.As(err, &closeErr) {
				// A close frame was exchanged, so the close is clean
				// whatever the code.
				code, reason, clean = closeErr.Code, closeErr.Text, true
				if closeErr.Code == ws.CloseNoStatusReceived {
					code = constant.CloseNormal
				}
			} else if werr := c.writeError(); werr != nil {
				c.sink.OnError(werr)
			} else if !c.isClosing() {
				c.sink.OnError(err)
			}
			return
		}
		c.wireLogger.Info("Wire", "inbound", map[string]interface{}{"bytes": len(message)})
		c.sink.OnMessage(message)
	}
}

// writePump pumps queued frames to the connection and keeps it alive with pings.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.logger.Warn("Channel", "Write failed", map[string]interface{}{"error": err.Error()})
				c.abort(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Warn("Channel", "Ping failed", map[string]interface{}{"error": err.Error()})
				c.abort(err)
				return
			}
		}
	}
}

// abort stops accepting frames once the writer is gone. Closing the
// connection ends the reader, which reports err.
func (c *Channel) abort(err error) {
	c.mu.Lock()
	c.closing = true
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Channel) writeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

func (c *Channel) stopWriter() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Channel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}
