package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ai-dashboard-client/internal/pkg/logger"

	ws "github.com/fasthttp/websocket"
)

// HandshakeError is returned when the server answers the upgrade request
// with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Unauthorized reports whether the rejection was an authentication failure.
func (e *HandshakeError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Dialer opens Channels.
type Dialer struct {
	dialer     *ws.Dialer
	logger     logger.ILogger
	wireLogger logger.ILogger
}

func NewDialer(handshakeTimeout time.Duration, log, wire logger.ILogger) *Dialer {
	return &Dialer{
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger:     log,
		wireLogger: wire,
	}
}

// Dial connects to address. On success the sink has already received
// OnOpen when Dial returns and the pumps are running.
func (d *Dialer) Dial(ctx context.Context, address string, sink Sink) error {
	conn, resp, err := d.dialer.DialContext(ctx, address, nil)
	if err != nil {
		if resp != nil && errors.Is(err, ws.ErrBadHandshake) {
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	newChannel(conn, sink, d.logger, d.wireLogger).start()
	return nil
}
