package supervisor

import (
	"context"
	"errors"
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/eventloop"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
	"ai-dashboard-client/internal/websocket"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Transport opens one physical connection and reports its lifecycle to sink.
type Transport interface {
	Dial(ctx context.Context, address string, sink websocket.Sink) error
}

type Config struct {
	Address          string
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
}

// Supervisor drives the connection state machine and owns reconnection.
// All methods except Subscribe/On* must run on the event loop.
type Supervisor struct {
	cfg       Config
	creds     Credentials
	transport Transport
	exec      eventloop.Executor
	clock     clock.Clock
	logger    logger.ILogger

	conversationID func() string
	onMessage      func([]byte)

	state      model.ConnectionState
	conn       websocket.Conn
	gen        uint64
	cancelDial context.CancelFunc
	waiters    []chan error

	attempts   int
	backoff    *backoff.ExponentialBackOff
	retryTimer clock.Timer
	retrySeq   uint64
	authFailed bool

	events *pubsub.Registry[EventKind, Event]
}

func New(cfg Config, creds Credentials, transport Transport, exec eventloop.Executor, clk clock.Clock, log logger.ILogger) *Supervisor {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	return &Supervisor{
		cfg:            cfg,
		creds:          creds,
		transport:      transport,
		exec:           exec,
		clock:          clk,
		logger:         log,
		conversationID: func() string { return "" },
		onMessage:      func([]byte) {},
		state:          model.StateDisconnected,
		backoff:        b,
		events:         pubsub.New[EventKind, Event]("Supervisor", log),
	}
}

// SetConversationSource supplies the id attached to every connect address.
func (s *Supervisor) SetConversationSource(fn func() string) {
	s.conversationID = fn
}

// SetMessageHandler receives every inbound payload of the live connection.
func (s *Supervisor) SetMessageHandler(fn func([]byte)) {
	s.onMessage = fn
}

func (s *Supervisor) Subscribe(kind EventKind, fn func(Event)) pubsub.Unsubscribe {
	return s.events.Subscribe(kind, fn)
}

func (s *Supervisor) OnStateChange(fn func(Event)) pubsub.Unsubscribe {
	return s.events.Subscribe(EventStateChanged, fn)
}

func (s *Supervisor) OnAuthFailed(fn func(Event)) pubsub.Unsubscribe {
	return s.events.Subscribe(EventAuthFailed, fn)
}

func (s *Supervisor) OnRetry(fn func(Event)) pubsub.Unsubscribe {
	return s.events.Subscribe(EventRetryScheduled, fn)
}

func (s *Supervisor) State() model.ConnectionState { return s.state }

func (s *Supervisor) Connected() bool { return s.state == model.StateConnected && s.conn != nil }

// Attempts is the number of retries scheduled since the last open.
func (s *Supervisor) Attempts() int { return s.attempts }

// Connect starts a connection attempt unless one is live or in flight.
// The returned channel yields nil once open, or the error that ended the
// attempt: a dial error, an authentication rejection, or a close observed
// before the first open. It always receives exactly one value.
func (s *Supervisor) Connect() <-chan error {
	result := make(chan error, 1)

	switch s.state {
	case model.StateConnected:
		result <- nil
		return result
	case model.StateConnecting:
		s.waiters = append(s.waiters, result)
		return result
	}

	// Manual connect: start a fresh retry budget.
	s.cancelRetry()
	s.attempts = 0
	s.backoff.Reset()
	s.authFailed = false

	s.waiters = append(s.waiters, result)
	s.dial()
	return result
}

// Disconnect closes the live connection cleanly and cancels any retry.
func (s *Supervisor) Disconnect() {
	s.cancelRetry()
	s.invalidate()
	if s.conn != nil {
		if err := s.conn.Close(constant.CloseNormal, "client shutdown"); err != nil {
			s.logger.Debug("Supervisor", "Close on shutdown failed", map[string]interface{}{"error": err.Error()})
		}
		s.conn = nil
	}
	s.rejectWaiters(ErrShutdown)
	s.setState(model.StateDisconnected)
}

// Send writes a frame on the live connection.
func (s *Supervisor) Send(frame dto.Frame) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return s.conn.Send(frame)
}

// MarkReady records the server's connected acknowledgment.
func (s *Supervisor) MarkReady(connectionID string) {
	s.events.Publish(EventReady, Event{Kind: EventReady, To: s.state, ConnectionID: connectionID})
}

// ForceAuthFailure treats an in-band auth_error as a terminal rejection.
func (s *Supervisor) ForceAuthFailure(reason string) {
	s.terminalAuth(constant.CloseTokenInvalid, reason)
}

func (s *Supervisor) dial() {
	s.invalidate()
	gen := s.gen
	s.setState(model.StateConnecting)

	if credentialExpired(s.creds.Token, s.clock.Now()) {
		s.terminalAuth(constant.CloseTokenInvalid, "credential expired")
		return
	}

	address, err := BuildAddress(s.cfg.Address, s.creds, s.conversationID())
	if err != nil {
		s.onDialError(gen, err)
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancelDial = cancel

	s.logger.Info("Supervisor", "Connecting", map[string]interface{}{"attempt": s.attempts, "conversation_id": s.conversationID()})

	sink := &attemptSink{s: s, gen: gen}
	attempt := s.attempts
	go func() {
		defer cancel()
		ctx, span := otel.Tracer("supervisor").Start(ctx, "websocket.dial")
		span.SetAttributes(attribute.Int("attempt", attempt))
		err := s.transport.Dial(ctx, address, sink)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			s.exec.Post(func() { s.onDialError(gen, err) })
		}
	}()
}

func (s *Supervisor) onOpened(gen uint64, conn websocket.Conn) {
	if gen != s.gen {
		conn.Close(constant.CloseNormal, "superseded")
		return
	}
	s.conn = conn
	s.attempts = 0
	s.backoff.Reset()
	s.setState(model.StateConnected)
	s.logger.Info("Supervisor", "Connected", nil)

	waiters := s.waiters
	s.waiters = nil
	for _, w := range waiters {
		w <- nil
	}
}

func (s *Supervisor) onDialError(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	s.invalidate()
	s.conn = nil

	var hsErr *websocket.HandshakeError
	if errors.As(err, &hsErr) && hsErr.Unauthorized() {
		s.terminalAuth(hsErr.StatusCode, "handshake rejected")
		return
	}

	s.logger.Warn("Supervisor", "Connect failed", map[string]interface{}{"error": err.Error()})
	s.setState(model.StateError)
	s.rejectWaiters(err)
	s.scheduleRetry()
}

func (s *Supervisor) onClosed(gen uint64, code int, reason string, clean bool) {
	if gen != s.gen {
		return
	}
	s.invalidate()
	s.conn = nil

	class := ClassifyClose(code)
	s.logger.Info("Supervisor", "Connection closed", map[string]interface{}{
		"code": code, "reason": reason, "clean": clean, "class": class.String(),
	})

	switch class {
	case CloseAuthRejected:
		s.terminalAuth(code, reason)
	case CloseClean:
		s.setState(model.StateDisconnected)
		s.rejectWaiters(ErrClosedBeforeReady)
	default:
		s.setState(model.StateDisconnected)
		s.rejectWaiters(ErrClosedBeforeReady)
		s.scheduleRetry()
	}
}

// terminalAuth stops everything and emits the auth-failed event once per
// Connect call.
func (s *Supervisor) terminalAuth(code int, reason string) {
	s.cancelRetry()
	s.invalidate()
	if s.conn != nil {
		s.conn.Close(constant.CloseNormal, "authentication failed")
		s.conn = nil
	}

	authErr := &AuthError{Code: code, Reason: reason}
	s.rejectWaiters(authErr)
	s.setState(model.StateDisconnected)

	if s.authFailed {
		return
	}
	s.authFailed = true
	s.logger.Warn("Supervisor", "Authentication rejected", map[string]interface{}{"code": code, "reason": reason})
	s.events.Publish(EventAuthFailed, Event{Kind: EventAuthFailed, Code: code, Reason: reason, To: s.state})
}

// scheduleRetry arms the single reconnect timer, replacing any outstanding one.
func (s *Supervisor) scheduleRetry() {
	if s.attempts >= s.cfg.MaxAttempts {
		s.setState(model.StateError)
		s.logger.Error("Supervisor", "Reconnect attempts exhausted", map[string]interface{}{"attempts": s.attempts})
		s.events.Publish(EventRetriesExhausted, Event{Kind: EventRetriesExhausted, Attempt: s.attempts, To: s.state})
		return
	}

	s.cancelRetry()
	delay := s.backoff.NextBackOff()
	attempt := s.attempts
	s.attempts++

	s.retrySeq++
	seq := s.retrySeq
	s.retryTimer = s.clock.AfterFunc(delay, func() {
		s.exec.Post(func() {
			if seq != s.retrySeq || s.retryTimer == nil {
				return
			}
			s.retryTimer = nil
			s.dial()
		})
	})

	s.logger.Info("Supervisor", "Reconnect scheduled", map[string]interface{}{"attempt": attempt, "delay": delay.String()})
	s.events.Publish(EventRetryScheduled, Event{Kind: EventRetryScheduled, Attempt: attempt, Delay: delay, To: s.state})
}

func (s *Supervisor) cancelRetry() {
	s.retrySeq++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// invalidate makes every callback of the current attempt stale.
func (s *Supervisor) invalidate() {
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
}

func (s *Supervisor) rejectWaiters(err error) {
	waiters := s.waiters
	s.waiters = nil
	for _, w := range waiters {
		w <- err
	}
}

func (s *Supervisor) setState(next model.ConnectionState) {
	if next == s.state {
		return
	}
	prev := s.state
	s.state = next
	s.events.Publish(EventStateChanged, Event{Kind: EventStateChanged, From: prev, To: next})
}

// attemptSink forwards one attempt's transport events onto the loop.
type attemptSink struct {
	s   *Supervisor
	gen uint64
}

func (a *attemptSink) OnOpen(conn websocket.Conn) {
	a.s.exec.Post(func() { a.s.onOpened(a.gen, conn) })
}

func (a *attemptSink) OnMessage(data []byte) {
	a.s.exec.Post(func() {
		if a.gen != a.s.gen {
			return
		}
		a.s.onMessage(data)
	})
}

func (a *attemptSink) OnError(err error) {
	a.s.exec.Post(func() {
		if a.gen != a.s.gen {
			return
		}
		a.s.logger.Warn("Supervisor", "Transport error", map[string]interface{}{"error": err.Error()})
	})
}

func (a *attemptSink) OnClose(code int, reason string, clean bool) {
	a.s.exec.Post(func() { a.s.onClosed(a.gen, code, reason, clean) })
}
