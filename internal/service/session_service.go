package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/eventloop"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
	"ai-dashboard-client/internal/repository/contract"
	"ai-dashboard-client/internal/router"
	"ai-dashboard-client/internal/session"
	"ai-dashboard-client/internal/stream"
	"ai-dashboard-client/internal/supervisor"
	"ai-dashboard-client/pkg/store"

	"github.com/google/uuid"
)

var (
	ErrClosed       = errors.New("session service closed")
	ErrNotConnected = router.ErrNotConnected
	ErrEmptyMessage = errors.New("message is empty")
)

type ISessionService interface {
	Start(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect() error
	Submit(ctx context.Context, text string) (string, error)
	SelectConversation(conversationID string) error
	NewConversation() error
	ConversationID() (string, error)
	State() (model.ConnectionState, error)
	Snapshot() (store.Snapshot, error)
	SubscribeTranscript(fn func(store.Change)) pubsub.Unsubscribe
	SubscribeConnection(kind supervisor.EventKind, fn func(supervisor.Event)) pubsub.Unsubscribe
	OnConversationChange(fn func(conversationID string)) pubsub.Unsubscribe
	OnFrame(frameType string, h router.Handler) pubsub.Unsubscribe
	Close() error
}

type SessionOptions struct {
	Gateway   config.GatewayConfig
	Reconnect config.ReconnectConfig
	Exchange  config.ExchangeConfig

	Transport supervisor.Transport
	Store     contract.ISessionStore
	History   session.HistorySource
	Clock     clock.Clock
	Logger    logger.ILogger
}

// SessionService is the single entry point to a chat session. It owns the
// event loop every component runs on; its methods may be called from any
// goroutine except from inside a subscriber callback.
type SessionService struct {
	loop       *eventloop.Loop
	clock      clock.Clock
	logger     logger.ILogger
	supervisor *supervisor.Supervisor
	router     *router.Router
	accum      *stream.Accumulator
	coord      *session.Coordinator
	transcript *store.Transcript

	closeOnce sync.Once
}

var _ ISessionService = (*SessionService)(nil)

func NewSessionService(opts SessionOptions) *SessionService {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	log := opts.Logger

	loop := eventloop.New(log)
	transcript := store.NewTranscript(log)

	sup := supervisor.New(supervisor.Config{
		Address:          opts.Gateway.WebSocketURL,
		BaseDelay:        opts.Reconnect.BaseDelay,
		MaxDelay:         opts.Reconnect.MaxDelay,
		MaxAttempts:      opts.Reconnect.MaxAttempts,
		HandshakeTimeout: opts.Reconnect.HandshakeTimeout,
	}, supervisor.Credentials{
		UserID:   opts.Gateway.UserID,
		Username: opts.Gateway.Username,
		Token:    opts.Gateway.Token,
	}, opts.Transport, loop, clk, log)

	r := router.New(sup, log)

	coord := session.NewCoordinator(session.Dependencies{
		Store:        opts.Store,
		Transcript:   transcript,
		Switcher:     r,
		Connectivity: sup,
		History:      opts.History,
		Exec:         loop,
		Clock:        clk,
		Logger:       log,
		HistoryLimit: opts.Gateway.HistoryLimit,
	})
	accum := stream.NewAccumulator(transcript, coord, loop, clk, opts.Exchange.Timeout, log)
	coord.SetExchangeResetter(accum)

	r.Bind(coord)
	sup.SetConversationSource(coord.ConversationID)
	sup.SetMessageHandler(r.HandleRaw)

	s := &SessionService{
		loop:       loop,
		clock:      clk,
		logger:     log,
		supervisor: sup,
		router:     r,
		accum:      accum,
		coord:      coord,
		transcript: transcript,
	}
	s.registerHandlers()

	go loop.Run()
	return s
}

// Start restores the persisted conversation. Its history starts loading
// right away, before any connection exists.
func (s *SessionService) Start(ctx context.Context) error {
	var err error
	if doErr := s.do(func() { err = s.coord.Restore(ctx) }); doErr != nil {
		return doErr
	}
	return err
}

// Connect opens the connection and waits until it is open or the attempt fails.
func (s *SessionService) Connect(ctx context.Context) error {
	var result <-chan error
	if err := s.do(func() { result = s.supervisor.Connect() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionService) Disconnect() error {
	return s.do(s.supervisor.Disconnect)
}

// Submit sends text as a new exchange and returns its id. Nothing is
// queued while disconnected.
func (s *SessionService) Submit(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	exchangeID := uuid.NewString()
	var sendErr error
	err := s.do(func() {
		if !s.supervisor.Connected() {
			sendErr = ErrNotConnected
			return
		}
		if sendErr = s.router.SendChat(text, exchangeID); sendErr != nil {
			return
		}
		s.accum.Begin(exchangeID, text)
	})
	if err != nil {
		return "", err
	}
	if sendErr != nil {
		return "", sendErr
	}
	return exchangeID, nil
}

func (s *SessionService) SelectConversation(conversationID string) error {
	return s.do(func() { s.coord.Select(conversationID) })
}

func (s *SessionService) NewConversation() error {
	return s.SelectConversation(session.NewConversation)
}

func (s *SessionService) ConversationID() (string, error) {
	var id string
	err := s.do(func() { id = s.coord.ConversationID() })
	return id, err
}

func (s *SessionService) State() (model.ConnectionState, error) {
	var state model.ConnectionState
	err := s.do(func() { state = s.supervisor.State() })
	return state, err
}

func (s *SessionService) Snapshot() (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.do(func() { snap = s.transcript.Snapshot() })
	return snap, err
}

// SubscribeTranscript observes transcript changes. Callbacks run on the
// event loop and must not block.
func (s *SessionService) SubscribeTranscript(fn func(store.Change)) pubsub.Unsubscribe {
	return s.transcript.Subscribe(fn)
}

func (s *SessionService) SubscribeConnection(kind supervisor.EventKind, fn func(supervisor.Event)) pubsub.Unsubscribe {
	return s.supervisor.Subscribe(kind, fn)
}

func (s *SessionService) OnConversationChange(fn func(conversationID string)) pubsub.Unsubscribe {
	return s.coord.OnChange(fn)
}

// OnFrame adds an observer for raw inbound frames of frameType.
func (s *SessionService) OnFrame(frameType string, h router.Handler) pubsub.Unsubscribe {
	return s.router.On(frameType, h)
}

// Close disconnects cleanly, cancels timers and in-flight fetches, and
// stops the event loop. Later calls return ErrClosed.
func (s *SessionService) Close() error {
	err := ErrClosed
	s.closeOnce.Do(func() {
		err = s.do(func() {
			s.coord.Close()
			s.accum.Reset()
			s.supervisor.Disconnect()
		})
		s.loop.Close()
		<-s.loop.Done()
	})
	return err
}

func (s *SessionService) do(fn func()) error {
	if err := s.loop.Do(fn); err != nil {
		if errors.Is(err, eventloop.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (s *SessionService) registerHandlers() {
	for _, frameType := range []string{
		constant.FrameTypeAIResponse,
		constant.FrameTypeAIThinking,
		constant.FrameTypeAIFinished,
		constant.FrameTypeChatResponse,
	} {
		kind, _ := stream.KindFor(frameType)
		s.router.On(frameType, s.handleResponse(kind))
	}

	s.router.On(constant.FrameTypeConnected, s.handleConnected)
	s.router.On(constant.FrameTypeAIError, s.handleAIError)
	s.router.On(constant.FrameTypeConversationSwitched, s.handleSwitchAck)
	s.router.On(constant.FrameTypeNotification, s.handleNotification)
	s.router.On(constant.FrameTypeError, s.handleError)
	s.router.On(constant.FrameTypeAuthError, s.handleAuthError)
	s.router.On(constant.FrameTypePing, func(dto.Frame) error { return s.router.SendPong() })
}

func (s *SessionService) handleResponse(kind stream.Kind) router.Handler {
	return func(frame dto.Frame) error {
		resp, err := dto.DecodeResponse(frame.Content)
		if err != nil {
			return err
		}
		if resp.ExchangeID == "" {
			resp.ExchangeID = frame.ExchangeID
		}
		if resp.ConversationID == "" {
			resp.ConversationID = frame.ConversationID
		}
		s.accum.Apply(kind, resp)
		return nil
	}
}

func (s *SessionService) handleConnected(frame dto.Frame) error {
	var content dto.ConnectedContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return fmt.Errorf("decode connected ack: %w", err)
	}
	s.logger.Info("SessionService", "Server acknowledged connection", map[string]interface{}{
		"connection_id": content.ConnectionID,
		"room_id":       content.RoomID,
	})
	s.supervisor.MarkReady(content.ConnectionID)
	return nil
}

func (s *SessionService) handleAIError(frame dto.Frame) error {
	var content dto.ErrorContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return fmt.Errorf("decode ai_error: %w", err)
	}
	s.accum.ApplyError(frame.ExchangeID, content.Text())
	return nil
}

func (s *SessionService) handleSwitchAck(frame dto.Frame) error {
	var content dto.SwitchContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return fmt.Errorf("decode switch ack: %w", err)
	}
	id := content.ConversationID
	if id == "" {
		id = frame.ConversationID
	}
	s.coord.HandleSwitchAck(id)
	return nil
}

// handleNotification picks switch acks out of generic notifications.
func (s *SessionService) handleNotification(frame dto.Frame) error {
	var content dto.SwitchContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if content.Type != constant.FrameTypeConversationSwitched {
		return nil
	}
	return s.handleSwitchAck(frame)
}

func (s *SessionService) handleError(frame dto.Frame) error {
	var content dto.ErrorContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		return fmt.Errorf("decode error frame: %w", err)
	}
	text := content.Text()
	if text == "" {
		text = "unknown error"
	}
	s.logger.Warn("SessionService", "Server reported an error", map[string]interface{}{"error": text})
	s.transcript.Commit(model.CommittedMessage{
		ID:        uuid.NewString(),
		Text:      "Server error: " + text,
		Type:      model.MessageTypeSystem,
		CreatedAt: s.clock.Now(),
	})
	// a rejected switch is never acknowledged
	s.coord.AbandonSwitch()
	return nil
}

func (s *SessionService) handleAuthError(frame dto.Frame) error {
	var content dto.ErrorContent
	if err := json.Unmarshal(frame.Content, &content); err != nil {
		content.Error = "authentication error"
	}
	s.supervisor.ForceAuthFailure(content.Text())
	return nil
}
