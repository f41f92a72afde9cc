package service_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/devserver"
	"ai-dashboard-client/internal/history"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/repository/memory"
	"ai-dashboard-client/internal/server"
	"ai-dashboard-client/internal/service"
	"ai-dashboard-client/internal/supervisor"
	"ai-dashboard-client/internal/websocket"
	"ai-dashboard-client/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret  = "integration-secret"
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type env struct {
	t       *testing.T
	gateway *devserver.Gateway
	addr    string
	log     logger.ILogger
}

func startEnv(t *testing.T) *env {
	t.Helper()
	log := logger.NewNopLogger()
	gw := devserver.NewGateway(devserver.NewHub(log), secret, 0, log)
	srv := server.New(config.DevConfig{JWTSecret: secret}, gw)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown() })

	return &env{t: t, gateway: gw, addr: ln.Addr().String(), log: log}
}

func (e *env) token(userID string) string {
	tok, err := devserver.IssueToken(secret, userID, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *env) session(userID, token string, sessionStore *memory.SessionRepository) *service.SessionService {
	e.t.Helper()
	gateway := config.GatewayConfig{
		WebSocketURL: "ws://" + e.addr + "/ws",
		APIBaseURL:   "http://" + e.addr,
		UserID:       userID,
		Username:     userID,
		Token:        token,
		HistoryLimit: 50,
	}
	svc := service.NewSessionService(service.SessionOptions{
		Gateway: gateway,
		Reconnect: config.ReconnectConfig{
			BaseDelay:        20 * time.Millisecond,
			MaxDelay:         100 * time.Millisecond,
			MaxAttempts:      3,
			HandshakeTimeout: 2 * time.Second,
		},
		Exchange:  config.ExchangeConfig{Timeout: 2 * time.Second},
		Transport: websocket.NewDialer(2*time.Second, e.log, e.log),
		Store:     sessionStore,
		History:   history.NewClient(gateway.APIBaseURL, token),
		Clock:     clock.Real(),
		Logger:    e.log,
	})
	e.t.Cleanup(func() { svc.Close() })
	return svc
}

func messages(t *testing.T, svc *service.SessionService) []model.CommittedMessage {
	t.Helper()
	snap, err := svc.Snapshot()
	require.NoError(t, err)
	return snap.Messages
}

func TestHelloExchange(t *testing.T) {
	e := startEnv(t)
	sessionStore := memory.NewSessionRepository("current_conversation_id")
	svc := e.session("u1", e.token("u1"), sessionStore)

	require.NoError(t, svc.Connect(context.Background()))
	exchangeID, err := svc.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, exchangeID)

	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)

	msgs := messages(t, svc)
	assert.Equal(t, model.MessageTypeUser, msgs[0].Type)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, model.MessageTypeAssistant, msgs[1].Type)
	assert.Equal(t, "You said: hello", msgs[1].Text)
	assert.Equal(t, devserver.AgentName, msgs[1].ResponderID)

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Pending)

	conversationID, err := svc.ConversationID()
	require.NoError(t, err)
	require.NotEmpty(t, conversationID)
	persisted, err := sessionStore.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conversationID, persisted)

	conv, ok := e.gateway.Hub().Conversation(conversationID)
	require.True(t, ok)
	_, total := conv.Page(0, 0, false)
	assert.Equal(t, 2, total)
}

func TestSubmitWhileDisconnectedIsRejected(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))

	_, err := svc.Submit(context.Background(), "hello")

	assert.ErrorIs(t, err, service.ErrNotConnected)
	assert.Empty(t, messages(t, svc))
}

func TestSubmitRejectsBlankText(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))

	_, err := svc.Submit(context.Background(), "   ")

	assert.ErrorIs(t, err, service.ErrEmptyMessage)
}

func TestRestoreLoadsHistoryBeforeConnect(t *testing.T) {
	e := startEnv(t)
	conv := e.gateway.Hub().OpenConversation("c-restore", "u1")
	conv.Append(devserver.SenderHuman, "u1", "earlier question", time.Unix(100, 0))
	conv.Append(devserver.SenderAgent, devserver.AgentName, "earlier answer", time.Unix(101, 0))

	sessionStore := memory.NewSessionRepository("k")
	require.NoError(t, sessionStore.Save(context.Background(), "c-restore"))
	svc := e.session("u1", e.token("u1"), sessionStore)

	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)

	msgs := messages(t, svc)
	assert.Equal(t, model.MessageTypeUser, msgs[0].Type)
	assert.Equal(t, model.MessageTypeAssistant, msgs[1].Type)
	assert.Equal(t, devserver.AgentName, msgs[1].ResponderID)

	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, model.StateDisconnected, state)

	// The restored id rides on the handshake.
	require.NoError(t, svc.Connect(context.Background()))
	_, err = svc.Submit(context.Background(), "follow up")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(messages(t, svc)) == 4 }, waitFor, tick)
	_, total := conv.Page(0, 0, false)
	assert.Equal(t, 4, total)
}

func TestForgottenConversationIsDropped(t *testing.T) {
	e := startEnv(t)
	sessionStore := memory.NewSessionRepository("k")
	require.NoError(t, sessionStore.Save(context.Background(), "c-gone"))
	svc := e.session("u1", e.token("u1"), sessionStore)

	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		id, err := svc.ConversationID()
		return err == nil && id == ""
	}, waitFor, tick)
	msgs := messages(t, svc)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageTypeSystem, msgs[0].Type)

	persisted, err := sessionStore.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func countAuthFailures(svc *service.SessionService) func() int {
	var mu sync.Mutex
	failures := 0
	svc.SubscribeConnection(supervisor.EventAuthFailed, func(supervisor.Event) {
		mu.Lock()
		failures++
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return failures
	}
}

func TestRejectedHandshakeIsTerminal(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", "", memory.NewSessionRepository("k"))
	failures := countAuthFailures(svc)

	err := svc.Connect(context.Background())

	require.ErrorIs(t, err, supervisor.ErrAuthFailed)
	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, model.StateDisconnected, state)
	require.Eventually(t, func() bool { return failures() == 1 }, waitFor, tick)
}

func TestAuthCloseCodesAreTerminal(t *testing.T) {
	e := startEnv(t)
	wrongSecret, err := devserver.IssueToken("not-the-secret", "u1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"invalid signature", wrongSecret},
		{"token for another user", e.token("u2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := e.session("u1", tt.token, memory.NewSessionRepository("k"))
			failures := countAuthFailures(svc)

			// The upgrade succeeds; the rejection arrives as a close code.
			svc.Connect(context.Background())

			require.Eventually(t, func() bool { return failures() == 1 }, waitFor, tick)
			state, err := svc.State()
			require.NoError(t, err)
			assert.Equal(t, model.StateDisconnected, state)

			time.Sleep(150 * time.Millisecond)
			assert.Equal(t, 1, failures(), "no reconnect after an auth rejection")
			assert.Zero(t, e.gateway.Hub().ClientCount("u1"))
		})
	}
}

func TestExpiredTokenFailsWithoutDialing(t *testing.T) {
	e := startEnv(t)
	expired, err := devserver.IssueToken(secret, "u1", 0)
	require.NoError(t, err)
	svc := e.session("u1", expired, memory.NewSessionRepository("k"))

	err = svc.Connect(context.Background())

	require.ErrorIs(t, err, supervisor.ErrAuthFailed)
}

func TestSelectConversationWhileConnected(t *testing.T) {
	e := startEnv(t)
	other := e.gateway.Hub().OpenConversation("c-other", "u1")
	other.Append(devserver.SenderHuman, "u1", "old message", time.Unix(5, 0))

	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))

	require.NoError(t, svc.SelectConversation("c-other"))

	require.Eventually(t, func() bool {
		msgs := messages(t, svc)
		return len(msgs) == 1 && msgs[0].Text == "old message"
	}, waitFor, tick)
	id, err := svc.ConversationID()
	require.NoError(t, err)
	assert.Equal(t, "c-other", id)

	require.NoError(t, svc.NewConversation())
	id, err = svc.ConversationID()
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, messages(t, svc))
}

func TestRejectedSwitchFallsBackToHistory(t *testing.T) {
	e := startEnv(t)
	e.gateway.Hub().OpenConversation("c-foreign", "u2")

	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))
	require.NoError(t, svc.SelectConversation("c-foreign"))

	require.Eventually(t, func() bool {
		id, err := svc.ConversationID()
		return err == nil && id == "" && len(messages(t, svc)) == 2
	}, waitFor, tick)

	msgs := messages(t, svc)
	assert.Contains(t, msgs[0].Text, "Access denied")
	assert.Equal(t, model.MessageTypeSystem, msgs[1].Type)
	assert.Contains(t, msgs[1].Text, "Could not load conversation history")
}

func TestNewConversationStartsFreshOnServer(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))

	_, err := svc.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)
	first, err := svc.ConversationID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, svc.NewConversation())
	_, err = svc.Submit(context.Background(), "again")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)

	var second string
	require.Eventually(t, func() bool {
		second, err = svc.ConversationID()
		return err == nil && second != ""
	}, waitFor, tick)
	assert.NotEqual(t, first, second)

	conv, ok := e.gateway.Hub().Conversation(first)
	require.True(t, ok)
	_, total := conv.Page(0, 0, false)
	assert.Equal(t, 2, total, "the old conversation is untouched")

	fresh, ok := e.gateway.Hub().Conversation(second)
	require.True(t, ok)
	page, _ := fresh.Page(0, 0, false)
	require.Len(t, page, 2)
	assert.Equal(t, "again", page[0].Content)
}

func TestServerDropReconnects(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	ready := make(chan string, 4)
	svc.SubscribeConnection(supervisor.EventReady, func(ev supervisor.Event) { ready <- ev.ConnectionID })

	require.NoError(t, svc.Connect(context.Background()))
	first := <-ready

	e.gateway.Hub().Disconnect("u1", 1012, "service restart")

	select {
	case second := <-ready:
		assert.NotEqual(t, first, second)
	case <-time.After(waitFor):
		t.Fatal("client did not reconnect")
	}
	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, model.StateConnected, state)
}

func TestAgentErrorIsCommitted(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))

	_, err := svc.Submit(context.Background(), devserver.CommandFail)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)
	msgs := messages(t, svc)
	assert.Equal(t, model.MessageTypeSystem, msgs[1].Type)
	assert.Contains(t, msgs[1].Text, "Agent failed")
}

func TestSilentExchangeTimesOut(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))

	_, err := svc.Submit(context.Background(), devserver.CommandSilent)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, 2*waitFor, tick)
	msgs := messages(t, svc)
	assert.Equal(t, model.MessageTypeSystem, msgs[1].Type)
	assert.Equal(t, "No response received within 2s.", msgs[1].Text)
}

func TestEventsReachTheBus(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))

	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	defer pubSub.Close()
	publisher := service.NewPublisherService("session_events", pubSub)
	consumer := service.NewConsumerService(pubSub, "session_events", e.log)

	var mu sync.Mutex
	var seen []events.BaseEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Consume(ctx, func(_ context.Context, ev events.BaseEvent) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	}))

	bridge := service.NewEventBridgeService(svc, publisher, nil, clock.Real(), e.log)
	bridge.Start()

	require.NoError(t, svc.Connect(context.Background()))
	_, err := svc.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(messages(t, svc)) == 2 }, waitFor, tick)
	require.NoError(t, svc.Close())
	bridge.Close()

	count := func(eventType string) int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, ev := range seen {
			if ev.EventType() == eventType {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return count(events.TypeMessageCommitted) == 2 }, waitFor, tick)
	assert.Equal(t, 1, count(events.TypeConversationChanged))
	assert.Equal(t, 1, count(events.TypeConnectionReady))
	assert.GreaterOrEqual(t, count(events.TypePendingUpdated), 1)

	mu.Lock()
	defer mu.Unlock()
	var texts []string
	for _, ev := range seen {
		if ev.EventType() == events.TypeMessageCommitted {
			texts = append(texts, ev.Payload()["text"].(string))
		}
	}
	assert.Equal(t, []string{"hello", "You said: hello"}, texts)
}

func TestCloseIsFinal(t *testing.T) {
	e := startEnv(t)
	svc := e.session("u1", e.token("u1"), memory.NewSessionRepository("k"))
	require.NoError(t, svc.Connect(context.Background()))

	require.NoError(t, svc.Close())

	_, err := svc.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, service.ErrClosed)
	assert.ErrorIs(t, svc.Close(), service.ErrClosed)
	require.Eventually(t, func() bool { return e.gateway.Hub().ClientCount("u1") == 0 }, waitFor, tick)
}
