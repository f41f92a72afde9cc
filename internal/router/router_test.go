package router

import (
	"encoding/json"
	"errors"
	"testing"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	frames []dto.Frame
	err    error
}

func (s *recordingSender) Send(f dto.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

type fixedSource struct {
	id      string
	tracked []string
	fresh   bool
}

func (s *fixedSource) ConversationID() string { return s.id }
func (s *fixedSource) FreshRequested() bool   { return s.fresh }
func (s *fixedSource) FreshSent()             { s.fresh = false }
func (s *fixedSource) Track(id string) {
	s.id = id
	s.tracked = append(s.tracked, id)
}

func newRouter() (*Router, *recordingSender, *fixedSource) {
	sender := &recordingSender{}
	source := &fixedSource{}
	r := New(sender, logger.NewNopLogger())
	r.Bind(source)
	return r, sender, source
}

func TestDispatchRunsHandlersInRegistrationOrder(t *testing.T) {
	r, _, _ := newRouter()

	var order []string
	r.On("ai_response", func(dto.Frame) error { order = append(order, "first"); return nil })
	r.On("ai_response", func(dto.Frame) error { order = append(order, "second"); return nil })
	r.On("ping", func(dto.Frame) error { order = append(order, "other"); return nil })

	n := r.Dispatch(dto.Frame{Type: "ai_response"})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatchIsolatesFailingHandlers(t *testing.T) {
	r, _, _ := newRouter()

	reached := 0
	r.On("error", func(dto.Frame) error { panic("bad observer") })
	r.On("error", func(dto.Frame) error { return errors.New("handler error") })
	r.On("error", func(dto.Frame) error { reached++; return nil })

	assert.NotPanics(t, func() { r.Dispatch(dto.Frame{Type: "error"}) })
	assert.Equal(t, 1, reached)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r, _, _ := newRouter()

	calls := 0
	unsubscribe := r.On("ping", func(dto.Frame) error { calls++; return nil })
	r.Dispatch(dto.Frame{Type: "ping"})
	unsubscribe()
	unsubscribe()
	r.Dispatch(dto.Frame{Type: "ping"})

	assert.Equal(t, 1, calls)
}

func TestHandleRaw(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantCalls   int
		wantContent string
	}{
		{name: "object content", payload: `{"type":"notification","content":{"type":"info"}}`, wantCalls: 1, wantContent: `{"type":"info"}`},
		{name: "missing content", payload: `{"type":"notification"}`, wantCalls: 1, wantContent: `{}`},
		{name: "null content", payload: `{"type":"notification","content":null}`, wantCalls: 1, wantContent: `{}`},
		{name: "string content", payload: `{"type":"notification","content":"hi"}`},
		{name: "array content", payload: `{"type":"notification","content":[1,2]}`},
		{name: "not json", payload: `notification`},
		{name: "no type", payload: `{"content":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newRouter()
			var got []dto.Frame
			r.On("notification", func(f dto.Frame) error { got = append(got, f); return nil })

			r.HandleRaw([]byte(tt.payload))

			require.Len(t, got, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.JSONEq(t, tt.wantContent, string(got[0].Content))
			}
		})
	}
}

func TestSendChatStampsConversation(t *testing.T) {
	r, sender, source := newRouter()

	require.NoError(t, r.SendChat("hello", "ex-1"))
	source.id = "c1"
	require.NoError(t, r.SendChat("again", "ex-2"))

	require.Len(t, sender.frames, 2)
	first, err := json.Marshal(sender.frames[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","content":"hello","exchange_id":"ex-1"}`, string(first))

	second := sender.frames[1]
	assert.Equal(t, constant.FrameTypeChat, second.Type)
	assert.Equal(t, "c1", second.ConversationID)
	assert.Equal(t, "ex-2", second.ExchangeID)
}

func TestSendChatFlagsFreshConversationOnce(t *testing.T) {
	r, sender, source := newRouter()
	source.fresh = true

	sender.err = ErrNotConnected
	require.Error(t, r.SendChat("lost", "ex-0"))
	assert.True(t, source.fresh, "kept until a chat is actually written")

	sender.err = nil
	require.NoError(t, r.SendChat("hello", "ex-1"))
	require.NoError(t, r.SendChat("again", "ex-2"))

	require.Len(t, sender.frames, 2)
	first, err := json.Marshal(sender.frames[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","content":"hello","exchange_id":"ex-1","new_conversation":true}`, string(first))
	assert.False(t, sender.frames[1].NewConversation)
	assert.False(t, source.fresh)
}

func TestSendChatWithKnownConversationIsNotFresh(t *testing.T) {
	r, sender, source := newRouter()
	source.id = "c1"
	source.fresh = true

	require.NoError(t, r.SendChat("hello", "ex-1"))

	require.Len(t, sender.frames, 1)
	assert.False(t, sender.frames[0].NewConversation)
	assert.Equal(t, "c1", sender.frames[0].ConversationID)
}

func TestSendChatWhileDisconnected(t *testing.T) {
	r, sender, _ := newRouter()
	sender.err = ErrNotConnected

	err := r.SendChat("hello", "ex-1")

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendSwitchConversationTracksOnSuccess(t *testing.T) {
	r, sender, source := newRouter()

	require.NoError(t, r.SendSwitchConversation("c2"))
	require.Len(t, sender.frames, 1)
	assert.Equal(t, constant.FrameTypeSwitchConversation, sender.frames[0].Type)
	assert.JSONEq(t, `{"conversation_id":"c2"}`, string(sender.frames[0].Content))
	assert.Equal(t, []string{"c2"}, source.tracked)

	sender.err = ErrNotConnected
	assert.Error(t, r.SendSwitchConversation("c3"))
	assert.Equal(t, []string{"c2"}, source.tracked)
}

func TestSendPong(t *testing.T) {
	r, sender, _ := newRouter()

	require.NoError(t, r.SendPong())
	require.Len(t, sender.frames, 1)
	assert.Equal(t, "pong", sender.frames[0].Type)
}
