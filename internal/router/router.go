package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
	"ai-dashboard-client/internal/supervisor"
)

// ErrNotConnected is returned by the outbound helpers while no connection is open.
var ErrNotConnected = supervisor.ErrNotConnected

// Handler observes one inbound frame. A returned error is logged; it does
// not stop the remaining handlers.
type Handler func(frame dto.Frame) error

type Sender interface {
	Send(frame dto.Frame) error
}

// ConversationSource supplies the active conversation id for outbound chat
// frames and records ids the router switches to. FreshRequested reports that
// the next chat must open a new conversation; FreshSent clears that once
// such a chat is written.
type ConversationSource interface {
	ConversationID() string
	Track(conversationID string)
	FreshRequested() bool
	FreshSent()
}

type Router struct {
	sender   Sender
	source   ConversationSource
	handlers *pubsub.Registry[string, dto.Frame]
	logger   logger.ILogger
}

func New(sender Sender, log logger.ILogger) *Router {
	return &Router{
		sender:   sender,
		source:   noConversation{},
		handlers: pubsub.New[string, dto.Frame]("Router", log),
		logger:   log,
	}
}

// Bind sets the conversation source. It is called once during wiring.
func (r *Router) Bind(source ConversationSource) {
	r.source = source
}

// On registers h for frames of frameType. Handlers run in registration order.
func (r *Router) On(frameType string, h Handler) pubsub.Unsubscribe {
	return r.handlers.Subscribe(frameType, func(frame dto.Frame) {
		if err := h(frame); err != nil {
			r.logger.Warn("Router", "Handler failed", map[string]interface{}{
				"type":  frame.Type,
				"error": err.Error(),
			})
		}
	})
}

// HandleRaw decodes one inbound payload and dispatches it. Payloads that do
// not parse, have no type, or carry non-object content are dropped.
func (r *Router) HandleRaw(data []byte) {
	var frame dto.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		r.logger.Warn("Router", "Dropping malformed frame", map[string]interface{}{"error": err.Error(), "size": len(data)})
		return
	}
	if frame.Type == "" {
		r.logger.Warn("Router", "Dropping frame without type", nil)
		return
	}

	content := bytes.TrimSpace(frame.Content)
	switch {
	case len(content) == 0, bytes.Equal(content, []byte("null")):
		frame.Content = json.RawMessage("{}")
	case content[0] != '{':
		r.logger.Warn("Router", "Dropping frame with non-object content", map[string]interface{}{"type": frame.Type})
		return
	}

	r.Dispatch(frame)
}

// Dispatch fans frame out to every handler of its type and returns how many ran.
func (r *Router) Dispatch(frame dto.Frame) int {
	n := r.handlers.Publish(frame.Type, frame)
	if n == 0 {
		r.logger.Debug("Router", "No handler for frame", map[string]interface{}{"type": frame.Type})
	}
	return n
}

// SendChat submits user text, stamped with the active conversation id when
// one is known and with the exchange id it opens. Without an id, a pending
// fresh start is flagged on the frame.
func (r *Router) SendChat(text, exchangeID string) error {
	content, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("encode chat content: %w", err)
	}
	frame := dto.Frame{
		Type:           constant.FrameTypeChat,
		Content:        content,
		ConversationID: r.source.ConversationID(),
		ExchangeID:     exchangeID,
	}
	frame.NewConversation = frame.ConversationID == "" && r.source.FreshRequested()
	if err := r.send(frame); err != nil {
		return err
	}
	if frame.NewConversation {
		r.source.FreshSent()
	}
	return nil
}

// SendSwitchConversation asks the server to move this connection to
// conversationID and records it locally once the frame is written.
func (r *Router) SendSwitchConversation(conversationID string) error {
	content, err := json.Marshal(dto.SwitchContent{ConversationID: conversationID})
	if err != nil {
		return fmt.Errorf("encode switch content: %w", err)
	}
	if err := r.send(dto.Frame{Type: constant.FrameTypeSwitchConversation, Content: content}); err != nil {
		return err
	}
	r.source.Track(conversationID)
	return nil
}

func (r *Router) SendPong() error {
	return r.send(dto.Frame{Type: constant.FrameTypePong, Content: json.RawMessage("{}")})
}

func (r *Router) send(frame dto.Frame) error {
	if err := r.sender.Send(frame); err != nil {
		r.logger.Warn("Router", "Outbound frame not sent", map[string]interface{}{"type": frame.Type, "error": err.Error()})
		return err
	}
	return nil
}

type noConversation struct{}

func (noConversation) ConversationID() string { return "" }
func (noConversation) Track(string)           {}
func (noConversation) FreshRequested() bool   { return false }
func (noConversation) FreshSent()             {}
