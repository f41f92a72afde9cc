package devserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/serverutils"

	ws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	AgentName = "echo_agent"

	// Replies to these messages are scripted for manual testing.
	CommandFail   = "/fail"
	CommandSilent = "/silent"
)

// Gateway speaks the chat protocol on the server side. It answers every
// chat message with a streamed echo so a client can be exercised without
// the real assistant backend.
type Gateway struct {
	hub        *Hub
	secret     string
	chunkDelay time.Duration
	logger     logger.ILogger
}

func NewGateway(hub *Hub, secret string, chunkDelay time.Duration, log logger.ILogger) *Gateway {
	return &Gateway{hub: hub, secret: secret, chunkDelay: chunkDelay, logger: log}
}

func (g *Gateway) Hub() *Hub { return g.hub }

func (g *Gateway) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", g.Upgrade, websocket.New(g.ServeWs))

	api := r.Group("/api")
	api.Get("/conversations/:id/messages", serverutils.NewJwtMiddleware(g.secret), g.GetConversationMessages)
}

// Upgrade rejects handshakes without a token before any upgrade happens.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if c.Query("token") == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Missing token"})
	}
	return c.Next()
}

// ServeWs validates the token after the upgrade so rejections carry a
// close code the client can classify.
func (g *Gateway) ServeWs(conn *websocket.Conn) {
	claims, err := serverutils.ParseToken(conn.Query("token"), g.secret)
	if err != nil {
		g.reject(conn, constant.CloseTokenInvalid, "invalid token")
		return
	}
	tokenUser, _ := claims["user_id"].(string)
	userID := conn.Query("user_id", tokenUser)
	if tokenUser == "" || userID != tokenUser {
		g.reject(conn, constant.CloseUserTokenMismatch, "user does not match token")
		return
	}

	conversationID := conn.Query("conversation_id")
	if conversationID != "" {
		if conv, ok := g.hub.Conversation(conversationID); ok && conv.UserID != userID {
			g.reject(conn, constant.CloseRoomJoinFailed, "cannot join conversation")
			return
		}
	}

	client := newClient(g.hub, conn, userID, conn.Query("username", userID), conversationID)
	if !g.hub.join(client) {
		g.reject(conn, CloseGoingAway, "server shutdown")
		return
	}

	go client.writePump()
	client.enqueue(newFrame(constant.FrameTypeConnected, dto.ConnectedContent{
		ConnectionID: client.ConnectionID,
		RoomID:       conversationID,
		Message:      "Connected",
		UserInfo:     map[string]interface{}{"user_id": userID, "username": client.Username},
	}, conversationID, ""))

	client.readPump(g.handle)
}

func (g *Gateway) reject(conn *websocket.Conn, code int, reason string) {
	g.logger.Warn("Gateway", "Rejecting connection", map[string]interface{}{"code": code, "reason": reason})
	conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	conn.SetReadDeadline(time.Now().Add(writeWait))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) handle(c *Client, frame dto.Frame) {
	switch frame.Type {
	case constant.FrameTypeChat:
		g.handleChat(c, frame)
	case constant.FrameTypeSwitchConversation:
		g.handleSwitch(c, frame)
	case constant.FrameTypePing:
		c.enqueue(newFrame(constant.FrameTypePong, struct{}{}, "", ""))
	case constant.FrameTypePong:
	default:
		c.enqueue(errorFrame("Unknown message type: "+frame.Type, ""))
	}
}

func (g *Gateway) handleChat(c *Client, frame dto.Frame) {
	var text string
	if err := json.Unmarshal(frame.Content, &text); err != nil || strings.TrimSpace(text) == "" {
		c.enqueue(errorFrame("Chat content must be a non-empty string", ""))
		return
	}

	id := frame.ConversationID
	if id == "" && !frame.NewConversation {
		id = c.ConversationID()
	}
	conv := g.hub.OpenConversation(id, c.UserID)
	if conv.UserID != c.UserID {
		c.enqueue(errorFrame("Access denied", "conversation belongs to another user"))
		return
	}
	c.setConversationID(conv.ID)
	conv.Append(SenderHuman, c.UserID, text, time.Now())

	exchangeID := frame.ExchangeID
	if exchangeID == "" {
		exchangeID = uuid.NewString()
	}
	go g.reply(c, conv, exchangeID, text)
}

// reply streams cumulative partials and then a completion envelope.
func (g *Gateway) reply(c *Client, conv *Conversation, exchangeID, text string) {
	switch strings.TrimSpace(text) {
	case CommandFail:
		c.enqueue(newFrame(constant.FrameTypeAIError, dto.ErrorContent{
			Error:   "Agent failed",
			Details: "scripted failure",
		}, conv.ID, exchangeID))
		return
	case CommandSilent:
		return
	}

	answer := "You said: " + text
	partial := dto.ResponseFrame{ConversationID: conv.ID, ExchangeID: exchangeID, CurrentAgent: AgentName}
	if !c.enqueue(newFrame(constant.FrameTypeAIThinking, partial, conv.ID, exchangeID)) {
		return
	}

	words := strings.Fields(answer)
	for i := range words {
		if !g.pause(c) {
			return
		}
		partial.RawResponse = strings.Join(words[:i+1], " ")
		if !c.enqueue(newFrame(constant.FrameTypeAIResponse, partial, conv.ID, exchangeID)) {
			return
		}
	}

	final := partial
	final.RawResponse = answer
	final.IsFinished = true
	final.Messages = []dto.ResponseMessage{{Content: answer, Agent: AgentName}}
	conv.Append(SenderAgent, AgentName, answer, time.Now())

	c.enqueue(newFrame(constant.FrameTypeAIResponse, fiber.Map{
		"type":           constant.ResponseContentCompletion,
		"final_response": final,
	}, conv.ID, exchangeID))
}

func (g *Gateway) pause(c *Client) bool {
	if g.chunkDelay <= 0 {
		return true
	}
	t := time.NewTimer(g.chunkDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.done:
		return false
	}
}

func (g *Gateway) handleSwitch(c *Client, frame dto.Frame) {
	var content dto.SwitchContent
	if err := json.Unmarshal(frame.Content, &content); err != nil || content.ConversationID == "" {
		c.enqueue(errorFrame("conversation_id is required", ""))
		return
	}

	conv := g.hub.OpenConversation(content.ConversationID, c.UserID)
	if conv.UserID != c.UserID {
		c.enqueue(errorFrame("Access denied", "conversation belongs to another user"))
		return
	}
	c.setConversationID(conv.ID)

	g.logger.Info("Gateway", "Conversation switched", map[string]interface{}{
		"connection_id":   c.ConnectionID,
		"conversation_id": conv.ID,
	})
	c.enqueue(newFrame(constant.FrameTypeNotification, dto.SwitchContent{
		ConversationID: conv.ID,
		Type:           constant.FrameTypeConversationSwitched,
		Message:        fmt.Sprintf("Switched to conversation %s", conv.ID),
	}, conv.ID, ""))
}

// GetConversationMessages serves the history of a conversation the
// caller owns.
func (g *Gateway) GetConversationMessages(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	conv, ok := g.hub.Conversation(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Conversation not found"})
	}
	if conv.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	msgs, total := conv.Page(c.QueryInt("limit", 50), c.QueryInt("offset", 0), c.QueryBool("order_desc", false))
	return c.JSON(dto.GetConversationMessagesResponse{
		Success:        true,
		Message:        "Messages retrieved successfully",
		Data:           msgs,
		Total:          total,
		ConversationID: conv.ID,
	})
}

func newFrame(frameType string, content interface{}, conversationID, exchangeID string) dto.Frame {
	raw, _ := json.Marshal(content)
	return dto.Frame{
		Type:           frameType,
		Content:        raw,
		ConversationID: conversationID,
		ExchangeID:     exchangeID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func errorFrame(message, details string) dto.Frame {
	return newFrame(constant.FrameTypeError, dto.ErrorContent{Error: message, Details: details}, "", "")
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
