package devserver

import (
	"strconv"
	"sync"
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	SenderHuman = constant.SenderTypeHuman
	SenderAgent = "agent"
)

// Conversation is the gateway-side record of one conversation.
type Conversation struct {
	mu       sync.Mutex
	ID       string
	UserID   string
	messages []dto.HistoryMessage
	nextID   int
}

// Append records a message and returns it as history would serve it.
func (c *Conversation) Append(senderType, senderID, content string, at time.Time) dto.HistoryMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	m := dto.HistoryMessage{
		ID:             dto.MessageID(strconv.Itoa(c.nextID)),
		ConversationID: c.ID,
		SenderType:     senderType,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at.UTC().Format(time.RFC3339Nano),
	}
	c.messages = append(c.messages, m)
	return m
}

// Page returns at most limit messages starting at offset, oldest first
// unless desc is set, and the total count.
func (c *Conversation) Page(limit, offset int, desc bool) ([]dto.HistoryMessage, int) {
	c.mu.Lock()
	all := append([]dto.HistoryMessage(nil), c.messages...)
	c.mu.Unlock()

	if desc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	total := len(all)
	if offset >= total {
		return []dto.HistoryMessage{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total
}

type kickRequest struct {
	userID string
	code   int
	reason string
}

// Hub tracks live connections per user and the conversations they own.
type Hub struct {
	// UserID -> clients (multi-device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	kick       chan kickRequest
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	conversations *cache.Cache

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		clients:       make(map[string][]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		kick:          make(chan kickRequest),
		stop:          make(chan struct{}),
		conversations: cache.New(cache.NoExpiration, 0),
		logger:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.clients {
				for _, client := range clients {
					client.closeWith(CloseGoingAway, "server shutdown")
				}
			}
			h.clients = make(map[string][]*Client)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"user_id":       client.UserID,
				"connection_id": client.ConnectionID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
						break
					}
				}
				if len(h.clients[client.UserID]) == 0 {
					delete(h.clients, client.UserID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
				}
			}
			h.mu.Unlock()
			client.shutdown()

		case req := <-h.kick:
			h.mu.RLock()
			for _, client := range h.clients[req.userID] {
				client.closeWith(req.code, req.reason)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop closes every connection with 1001 and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Disconnect closes all of a user's connections with code.
func (h *Hub) Disconnect(userID string, code int, reason string) {
	select {
	case h.kick <- kickRequest{userID: userID, code: code, reason: reason}:
	case <-h.stop:
	}
}

// ClientCount reports how many live connections a user has.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Conversation(id string) (*Conversation, bool) {
	v, ok := h.conversations.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Conversation), true
}

// OpenConversation returns the conversation with id, creating it for
// userID when it does not exist yet. An empty id creates a new one.
func (h *Hub) OpenConversation(id, userID string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	conv := &Conversation{ID: id, UserID: userID}
	if err := h.conversations.Add(id, conv, cache.NoExpiration); err != nil {
		existing, _ := h.Conversation(id)
		return existing
	}
	h.logger.Info("Hub", "Conversation created", map[string]interface{}{"conversation_id": id, "user_id": userID})
	return conv
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
		c.shutdown()
	}
}
