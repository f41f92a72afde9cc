package session

import (
	"context"
	"fmt"
	"time"

	"ai-dashboard-client/internal/history"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/eventloop"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
	"ai-dashboard-client/internal/repository/contract"
	"ai-dashboard-client/pkg/store"

	"github.com/google/uuid"
)

// NewConversation selects a fresh conversation.
const NewConversation = "new"

const (
	persistTimeout       = 2 * time.Second
	defaultSwitchTimeout = 5 * time.Second
)

type Switcher interface {
	SendSwitchConversation(conversationID string) error
}

type Connectivity interface {
	Connected() bool
}

type HistorySource interface {
	Fetch(ctx context.Context, conversationID string, limit, offset int) ([]model.CommittedMessage, error)
}

type ExchangeResetter interface {
	Reset()
}

type Dependencies struct {
	Store        contract.ISessionStore
	Transcript   *store.Transcript
	Switcher     Switcher
	Connectivity Connectivity
	History      HistorySource
	Exec         eventloop.Executor
	Clock        clock.Clock
	Logger       logger.ILogger
	HistoryLimit int
	// SwitchTimeout bounds the wait for a switch ack before history is
	// loaded over REST anyway.
	SwitchTimeout time.Duration
}

// Coordinator owns the active conversation id. It runs on the event loop.
type Coordinator struct {
	deps      Dependencies
	exchanges ExchangeResetter

	conversationID string
	pendingSwitch  string
	// the next chat must ask the server for a new conversation
	fresh bool

	switchTimer clock.Timer
	switchSeq   uint64

	fetchSeq    uint64
	cancelFetch context.CancelFunc

	changes *pubsub.Registry[string, string]
}

const changeTopic = "conversation"

func NewCoordinator(deps Dependencies) *Coordinator {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 50
	}
	if deps.SwitchTimeout <= 0 {
		deps.SwitchTimeout = defaultSwitchTimeout
	}
	return &Coordinator{
		deps:    deps,
		changes: pubsub.New[string, string]("Session", deps.Logger),
	}
}

// SetExchangeResetter connects the accumulator, which is built after the
// coordinator because it reports conversation ids back to it.
func (c *Coordinator) SetExchangeResetter(r ExchangeResetter) {
	c.exchanges = r
}

func (c *Coordinator) ConversationID() string { return c.conversationID }

// FreshRequested reports whether the next chat should open a new
// conversation on the server.
func (c *Coordinator) FreshRequested() bool { return c.fresh }

// FreshSent records that a chat asking for a new conversation was written.
func (c *Coordinator) FreshSent() { c.fresh = false }

// PendingSwitch is the id a switch frame was sent for and not yet acknowledged.
func (c *Coordinator) PendingSwitch() string { return c.pendingSwitch }

// OnChange observes the active conversation id. "" means none.
func (c *Coordinator) OnChange(fn func(conversationID string)) pubsub.Unsubscribe {
	return c.changes.Subscribe(changeTopic, fn)
}

// Restore stages the persisted id and starts loading its history.
func (c *Coordinator) Restore(ctx context.Context) error {
	id, err := c.deps.Store.Load(ctx)
	if err != nil {
		c.deps.Logger.Error("Session", "Failed to load persisted conversation", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("load session: %w", err)
	}
	if id == "" {
		return nil
	}

	c.deps.Logger.Info("Session", "Restored conversation", map[string]interface{}{"conversation_id": id})
	c.conversationID = id
	c.changes.Publish(changeTopic, id)
	c.fetchHistory(id)
	return nil
}

// Select makes id the active conversation. "" or NewConversation starts a
// fresh one. While connected the server is asked to switch and history is
// loaded once it acknowledges; otherwise the id is staged for the next
// connect and history is loaded right away.
func (c *Coordinator) Select(id string) {
	if id == "" || id == NewConversation {
		c.startNew()
		return
	}

	c.cancelHistory()
	c.resetExchange()
	c.deps.Transcript.Clear()

	c.stopSwitchTimer()
	c.pendingSwitch = ""
	if c.deps.Connectivity.Connected() {
		c.pendingSwitch = id
		if err := c.deps.Switcher.SendSwitchConversation(id); err == nil {
			c.armSwitchTimer(id)
			return
		}
		c.pendingSwitch = ""
	}

	c.set(id)
	c.fetchHistory(id)
}

// Track records an id the router has switched to.
func (c *Coordinator) Track(id string) {
	c.set(id)
}

// Adopt records an id learned from a response frame if none is known yet.
func (c *Coordinator) Adopt(id string) {
	if c.conversationID != "" || id == "" {
		return
	}
	c.deps.Logger.Info("Session", "Conversation assigned", map[string]interface{}{"conversation_id": id})
	c.set(id)
}

// HandleSwitchAck completes a switch handshake and loads the history.
func (c *Coordinator) HandleSwitchAck(id string) {
	if c.pendingSwitch == "" || id != c.pendingSwitch {
		c.deps.Logger.Debug("Session", "Ignoring unexpected switch ack", map[string]interface{}{
			"conversation_id": id,
			"pending":         c.pendingSwitch,
		})
		return
	}
	c.stopSwitchTimer()
	c.pendingSwitch = ""
	c.set(id)
	c.fetchHistory(id)
}

// AbandonSwitch stops waiting for a switch ack, e.g. after the server
// answered with an error, and loads the history over REST instead.
func (c *Coordinator) AbandonSwitch() {
	id := c.pendingSwitch
	if id == "" {
		return
	}
	c.deps.Logger.Warn("Session", "Switch not acknowledged, loading history directly", map[string]interface{}{"conversation_id": id})
	c.stopSwitchTimer()
	c.pendingSwitch = ""
	c.set(id)
	c.fetchHistory(id)
}

// Close cancels an in-flight history fetch and the switch ack wait.
func (c *Coordinator) Close() {
	c.cancelHistory()
	c.stopSwitchTimer()
}

func (c *Coordinator) startNew() {
	c.cancelHistory()
	c.stopSwitchTimer()
	c.pendingSwitch = ""
	c.resetExchange()
	c.deps.Transcript.Clear()
	c.set("")
	c.fresh = true
}

func (c *Coordinator) set(id string) {
	if id != "" {
		c.fresh = false
	}
	if id == c.conversationID {
		return
	}
	c.conversationID = id
	c.persist(id)
	c.changes.Publish(changeTopic, id)
}

func (c *Coordinator) persist(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if id == "" {
		err = c.deps.Store.Delete(ctx)
	} else {
		err = c.deps.Store.Save(ctx, id)
	}
	if err != nil {
		c.deps.Logger.Error("Session", "Failed to persist conversation", map[string]interface{}{
			"conversation_id": id,
			"error":           err.Error(),
		})
	}
}

func (c *Coordinator) fetchHistory(id string) {
	c.cancelHistory()
	seq := c.fetchSeq
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelFetch = cancel
	limit := c.deps.HistoryLimit

	go func() {
		defer cancel()
		msgs, err := c.deps.History.Fetch(ctx, id, limit, 0)
		c.deps.Exec.Post(func() { c.onHistory(seq, id, msgs, err) })
	}()
}

func (c *Coordinator) onHistory(seq uint64, id string, msgs []model.CommittedMessage, err error) {
	if seq != c.fetchSeq || id != c.conversationID {
		return
	}
	c.cancelFetch = nil

	if err != nil {
		c.deps.Logger.Warn("Session", "History fetch failed", map[string]interface{}{"conversation_id": id, "error": err.Error()})
		c.deps.Transcript.Commit(model.CommittedMessage{
			ID:        uuid.NewString(),
			Text:      fmt.Sprintf("Could not load conversation history: %v", err),
			Type:      model.MessageTypeSystem,
			CreatedAt: c.deps.Clock.Now(),
		})
		if history.IsUnrecoverable(err) {
			c.set("")
			c.fresh = true
		}
		return
	}

	c.deps.Logger.Info("Session", "History loaded", map[string]interface{}{"conversation_id": id, "count": len(msgs)})
	c.deps.Transcript.LoadHistory(msgs)
}

func (c *Coordinator) cancelHistory() {
	c.fetchSeq++
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
}

func (c *Coordinator) armSwitchTimer(id string) {
	c.stopSwitchTimer()
	seq := c.switchSeq
	c.switchTimer = c.deps.Clock.AfterFunc(c.deps.SwitchTimeout, func() {
		c.deps.Exec.Post(func() {
			if seq != c.switchSeq || id != c.pendingSwitch {
				return
			}
			c.switchTimer = nil
			c.AbandonSwitch()
		})
	})
}

func (c *Coordinator) stopSwitchTimer() {
	c.switchSeq++
	if c.switchTimer != nil {
		c.switchTimer.Stop()
		c.switchTimer = nil
	}
}

func (c *Coordinator) resetExchange() {
	if c.exchanges != nil {
		c.exchanges.Reset()
	}
}
