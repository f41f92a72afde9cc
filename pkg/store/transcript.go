package store

import (
	"sort"
	"time"

	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/internal/pkg/pubsub"
)

// PendingExchange is the in-progress response of the current exchange.
type PendingExchange struct {
	ExchangeID  string    `json:"exchange_id"`
	PartialText string    `json:"partial_text"`
	Responder   string    `json:"responder"`
	StartedAt   time.Time `json:"started_at"`
}

// SideChannel holds the latest auxiliary data carried by response frames.
type SideChannel struct {
	Events     []dto.AgentEvent         `json:"events,omitempty"`
	Agents     []map[string]interface{} `json:"agents,omitempty"`
	Guardrails []dto.GuardrailCheck     `json:"guardrails,omitempty"`
	Context    map[string]interface{}   `json:"context,omitempty"`
}

type ChangeKind string

const (
	ChangeCommitted      ChangeKind = "MESSAGE_COMMITTED"
	ChangePending        ChangeKind = "PENDING_UPDATED"
	ChangePendingCleared ChangeKind = "PENDING_CLEARED"
	ChangeHistoryLoaded  ChangeKind = "HISTORY_LOADED"
	ChangeCleared        ChangeKind = "TRANSCRIPT_CLEARED"
	ChangeSideChannel    ChangeKind = "SIDE_CHANNEL_UPDATED"
)

// Change describes one mutation. Message is set for ChangeCommitted,
// Pending for ChangePending.
type Change struct {
	Kind    ChangeKind
	Message *model.CommittedMessage
	Pending *PendingExchange
}

type Snapshot struct {
	Messages    []model.CommittedMessage `json:"messages"`
	Pending     *PendingExchange         `json:"pending,omitempty"`
	SideChannel SideChannel              `json:"side_channel"`
}

// Transcript is the committed message list plus the pending exchange.
// It is confined to the event loop; observers subscribe for changes.
type Transcript struct {
	messages []model.CommittedMessage
	pending  *PendingExchange
	side     SideChannel

	changes *pubsub.Registry[string, Change]
}

const changeTopic = "transcript"

func NewTranscript(log logger.ILogger) *Transcript {
	return &Transcript{
		changes: pubsub.New[string, Change]("Transcript", log),
	}
}

func (t *Transcript) Subscribe(fn func(Change)) pubsub.Unsubscribe {
	return t.changes.Subscribe(changeTopic, fn)
}

func (t *Transcript) Messages() []model.CommittedMessage {
	out := make([]model.CommittedMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Commit(msg model.CommittedMessage) {
	t.messages = append(t.messages, msg)
	t.changes.Publish(changeTopic, Change{Kind: ChangeCommitted, Message: &msg})
}

// Pending returns a copy of the pending exchange, or nil.
func (t *Transcript) Pending() *PendingExchange {
	if t.pending == nil {
		return nil
	}
	p := *t.pending
	return &p
}

func (t *Transcript) SetPending(p PendingExchange) {
	t.pending = &p
	t.changes.Publish(changeTopic, Change{Kind: ChangePending, Pending: &p})
}

func (t *Transcript) ClearPending() {
	if t.pending == nil {
		return
	}
	t.pending = nil
	t.changes.Publish(changeTopic, Change{Kind: ChangePendingCleared})
}

func (t *Transcript) SetSideChannel(s SideChannel) {
	t.side = s
	t.changes.Publish(changeTopic, Change{Kind: ChangeSideChannel})
}

func (t *Transcript) SideChannel() SideChannel {
	return t.side
}

// LoadHistory sorts history ascending by creation time and splices it in
// front of the live messages already committed. Live messages whose id
// also appears in history are kept only once.
func (t *Transcript) LoadHistory(history []model.CommittedMessage) {
	sorted := make([]model.CommittedMessage, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	seen := make(map[string]struct{}, len(sorted))
	for _, m := range sorted {
		seen[m.ID] = struct{}{}
	}
	merged := sorted
	for _, m := range t.messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		merged = append(merged, m)
	}
	t.messages = merged
	t.changes.Publish(changeTopic, Change{Kind: ChangeHistoryLoaded})
}

// Clear drops every committed message, the pending exchange and the side channel.
func (t *Transcript) Clear() {
	t.messages = nil
	t.pending = nil
	t.side = SideChannel{}
	t.changes.Publish(changeTopic, Change{Kind: ChangeCleared})
}

func (t *Transcript) Snapshot() Snapshot {
	return Snapshot{
		Messages:    t.Messages(),
		Pending:     t.Pending(),
		SideChannel: t.side,
	}
}
