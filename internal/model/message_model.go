package model

import "time"

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeSystem    MessageType = "system"
)

// CommittedMessage is a finalized, rendered message. The committed list is
// append-only during live traffic.
type CommittedMessage struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Type        MessageType `json:"type"`
	ResponderID string      `json:"responder_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
