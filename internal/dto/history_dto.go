package dto

import (
	"bytes"
	"encoding/json"
)

type GetConversationMessagesResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	Data           []HistoryMessage `json:"data"`
	Total          int              `json:"total"`
	ConversationID string           `json:"conversation_id"`
}

type HistoryMessage struct {
	ID             MessageID `json:"id"`
	ConversationID string    `json:"conversation_id_str,omitempty"`
	SenderType     string    `json:"sender_type"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      string    `json:"created_at"`
}

// MessageID accepts both numeric and string ids.
type MessageID string

func (m *MessageID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = MessageID(n.String())
	return nil
}
