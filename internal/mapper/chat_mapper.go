package mapper

import (
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"

	"github.com/google/uuid"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// HistoryToModel maps a stored message: human senders become user
// messages, everyone else is an assistant.
func (m *ChatMapper) HistoryToModel(h dto.HistoryMessage) model.CommittedMessage {
	msg := model.CommittedMessage{
		ID:        string(h.ID),
		Text:      h.Content,
		Type:      model.MessageTypeAssistant,
		CreatedAt: ParseTimestamp(h.CreatedAt),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if h.SenderType == constant.SenderTypeHuman {
		msg.Type = model.MessageTypeUser
	} else {
		msg.ResponderID = h.SenderID
	}
	return msg
}

func (m *ChatMapper) HistoryListToModel(list []dto.HistoryMessage) []model.CommittedMessage {
	out := make([]model.CommittedMessage, 0, len(list))
	for _, h := range list {
		out = append(out, m.HistoryToModel(h))
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO timestamps, which are
// read as UTC. Unparseable values become the zero time.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
