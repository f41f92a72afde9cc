package mapper

import (
	"testing"
	"time"

	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestHistoryToModel(t *testing.T) {
	m := NewChatMapper()

	user := m.HistoryToModel(dto.HistoryMessage{ID: "7", SenderType: "human", SenderID: "u1", Content: "hi"})
	assert.Equal(t, model.MessageTypeUser, user.Type)
	assert.Equal(t, "7", user.ID)
	assert.Empty(t, user.ResponderID)

	agent := m.HistoryToModel(dto.HistoryMessage{ID: "8", SenderType: "agent", SenderID: "triage", Content: "hello"})
	assert.Equal(t, model.MessageTypeAssistant, agent.Type)
	assert.Equal(t, "triage", agent.ResponderID)

	other := m.HistoryToModel(dto.HistoryMessage{SenderType: "system", Content: "note", CreatedAt: "garbage"})
	assert.NotEmpty(t, other.ID)
	assert.Equal(t, model.MessageTypeAssistant, other.Type)
	assert.True(t, other.CreatedAt.IsZero())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 123456000, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-04T05:06:07.123456Z", want},
		{"2025-03-04T05:06:07.123456", want},
		{"2025-03-04 05:06:07.123456", want},
		{"2025-03-04 05:06:07", want.Truncate(time.Second)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ParseTimestamp(tt.in)), "got %v", ParseTimestamp(tt.in))
		})
	}
}
