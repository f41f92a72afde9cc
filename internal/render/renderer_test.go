package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/pkg/events"
	"ai-dashboard-client/pkg/store"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestRenderer(snapshot Snapshotter) (*Renderer, *bytes.Buffer) {
	color.NoColor = true
	var buf bytes.Buffer
	return New(&buf, snapshot), &buf
}

func TestRendersCommittedMessages(t *testing.T) {
	r, buf := newTestRenderer(nil)
	now := time.Now()

	r.Handle(context.Background(), events.NewMessageCommittedEvent("1", "user", "hello", "", now))
	r.Handle(context.Background(), events.NewPendingUpdatedEvent("e", "You said:", "echo_agent", now))
	r.Handle(context.Background(), events.NewMessageCommittedEvent("2", "assistant", "You said: hello", "echo_agent", now))
	r.Handle(context.Background(), events.NewMessageCommittedEvent("3", "system", "Server error: boom", "", now))

	out := buf.String()
	assert.Contains(t, out, "you> hello\n")
	assert.Contains(t, out, "echo_agent… You said:")
	assert.Contains(t, out, clearLine+"echo_agent> You said: hello\n")
	assert.Contains(t, out, "! Server error: boom\n")
}

func TestRendersHistoryFromSnapshot(t *testing.T) {
	r, buf := newTestRenderer(func() (store.Snapshot, error) {
		return store.Snapshot{Messages: []model.CommittedMessage{
			{Text: "earlier", Type: model.MessageTypeUser},
			{Text: "reply", Type: model.MessageTypeAssistant},
		}}, nil
	})

	r.Handle(context.Background(), events.NewTranscriptEvent(events.TypeHistoryLoaded, time.Now()))

	assert.Equal(t, "── 2 messages from history ──\nyou> earlier\nassistant> reply\n", buf.String())
}

func TestRendersConnectionEvents(t *testing.T) {
	r, buf := newTestRenderer(nil)
	now := time.Now()

	r.Handle(context.Background(), events.NewRetryScheduledEvent(2, 4*time.Second, now))
	r.Handle(context.Background(), events.NewAuthFailedEvent(4001, "invalid token", now))
	r.Handle(context.Background(), events.NewConversationChangedEvent("", now))

	out := buf.String()
	assert.Contains(t, out, "reconnecting in 4000ms (attempt 2)")
	assert.Contains(t, out, "authentication failed (4001): invalid token")
	assert.Contains(t, out, "* new conversation")
}
