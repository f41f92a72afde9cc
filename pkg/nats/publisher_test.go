package nats

import (
	"testing"

	"ai-dashboard-client/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestSubjectIsUnderStream(t *testing.T) {
	assert.Equal(t, "events.chat.CHAT_AUTH_FAILED", Subject(events.TypeAuthFailed))
}
