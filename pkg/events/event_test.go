package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeKeepsTypeAndTime(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	data, err := Marshal(NewConversationChangedEvent("c1", at))
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, TypeConversationChanged, got.EventType())
	assert.Equal(t, "c1", got.Payload()["conversation_id"])
	assert.True(t, at.Equal(got.Timestamp()))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("{"))
	assert.Error(t, err)
}
