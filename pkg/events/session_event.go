package events

import "time"

const (
	TypeConnectionState     = "CHAT_CONNECTION_STATE"
	TypeConnectionReady     = "CHAT_CONNECTION_READY"
	TypeAuthFailed          = "CHAT_AUTH_FAILED"
	TypeRetryScheduled      = "CHAT_RETRY_SCHEDULED"
	TypeRetriesExhausted    = "CHAT_RETRIES_EXHAUSTED"
	TypeMessageCommitted    = "CHAT_MESSAGE_COMMITTED"
	TypePendingUpdated      = "CHAT_PENDING_UPDATED"
	TypePendingCleared      = "CHAT_PENDING_CLEARED"
	TypeHistoryLoaded       = "CHAT_HISTORY_LOADED"
	TypeTranscriptCleared   = "CHAT_TRANSCRIPT_CLEARED"
	TypeSideChannelUpdated  = "CHAT_SIDE_CHANNEL_UPDATED"
	TypeConversationChanged = "CHAT_CONVERSATION_CHANGED"
)

func NewConnectionStateEvent(from, to string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeConnectionState,
		Data:       map[string]interface{}{"from": from, "to": to},
		OccurredAt: at,
	}
}

func NewConnectionReadyEvent(connectionID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeConnectionReady,
		Data:       map[string]interface{}{"connection_id": connectionID},
		OccurredAt: at,
	}
}

func NewAuthFailedEvent(code int, reason string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeAuthFailed,
		Data:       map[string]interface{}{"code": code, "reason": reason},
		OccurredAt: at,
	}
}

func NewRetryScheduledEvent(attempt int, delay time.Duration, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeRetryScheduled,
		Data:       map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
		OccurredAt: at,
	}
}

func NewRetriesExhaustedEvent(attempts int, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeRetriesExhausted,
		Data:       map[string]interface{}{"attempts": attempts},
		OccurredAt: at,
	}
}

func NewMessageCommittedEvent(id, messageType, text, responder string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeMessageCommitted,
		Data: map[string]interface{}{
			"id":        id,
			"type":      messageType,
			"text":      text,
			"responder": responder,
		},
		OccurredAt: at,
	}
}

func NewPendingUpdatedEvent(exchangeID, partialText, responder string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypePendingUpdated,
		Data: map[string]interface{}{
			"exchange_id":  exchangeID,
			"partial_text": partialText,
			"responder":    responder,
		},
		OccurredAt: at,
	}
}

// NewTranscriptEvent covers transcript changes that carry no payload.
func NewTranscriptEvent(eventType string, at time.Time) BaseEvent {
	return BaseEvent{Type: eventType, Data: map[string]interface{}{}, OccurredAt: at}
}

func NewConversationChangedEvent(conversationID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeConversationChanged,
		Data:       map[string]interface{}{"conversation_id": conversationID},
		OccurredAt: at,
	}
}
