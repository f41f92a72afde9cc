package dto

import (
	"encoding/json"
	"fmt"

	"ai-dashboard-client/internal/constant"
)

// Frame is the wire unit in both directions.
type Frame struct {
	Type           string          `json:"type"`
	Content        json.RawMessage `json:"content,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	ExchangeID     string          `json:"exchange_id,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	// NewConversation on a chat frame asks the server to open a fresh
	// conversation instead of the one the connection is bound to.
	NewConversation bool `json:"new_conversation,omitempty"`
}

// ResponseFrame is the content of ai_response / ai_thinking / ai_finished /
// chat_response frames. RawResponse carries cumulative partial text.
type ResponseFrame struct {
	ConversationID string            `json:"conversation_id"`
	ExchangeID     string            `json:"exchange_id,omitempty"`
	CurrentAgent   string            `json:"current_agent"`
	RawResponse    string            `json:"raw_response"`
	IsFinished     bool              `json:"is_finished"`
	IsError        bool              `json:"is_error"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Messages       []ResponseMessage `json:"messages,omitempty"`

	Events     []AgentEvent             `json:"events,omitempty"`
	Agents     []map[string]interface{} `json:"agents,omitempty"`
	Guardrails []GuardrailCheck         `json:"guardrails,omitempty"`
	Context    map[string]interface{}   `json:"context,omitempty"`
}

type ResponseMessage struct {
	Content string `json:"content"`
	Agent   string `json:"agent"`
}

type AgentEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Agent     string                 `json:"agent"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp float64                `json:"timestamp,omitempty"`
}

type GuardrailCheck struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Input     string  `json:"input"`
	Reasoning string  `json:"reasoning"`
	Passed    bool    `json:"passed"`
	Timestamp float64 `json:"timestamp"`
}

type completionEnvelope struct {
	Type          string         `json:"type"`
	FinalResponse *ResponseFrame `json:"final_response"`
}

// DecodeResponse parses a response content payload. A completion envelope
// is unwrapped and its final_response returned as a finished frame.
func DecodeResponse(raw json.RawMessage) (ResponseFrame, error) {
	var envelope completionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ResponseFrame{}, fmt.Errorf("decode response content: %w", err)
	}
	if envelope.Type == constant.ResponseContentCompletion && envelope.FinalResponse != nil {
		resp := *envelope.FinalResponse
		resp.IsFinished = true
		return resp, nil
	}

	var resp ResponseFrame
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ResponseFrame{}, fmt.Errorf("decode response content: %w", err)
	}
	return resp, nil
}

// ErrorContent is the content of error, auth_error and ai_error frames.
type ErrorContent struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e ErrorContent) Text() string {
	switch {
	case e.Error != "" && e.Details != "":
		return e.Error + ": " + e.Details
	case e.Error != "":
		return e.Error
	default:
		return e.Details
	}
}

// SwitchContent is both the outbound switch_conversation payload and the
// inbound acknowledgment (directly or embedded in a notification).
type SwitchContent struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type,omitempty"`
	Message        string `json:"message,omitempty"`
}

type ConnectedContent struct {
	ConnectionID string                 `json:"connection_id"`
	RoomID       string                 `json:"room_id"`
	Message      string                 `json:"message"`
	UserInfo     map[string]interface{} `json:"user_info,omitempty"`
}
