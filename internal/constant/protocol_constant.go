package constant

// Inbound frame types
const (
	FrameTypeConnected            = "connected"
	FrameTypeAIResponse           = "ai_response"
	FrameTypeAIThinking           = "ai_thinking"
	FrameTypeAIFinished           = "ai_finished"
	FrameTypeAIError              = "ai_error"
	FrameTypeChatResponse         = "chat_response"
	FrameTypeConversationSwitched = "conversation_switched"
	FrameTypeNotification         = "notification"
	FrameTypeError                = "error"
	FrameTypeAuthError            = "auth_error"
	FrameTypePing                 = "ping"
)

// Outbound frame types
const (
	FrameTypeChat               = "chat"
	FrameTypeSwitchConversation = "switch_conversation"
	FrameTypePong               = "pong"
)

// ResponseContentCompletion marks the envelope {type, final_response} sent
// after the last progress frame of an exchange.
const ResponseContentCompletion = "completion"

// Close codes
const (
	CloseNormal            = 1000
	CloseAbnormal          = 1006
	ClosePolicyViolation   = 1008
	CloseInternalError     = 1011
	CloseTokenInvalid      = 4001
	CloseRoomJoinFailed    = 4002
	CloseUserTokenMismatch = 4003
)

// History sender types
const (
	SenderTypeHuman = "human"
	SenderTypeAI    = "ai"
)

// Address query parameters
const (
	QueryUserID         = "user_id"
	QueryUsername       = "username"
	QueryConversationID = "conversation_id"
	QueryToken          = "token"
)
