package supervisor

import (
	"fmt"
	"net/url"

	"ai-dashboard-client/internal/constant"
)

// Credentials identify the user on the connect address.
type Credentials struct {
	UserID   string
	Username string
	Token    string
}

// BuildAddress attaches identity, display name, the known conversation id
// (only when set) and the credential as query parameters.
func BuildAddress(base string, creds Credentials, conversationID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set(constant.QueryUserID, creds.UserID)
	if creds.Username != "" {
		q.Set(constant.QueryUsername, creds.Username)
	}
	if conversationID != "" {
		q.Set(constant.QueryConversationID, conversationID)
	} else {
		q.Del(constant.QueryConversationID)
	}
	q.Set(constant.QueryToken, creds.Token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
