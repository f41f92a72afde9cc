package contract

import "context"

// ISessionStore persists the active conversation id across restarts.
// Load returns "" with a nil error when nothing is stored.
type ISessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, conversationID string) error
	Delete(ctx context.Context) error
}
