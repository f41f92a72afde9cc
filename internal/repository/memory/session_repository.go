package memory

import (
	"context"

	"ai-dashboard-client/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps the conversation id for the lifetime of the process.
type SessionRepository struct {
	cache *cache.Cache
	key   string
}

var _ contract.ISessionStore = (*SessionRepository)(nil)

func NewSessionRepository(key string) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 0),
		key:   key,
	}
}

func (r *SessionRepository) Load(ctx context.Context) (string, error) {
	if x, found := r.cache.Get(r.key); found {
		return x.(string), nil
	}
	return "", nil
}

func (r *SessionRepository) Save(ctx context.Context, conversationID string) error {
	r.cache.Set(r.key, conversationID, cache.NoExpiration)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context) error {
	r.cache.Delete(r.key)
	return nil
}
