package redis

import (
	"context"
	"errors"
	"fmt"

	"ai-dashboard-client/internal/repository/contract"

	goredis "github.com/redis/go-redis/v9"
)

// SessionRepository keeps the conversation id under a single Redis key so
// several clients of the same user share it.
type SessionRepository struct {
	rdb *goredis.Client
	key string
}

var _ contract.ISessionStore = (*SessionRepository)(nil)

func NewSessionRepository(rdb *goredis.Client, key string) *SessionRepository {
	return &SessionRepository{rdb: rdb, key: key}
}

func (r *SessionRepository) Load(ctx context.Context) (string, error) {
	id, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return id, nil
}

func (r *SessionRepository) Save(ctx context.Context, conversationID string) error {
	if err := r.rdb.Set(ctx, r.key, conversationID, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
