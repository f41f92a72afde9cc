package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	repo := NewSessionRepository(rdb, "chat:u1:conversation")

	id, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, repo.Save(ctx, "c7"))
	stored, err := mr.Get("chat:u1:conversation")
	require.NoError(t, err)
	assert.Equal(t, "c7", stored)

	id, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c7", id)

	require.NoError(t, repo.Delete(ctx))
	assert.False(t, mr.Exists("chat:u1:conversation"))
}

func TestSessionRepositoryReportsConnectionErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	_, err := NewSessionRepository(rdb, "k").Load(context.Background())
	assert.Error(t, err)
}
