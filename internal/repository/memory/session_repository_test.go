package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository("current_conversation_id")

	id, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, repo.Save(ctx, "c1"))
	id, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	require.NoError(t, repo.Delete(ctx))
	id, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}
