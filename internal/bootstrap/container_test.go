package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			WebSocketURL: "ws://127.0.0.1:1/ws",
			APIBaseURL:   "http://127.0.0.1:1",
			UserID:       "u1",
			HistoryLimit: 10,
		},
		Reconnect: config.ReconnectConfig{
			BaseDelay:        10 * time.Millisecond,
			MaxDelay:         50 * time.Millisecond,
			MaxAttempts:      1,
			HandshakeTimeout: time.Second,
		},
		Exchange: config.ExchangeConfig{Timeout: time.Second},
		Store: config.StoreConfig{
			Driver:   "file",
			FilePath: filepath.Join(t.TempDir(), "session.json"),
			Key:      "current_conversation_id",
		},
		Events: config.EventsConfig{Topic: "session_events"},
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	nop := logger.NewNopLogger()
	c, err := NewContainer(cfg, WithLogger(nop), WithWireLogger(nop))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisDriverRestoresConversation(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("current_conversation_id", "c-redis"))

	cfg := testConfig(t)
	cfg.Store.Driver = "redis"
	cfg.Store.RedisURL = "redis://" + mr.Addr()
	c := newTestContainer(t, cfg)

	require.NoError(t, c.SessionService.Start(context.Background()))

	id, err := c.SessionService.ConversationID()
	require.NoError(t, err)
	assert.Equal(t, "c-redis", id)
}

func TestUnreachableRedisFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Store.Driver = "redis"
	cfg.Store.RedisURL = "redis://" + addr

	_, err := NewContainer(cfg, WithLogger(logger.NewNopLogger()), WithWireLogger(logger.NewNopLogger()))

	assert.Error(t, err)
}

func TestFileDriverStartsEmpty(t *testing.T) {
	c := newTestContainer(t, testConfig(t))

	require.NoError(t, c.SessionService.Start(context.Background()))

	id, err := c.SessionService.ConversationID()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestMemoryDriverAndClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "memory"
	nop := logger.NewNopLogger()
	c, err := NewContainer(cfg, WithLogger(nop), WithWireLogger(nop))
	require.NoError(t, err)

	require.NoError(t, c.SessionService.NewConversation())
	assert.NoError(t, c.Close())
}
