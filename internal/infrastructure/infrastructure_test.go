package infrastructure

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcast.dev/tenantcast/internal/config"
	"tenantcast.dev/tenantcast/internal/testutil"
)

func TestNewRedisClient_DisabledReturnsNil(t *testing.T) {
	t.Parallel()

	client, err := NewRedisClient(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient_Connects(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Close())
}

func TestNewDatabaseClients_BadDSN(t *testing.T) {
	t.Parallel()

	_, err := NewDatabaseClients(context.Background(), config.DatabaseConfig{URL: "::not a dsn::"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse pool config")
}

func TestDatabaseClients_CloseNil(t *testing.T) {
	t.Parallel()

	var c *DatabaseClients
	assert.NotPanics(t, c.Close)
	assert.NotPanics(t, (&DatabaseClients{}).Close)
}

func TestDatabaseClients_AutoMigrate(t *testing.T) {
	dsn := testutil.DSN()
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	clients, err := NewDatabaseClients(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(clients.Close)

	require.NoError(t, clients.AutoMigrate(ctx))
	// Second run is a no-op.
	require.NoError(t, clients.AutoMigrate(ctx))
}
